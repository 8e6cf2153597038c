package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/speaklab-backend/internal/logger"
	"github.com/yungbote/speaklab-backend/internal/types"
)

// fakeOrchestrator scripts deterministic questions, transcripts and scores
// so session flow can be driven without a provider.
type fakeOrchestrator struct {
	scores     []float64
	scoreIdx   int
	transcript string
	sttErr     error
	ttsErr     error

	questionCalls int
	lastPrevious  []string
}

func (f *fakeOrchestrator) ValidateKey(ctx context.Context) KeyValidation {
	return KeyValidation{Valid: true}
}

func (f *fakeOrchestrator) GenerateQuestion(ctx context.Context, part, index int, previous []string) QuestionResult {
	f.questionCalls++
	f.lastPrevious = previous
	return QuestionResult{
		Question: types.PracticeQuestion{
			ID:   fmt.Sprintf("p%d-q%d", part, index),
			Text: fmt.Sprintf("question %d for part %d", index, part),
		},
	}
}

func (f *fakeOrchestrator) EvaluateResponse(ctx context.Context, text string, part int) EvaluationResult {
	score := 6.0
	if f.scoreIdx < len(f.scores) {
		score = f.scores[f.scoreIdx]
		f.scoreIdx++
	}
	return EvaluationResult{
		Evaluation: types.Evaluation{Score: score, Feedback: "feedback", Suggestions: []string{"s"}},
	}
}

func (f *fakeOrchestrator) GenerateModelAnswer(ctx context.Context, question string, part int, userResponse string) AnswerResult {
	return AnswerResult{Answer: "model answer"}
}

func (f *fakeOrchestrator) TextToSpeech(ctx context.Context, text string) ([]byte, error) {
	if f.ttsErr != nil {
		return nil, f.ttsErr
	}
	return []byte("audio:" + text), nil
}

func (f *fakeOrchestrator) SpeechToText(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if f.sttErr != nil {
		return "", f.sttErr
	}
	if f.transcript != "" {
		return f.transcript, nil
	}
	return "spoken answer", nil
}

func newTestSession(t *testing.T, orchestrator OrchestratorService) SessionService {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return NewSessionService(log, orchestrator)
}

func TestStartRejectsInvalidPart(t *testing.T) {
	svc := newTestSession(t, &fakeOrchestrator{})
	for _, part := range []int{0, 4, -1} {
		if _, err := svc.Start(context.Background(), uuid.New(), part); !errors.Is(err, ErrInvalidPart) {
			t.Fatalf("part %d: err = %v, want ErrInvalidPart", part, err)
		}
	}
}

func TestSessionFullCycle(t *testing.T) {
	fake := &fakeOrchestrator{scores: []float64{6.0, 7.0}}
	svc := newTestSession(t, fake)
	ctx := context.Background()
	userID := uuid.New()

	session, err := svc.Start(ctx, userID, 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if session.State != types.SessionActive {
		t.Fatalf("state = %q, want active", session.State)
	}

	question, fromFallback, err := svc.CurrentQuestion(ctx, session.ID, userID)
	if err != nil {
		t.Fatalf("current question: %v", err)
	}
	if fromFallback {
		t.Fatalf("unexpected fallback question")
	}
	if question.ID != "p1-q0" {
		t.Fatalf("question ID = %q", question.ID)
	}
	if len(question.Audio) == 0 {
		t.Fatalf("question should carry synthesized audio")
	}

	if err := svc.AttachRecording(session.ID, userID, []byte("rec-1"), "audio/webm"); err != nil {
		t.Fatalf("attach: %v", err)
	}
	response, err := svc.Submit(ctx, session.ID, userID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if response.Transcript != "spoken answer" {
		t.Fatalf("transcript = %q", response.Transcript)
	}
	if response.Evaluation == nil || response.Evaluation.Score != 6.0 {
		t.Fatalf("evaluation = %+v", response.Evaluation)
	}

	index, hasMore, err := svc.Advance(ctx, session.ID, userID)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if index != 1 || !hasMore {
		t.Fatalf("index = %d hasMore = %v", index, hasMore)
	}

	if err := svc.AttachRecording(session.ID, userID, []byte("rec-2"), "audio/webm"); err != nil {
		t.Fatalf("attach second: %v", err)
	}
	if _, err := svc.Submit(ctx, session.ID, userID); err != nil {
		t.Fatalf("submit second: %v", err)
	}

	summary, err := svc.Complete(session.ID, userID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if summary.OverallScore == nil || *summary.OverallScore != 6.5 {
		t.Fatalf("overall score = %v, want 6.5", summary.OverallScore)
	}
	if len(summary.Responses) != 2 || len(summary.Questions) != 2 {
		t.Fatalf("summary responses = %d questions = %d", len(summary.Responses), len(summary.Questions))
	}
	for _, q := range summary.Questions {
		if q.Audio != nil {
			t.Fatalf("audio buffer not released for %s", q.ID)
		}
	}

	// session is gone once finished
	if _, _, err := svc.CurrentQuestion(ctx, session.ID, userID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestSubmitRequiresRecording(t *testing.T) {
	svc := newTestSession(t, &fakeOrchestrator{})
	ctx := context.Background()
	userID := uuid.New()
	session, _ := svc.Start(ctx, userID, 1)

	if _, err := svc.Submit(ctx, session.ID, userID); !errors.Is(err, ErrNoRecording) {
		t.Fatalf("err = %v, want ErrNoRecording", err)
	}
}

func TestSubmitTwicePerQuestionRejected(t *testing.T) {
	svc := newTestSession(t, &fakeOrchestrator{})
	ctx := context.Background()
	userID := uuid.New()
	session, _ := svc.Start(ctx, userID, 2)

	if err := svc.AttachRecording(session.ID, userID, []byte("rec"), "audio/webm"); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if _, err := svc.Submit(ctx, session.ID, userID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.Submit(ctx, session.ID, userID); !errors.Is(err, ErrAlreadyAnswered) {
		t.Fatalf("err = %v, want ErrAlreadyAnswered", err)
	}
	if err := svc.AttachRecording(session.ID, userID, []byte("rec"), "audio/webm"); !errors.Is(err, ErrAlreadyAnswered) {
		t.Fatalf("attach err = %v, want ErrAlreadyAnswered", err)
	}
}

func TestTranscriptionFailureKeepsRecording(t *testing.T) {
	fake := &fakeOrchestrator{sttErr: errors.New("provider down")}
	svc := newTestSession(t, fake)
	ctx := context.Background()
	userID := uuid.New()
	session, _ := svc.Start(ctx, userID, 1)

	if err := svc.AttachRecording(session.ID, userID, []byte("rec"), "audio/webm"); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if _, err := svc.Submit(ctx, session.ID, userID); err == nil {
		t.Fatalf("expected transcription error")
	}

	// the recording survives, so the submit can be retried
	fake.sttErr = nil
	if _, err := svc.Submit(ctx, session.ID, userID); err != nil {
		t.Fatalf("retry submit: %v", err)
	}
}

func TestAdvanceStopsAtLastQuestion(t *testing.T) {
	svc := newTestSession(t, &fakeOrchestrator{})
	ctx := context.Background()
	userID := uuid.New()
	session, _ := svc.Start(ctx, userID, 1)

	for i := 1; i < MaxQuestionsPerPart; i++ {
		index, hasMore, err := svc.Advance(ctx, session.ID, userID)
		if err != nil {
			t.Fatalf("advance to %d: %v", i, err)
		}
		if index != i {
			t.Fatalf("index = %d, want %d", index, i)
		}
		if wantMore := i < MaxQuestionsPerPart-1; hasMore != wantMore {
			t.Fatalf("index %d: hasMore = %v, want %v", i, hasMore, wantMore)
		}
	}
	if _, _, err := svc.Advance(ctx, session.ID, userID); !errors.Is(err, ErrNoMoreQuestions) {
		t.Fatalf("err = %v, want ErrNoMoreQuestions", err)
	}
}

func TestPartThreeQuestionsSeeEarlierTranscripts(t *testing.T) {
	fake := &fakeOrchestrator{transcript: "my discussion point"}
	svc := newTestSession(t, fake)
	ctx := context.Background()
	userID := uuid.New()
	session, _ := svc.Start(ctx, userID, 3)

	if _, _, err := svc.CurrentQuestion(ctx, session.ID, userID); err != nil {
		t.Fatalf("first question: %v", err)
	}
	if len(fake.lastPrevious) != 0 {
		t.Fatalf("first question should have no context, got %v", fake.lastPrevious)
	}

	if err := svc.AttachRecording(session.ID, userID, []byte("rec"), "audio/webm"); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if _, err := svc.Submit(ctx, session.ID, userID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, _, err := svc.Advance(ctx, session.ID, userID); err != nil {
		t.Fatalf("advance: %v", err)
	}

	if len(fake.lastPrevious) != 1 || fake.lastPrevious[0] != "my discussion point" {
		t.Fatalf("second question context = %v", fake.lastPrevious)
	}
}

func TestQuestionsAreMemoized(t *testing.T) {
	fake := &fakeOrchestrator{}
	svc := newTestSession(t, fake)
	ctx := context.Background()
	userID := uuid.New()
	session, _ := svc.Start(ctx, userID, 1)

	svc.CurrentQuestion(ctx, session.ID, userID)
	svc.CurrentQuestion(ctx, session.ID, userID)
	if fake.questionCalls != 1 {
		t.Fatalf("question calls = %d, want 1", fake.questionCalls)
	}
}

func TestSynthesisFailureStillReturnsQuestion(t *testing.T) {
	fake := &fakeOrchestrator{ttsErr: errors.New("tts down")}
	svc := newTestSession(t, fake)
	ctx := context.Background()
	userID := uuid.New()
	session, _ := svc.Start(ctx, userID, 1)

	question, _, err := svc.CurrentQuestion(ctx, session.ID, userID)
	if err != nil {
		t.Fatalf("current question: %v", err)
	}
	if question.Text == "" {
		t.Fatalf("question text missing")
	}
	if question.Audio != nil {
		t.Fatalf("audio should be absent when synthesis fails")
	}
}

func TestSessionsAreScopedToOwner(t *testing.T) {
	svc := newTestSession(t, &fakeOrchestrator{})
	ctx := context.Background()
	owner := uuid.New()
	intruder := uuid.New()
	session, _ := svc.Start(ctx, owner, 1)

	if _, _, err := svc.CurrentQuestion(ctx, session.ID, intruder); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
	if err := svc.AttachRecording(session.ID, intruder, []byte("rec"), "audio/webm"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("attach err = %v, want ErrSessionNotFound", err)
	}
	if _, err := svc.Exit(session.ID, intruder); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("exit err = %v, want ErrSessionNotFound", err)
	}
}

func TestExitWithoutResponsesHasNoScore(t *testing.T) {
	svc := newTestSession(t, &fakeOrchestrator{})
	ctx := context.Background()
	userID := uuid.New()
	session, _ := svc.Start(ctx, userID, 2)

	time.Sleep(10 * time.Millisecond)
	summary, err := svc.Exit(session.ID, userID)
	if err != nil {
		t.Fatalf("exit: %v", err)
	}
	if summary.OverallScore != nil {
		t.Fatalf("overall score = %v, want nil", *summary.OverallScore)
	}
	if summary.DurationSeconds < 0 {
		t.Fatalf("duration = %d", summary.DurationSeconds)
	}
}
