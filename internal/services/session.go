package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/speaklab-backend/internal/logger"
	"github.com/yungbote/speaklab-backend/internal/types"
)

// MaxQuestionsPerPart bounds every part of a practice session.
const MaxQuestionsPerPart = 5

var (
	ErrSessionNotFound  = errors.New("practice session not found")
	ErrSessionNotActive = errors.New("practice session is not active")
	ErrInvalidPart      = errors.New("part must be 1, 2 or 3")
	ErrNoRecording      = errors.New("no recording attached for the current question")
	ErrAlreadyAnswered  = errors.New("current question already has a submitted response")
	ErrNoMoreQuestions  = errors.New("session has reached the last question")
)

// PracticeSession tracks one user's run through a part: setup -> active ->
// completed, with the per-question sub-cycle awaiting-recording ->
// recorded -> transcribing -> evaluating -> evaluated.
type PracticeSession struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"-"`
	Part          int        `json:"part"`
	State         string     `json:"state"`
	QuestionState string     `json:"questionState"`
	Index         int        `json:"index"`
	StartedAt     time.Time  `json:"startedAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`

	questions map[int]*types.PracticeQuestion
	responses map[int]*types.PracticeResponse

	// recorded but not yet submitted audio for the current question
	pendingAudio []byte
	pendingMime  string
}

// SessionSummary is returned when a session completes or exits.
type SessionSummary struct {
	SessionID       uuid.UUID                 `json:"sessionId"`
	Part            int                       `json:"part"`
	OverallScore    *float64                  `json:"overallScore,omitempty"`
	DurationSeconds int                       `json:"duration"`
	Responses       []*types.PracticeResponse `json:"responses"`
	Questions       []*types.PracticeQuestion `json:"questions"`
}

// SessionService sequences the practice flow against the orchestrator.
// Sessions live in process memory for their lifetime; completed sessions
// are persisted separately through the history endpoint.
type SessionService interface {
	Start(ctx context.Context, userID uuid.UUID, part int) (*PracticeSession, error)
	CurrentQuestion(ctx context.Context, sessionID, userID uuid.UUID) (*types.PracticeQuestion, bool, error)
	AttachRecording(sessionID, userID uuid.UUID, audio []byte, mimeType string) error
	Submit(ctx context.Context, sessionID, userID uuid.UUID) (*types.PracticeResponse, error)
	Advance(ctx context.Context, sessionID, userID uuid.UUID) (int, bool, error)
	Complete(sessionID, userID uuid.UUID) (*SessionSummary, error)
	Exit(sessionID, userID uuid.UUID) (*SessionSummary, error)
}

type sessionService struct {
	log          *logger.Logger
	orchestrator OrchestratorService

	mu       sync.Mutex
	sessions map[uuid.UUID]*PracticeSession

	now func() time.Time
}

func NewSessionService(log *logger.Logger, orchestrator OrchestratorService) SessionService {
	serviceLog := log.With("service", "SessionService")
	return &sessionService{
		log:          serviceLog,
		orchestrator: orchestrator,
		sessions:     make(map[uuid.UUID]*PracticeSession),
		now:          time.Now,
	}
}

func (ss *sessionService) Start(ctx context.Context, userID uuid.UUID, part int) (*PracticeSession, error) {
	if part < 1 || part > 3 {
		return nil, ErrInvalidPart
	}

	session := &PracticeSession{
		ID:            uuid.New(),
		UserID:        userID,
		Part:          part,
		State:         types.SessionActive,
		QuestionState: types.QuestionAwaitingRecording,
		Index:         0,
		StartedAt:     ss.now(),
		questions:     make(map[int]*types.PracticeQuestion),
		responses:     make(map[int]*types.PracticeResponse),
	}

	ss.mu.Lock()
	ss.sessions[session.ID] = session
	ss.mu.Unlock()

	ss.log.Info("Practice session started", "session_id", session.ID.String(), "part", part)
	return session, nil
}

func (ss *sessionService) get(sessionID, userID uuid.UUID) (*PracticeSession, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	session, ok := ss.sessions[sessionID]
	if !ok || session.UserID != userID {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// CurrentQuestion fetches (and memoizes) the question for the current slot,
// including its synthesized audio. The bool reports whether the question
// text came from the static fallback list.
func (ss *sessionService) CurrentQuestion(ctx context.Context, sessionID, userID uuid.UUID) (*types.PracticeQuestion, bool, error) {
	session, err := ss.get(sessionID, userID)
	if err != nil {
		return nil, false, err
	}
	if session.State != types.SessionActive {
		return nil, false, ErrSessionNotActive
	}
	return ss.fetchQuestion(ctx, session, session.Index)
}

func (ss *sessionService) fetchQuestion(ctx context.Context, session *PracticeSession, index int) (*types.PracticeQuestion, bool, error) {
	ss.mu.Lock()
	if q, ok := session.questions[index]; ok {
		ss.mu.Unlock()
		return q, false, nil
	}
	previous := transcriptsSoFar(session)
	ss.mu.Unlock()

	result := ss.orchestrator.GenerateQuestion(ctx, session.Part, index, previous)
	question := result.Question

	// synthesis failure is non-fatal: the question is still usable as text
	if audio, err := ss.orchestrator.TextToSpeech(ctx, question.Text); err != nil {
		ss.log.Warn("Question audio synthesis failed", "session_id", session.ID.String(), "error", err)
	} else {
		question.Audio = audio
	}

	ss.mu.Lock()
	session.questions[index] = &question
	ss.mu.Unlock()
	return &question, result.FromFallback, nil
}

// transcriptsSoFar collects submitted transcripts in question order; part 3
// generation uses them as discussion context. Caller holds the lock.
func transcriptsSoFar(session *PracticeSession) []string {
	if session.Part != 3 {
		return nil
	}
	var out []string
	for i := 0; i < MaxQuestionsPerPart; i++ {
		if r, ok := session.responses[i]; ok {
			out = append(out, r.Transcript)
		}
	}
	return out
}

func (ss *sessionService) AttachRecording(sessionID, userID uuid.UUID, audio []byte, mimeType string) error {
	session, err := ss.get(sessionID, userID)
	if err != nil {
		return err
	}

	ss.mu.Lock()
	defer ss.mu.Unlock()
	if session.State != types.SessionActive {
		return ErrSessionNotActive
	}
	if _, answered := session.responses[session.Index]; answered {
		return ErrAlreadyAnswered
	}
	if len(audio) == 0 {
		return fmt.Errorf("empty recording")
	}
	// a new recording replaces any previous un-submitted one
	session.pendingAudio = audio
	session.pendingMime = mimeType
	session.QuestionState = types.QuestionRecorded
	return nil
}

func (ss *sessionService) Submit(ctx context.Context, sessionID, userID uuid.UUID) (*types.PracticeResponse, error) {
	session, err := ss.get(sessionID, userID)
	if err != nil {
		return nil, err
	}

	ss.mu.Lock()
	if session.State != types.SessionActive {
		ss.mu.Unlock()
		return nil, ErrSessionNotActive
	}
	if _, answered := session.responses[session.Index]; answered {
		ss.mu.Unlock()
		return nil, ErrAlreadyAnswered
	}
	if len(session.pendingAudio) == 0 {
		ss.mu.Unlock()
		return nil, ErrNoRecording
	}
	audio := session.pendingAudio
	mime := session.pendingMime
	index := session.Index
	question := session.questions[index]
	session.QuestionState = types.QuestionTranscribing
	ss.mu.Unlock()

	transcript, err := ss.orchestrator.SpeechToText(ctx, audio, mime)
	if err != nil {
		ss.mu.Lock()
		session.QuestionState = types.QuestionRecorded
		ss.mu.Unlock()
		return nil, fmt.Errorf("transcription: %w", err)
	}

	ss.mu.Lock()
	session.QuestionState = types.QuestionEvaluating
	ss.mu.Unlock()

	evalResult := ss.orchestrator.EvaluateResponse(ctx, transcript, session.Part)
	evaluation := evalResult.Evaluation

	questionID := fmt.Sprintf("p%d-q%d", session.Part, index)
	if question != nil {
		questionID = question.ID
	}
	response := &types.PracticeResponse{
		QuestionID:  questionID,
		Transcript:  transcript,
		Evaluation:  &evaluation,
		SubmittedAt: ss.now(),
	}

	ss.mu.Lock()
	session.responses[index] = response
	session.pendingAudio = nil
	session.pendingMime = ""
	session.QuestionState = types.QuestionEvaluated
	ss.mu.Unlock()
	return response, nil
}

// Advance moves to the next question slot and prefetches its question.
// Returns the new index and whether the session has questions remaining.
func (ss *sessionService) Advance(ctx context.Context, sessionID, userID uuid.UUID) (int, bool, error) {
	session, err := ss.get(sessionID, userID)
	if err != nil {
		return 0, false, err
	}

	ss.mu.Lock()
	if session.State != types.SessionActive {
		ss.mu.Unlock()
		return 0, false, ErrSessionNotActive
	}
	if session.Index >= MaxQuestionsPerPart-1 {
		ss.mu.Unlock()
		return session.Index, false, ErrNoMoreQuestions
	}
	session.Index++
	session.pendingAudio = nil
	session.pendingMime = ""
	session.QuestionState = types.QuestionAwaitingRecording
	index := session.Index
	ss.mu.Unlock()

	if _, _, err := ss.fetchQuestion(ctx, session, index); err != nil {
		ss.log.Warn("Prefetch of next question failed", "session_id", session.ID.String(), "error", err)
	}
	return index, index < MaxQuestionsPerPart-1, nil
}

func (ss *sessionService) Complete(sessionID, userID uuid.UUID) (*SessionSummary, error) {
	return ss.finish(sessionID, userID)
}

func (ss *sessionService) Exit(sessionID, userID uuid.UUID) (*SessionSummary, error) {
	return ss.finish(sessionID, userID)
}

func (ss *sessionService) finish(sessionID, userID uuid.UUID) (*SessionSummary, error) {
	session, err := ss.get(sessionID, userID)
	if err != nil {
		return nil, err
	}

	ss.mu.Lock()
	defer ss.mu.Unlock()
	if session.State == types.SessionCompleted {
		return nil, ErrSessionNotActive
	}

	now := ss.now()
	session.State = types.SessionCompleted
	session.CompletedAt = &now
	// release held audio buffers
	session.pendingAudio = nil
	for _, q := range session.questions {
		q.Audio = nil
	}

	summary := &SessionSummary{
		SessionID:       session.ID,
		Part:            session.Part,
		DurationSeconds: int(now.Sub(session.StartedAt).Seconds()),
	}
	var sum float64
	var scored int
	for i := 0; i < MaxQuestionsPerPart; i++ {
		if q, ok := session.questions[i]; ok {
			summary.Questions = append(summary.Questions, q)
		}
		if r, ok := session.responses[i]; ok {
			summary.Responses = append(summary.Responses, r)
			if r.Evaluation != nil {
				sum += r.Evaluation.Score
				scored++
			}
		}
	}
	if scored > 0 {
		overall := math.Round(sum/float64(scored)*2) / 2
		summary.OverallScore = &overall
	}

	delete(ss.sessions, session.ID)
	return summary, nil
}
