package services

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/yungbote/speaklab-backend/internal/cache"
	"github.com/yungbote/speaklab-backend/internal/logger"
)

type fakeOpenAI struct {
	chatFn       func(ctx context.Context, req ChatRequest) (string, error)
	speechFn     func(ctx context.Context, req SpeechRequest) ([]byte, error)
	transcribeFn func(ctx context.Context, req TranscribeRequest) (string, error)
	probeFn      func(ctx context.Context) error

	chatCalls       int
	speechCalls     int
	transcribeCalls int
	probeCalls      int
}

func (f *fakeOpenAI) Chat(ctx context.Context, req ChatRequest) (string, error) {
	f.chatCalls++
	if f.chatFn != nil {
		return f.chatFn(ctx, req)
	}
	return "ok", nil
}

func (f *fakeOpenAI) Speech(ctx context.Context, req SpeechRequest) ([]byte, error) {
	f.speechCalls++
	if f.speechFn != nil {
		return f.speechFn(ctx, req)
	}
	return []byte("audio"), nil
}

func (f *fakeOpenAI) Transcribe(ctx context.Context, req TranscribeRequest) (string, error) {
	f.transcribeCalls++
	if f.transcribeFn != nil {
		return f.transcribeFn(ctx, req)
	}
	return "transcript", nil
}

func (f *fakeOpenAI) Probe(ctx context.Context) error {
	f.probeCalls++
	if f.probeFn != nil {
		return f.probeFn(ctx)
	}
	return nil
}

func (f *fakeOpenAI) KeyFingerprint() string { return "fp-test" }

func newTestOrchestrator(t *testing.T, client OpenAIClient, transcriber Transcriber) OrchestratorService {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return NewOrchestratorService(log, client, transcriber, cache.NewMemoryCache())
}

func TestGenerateQuestionFallbackIsDeterministic(t *testing.T) {
	providerErr := &openAIHTTPError{StatusCode: 429, Body: "rate limit"}
	client := &fakeOpenAI{
		chatFn: func(ctx context.Context, req ChatRequest) (string, error) {
			return "", providerErr
		},
	}
	svc := newTestOrchestrator(t, client, nil)
	ctx := context.Background()

	for part := 1; part <= 3; part++ {
		pool := fallbackQuestions[part]
		for index := 0; index < MaxQuestionsPerPart; index++ {
			first := svc.GenerateQuestion(ctx, part, index, nil)
			wrapped := svc.GenerateQuestion(ctx, part, index+len(pool), nil)

			if !first.FromFallback {
				t.Fatalf("part %d index %d: expected fallback", part, index)
			}
			if first.Failure == nil || first.Failure.Kind != FailureRateLimited {
				t.Fatalf("part %d index %d: failure = %+v, want rate_limited", part, index, first.Failure)
			}
			if first.Question.Text != pool[index%len(pool)] {
				t.Fatalf("part %d index %d: got %q", part, index, first.Question.Text)
			}
			if wrapped.Question.Text != first.Question.Text {
				t.Fatalf("part %d: index %d and %d should pick the same fallback", part, index, index+len(pool))
			}
		}
	}
}

func TestGenerateQuestionSuccessIsCached(t *testing.T) {
	client := &fakeOpenAI{
		chatFn: func(ctx context.Context, req ChatRequest) (string, error) {
			return "What is your favourite season?", nil
		},
	}
	svc := newTestOrchestrator(t, client, nil)
	ctx := context.Background()

	first := svc.GenerateQuestion(ctx, 1, 0, nil)
	second := svc.GenerateQuestion(ctx, 1, 0, nil)

	if first.FromFallback {
		t.Fatalf("expected a generated question")
	}
	if first.Question.ID != "p1-q0" {
		t.Fatalf("question ID = %q", first.Question.ID)
	}
	if second.Question.Text != first.Question.Text {
		t.Fatalf("cached result differs: %q vs %q", second.Question.Text, first.Question.Text)
	}
	if client.chatCalls != 1 {
		t.Fatalf("chat calls = %d, want 1", client.chatCalls)
	}
}

func TestEvaluateResponseParsesFencedJSON(t *testing.T) {
	client := &fakeOpenAI{
		chatFn: func(ctx context.Context, req ChatRequest) (string, error) {
			return "```json\n{\"score\": 7.5, \"feedback\": \"Well developed.\", \"suggestions\": [\"Vary your vocabulary.\"]}\n```", nil
		},
	}
	svc := newTestOrchestrator(t, client, nil)

	result := svc.EvaluateResponse(context.Background(), "I live in a small town.", 1)
	if result.Failure != nil {
		t.Fatalf("unexpected failure: %+v", result.Failure)
	}
	if result.Evaluation.Score != 7.5 {
		t.Fatalf("score = %v, want 7.5", result.Evaluation.Score)
	}
	if result.Evaluation.Feedback != "Well developed." {
		t.Fatalf("feedback = %q", result.Evaluation.Feedback)
	}
	if len(result.Evaluation.Suggestions) != 1 {
		t.Fatalf("suggestions = %v", result.Evaluation.Suggestions)
	}
}

func TestEvaluateResponseClampsScore(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
	}{
		{`{"score": 12, "feedback": "f", "suggestions": ["s"]}`, 9},
		{`{"score": 0.5, "feedback": "f", "suggestions": ["s"]}`, 1},
		{`{"score": -3, "feedback": "f", "suggestions": ["s"]}`, 1},
	}
	for _, tc := range cases {
		client := &fakeOpenAI{
			chatFn: func(ctx context.Context, req ChatRequest) (string, error) {
				return tc.raw, nil
			},
		}
		svc := newTestOrchestrator(t, client, nil)
		result := svc.EvaluateResponse(context.Background(), "answer "+tc.raw, 2)
		if result.Evaluation.Score != tc.want {
			t.Fatalf("raw %s: score = %v, want %v", tc.raw, result.Evaluation.Score, tc.want)
		}
	}
}

func TestEvaluateResponseFallsBackOnBadJSON(t *testing.T) {
	client := &fakeOpenAI{
		chatFn: func(ctx context.Context, req ChatRequest) (string, error) {
			return "The candidate did well overall.", nil
		},
	}
	svc := newTestOrchestrator(t, client, nil)

	result := svc.EvaluateResponse(context.Background(), "my answer", 1)
	if result.Failure == nil || result.Failure.Kind != FailureOther {
		t.Fatalf("failure = %+v, want kind other", result.Failure)
	}
	if !result.Evaluation.FromFallback {
		t.Fatalf("expected fallback evaluation")
	}
	if result.Evaluation.Score != 6.0 {
		t.Fatalf("fallback score = %v, want 6.0", result.Evaluation.Score)
	}
	if len(result.Evaluation.Suggestions) == 0 {
		t.Fatalf("fallback evaluation missing suggestions")
	}
}

func TestEvaluateResponseCachesByTextAndPart(t *testing.T) {
	client := &fakeOpenAI{
		chatFn: func(ctx context.Context, req ChatRequest) (string, error) {
			return `{"score": 6.5, "feedback": "f", "suggestions": ["s"]}`, nil
		},
	}
	svc := newTestOrchestrator(t, client, nil)
	ctx := context.Background()

	svc.EvaluateResponse(ctx, "same answer", 1)
	svc.EvaluateResponse(ctx, "same answer", 1)
	if client.chatCalls != 1 {
		t.Fatalf("chat calls = %d, want 1 for identical request", client.chatCalls)
	}

	svc.EvaluateResponse(ctx, "same answer", 3)
	if client.chatCalls != 2 {
		t.Fatalf("chat calls = %d, want 2 after part change", client.chatCalls)
	}
}

func TestGenerateModelAnswerFallback(t *testing.T) {
	client := &fakeOpenAI{
		chatFn: func(ctx context.Context, req ChatRequest) (string, error) {
			return "", &openAIHTTPError{StatusCode: 500, Body: "boom"}
		},
	}
	svc := newTestOrchestrator(t, client, nil)

	for part := 1; part <= 3; part++ {
		result := svc.GenerateModelAnswer(context.Background(), "a question", part, "")
		if !result.FromFallback {
			t.Fatalf("part %d: expected fallback answer", part)
		}
		if result.Answer != fallbackAnswers[part] {
			t.Fatalf("part %d: got %q", part, result.Answer)
		}
	}
}

func TestValidateKeyClassifiesFailures(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"unauthorized", &openAIHTTPError{StatusCode: 401, Body: "invalid key"}, FailureUnauthorized},
		{"forbidden", &openAIHTTPError{StatusCode: 403, Body: "no access"}, FailureForbidden},
		{"rate limited", &openAIHTTPError{StatusCode: 429, Body: "slow down"}, FailureRateLimited},
		{"quota", &openAIHTTPError{StatusCode: 429, Body: `{"error":{"code":"insufficient_quota"}}`}, FailureQuota},
		{"timeout", context.DeadlineExceeded, FailureNetwork},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := &fakeOpenAI{probeFn: func(ctx context.Context) error { return tc.err }}
			svc := newTestOrchestrator(t, client, nil)

			result := svc.ValidateKey(context.Background())
			if result.Valid {
				t.Fatalf("expected invalid key")
			}
			if result.Reason != failureMessages[tc.want] {
				t.Fatalf("reason = %q, want %q", result.Reason, failureMessages[tc.want])
			}
		})
	}
}

func TestValidateKeyCachesOutcome(t *testing.T) {
	client := &fakeOpenAI{}
	svc := newTestOrchestrator(t, client, nil)
	ctx := context.Background()

	first := svc.ValidateKey(ctx)
	second := svc.ValidateKey(ctx)
	if !first.Valid || !second.Valid {
		t.Fatalf("expected valid key, got %+v / %+v", first, second)
	}
	if client.probeCalls != 1 {
		t.Fatalf("probe calls = %d, want 1", client.probeCalls)
	}
}

func TestTextToSpeechCachesAudio(t *testing.T) {
	client := &fakeOpenAI{
		speechFn: func(ctx context.Context, req SpeechRequest) ([]byte, error) {
			return []byte("mp3-bytes"), nil
		},
	}
	svc := newTestOrchestrator(t, client, nil)
	ctx := context.Background()

	first, err := svc.TextToSpeech(ctx, "Hello there")
	if err != nil {
		t.Fatalf("first synthesis: %v", err)
	}
	second, err := svc.TextToSpeech(ctx, "Hello there")
	if err != nil {
		t.Fatalf("second synthesis: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("cached audio differs")
	}
	if client.speechCalls != 1 {
		t.Fatalf("speech calls = %d, want 1", client.speechCalls)
	}
}

func TestTextToSpeechPropagatesErrors(t *testing.T) {
	synthErr := errors.New("voice unavailable")
	client := &fakeOpenAI{
		speechFn: func(ctx context.Context, req SpeechRequest) ([]byte, error) {
			return nil, synthErr
		},
	}
	svc := newTestOrchestrator(t, client, nil)

	if _, err := svc.TextToSpeech(context.Background(), "Hello"); !errors.Is(err, synthErr) {
		t.Fatalf("err = %v, want wrapped %v", err, synthErr)
	}
}

type fakeTranscriber struct {
	out   string
	err   error
	calls int
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	f.calls++
	return f.out, f.err
}

func TestSpeechToTextPrefersInjectedTranscriber(t *testing.T) {
	client := &fakeOpenAI{}
	transcriber := &fakeTranscriber{out: "from gcp"}
	svc := newTestOrchestrator(t, client, transcriber)

	got, err := svc.SpeechToText(context.Background(), []byte("audio"), "audio/webm")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if got != "from gcp" {
		t.Fatalf("transcript = %q", got)
	}
	if transcriber.calls != 1 || client.transcribeCalls != 0 {
		t.Fatalf("transcriber calls = %d, provider calls = %d", transcriber.calls, client.transcribeCalls)
	}
}

func TestFilenameForMime(t *testing.T) {
	cases := map[string]string{
		"audio/wav":  "recording.wav",
		"audio/mpeg": "recording.mp3",
		"audio/ogg":  "recording.ogg",
		"audio/webm": "recording.webm",
		"":           "recording.webm",
	}
	for mime, want := range cases {
		if got := filenameForMime(mime); got != want {
			t.Fatalf("filenameForMime(%q) = %q, want %q", mime, got, want)
		}
	}
}
