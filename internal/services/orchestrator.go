package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/speaklab-backend/internal/cache"
	"github.com/yungbote/speaklab-backend/internal/logger"
	"github.com/yungbote/speaklab-backend/internal/types"
	"github.com/yungbote/speaklab-backend/internal/utils"
)

// FailureKind classifies a provider call failure.
type FailureKind string

const (
	FailureUnauthorized FailureKind = "unauthorized"
	FailureRateLimited  FailureKind = "rate_limited"
	FailureForbidden    FailureKind = "forbidden"
	FailureQuota        FailureKind = "quota_exhausted"
	FailureNetwork      FailureKind = "network"
	FailureOther        FailureKind = "other"
)

var failureMessages = map[FailureKind]string{
	FailureUnauthorized: "The API key is invalid or has been revoked.",
	FailureRateLimited:  "The provider is rate limiting requests. Please wait a moment and try again.",
	FailureForbidden:    "The API key does not have permission for this operation.",
	FailureQuota:        "The API quota has been exhausted. Check your plan and billing details.",
	FailureNetwork:      "Could not reach the AI provider. Check your network connection.",
	FailureOther:        "The AI provider returned an unexpected error.",
}

// ProviderFailure is the classified outcome of a failed provider call.
type ProviderFailure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
	Err     error       `json:"-"`
}

func classifyProviderError(err error) *ProviderFailure {
	kind := FailureOther

	var httpErr *openAIHTTPError
	var netErr net.Error
	switch {
	case errors.As(err, &httpErr):
		switch httpErr.StatusCode {
		case 401:
			kind = FailureUnauthorized
		case 403:
			kind = FailureForbidden
		case 429:
			if strings.Contains(httpErr.Body, "insufficient_quota") {
				kind = FailureQuota
			} else {
				kind = FailureRateLimited
			}
		}
	case errors.As(err, &netErr), errors.Is(err, context.DeadlineExceeded):
		kind = FailureNetwork
	}

	return &ProviderFailure{Kind: kind, Message: failureMessages[kind], Err: err}
}

// KeyValidation is the cached outcome of a provider key probe.
type KeyValidation struct {
	Valid  bool   `json:"isValid"`
	Reason string `json:"error,omitempty"`
}

// QuestionResult carries a generated question, or the deterministic
// fallback plus the classified failure that caused it.
type QuestionResult struct {
	Question     types.PracticeQuestion `json:"question"`
	FromFallback bool                   `json:"fromFallback,omitempty"`
	Failure      *ProviderFailure       `json:"failure,omitempty"`
}

// AnswerResult carries a generated or improved model answer.
type AnswerResult struct {
	Answer       string           `json:"answer"`
	FromFallback bool             `json:"fromFallback,omitempty"`
	Failure      *ProviderFailure `json:"failure,omitempty"`
}

// EvaluationResult carries the scored evaluation; on provider or parse
// failure the evaluation is the static fallback and Failure is set.
type EvaluationResult struct {
	Evaluation types.Evaluation `json:"evaluation"`
	Failure    *ProviderFailure `json:"failure,omitempty"`
}

// OrchestratorService builds provider prompts, selects a model tier per
// operation, parses responses and applies static fallbacks. Question,
// evaluation, model-answer and validation calls absorb failures into typed
// results; TextToSpeech and SpeechToText propagate errors to the caller.
type OrchestratorService interface {
	ValidateKey(ctx context.Context) KeyValidation
	GenerateQuestion(ctx context.Context, part, index int, previous []string) QuestionResult
	EvaluateResponse(ctx context.Context, text string, part int) EvaluationResult
	GenerateModelAnswer(ctx context.Context, question string, part int, userResponse string) AnswerResult
	TextToSpeech(ctx context.Context, text string) ([]byte, error)
	SpeechToText(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// Transcriber abstracts the speech-to-text provider so the GCP client can
// be substituted for the default provider transcription endpoint.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

type orchestratorService struct {
	log         *logger.Logger
	client      OpenAIClient
	transcriber Transcriber
	cache       cache.Cache
	tracer      trace.Tracer

	// cheap tier for questions and probes, standard tier for scoring
	questionModel string
	scoringModel  string
	speechModel   string
	sttModel      string
	voice         string
	voiceSpeed    float64
	audioFormat   string
	language      string

	pick func(n int) int
}

func NewOrchestratorService(log *logger.Logger, client OpenAIClient, transcriber Transcriber, requestCache cache.Cache) OrchestratorService {
	serviceLog := log.With("service", "OrchestratorService")
	return &orchestratorService{
		log:           serviceLog,
		client:        client,
		transcriber:   transcriber,
		cache:         requestCache,
		tracer:        otel.Tracer("orchestrator"),
		questionModel: utils.GetEnv("OPENAI_QUESTION_MODEL", "gpt-4o-mini", log),
		scoringModel:  utils.GetEnv("OPENAI_SCORING_MODEL", "gpt-4o", log),
		speechModel:   utils.GetEnv("OPENAI_TTS_MODEL", "tts-1", log),
		sttModel:      utils.GetEnv("OPENAI_STT_MODEL", "whisper-1", log),
		voice:         utils.GetEnv("OPENAI_TTS_VOICE", "alloy", log),
		voiceSpeed:    utils.GetEnvAsFloat("OPENAI_TTS_SPEED", 0.95, log),
		audioFormat:   utils.GetEnv("OPENAI_TTS_FORMAT", "mp3", log),
		language:      utils.GetEnv("SPEECH_LANGUAGE", "en", log),
		pick:          rand.Intn,
	}
}

func cacheKey(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(h[:])
}

func keyFingerprint(apiKey string) string {
	h := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(h[:])[:16]
}

func (o *orchestratorService) cachedJSON(ctx context.Context, key string, out any) bool {
	raw, ok, err := o.cache.Get(ctx, key)
	if err != nil {
		o.log.Warn("Cache read failed", "error", err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		o.log.Warn("Cache entry could not be decoded, ignoring", "error", err)
		return false
	}
	return true
}

func (o *orchestratorService) ValidateKey(ctx context.Context) KeyValidation {
	key := "validate:" + o.client.KeyFingerprint()

	var cached KeyValidation
	if o.cachedJSON(ctx, key, &cached) {
		return cached
	}

	result := KeyValidation{Valid: true}
	if err := o.client.Probe(ctx); err != nil {
		failure := classifyProviderError(err)
		o.log.Warn("API key validation failed", "kind", failure.Kind, "error", err)
		result = KeyValidation{Valid: false, Reason: failure.Message}
	}

	if raw, err := json.Marshal(result); err == nil {
		_ = o.cache.Set(ctx, key, raw, cache.TTLKeyValidation)
	}
	return result
}

func (o *orchestratorService) GenerateQuestion(ctx context.Context, part, index int, previous []string) QuestionResult {
	ctx, span := o.tracer.Start(ctx, "GenerateQuestion",
		trace.WithAttributes(attribute.Int("part", part), attribute.Int("index", index)))
	defer span.End()

	key := "question:" + cacheKey(fmt.Sprint(part), fmt.Sprint(index), strings.Join(previous, "|"))
	var cached QuestionResult
	if o.cachedJSON(ctx, key, &cached) {
		return cached
	}

	topic := topicForSlot(part, index, o.pick)
	system, user := buildQuestionPrompt(part, index, topic, previous)

	text, err := o.client.Chat(ctx, ChatRequest{
		Model:       o.questionModel,
		System:      system,
		User:        user,
		MaxTokens:   200,
		Temperature: 0.7,
	})
	if err != nil {
		failure := classifyProviderError(err)
		o.log.Warn("Question generation failed, using fallback", "part", part, "index", index, "kind", failure.Kind)
		return QuestionResult{
			Question: types.PracticeQuestion{
				ID:   fmt.Sprintf("p%d-q%d", part, index),
				Text: fallbackQuestionFor(part, index),
			},
			FromFallback: true,
			Failure:      failure,
		}
	}

	result := QuestionResult{
		Question: types.PracticeQuestion{
			ID:   fmt.Sprintf("p%d-q%d", part, index),
			Text: text,
		},
	}
	if raw, err := json.Marshal(result); err == nil {
		_ = o.cache.Set(ctx, key, raw, cache.TTLQuestion)
	}
	return result
}

// evaluationPayload is the JSON shape the scoring prompt instructs the
// model to return.
type evaluationPayload struct {
	Score       float64  `json:"score"`
	Feedback    string   `json:"feedback"`
	Suggestions []string `json:"suggestions"`
}

func fallbackEvaluation() types.Evaluation {
	return types.Evaluation{
		Score:        6.0,
		Feedback:     fallbackFeedback,
		Suggestions:  append([]string(nil), fallbackSuggestions...),
		FromFallback: true,
	}
}

func clampScore(s float64) float64 {
	if s < 1 {
		return 1
	}
	if s > 9 {
		return 9
	}
	return s
}

// stripCodeFence removes a ```json ... ``` wrapper some models insist on.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func (o *orchestratorService) EvaluateResponse(ctx context.Context, text string, part int) EvaluationResult {
	ctx, span := o.tracer.Start(ctx, "EvaluateResponse", trace.WithAttributes(attribute.Int("part", part)))
	defer span.End()

	key := "eval:" + cacheKey(fmt.Sprint(part), text)
	var cached EvaluationResult
	if o.cachedJSON(ctx, key, &cached) {
		return cached
	}

	raw, err := o.client.Chat(ctx, ChatRequest{
		Model:       o.scoringModel,
		System:      evaluationSystemPrompt,
		User:        buildEvaluationPrompt(text, part),
		MaxTokens:   500,
		Temperature: 0.3,
	})
	if err != nil {
		failure := classifyProviderError(err)
		o.log.Warn("Evaluation call failed, using fallback", "part", part, "kind", failure.Kind)
		return EvaluationResult{Evaluation: fallbackEvaluation(), Failure: failure}
	}

	var payload evaluationPayload
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &payload); err != nil {
		o.log.Warn("Evaluation response was not valid JSON, using fallback", "error", err)
		return EvaluationResult{
			Evaluation: fallbackEvaluation(),
			Failure:    &ProviderFailure{Kind: FailureOther, Message: failureMessages[FailureOther], Err: err},
		}
	}
	if len(payload.Suggestions) == 0 {
		payload.Suggestions = append([]string(nil), fallbackSuggestions...)
	}

	result := EvaluationResult{
		Evaluation: types.Evaluation{
			Score:       clampScore(payload.Score),
			Feedback:    payload.Feedback,
			Suggestions: payload.Suggestions,
		},
	}
	if encoded, err := json.Marshal(result); err == nil {
		_ = o.cache.Set(ctx, key, encoded, cache.TTLEvaluation)
	}
	return result
}

func (o *orchestratorService) GenerateModelAnswer(ctx context.Context, question string, part int, userResponse string) AnswerResult {
	ctx, span := o.tracer.Start(ctx, "GenerateModelAnswer", trace.WithAttributes(attribute.Int("part", part)))
	defer span.End()

	key := "answer:" + cacheKey(fmt.Sprint(part), question, userResponse)
	var cached AnswerResult
	if o.cachedJSON(ctx, key, &cached) {
		return cached
	}

	system, user := buildModelAnswerPrompt(question, part, userResponse)
	_, maxTokens := answerTemplate(part)

	text, err := o.client.Chat(ctx, ChatRequest{
		Model:       o.scoringModel,
		System:      system,
		User:        user,
		MaxTokens:   maxTokens,
		Temperature: 0.6,
	})
	if err != nil {
		failure := classifyProviderError(err)
		o.log.Warn("Model answer generation failed, using fallback", "part", part, "kind", failure.Kind)
		return AnswerResult{Answer: fallbackAnswerFor(part), FromFallback: true, Failure: failure}
	}

	result := AnswerResult{Answer: text}
	if encoded, err := json.Marshal(result); err == nil {
		_ = o.cache.Set(ctx, key, encoded, cache.TTLModelAnswer)
	}
	return result
}

func (o *orchestratorService) TextToSpeech(ctx context.Context, text string) ([]byte, error) {
	ctx, span := o.tracer.Start(ctx, "TextToSpeech")
	defer span.End()

	key := "tts:" + cacheKey(o.voice, o.audioFormat, text)
	if raw, ok, err := o.cache.Get(ctx, key); err == nil && ok {
		return raw, nil
	}

	audio, err := o.client.Speech(ctx, SpeechRequest{
		Model:  o.speechModel,
		Voice:  o.voice,
		Input:  text,
		Speed:  o.voiceSpeed,
		Format: o.audioFormat,
	})
	if err != nil {
		// no fallback for synthesis; the caller decides what to do
		return nil, fmt.Errorf("text to speech: %w", err)
	}

	_ = o.cache.Set(ctx, key, audio, cache.TTLAudio)
	return audio, nil
}

func (o *orchestratorService) SpeechToText(ctx context.Context, audio []byte, mimeType string) (string, error) {
	ctx, span := o.tracer.Start(ctx, "SpeechToText")
	defer span.End()

	if o.transcriber != nil {
		return o.transcriber.Transcribe(ctx, audio, mimeType)
	}

	transcript, err := o.client.Transcribe(ctx, TranscribeRequest{
		Model:    o.sttModel,
		Audio:    audio,
		Filename: filenameForMime(mimeType),
		Language: o.language,
	})
	if err != nil {
		return "", fmt.Errorf("speech to text: %w", err)
	}
	return transcript, nil
}

func filenameForMime(mimeType string) string {
	m := strings.ToLower(mimeType)
	switch {
	case strings.Contains(m, "wav"):
		return "recording.wav"
	case strings.Contains(m, "mp3") || strings.Contains(m, "mpeg"):
		return "recording.mp3"
	case strings.Contains(m, "ogg"):
		return "recording.ogg"
	default:
		return "recording.webm"
	}
}
