package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/yungbote/speaklab-backend/internal/logger"
	"github.com/yungbote/speaklab-backend/internal/repos"
	"github.com/yungbote/speaklab-backend/internal/types"
)

// QuestionHash is the deduplication key for cached model answers: a sha256
// digest of the lowercased, trimmed question text, so casing and
// surrounding whitespace never split the cache.
func QuestionHash(question string) string {
	normalized := strings.ToLower(strings.TrimSpace(question))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// ModelAnswerLookup is the outcome of a search: either an exact hit (with
// its usage count already bumped) or up to five suggestions.
type ModelAnswerLookup struct {
	Found          bool                 `json:"found"`
	ModelAnswer    *types.ModelAnswer   `json:"modelAnswer,omitempty"`
	SimilarAnswers []*types.ModelAnswer `json:"similarAnswers,omitempty"`
}

// SubmitAnswerInput is the payload for caching a model answer.
type SubmitAnswerInput struct {
	Question    string               `json:"question"`
	Part        int                  `json:"part"`
	Topic       string               `json:"topic,omitempty"`
	ModelAnswer string               `json:"modelAnswer"`
	BandScore   float64              `json:"bandScore"`
	Criteria    types.AnswerCriteria `json:"criteria"`
}

type ModelAnswerService interface {
	Search(ctx context.Context, question string, part int, topic string) (*ModelAnswerLookup, error)
	// Submit stores the answer, or returns the existing record unchanged
	// when the question is already cached. The bool reports whether a new
	// record was created.
	Submit(ctx context.Context, input SubmitAnswerInput) (*types.ModelAnswer, bool, error)
}

type modelAnswerService struct {
	db   *gorm.DB
	log  *logger.Logger
	repo repos.ModelAnswerRepo
}

func NewModelAnswerService(db *gorm.DB, log *logger.Logger, repo repos.ModelAnswerRepo) ModelAnswerService {
	serviceLog := log.With("service", "ModelAnswerService")
	return &modelAnswerService{db: db, log: serviceLog, repo: repo}
}

const maxSimilarAnswers = 5

func (ms *modelAnswerService) Search(ctx context.Context, question string, part int, topic string) (*ModelAnswerLookup, error) {
	if strings.TrimSpace(question) == "" {
		vErr := NewValidationError()
		vErr.Add("question", "is required")
		return nil, vErr
	}

	hash := QuestionHash(question)
	exact, err := ms.repo.GetByHash(ctx, nil, hash)
	if err != nil {
		return nil, fmt.Errorf("lookup model answer: %w", err)
	}
	if exact != nil {
		count, err := ms.repo.IncrementUsage(ctx, nil, hash)
		if err != nil {
			return nil, fmt.Errorf("bump usage count: %w", err)
		}
		exact.UsageCount = count
		return &ModelAnswerLookup{Found: true, ModelAnswer: exact}, nil
	}

	similar, err := ms.repo.Search(ctx, nil, part, topic, maxSimilarAnswers)
	if err != nil {
		return nil, fmt.Errorf("search similar answers: %w", err)
	}
	return &ModelAnswerLookup{Found: false, SimilarAnswers: similar}, nil
}

func validateSubmitInput(input SubmitAnswerInput) *ValidationError {
	vErr := NewValidationError()
	if strings.TrimSpace(input.Question) == "" {
		vErr.Add("question", "is required")
	}
	if input.Part < 1 || input.Part > 3 {
		vErr.Add("part", "must be 1, 2 or 3")
	}
	if strings.TrimSpace(input.ModelAnswer) == "" {
		vErr.Add("modelAnswer", "is required")
	}
	if !validBand(input.BandScore) {
		vErr.Add("bandScore", "must be between 1 and 9")
	}
	criteria := map[string]float64{
		"criteria.fluencyCoherence": input.Criteria.FluencyCoherence,
		"criteria.lexicalResource":  input.Criteria.LexicalResource,
		"criteria.grammaticalRange": input.Criteria.GrammaticalRange,
		"criteria.pronunciation":    input.Criteria.Pronunciation,
	}
	for field, score := range criteria {
		if !validBand(score) {
			vErr.Add(field, "must be between 1 and 9")
		}
	}
	if vErr.Empty() {
		return nil
	}
	return vErr
}

func (ms *modelAnswerService) Submit(ctx context.Context, input SubmitAnswerInput) (*types.ModelAnswer, bool, error) {
	if vErr := validateSubmitInput(input); vErr != nil {
		return nil, false, vErr
	}

	criteriaJSON, err := json.Marshal(input.Criteria)
	if err != nil {
		return nil, false, fmt.Errorf("encode criteria: %w", err)
	}

	answer := &types.ModelAnswer{
		QuestionHash: QuestionHash(input.Question),
		Question:     strings.TrimSpace(input.Question),
		Part:         input.Part,
		Topic:        strings.TrimSpace(input.Topic),
		ModelAnswer:  input.ModelAnswer,
		BandScore:    input.BandScore,
		Criteria:     criteriaJSON,
		UsageCount:   1,
	}

	stored, created, err := ms.repo.InsertIfAbsent(ctx, nil, answer)
	if err != nil {
		return nil, false, fmt.Errorf("store model answer: %w", err)
	}
	if created {
		ms.log.Info("Model answer cached", "part", input.Part, "hash", stored.QuestionHash)
	}
	return stored, created, nil
}
