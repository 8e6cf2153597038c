package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/speaklab-backend/internal/logger"
	"github.com/yungbote/speaklab-backend/internal/repos"
	"github.com/yungbote/speaklab-backend/internal/types"
)

// SaveHistoryInput is the session payload accepted by the history write
// endpoint before ownership stamping.
type SaveHistoryInput struct {
	SessionID       string                  `json:"sessionId"`
	Part            int                     `json:"part"`
	Topic           string                  `json:"topic,omitempty"`
	Questions       []types.QuestionRecord  `json:"questions"`
	OverallScore    *float64                `json:"overallScore,omitempty"`
	DurationSeconds int                     `json:"duration"`
	CompletedAt     *time.Time              `json:"completedAt,omitempty"`
}

// HistoryPage is one page of a user's saved sessions.
type HistoryPage struct {
	Histories []*types.UserHistory `json:"histories"`
	Page      int                  `json:"page"`
	Limit     int                  `json:"limit"`
	Total     int64                `json:"total"`
	Pages     int                  `json:"pages"`
}

// DashboardStats is the owner-scoped aggregate for the dashboard view.
type DashboardStats struct {
	SessionCount int64             `json:"sessionCount"`
	AverageScore *float64          `json:"averageScore,omitempty"`
	PartCounts   []repos.PartCount `json:"partCounts"`
}

type HistoryService interface {
	Save(ctx context.Context, userID uuid.UUID, input SaveHistoryInput) (*types.UserHistory, error)
	List(ctx context.Context, userID uuid.UUID, filter repos.HistoryFilter) (*HistoryPage, error)
	Dashboard(ctx context.Context, userID uuid.UUID) (*DashboardStats, error)
}

type historyService struct {
	db   *gorm.DB
	log  *logger.Logger
	repo repos.UserHistoryRepo
}

func NewHistoryService(db *gorm.DB, log *logger.Logger, repo repos.UserHistoryRepo) HistoryService {
	serviceLog := log.With("service", "HistoryService")
	return &historyService{db: db, log: serviceLog, repo: repo}
}

func validateHistoryInput(input SaveHistoryInput) *ValidationError {
	vErr := NewValidationError()
	if strings.TrimSpace(input.SessionID) == "" {
		vErr.Add("sessionId", "is required")
	}
	if input.Part < 1 || input.Part > 3 {
		vErr.Add("part", "must be 1, 2 or 3")
	}
	if len(input.Questions) == 0 {
		vErr.Add("questions", "at least one question is required")
	}
	for i, q := range input.Questions {
		if strings.TrimSpace(q.Question) == "" {
			vErr.Add(fmt.Sprintf("questions[%d].question", i), "is required")
		}
		if q.Evaluation != nil && !validBand(q.Evaluation.BandScore) {
			vErr.Add(fmt.Sprintf("questions[%d].evaluation.bandScore", i), "must be between 1 and 9")
		}
	}
	if input.OverallScore != nil && !validBand(*input.OverallScore) {
		vErr.Add("overallScore", "must be between 1 and 9")
	}
	if input.DurationSeconds < 0 {
		vErr.Add("duration", "must be >= 0")
	}
	if vErr.Empty() {
		return nil
	}
	return vErr
}

func (hs *historyService) Save(ctx context.Context, userID uuid.UUID, input SaveHistoryInput) (*types.UserHistory, error) {
	if vErr := validateHistoryInput(input); vErr != nil {
		return nil, vErr
	}

	questionsJSON, err := json.Marshal(input.Questions)
	if err != nil {
		return nil, fmt.Errorf("encode questions: %w", err)
	}

	history := &types.UserHistory{
		UserID:          userID,
		SessionID:       strings.TrimSpace(input.SessionID),
		Part:            input.Part,
		Topic:           strings.TrimSpace(input.Topic),
		Questions:       questionsJSON,
		OverallScore:    input.OverallScore,
		DurationSeconds: input.DurationSeconds,
		CompletedAt:     input.CompletedAt,
	}

	created, err := hs.repo.Create(ctx, nil, []*types.UserHistory{history})
	if err != nil {
		return nil, fmt.Errorf("save history: %w", err)
	}
	hs.log.Info("Practice session saved", "user_id", userID.String(), "session_id", history.SessionID, "part", history.Part)
	return created[0], nil
}

func (hs *historyService) List(ctx context.Context, userID uuid.UUID, filter repos.HistoryFilter) (*HistoryPage, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 10
	}

	histories, total, err := hs.repo.ListByUserID(ctx, nil, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}

	pages := int((total + int64(filter.Limit) - 1) / int64(filter.Limit))
	return &HistoryPage{
		Histories: histories,
		Page:      filter.Page,
		Limit:     filter.Limit,
		Total:     total,
		Pages:     pages,
	}, nil
}

func (hs *historyService) Dashboard(ctx context.Context, userID uuid.UUID) (*DashboardStats, error) {
	count, err := hs.repo.CountByUserID(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}
	avg, err := hs.repo.AverageOverallScore(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("average score: %w", err)
	}
	parts, err := hs.repo.CountByPart(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("count by part: %w", err)
	}
	return &DashboardStats{
		SessionCount: count,
		AverageScore: avg,
		PartCounts:   parts,
	}, nil
}
