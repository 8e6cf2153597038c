package repos

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/speaklab-backend/internal/logger"
	"github.com/yungbote/speaklab-backend/internal/types"
)

// HistoryFilter narrows a paginated listing. Part of 0 means any part;
// Topic is matched as a case-insensitive substring.
type HistoryFilter struct {
	Part  int
	Topic string
	Page  int
	Limit int
}

// PartCount is one row of the per-part session breakdown.
type PartCount struct {
	Part  int   `json:"part"`
	Count int64 `json:"count"`
}

type UserHistoryRepo interface {
	Create(ctx context.Context, tx *gorm.DB, histories []*types.UserHistory) ([]*types.UserHistory, error)
	ListByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID, filter HistoryFilter) ([]*types.UserHistory, int64, error)
	CountByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error)
	AverageOverallScore(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*float64, error)
	CountByPart(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]PartCount, error)
}

type userHistoryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserHistoryRepo(db *gorm.DB, baseLog *logger.Logger) UserHistoryRepo {
	repoLog := baseLog.With("repo", "UserHistoryRepo")
	return &userHistoryRepo{db: db, log: repoLog}
}

func (hr *userHistoryRepo) Create(ctx context.Context, tx *gorm.DB, histories []*types.UserHistory) ([]*types.UserHistory, error) {
	transaction := tx
	if transaction == nil {
		transaction = hr.db
	}

	if len(histories) == 0 {
		return []*types.UserHistory{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&histories).Error; err != nil {
		return nil, err
	}
	return histories, nil
}

func (hr *userHistoryRepo) ListByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID, filter HistoryFilter) ([]*types.UserHistory, int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = hr.db
	}

	query := transaction.WithContext(ctx).
		Model(&types.UserHistory{}).
		Where("user_id = ?", userID)
	if filter.Part != 0 {
		query = query.Where("part = ?", filter.Part)
	}
	if topic := strings.TrimSpace(filter.Topic); topic != "" {
		query = query.Where("LOWER(topic) LIKE ?", "%"+strings.ToLower(topic)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 10
	}

	var results []*types.UserHistory
	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, 0, err
	}
	return results, total, nil
}

func (hr *userHistoryRepo) CountByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = hr.db
	}

	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.UserHistory{}).
		Where("user_id = ?", userID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (hr *userHistoryRepo) AverageOverallScore(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*float64, error) {
	transaction := tx
	if transaction == nil {
		transaction = hr.db
	}

	var avg *float64
	if err := transaction.WithContext(ctx).
		Model(&types.UserHistory{}).
		Where("user_id = ? AND overall_score IS NOT NULL", userID).
		Select("AVG(overall_score)").
		Scan(&avg).Error; err != nil {
		return nil, err
	}
	return avg, nil
}

func (hr *userHistoryRepo) CountByPart(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]PartCount, error) {
	transaction := tx
	if transaction == nil {
		transaction = hr.db
	}

	var rows []PartCount
	if err := transaction.WithContext(ctx).
		Model(&types.UserHistory{}).
		Where("user_id = ?", userID).
		Select("part, COUNT(*) AS count").
		Group("part").
		Order("part").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
