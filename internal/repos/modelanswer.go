package repos

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/speaklab-backend/internal/logger"
	"github.com/yungbote/speaklab-backend/internal/types"
)

type ModelAnswerRepo interface {
	GetByHash(ctx context.Context, tx *gorm.DB, questionHash string) (*types.ModelAnswer, error)
	// InsertIfAbsent inserts the answer unless a row with the same hash
	// already exists, and returns the stored row plus whether this call
	// created it. A concurrent duplicate insert resolves to the winner's
	// row instead of a duplicate-key error.
	InsertIfAbsent(ctx context.Context, tx *gorm.DB, answer *types.ModelAnswer) (*types.ModelAnswer, bool, error)
	// IncrementUsage bumps usage_count by one and returns the new value.
	IncrementUsage(ctx context.Context, tx *gorm.DB, questionHash string) (int, error)
	Search(ctx context.Context, tx *gorm.DB, part int, topic string, limit int) ([]*types.ModelAnswer, error)
}

type modelAnswerRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewModelAnswerRepo(db *gorm.DB, baseLog *logger.Logger) ModelAnswerRepo {
	repoLog := baseLog.With("repo", "ModelAnswerRepo")
	return &modelAnswerRepo{db: db, log: repoLog}
}

func (mr *modelAnswerRepo) GetByHash(ctx context.Context, tx *gorm.DB, questionHash string) (*types.ModelAnswer, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}

	var results []*types.ModelAnswer
	if err := transaction.WithContext(ctx).
		Where("question_hash = ?", questionHash).
		Limit(1).
		Find(&results).Error; err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

func (mr *modelAnswerRepo) InsertIfAbsent(ctx context.Context, tx *gorm.DB, answer *types.ModelAnswer) (*types.ModelAnswer, bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}

	res := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "question_hash"}},
			DoNothing: true,
		}).
		Create(answer)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected > 0 {
		return answer, true, nil
	}

	// conflict: another writer owns this hash, return that row unchanged
	existing, err := mr.GetByHash(ctx, transaction, answer.QuestionHash)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (mr *modelAnswerRepo) IncrementUsage(ctx context.Context, tx *gorm.DB, questionHash string) (int, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}

	if err := transaction.WithContext(ctx).
		Model(&types.ModelAnswer{}).
		Where("question_hash = ?", questionHash).
		Update("usage_count", gorm.Expr("usage_count + 1")).Error; err != nil {
		return 0, err
	}

	updated, err := mr.GetByHash(ctx, transaction, questionHash)
	if err != nil {
		return 0, err
	}
	if updated == nil {
		return 0, gorm.ErrRecordNotFound
	}
	return updated.UsageCount, nil
}

func (mr *modelAnswerRepo) Search(ctx context.Context, tx *gorm.DB, part int, topic string, limit int) ([]*types.ModelAnswer, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}
	if limit < 1 {
		limit = 5
	}

	query := transaction.WithContext(ctx).Model(&types.ModelAnswer{})
	if part != 0 {
		query = query.Where("part = ?", part)
	}
	if t := strings.TrimSpace(topic); t != "" {
		query = query.Where("LOWER(topic) LIKE ?", "%"+strings.ToLower(t)+"%")
	}

	var results []*types.ModelAnswer
	if err := query.
		Order("usage_count DESC").
		Order("band_score DESC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
