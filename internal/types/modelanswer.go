package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AnswerCriteria holds the four per-criterion band scores, each 1-9.
type AnswerCriteria struct {
	FluencyCoherence float64 `json:"fluencyCoherence"`
	LexicalResource  float64 `json:"lexicalResource"`
	GrammaticalRange float64 `json:"grammaticalRange"`
	Pronunciation    float64 `json:"pronunciation"`
}

// ModelAnswer is a cached exemplar answer shared across users, keyed by the
// normalized hash of the question text. Rows are never deleted; usage_count
// is bumped on every exact-match lookup.
type ModelAnswer struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	QuestionHash string         `gorm:"column:question_hash;uniqueIndex;not null" json:"questionHash"`
	Question     string         `gorm:"column:question;not null" json:"question"`
	Part         int            `gorm:"column:part;not null;index" json:"part"`
	Topic        string         `gorm:"column:topic;index" json:"topic,omitempty"`
	ModelAnswer  string         `gorm:"column:model_answer;not null" json:"modelAnswer"`
	BandScore    float64        `gorm:"column:band_score;not null" json:"bandScore"`
	Criteria     datatypes.JSON `gorm:"type:jsonb;column:criteria" json:"criteria"`
	UsageCount   int            `gorm:"column:usage_count;not null;default:1;index" json:"usageCount"`
	CreatedAt    time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (ModelAnswer) TableName() string {
	return "model_answer"
}

func (ma *ModelAnswer) BeforeCreate(tx *gorm.DB) error {
	if ma.ID == uuid.Nil {
		ma.ID = uuid.New()
	}
	return nil
}
