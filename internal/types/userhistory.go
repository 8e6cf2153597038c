package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// HistoryEvaluation is the scored feedback attached to a single answered
// question inside a saved session.
type HistoryEvaluation struct {
	BandScore   float64  `json:"bandScore"`
	Feedback    string   `json:"feedback,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// QuestionRecord is one question slot of a saved session, stored inside the
// JSONB questions column.
type QuestionRecord struct {
	Question    string             `json:"question"`
	UserAnswer  string             `json:"userAnswer,omitempty"`
	ModelAnswer string             `json:"modelAnswer,omitempty"`
	Evaluation  *HistoryEvaluation `json:"evaluation,omitempty"`
	Timestamp   *time.Time         `json:"timestamp,omitempty"`
}

// UserHistory is one completed practice session. Records are insert-only;
// there is no update or delete path once a session has been saved.
type UserHistory struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID          uuid.UUID      `gorm:"type:uuid;not null;index:idx_history_user_created" json:"user_id"`
	User            *User          `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	SessionID       string         `gorm:"column:session_id;not null;index" json:"sessionId"`
	Part            int            `gorm:"column:part;not null;index" json:"part"`
	Topic           string         `gorm:"column:topic;index" json:"topic,omitempty"`
	Questions       datatypes.JSON `gorm:"type:jsonb;column:questions;not null" json:"questions"`
	OverallScore    *float64       `gorm:"column:overall_score" json:"overallScore,omitempty"`
	DurationSeconds int            `gorm:"column:duration_seconds;not null;default:0" json:"duration"`
	CompletedAt     *time.Time     `gorm:"column:completed_at" json:"completedAt,omitempty"`
	CreatedAt       time.Time      `gorm:"not null;autoCreateTime;index:idx_history_user_created" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (UserHistory) TableName() string {
	return "user_history"
}

func (h *UserHistory) BeforeCreate(tx *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}
