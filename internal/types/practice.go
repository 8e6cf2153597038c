package types

import "time"

// Session lifecycle states.
const (
	SessionSetup     = "setup"
	SessionActive    = "active"
	SessionCompleted = "completed"
)

// Per-question sub-cycle states within an active session.
const (
	QuestionAwaitingRecording = "awaiting-recording"
	QuestionRecorded          = "recorded"
	QuestionTranscribing      = "transcribing"
	QuestionEvaluating        = "evaluating"
	QuestionEvaluated         = "evaluated"
)

// PracticeQuestion is one generated question slot. Immutable for the life of
// the session once created; persisted only if the session is saved.
type PracticeQuestion struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Audio []byte `json:"-"`
}

// Evaluation is the scored result for one spoken response.
type Evaluation struct {
	Score       float64  `json:"score"`
	Feedback    string   `json:"feedback"`
	Suggestions []string `json:"suggestions"`
	// FromFallback marks a static evaluation substituted after a provider
	// failure or unparseable response.
	FromFallback bool `json:"fromFallback,omitempty"`
}

// PracticeResponse is the transcribed and evaluated answer to one question.
// One response per question per session.
type PracticeResponse struct {
	QuestionID  string      `json:"questionId"`
	Transcript  string      `json:"transcript"`
	Evaluation  *Evaluation `json:"evaluation,omitempty"`
	SubmittedAt time.Time   `json:"submittedAt"`
}
