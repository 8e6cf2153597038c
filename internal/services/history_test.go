package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/speaklab-backend/internal/repos"
	"github.com/yungbote/speaklab-backend/internal/types"
)

func newTestHistory(t *testing.T) HistoryService {
	t.Helper()
	gdb, log := newTestDB(t)
	return NewHistoryService(gdb, log, repos.NewUserHistoryRepo(gdb, log))
}

func scoreOf(v float64) *float64 { return &v }

func validHistoryInput(sessionID string) SaveHistoryInput {
	now := time.Now().UTC()
	return SaveHistoryInput{
		SessionID: sessionID,
		Part:      1,
		Topic:     "Hometown",
		Questions: []types.QuestionRecord{
			{
				Question:   "Can you tell me about your hometown?",
				UserAnswer: "I come from a small town near the coast.",
				Evaluation: &types.HistoryEvaluation{
					BandScore:   6.5,
					Feedback:    "Clear but short.",
					Suggestions: []string{"Extend your answers."},
				},
				Timestamp: &now,
			},
		},
		OverallScore:    scoreOf(6.5),
		DurationSeconds: 300,
		CompletedAt:     &now,
	}
}

func TestSaveStampsOwnerAndEncodesQuestions(t *testing.T) {
	svc := newTestHistory(t)
	userID := uuid.New()

	saved, err := svc.Save(context.Background(), userID, validHistoryInput("sess-1"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.UserID != userID {
		t.Fatalf("owner = %s, want %s", saved.UserID, userID)
	}

	var records []types.QuestionRecord
	if err := json.Unmarshal(saved.Questions, &records); err != nil {
		t.Fatalf("decode questions: %v", err)
	}
	if len(records) != 1 || records[0].Evaluation == nil || records[0].Evaluation.BandScore != 6.5 {
		t.Fatalf("stored questions = %+v", records)
	}
}

func TestSaveValidation(t *testing.T) {
	svc := newTestHistory(t)
	input := validHistoryInput("sess-1")
	input.SessionID = " "
	input.Part = 0
	input.Questions[0].Question = ""
	input.Questions[0].Evaluation.BandScore = 11
	input.OverallScore = scoreOf(0.5)
	input.DurationSeconds = -1

	_, err := svc.Save(context.Background(), uuid.New(), input)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	for _, field := range []string{
		"sessionId", "part",
		"questions[0].question", "questions[0].evaluation.bandScore",
		"overallScore", "duration",
	} {
		if _, ok := vErr.Fields[field]; !ok {
			t.Fatalf("missing validation for %q in %v", field, vErr.Fields)
		}
	}
}

func TestSaveRejectsEmptyQuestions(t *testing.T) {
	svc := newTestHistory(t)
	input := validHistoryInput("sess-1")
	input.Questions = nil

	_, err := svc.Save(context.Background(), uuid.New(), input)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if _, ok := vErr.Fields["questions"]; !ok {
		t.Fatalf("missing validation for questions: %v", vErr.Fields)
	}
}

func TestListPagesAreComputed(t *testing.T) {
	svc := newTestHistory(t)
	ctx := context.Background()
	userID := uuid.New()

	for i := 0; i < 7; i++ {
		if _, err := svc.Save(ctx, userID, validHistoryInput(fmt.Sprintf("sess-%d", i))); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}

	page, err := svc.List(ctx, userID, repos.HistoryFilter{Page: 2, Limit: 3})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 7 || page.Pages != 3 {
		t.Fatalf("total = %d pages = %d, want 7 and 3", page.Total, page.Pages)
	}
	if len(page.Histories) != 3 {
		t.Fatalf("page size = %d, want 3", len(page.Histories))
	}
}

func TestListDefaultsPageAndLimit(t *testing.T) {
	svc := newTestHistory(t)
	page, err := svc.List(context.Background(), uuid.New(), repos.HistoryFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Page != 1 || page.Limit != 10 {
		t.Fatalf("page = %d limit = %d, want 1 and 10", page.Page, page.Limit)
	}
	if page.Pages != 0 || page.Total != 0 {
		t.Fatalf("empty user: total = %d pages = %d", page.Total, page.Pages)
	}
}

func TestDashboardAggregates(t *testing.T) {
	svc := newTestHistory(t)
	ctx := context.Background()
	userID := uuid.New()
	other := uuid.New()

	for i, tc := range []struct {
		part  int
		score float64
	}{
		{1, 6.0}, {1, 7.0}, {2, 8.0},
	} {
		input := validHistoryInput(fmt.Sprintf("sess-%d", i))
		input.Part = tc.part
		input.OverallScore = scoreOf(tc.score)
		if _, err := svc.Save(ctx, userID, input); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}
	if _, err := svc.Save(ctx, other, validHistoryInput("other-1")); err != nil {
		t.Fatalf("seed other: %v", err)
	}

	stats, err := svc.Dashboard(ctx, userID)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if stats.SessionCount != 3 {
		t.Fatalf("session count = %d, want 3", stats.SessionCount)
	}
	if stats.AverageScore == nil || *stats.AverageScore != 7.0 {
		t.Fatalf("average = %v, want 7.0", stats.AverageScore)
	}
	counts := map[int]int64{}
	for _, pc := range stats.PartCounts {
		counts[pc.Part] = pc.Count
	}
	if counts[1] != 2 || counts[2] != 1 {
		t.Fatalf("part counts = %v", stats.PartCounts)
	}
}
