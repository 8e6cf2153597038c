package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/yungbote/speaklab-backend/internal/logger"
	"github.com/yungbote/speaklab-backend/internal/repos"
	"github.com/yungbote/speaklab-backend/internal/types"
)

func newTestDB(t *testing.T) (*gorm.DB, *logger.Logger) {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := gdb.AutoMigrate(&types.User{}, &types.UserToken{}, &types.UserHistory{}, &types.ModelAnswer{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return gdb, log
}

func newTestModelAnswers(t *testing.T) ModelAnswerService {
	t.Helper()
	gdb, log := newTestDB(t)
	return NewModelAnswerService(gdb, log, repos.NewModelAnswerRepo(gdb, log))
}

func validSubmitInput() SubmitAnswerInput {
	return SubmitAnswerInput{
		Question:    "Can you tell me about your hometown?",
		Part:        1,
		Topic:       "hometown",
		ModelAnswer: "I grew up in a small coastal town known for its fishing harbour.",
		BandScore:   8.0,
		Criteria: types.AnswerCriteria{
			FluencyCoherence: 8,
			LexicalResource:  8,
			GrammaticalRange: 7.5,
			Pronunciation:    8,
		},
	}
}

func TestQuestionHashNormalizes(t *testing.T) {
	base := QuestionHash("Can you tell me about your hometown?")
	variants := []string{
		"can you tell me about your hometown?",
		"  Can you tell me about your hometown?  ",
		"CAN YOU TELL ME ABOUT YOUR HOMETOWN?",
	}
	for _, v := range variants {
		if QuestionHash(v) != base {
			t.Fatalf("hash of %q differs from base", v)
		}
	}
	if QuestionHash("a different question") == base {
		t.Fatalf("distinct questions should not collide")
	}
	if len(base) != 64 {
		t.Fatalf("hash length = %d, want 64 hex chars", len(base))
	}
}

func TestSubmitThenSearchFindsExactMatch(t *testing.T) {
	svc := newTestModelAnswers(t)
	ctx := context.Background()

	stored, created, err := svc.Submit(ctx, validSubmitInput())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !created {
		t.Fatalf("expected a new record")
	}
	if stored.UsageCount != 1 {
		t.Fatalf("usage count = %d, want 1", stored.UsageCount)
	}

	// casing and whitespace should not matter for the lookup
	lookup, err := svc.Search(ctx, "  CAN you tell me about your hometown?  ", 1, "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !lookup.Found || lookup.ModelAnswer == nil {
		t.Fatalf("expected exact hit, got %+v", lookup)
	}
	if lookup.ModelAnswer.UsageCount != 2 {
		t.Fatalf("usage count after hit = %d, want 2", lookup.ModelAnswer.UsageCount)
	}
}

func TestSubmitDuplicateReturnsExisting(t *testing.T) {
	svc := newTestModelAnswers(t)
	ctx := context.Background()

	first, _, err := svc.Submit(ctx, validSubmitInput())
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}

	dup := validSubmitInput()
	dup.ModelAnswer = "A completely different answer that must not overwrite the stored one."
	dup.BandScore = 6.0

	second, created, err := svc.Submit(ctx, dup)
	if err != nil {
		t.Fatalf("duplicate submit: %v", err)
	}
	if created {
		t.Fatalf("duplicate should not create a record")
	}
	if second.ID != first.ID {
		t.Fatalf("duplicate returned a different record")
	}
	if second.ModelAnswer != first.ModelAnswer || second.BandScore != first.BandScore {
		t.Fatalf("stored answer was overwritten: %+v", second)
	}
}

func TestSearchMissReturnsSuggestions(t *testing.T) {
	svc := newTestModelAnswers(t)
	ctx := context.Background()

	for _, q := range []string{
		"What do you do in your free time?",
		"Do you work or are you a student?",
		"How do you usually spend your weekends?",
	} {
		input := validSubmitInput()
		input.Question = q
		if _, _, err := svc.Submit(ctx, input); err != nil {
			t.Fatalf("seed %q: %v", q, err)
		}
	}

	lookup, err := svc.Search(ctx, "a question nobody asked before", 1, "hometown")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if lookup.Found {
		t.Fatalf("expected a miss")
	}
	if len(lookup.SimilarAnswers) != 3 {
		t.Fatalf("suggestions = %d, want 3", len(lookup.SimilarAnswers))
	}
}

func TestSubmitValidation(t *testing.T) {
	svc := newTestModelAnswers(t)
	ctx := context.Background()

	input := validSubmitInput()
	input.Question = "  "
	input.Part = 5
	input.BandScore = 10
	input.Criteria.Pronunciation = 0

	_, _, err := svc.Submit(ctx, input)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	for _, field := range []string{"question", "part", "bandScore", "criteria.pronunciation"} {
		if _, ok := vErr.Fields[field]; !ok {
			t.Fatalf("missing validation for %q in %v", field, vErr.Fields)
		}
	}
	if _, ok := vErr.Fields["criteria.fluencyCoherence"]; ok {
		t.Fatalf("valid criterion flagged: %v", vErr.Fields)
	}
}

func TestSearchRequiresQuestion(t *testing.T) {
	svc := newTestModelAnswers(t)
	_, err := svc.Search(context.Background(), "   ", 1, "")
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}
