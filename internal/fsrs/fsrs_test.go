package fsrs

import (
	"testing"
	"time"

	"github.com/danieldreier/mcp-lumi/internal/storage"
	"github.com/open-spaced-repetition/go-fsrs"
)

func TestNewSchedulerWithParams(t *testing.T) {
	params := fsrs.DefaultParam()
	params.RequestRetention = 0.8

	s := NewSchedulerWithParams(params)
	if s.parameters.RequestRetention != 0.8 {
		t.Fatalf("Expected RequestRetention 0.8, got %f", s.parameters.RequestRetention)
	}
}

func TestRatingForScore(t *testing.T) {
	tests := []struct {
		correct, total int
		want           fsrs.Rating
	}{
		{0, 5, fsrs.Again},
		{2, 5, fsrs.Again},
		{1, 2, fsrs.Hard},
		{3, 5, fsrs.Hard},
		{7, 10, fsrs.Good},
		{4, 5, fsrs.Good},
		{9, 10, fsrs.Easy},
		{5, 5, fsrs.Easy},
		{0, 0, fsrs.Again},
	}
	for _, tt := range tests {
		if got := RatingForScore(tt.correct, tt.total); got != tt.want {
			t.Errorf("RatingForScore(%d, %d) = %v, want %v", tt.correct, tt.total, got, tt.want)
		}
	}
}

func TestSchedule(t *testing.T) {
	s := NewScheduler()
	now := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)
	lastReview := now.Add(-24 * time.Hour)

	tests := []struct {
		name           string
		initialState   fsrs.State
		rating         fsrs.Rating
		expectedState  fsrs.State
		expectDueAfter time.Duration
	}{
		{"New lesson rated Again", fsrs.New, fsrs.Again, fsrs.Learning, time.Minute},
		{"New lesson rated Good", fsrs.New, fsrs.Good, fsrs.Learning, 10 * time.Minute},
		{"New lesson rated Easy", fsrs.New, fsrs.Easy, fsrs.Review, 3 * 24 * time.Hour},
		{"Learning lesson rated Good", fsrs.Learning, fsrs.Good, fsrs.Review, 24 * time.Hour},
		{"Review lesson rated Again", fsrs.Review, fsrs.Again, fsrs.Relearning, time.Minute},
		{"Relearning lesson rated Good", fsrs.Relearning, fsrs.Good, fsrs.Review, 12 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card := NewCard()
			card.State = tt.initialState
			card.LastReview = lastReview

			next := s.Schedule(card, tt.rating, now)
			if next.State != tt.expectedState {
				t.Errorf("Expected state %v, got %v", tt.expectedState, next.State)
			}
			if next.Due.Before(now.Add(tt.expectDueAfter)) {
				t.Errorf("Due date %v is earlier than expected %v", next.Due, now.Add(tt.expectDueAfter))
			}
			if !next.LastReview.Equal(now) {
				t.Errorf("Expected last review %v, got %v", now, next.LastReview)
			}
		})
	}
}

func TestPriority(t *testing.T) {
	s := NewScheduler()
	now := time.Date(2023, 1, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		state fsrs.State
		due   time.Time
		want  float64
	}{
		{"due review", fsrs.Review, now, 2.0},
		{"one day overdue review", fsrs.Review, now.Add(-24 * time.Hour), 2.2},
		{"ten days overdue review", fsrs.Review, now.Add(-240 * time.Hour), 4.0},
		{"review due tomorrow", fsrs.Review, now.Add(24 * time.Hour), 1.0},
		{"due learning", fsrs.Learning, now, 3.0},
		{"due relearning", fsrs.Relearning, now, 3.0},
		{"due new", fsrs.New, now, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Priority(tt.state, tt.due, now)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("Priority = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestPrioritize(t *testing.T) {
	s := NewScheduler()
	now := time.Date(2023, 1, 15, 12, 0, 0, 0, time.UTC)

	reviews := []storage.LessonReview{
		{LessonID: "new", State: fsrs.New, Due: now},
		{LessonID: "review-overdue", State: fsrs.Review, Due: now.Add(-48 * time.Hour)},
		{LessonID: "learning", State: fsrs.Learning, Due: now},
		{LessonID: "review", State: fsrs.Review, Due: now},
	}

	got := s.Prioritize(reviews, now)
	want := []string{"learning", "review-overdue", "review", "new"}
	if len(got) != len(want) {
		t.Fatalf("Expected %d reviews, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].Review.LessonID != id {
			t.Errorf("Position %d: expected %s, got %s (priority %f)", i, id, got[i].Review.LessonID, got[i].Priority)
		}
	}
}
