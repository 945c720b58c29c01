// Package fsrs schedules lesson reviews with the FSRS spaced repetition algorithm.
package fsrs

import (
	"sort"
	"time"

	"github.com/danieldreier/mcp-lumi/internal/storage"
	"github.com/open-spaced-repetition/go-fsrs"
)

// Scheduler turns quiz results into lesson review schedules.
type Scheduler interface {
	// Schedule returns the card after applying rating at now.
	// go-fsrs ratings: Again=1, Hard=2, Good=3, Easy=4.
	// States: New=0, Learning=1, Review=2, Relearning=3.
	Schedule(card fsrs.Card, rating fsrs.Rating, now time.Time) fsrs.Card

	// Priority scores a review for ordering. Higher is more urgent.
	Priority(state fsrs.State, due time.Time, now time.Time) float64

	// Prioritize sorts reviews by descending priority.
	Prioritize(reviews []storage.LessonReview, now time.Time) []PrioritizedReview
}

// PrioritizedReview pairs a review with its priority score.
type PrioritizedReview struct {
	Review   storage.LessonReview `json:"review"`
	Priority float64              `json:"priority"`
}

// FSRSScheduler implements Scheduler with go-fsrs parameters.
type FSRSScheduler struct {
	parameters fsrs.Parameters
}

// NewScheduler creates a scheduler with default parameters.
func NewScheduler() *FSRSScheduler {
	return &FSRSScheduler{parameters: fsrs.DefaultParam()}
}

// NewSchedulerWithParams creates a scheduler with custom parameters.
func NewSchedulerWithParams(params fsrs.Parameters) *FSRSScheduler {
	return &FSRSScheduler{parameters: params}
}

// NewCard returns the state of a lesson that was never reviewed.
func NewCard() fsrs.Card {
	return fsrs.NewCard()
}

// RatingForScore maps a quiz score to an FSRS rating:
// below 50% Again, below 70% Hard, below 90% Good, otherwise Easy.
// An empty quiz counts as Again.
func RatingForScore(correct, total int) fsrs.Rating {
	if total <= 0 {
		return fsrs.Again
	}
	ratio := float64(correct) / float64(total)
	switch {
	case ratio < 0.5:
		return fsrs.Again
	case ratio < 0.7:
		return fsrs.Hard
	case ratio < 0.9:
		return fsrs.Good
	default:
		return fsrs.Easy
	}
}

// Schedule implements Scheduler.
func (f *FSRSScheduler) Schedule(card fsrs.Card, rating fsrs.Rating, now time.Time) fsrs.Card {
	return f.parameters.Repeat(card, now)[rating].Card
}

// Priority implements Scheduler. Learning and relearning outrank review, which
// outranks new; overdue reviews gain 10% per day, future ones decay with distance.
func (f *FSRSScheduler) Priority(state fsrs.State, due time.Time, now time.Time) float64 {
	var base float64
	switch state {
	case fsrs.New:
		base = 1.0
	case fsrs.Learning, fsrs.Relearning:
		base = 3.0
	case fsrs.Review:
		base = 2.0
	}

	overdueDays := now.Sub(due).Hours() / 24.0
	if overdueDays >= 0 {
		return base * (1.0 + overdueDays*0.1)
	}
	return base / (1.0 - overdueDays)
}

// Prioritize implements Scheduler. Ties keep the input order.
func (f *FSRSScheduler) Prioritize(reviews []storage.LessonReview, now time.Time) []PrioritizedReview {
	out := make([]PrioritizedReview, 0, len(reviews))
	for _, r := range reviews {
		out = append(out, PrioritizedReview{Review: r, Priority: f.Priority(r.State, r.Due, now)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}
