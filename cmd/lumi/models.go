package main

import (
	"time"

	"github.com/danieldreier/mcp-lumi/internal/fsrs"
	"github.com/danieldreier/mcp-lumi/internal/storage"
)

// SideEffect is the outcome of a best-effort step. A failed side effect is
// logged and reported here but never fails the operation that ran it.
type SideEffect struct {
	Name string
	Err  error
}

// OK reports whether the side effect succeeded.
func (e SideEffect) OK() bool {
	return e.Err == nil
}

// Side effect names.
const (
	effectProgress = "progress"
	effectXPAward  = "xp_award"
	effectReview   = "review_schedule"
)

// GeneratedLessonContent is the JSON object the model returns for a lesson.
type GeneratedLessonContent struct {
	Introduction      string   `json:"introduction"`
	Objectives        []string `json:"objectives"`
	KeyPoints         []string `json:"key_points"`
	DetailedContent   string   `json:"detailed_content"`
	Summary           string   `json:"summary"`
	PracticeExercises []string `json:"practice_exercises"`
}

// GeneratedQuiz is the JSON object the model returns for a quiz.
type GeneratedQuiz struct {
	Questions []storage.QuizQuestion `json:"questions"`
}

// LessonRequest holds the inputs of GenerateLesson.
type LessonRequest struct {
	UserID     string
	Subject    string
	Topic      string
	Difficulty string
	Duration   int
	Persona    string
	Model      string
}

// LessonResult is returned by GenerateLesson.
type LessonResult struct {
	Message     string         `json:"message"`
	XPReward    int            `json:"xpReward"`
	Lesson      storage.Lesson `json:"lesson"`
	SideEffects []SideEffect   `json:"-"`
}

// QuizRequest holds the inputs of GenerateQuiz.
type QuizRequest struct {
	UserID       string
	LessonID     string
	Difficulty   string
	NumQuestions int
	Persona      string
	Model        string
}

// QuizResult is returned by GenerateQuiz.
type QuizResult struct {
	Message  string       `json:"message"`
	XPReward int          `json:"xpReward"`
	Quiz     storage.Quiz `json:"quiz"`
	// Lesson is set when the quiz was built on a lesson generated in the same call.
	Lesson      *storage.Lesson `json:"lesson,omitempty"`
	SideEffects []SideEffect    `json:"-"`
}

// ChatRequest holds the inputs of SendChatMessage.
type ChatRequest struct {
	UserID  string
	Message string
	Topic   string
	Persona string
	Context []string
	Model   string
}

// ChatResult is returned by SendChatMessage.
type ChatResult struct {
	Reply       string       `json:"reply"`
	XPGained    int          `json:"xpGained"`
	MessageID   string       `json:"messageId"`
	Timestamp   time.Time    `json:"timestamp"`
	Role        string       `json:"-"`
	SideEffects []SideEffect `json:"-"`
}

// DetailOverrides are caller supplied lesson details. Empty strings and nil
// numbers mean "not given".
type DetailOverrides struct {
	Subject      string
	Topic        string
	Difficulty   string
	Duration     *float64
	NumQuestions *float64
}

// LessonDetails is the fully resolved result of InferLessonDetails.
type LessonDetails struct {
	Subject      string `json:"subject"`
	Topic        string `json:"topic"`
	Difficulty   string `json:"difficulty"`
	Duration     int    `json:"duration"`
	NumQuestions int    `json:"numQuestions"`
}

// CompleteLessonResult is returned by CompleteLesson.
type CompleteLessonResult struct {
	Message     string               `json:"message"`
	XPAwarded   int                  `json:"xpAwarded"`
	Progress    storage.UserProgress `json:"progress"`
	User        *storage.User        `json:"user,omitempty"`
	SideEffects []SideEffect         `json:"-"`
}

// SubmitQuizResult is returned by SubmitQuiz.
type SubmitQuizResult struct {
	Message     string              `json:"message"`
	Correct     int                 `json:"correct"`
	Total       int                 `json:"total"`
	XPAwarded   int                 `json:"xpAwarded"`
	Attempt     storage.QuizAttempt `json:"attempt"`
	NextReview  *time.Time          `json:"nextReview,omitempty"`
	SideEffects []SideEffect        `json:"-"`
}

// DueReviewsResult is returned by DueReviews.
type DueReviewsResult struct {
	Reviews []fsrs.PrioritizedReview `json:"reviews"`
}

// ProfileResult is returned by Profile.
type ProfileResult struct {
	UserID        string `json:"userId"`
	Name          string `json:"name"`
	Persona       string `json:"persona"`
	XP            int    `json:"xp"`
	Level         int    `json:"level"`
	XPToNextLevel int    `json:"xpToNextLevel"`
}
