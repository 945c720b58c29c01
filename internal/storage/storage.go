package storage

import (
	"context"
	"errors"
	"time"

	"github.com/open-spaced-repetition/go-fsrs"
)

// Table names shared by the SQL and REST backends.
const (
	TableUsers        = "users"
	TableLessons      = "lessons"
	TableProgress     = "user_progress"
	TableQuizzes      = "quizzes"
	TableQuizAttempts = "quiz_attempts"
	TableChatMessages = "chat_messages"
	TableReviews      = "lesson_reviews"
)

// User is a learner row. Users are created by the signup flow, never by this service.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Persona   string    `json:"persona"`
	XP        int       `json:"xp"`
	Level     int       `json:"level"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Lesson is a generated lesson. It is never modified after insert.
type Lesson struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Topic      string    `json:"topic"`
	Subject    string    `json:"subject"`
	Difficulty string    `json:"difficulty"`
	Duration   int       `json:"duration"`
	Content    string    `json:"content"`
	Objectives []string  `json:"objectives"`
	KeyPoints  []string  `json:"key_points"`
	XPReward   int       `json:"xp_reward"`
	CreatedAt  time.Time `json:"created_at"`
}

// UserProgress tracks whether a user finished a lesson.
type UserProgress struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	LessonID    string     `json:"lesson_id"`
	Completed   bool       `json:"completed"`
	TimeSpent   int        `json:"time_spent"`
	CompletedAt *time.Time `json:"completed_at"`
}

// QuizQuestion is one four-option multiple choice question.
type QuizQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
}

// Quiz belongs to an existing lesson.
type Quiz struct {
	ID        string         `json:"id"`
	LessonID  string         `json:"lesson_id"`
	UserID    string         `json:"user_id"`
	Questions []QuizQuestion `json:"questions"`
	XPReward  int            `json:"xp_reward"`
	CreatedAt time.Time      `json:"created_at"`
}

// QuizAttempt records one graded submission of a quiz.
type QuizAttempt struct {
	ID        string    `json:"id"`
	QuizID    string    `json:"quiz_id"`
	UserID    string    `json:"user_id"`
	Answers   []string  `json:"answers"`
	Correct   int       `json:"correct"`
	Total     int       `json:"total"`
	XPAwarded int       `json:"xp_awarded"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatMessage stores one tutor exchange.
type ChatMessage struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	Response  string    `json:"response"`
	Topic     *string   `json:"topic"`
	Persona   string    `json:"persona"`
	XPGained  int       `json:"xp_gained"`
	Role      string    `json:"role"`
	Timestamp time.Time `json:"timestamp"`
}

// LessonReview holds the FSRS card state of a lesson for one user.
// There is at most one review per (user, lesson).
type LessonReview struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	LessonID      string     `json:"lesson_id"`
	Due           time.Time  `json:"due"`
	Stability     float64    `json:"stability"`
	Difficulty    float64    `json:"difficulty"`
	ElapsedDays   uint64     `json:"elapsed_days"`
	ScheduledDays uint64     `json:"scheduled_days"`
	Reps          uint64     `json:"reps"`
	Lapses        uint64     `json:"lapses"`
	State         fsrs.State `json:"state"`
	LastReview    time.Time  `json:"last_review"`
	LastRating    int        `json:"last_rating"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Card returns the review's scheduling state as a go-fsrs card.
func (r LessonReview) Card() fsrs.Card {
	return fsrs.Card{
		Due:           r.Due,
		Stability:     r.Stability,
		Difficulty:    r.Difficulty,
		ElapsedDays:   r.ElapsedDays,
		ScheduledDays: r.ScheduledDays,
		Reps:          r.Reps,
		Lapses:        r.Lapses,
		State:         r.State,
		LastReview:    r.LastReview,
	}
}

// SetCard copies a go-fsrs card into the review.
func (r *LessonReview) SetCard(c fsrs.Card) {
	r.Due = c.Due
	r.Stability = c.Stability
	r.Difficulty = c.Difficulty
	r.ElapsedDays = c.ElapsedDays
	r.ScheduledDays = c.ScheduledDays
	r.Reps = c.Reps
	r.Lapses = c.Lapses
	r.State = c.State
	r.LastReview = c.LastReview
}

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConstraint is returned when a row is rejected by a store constraint.
	ErrConstraint = errors.New("constraint violation")
)

// Storage is the persistence contract of the tutor service.
type Storage interface {
	// Users
	FirstUserID(ctx context.Context) (string, error)
	GetUser(ctx context.Context, id string) (User, error)
	// AddXP atomically adds delta to the user's XP and recomputes the level.
	AddXP(ctx context.Context, userID string, delta int) (User, error)

	// Lessons and progress
	CreateLesson(ctx context.Context, lesson Lesson) (Lesson, error)
	GetLesson(ctx context.Context, id string) (Lesson, error)
	CreateProgress(ctx context.Context, progress UserProgress) (UserProgress, error)
	// CompleteProgress marks the user's progress on a lesson completed, creating the row if needed.
	// The bool reports whether this call did the completing; a row that was already
	// completed is returned unchanged with false.
	CompleteProgress(ctx context.Context, userID, lessonID string, timeSpent int) (UserProgress, bool, error)

	// Quizzes
	CreateQuiz(ctx context.Context, quiz Quiz) (Quiz, error)
	GetQuiz(ctx context.Context, id string) (Quiz, error)
	CreateQuizAttempt(ctx context.Context, attempt QuizAttempt) (QuizAttempt, error)
	// ListQuizAttempts returns the user's attempts at a quiz, oldest first.
	ListQuizAttempts(ctx context.Context, userID, quizID string) ([]QuizAttempt, error)

	// Chat
	CreateChatMessage(ctx context.Context, msg ChatMessage) (ChatMessage, error)

	// Reviews
	GetReview(ctx context.Context, userID, lessonID string) (LessonReview, error)
	SaveReview(ctx context.Context, review LessonReview) (LessonReview, error)
	ListDueReviews(ctx context.Context, userID string, now time.Time) ([]LessonReview, error)

	Close() error
}
