package sqlstore

import (
	"encoding/json"
	"time"

	"github.com/danieldreier/mcp-lumi/internal/storage"
	"github.com/open-spaced-repetition/go-fsrs"
	"gorm.io/datatypes"
)

type userRow struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Name      string    `gorm:"column:name"`
	Email     string    `gorm:"column:email"`
	Persona   string    `gorm:"column:persona;default:friendly"`
	XP        int       `gorm:"column:xp;not null;default:0"`
	Level     int       `gorm:"column:level;not null;default:1"`
	CreatedAt time.Time `gorm:"column:created_at;index"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (userRow) TableName() string { return storage.TableUsers }

type lessonRow struct {
	ID         string         `gorm:"column:id;primaryKey"`
	UserID     string         `gorm:"column:user_id;index"`
	Topic      string         `gorm:"column:topic"`
	Subject    string         `gorm:"column:subject"`
	Difficulty string         `gorm:"column:difficulty"`
	Duration   int            `gorm:"column:duration"`
	Content    string         `gorm:"column:content"`
	Objectives datatypes.JSON `gorm:"column:objectives"`
	KeyPoints  datatypes.JSON `gorm:"column:key_points"`
	XPReward   int            `gorm:"column:xp_reward"`
	CreatedAt  time.Time      `gorm:"column:created_at"`
}

func (lessonRow) TableName() string { return storage.TableLessons }

type progressRow struct {
	ID          string     `gorm:"column:id;primaryKey"`
	UserID      string     `gorm:"column:user_id;index:idx_progress_user_lesson"`
	LessonID    string     `gorm:"column:lesson_id;index:idx_progress_user_lesson"`
	Completed   bool       `gorm:"column:completed;not null;default:false"`
	TimeSpent   int        `gorm:"column:time_spent;not null;default:0"`
	CompletedAt *time.Time `gorm:"column:completed_at"`
}

func (progressRow) TableName() string { return storage.TableProgress }

type quizRow struct {
	ID        string         `gorm:"column:id;primaryKey"`
	LessonID  string         `gorm:"column:lesson_id;index"`
	UserID    string         `gorm:"column:user_id"`
	Questions datatypes.JSON `gorm:"column:questions"`
	XPReward  int            `gorm:"column:xp_reward"`
	CreatedAt time.Time      `gorm:"column:created_at"`
}

func (quizRow) TableName() string { return storage.TableQuizzes }

type quizAttemptRow struct {
	ID        string         `gorm:"column:id;primaryKey"`
	QuizID    string         `gorm:"column:quiz_id;index"`
	UserID    string         `gorm:"column:user_id"`
	Answers   datatypes.JSON `gorm:"column:answers"`
	Correct   int            `gorm:"column:correct"`
	Total     int            `gorm:"column:total"`
	XPAwarded int            `gorm:"column:xp_awarded"`
	CreatedAt time.Time      `gorm:"column:created_at"`
}

func (quizAttemptRow) TableName() string { return storage.TableQuizAttempts }

type chatMessageRow struct {
	ID        string    `gorm:"column:id;primaryKey"`
	UserID    string    `gorm:"column:user_id;index"`
	Message   string    `gorm:"column:message"`
	Response  string    `gorm:"column:response"`
	Topic     *string   `gorm:"column:topic"`
	Persona   string    `gorm:"column:persona"`
	XPGained  int       `gorm:"column:xp_gained"`
	Role      string    `gorm:"column:role"`
	Timestamp time.Time `gorm:"column:timestamp"`
}

func (chatMessageRow) TableName() string { return storage.TableChatMessages }

type reviewRow struct {
	ID            string    `gorm:"column:id;primaryKey"`
	UserID        string    `gorm:"column:user_id;uniqueIndex:idx_review_user_lesson"`
	LessonID      string    `gorm:"column:lesson_id;uniqueIndex:idx_review_user_lesson"`
	Due           time.Time `gorm:"column:due;index"`
	Stability     float64   `gorm:"column:stability"`
	Difficulty    float64   `gorm:"column:difficulty"`
	ElapsedDays   uint64    `gorm:"column:elapsed_days"`
	ScheduledDays uint64    `gorm:"column:scheduled_days"`
	Reps          uint64    `gorm:"column:reps"`
	Lapses        uint64    `gorm:"column:lapses"`
	State         int       `gorm:"column:state"`
	LastReview    time.Time `gorm:"column:last_review"`
	LastRating    int       `gorm:"column:last_rating"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (reviewRow) TableName() string { return storage.TableReviews }

func allModels() []interface{} {
	return []interface{}{
		&userRow{},
		&lessonRow{},
		&progressRow{},
		&quizRow{},
		&quizAttemptRow{},
		&chatMessageRow{},
		&reviewRow{},
	}
}

func toJSON(v any) (datatypes.JSON, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

func fromJSON[T any](raw datatypes.JSON) T {
	var out T
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return out
}

func (r userRow) toUser() storage.User {
	return storage.User{
		ID:        r.ID,
		Name:      r.Name,
		Email:     r.Email,
		Persona:   r.Persona,
		XP:        r.XP,
		Level:     r.Level,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func (r lessonRow) toLesson() storage.Lesson {
	return storage.Lesson{
		ID:         r.ID,
		UserID:     r.UserID,
		Topic:      r.Topic,
		Subject:    r.Subject,
		Difficulty: r.Difficulty,
		Duration:   r.Duration,
		Content:    r.Content,
		Objectives: fromJSON[[]string](r.Objectives),
		KeyPoints:  fromJSON[[]string](r.KeyPoints),
		XPReward:   r.XPReward,
		CreatedAt:  r.CreatedAt,
	}
}

func (r progressRow) toProgress() storage.UserProgress {
	return storage.UserProgress{
		ID:          r.ID,
		UserID:      r.UserID,
		LessonID:    r.LessonID,
		Completed:   r.Completed,
		TimeSpent:   r.TimeSpent,
		CompletedAt: r.CompletedAt,
	}
}

func (r quizRow) toQuiz() storage.Quiz {
	return storage.Quiz{
		ID:        r.ID,
		LessonID:  r.LessonID,
		UserID:    r.UserID,
		Questions: fromJSON[[]storage.QuizQuestion](r.Questions),
		XPReward:  r.XPReward,
		CreatedAt: r.CreatedAt,
	}
}

func (r quizAttemptRow) toAttempt() storage.QuizAttempt {
	return storage.QuizAttempt{
		ID:        r.ID,
		QuizID:    r.QuizID,
		UserID:    r.UserID,
		Answers:   fromJSON[[]string](r.Answers),
		Correct:   r.Correct,
		Total:     r.Total,
		XPAwarded: r.XPAwarded,
		CreatedAt: r.CreatedAt,
	}
}

func (r chatMessageRow) toChatMessage() storage.ChatMessage {
	return storage.ChatMessage{
		ID:        r.ID,
		UserID:    r.UserID,
		Message:   r.Message,
		Response:  r.Response,
		Topic:     r.Topic,
		Persona:   r.Persona,
		XPGained:  r.XPGained,
		Role:      r.Role,
		Timestamp: r.Timestamp,
	}
}

func (r reviewRow) toReview() storage.LessonReview {
	return storage.LessonReview{
		ID:            r.ID,
		UserID:        r.UserID,
		LessonID:      r.LessonID,
		Due:           r.Due,
		Stability:     r.Stability,
		Difficulty:    r.Difficulty,
		ElapsedDays:   r.ElapsedDays,
		ScheduledDays: r.ScheduledDays,
		Reps:          r.Reps,
		Lapses:        r.Lapses,
		State:         fsrs.State(r.State),
		LastReview:    r.LastReview,
		LastRating:    r.LastRating,
		UpdatedAt:     r.UpdatedAt,
	}
}

func fromReview(r storage.LessonReview) reviewRow {
	return reviewRow{
		ID:            r.ID,
		UserID:        r.UserID,
		LessonID:      r.LessonID,
		Due:           r.Due,
		Stability:     r.Stability,
		Difficulty:    r.Difficulty,
		ElapsedDays:   r.ElapsedDays,
		ScheduledDays: r.ScheduledDays,
		Reps:          r.Reps,
		Lapses:        r.Lapses,
		State:         int(r.State),
		LastReview:    r.LastReview,
		LastRating:    r.LastRating,
		UpdatedAt:     r.UpdatedAt,
	}
}
