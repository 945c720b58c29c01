// Package sqlstore implements storage.Storage with gorm on Postgres or SQLite.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danieldreier/mcp-lumi/internal/gamification"
	"github.com/danieldreier/mcp-lumi/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config selects the database and whether to create missing tables.
// The hosted Supabase schema is owned elsewhere, so Migrate is normally only set for SQLite.
type Config struct {
	Driver  string
	DSN     string
	Migrate bool
	Logger  *zap.Logger
}

// Store is the gorm backed storage.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

var _ storage.Storage = (*Store)(nil)

// Open connects to the configured database.
func Open(cfg Config) (*Store, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	// gorm's default logger writes to stdout, which is the MCP transport.
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	case DriverSQLite, "":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	if cfg.Driver == DriverPostgres {
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetConnMaxLifetime(time.Hour)
	} else {
		// SQLite serializes writers anyway; one connection avoids "database is locked".
		sqlDB.SetMaxOpenConns(1)
	}

	if cfg.Migrate {
		if err := db.AutoMigrate(allModels()...); err != nil {
			return nil, fmt.Errorf("failed to migrate: %w", err)
		}
	}

	log.Info("Connected to database", zap.String("driver", cfg.Driver), zap.Bool("migrate", cfg.Migrate))
	return &Store{db: db, logger: log}, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storage.ErrNotFound
	}
	return err
}

// CreateUser inserts a user. Used for local databases and tests.
func (s *Store) CreateUser(ctx context.Context, u storage.User) (storage.User, error) {
	now := time.Now().UTC()
	row := userRow{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Persona:   u.Persona,
		XP:        u.XP,
		Level:     gamification.CalculateLevel(u.XP),
		CreatedAt: u.CreatedAt,
		UpdatedAt: now,
	}
	if row.ID == "" {
		row.ID = uuid.New().String()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return storage.User{}, fmt.Errorf("creating user: %w", err)
	}
	return row.toUser(), nil
}

// FirstUserID returns the id of the earliest created user.
func (s *Store) FirstUserID(ctx context.Context) (string, error) {
	var row userRow
	err := s.db.WithContext(ctx).Select("id").Order("created_at asc").Limit(1).Take(&row).Error
	if err != nil {
		return "", notFound(err)
	}
	return row.ID, nil
}

// GetUser retrieves a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (storage.User, error) {
	var row userRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return storage.User{}, notFound(err)
	}
	return row.toUser(), nil
}

// AddXP increments xp in the database and recomputes the level inside one transaction.
func (s *Store) AddXP(ctx context.Context, userID string, delta int) (storage.User, error) {
	var out userRow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&userRow{}).Where("id = ?", userID).Updates(map[string]interface{}{
			"xp":         gorm.Expr("xp + ?", delta),
			"updated_at": time.Now().UTC(),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return storage.ErrNotFound
		}
		if err := tx.Where("id = ?", userID).Take(&out).Error; err != nil {
			return err
		}
		level := gamification.CalculateLevel(out.XP)
		if level != out.Level {
			if err := tx.Model(&userRow{}).Where("id = ?", userID).Update("level", level).Error; err != nil {
				return err
			}
			out.Level = level
		}
		return nil
	})
	if err != nil {
		return storage.User{}, notFound(err)
	}
	return out.toUser(), nil
}

// CreateLesson inserts a lesson.
func (s *Store) CreateLesson(ctx context.Context, l storage.Lesson) (storage.Lesson, error) {
	objectives, err := toJSON(nonNil(l.Objectives))
	if err != nil {
		return storage.Lesson{}, err
	}
	keyPoints, err := toJSON(nonNil(l.KeyPoints))
	if err != nil {
		return storage.Lesson{}, err
	}
	row := lessonRow{
		ID:         uuid.New().String(),
		UserID:     l.UserID,
		Topic:      l.Topic,
		Subject:    l.Subject,
		Difficulty: l.Difficulty,
		Duration:   l.Duration,
		Content:    l.Content,
		Objectives: objectives,
		KeyPoints:  keyPoints,
		XPReward:   l.XPReward,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return storage.Lesson{}, err
	}
	return row.toLesson(), nil
}

// GetLesson retrieves a lesson by id.
func (s *Store) GetLesson(ctx context.Context, id string) (storage.Lesson, error) {
	var row lessonRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return storage.Lesson{}, notFound(err)
	}
	return row.toLesson(), nil
}

// CreateProgress inserts a progress row.
func (s *Store) CreateProgress(ctx context.Context, p storage.UserProgress) (storage.UserProgress, error) {
	row := progressRow{
		ID:        uuid.New().String(),
		UserID:    p.UserID,
		LessonID:  p.LessonID,
		Completed: p.Completed,
		TimeSpent: p.TimeSpent,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return storage.UserProgress{}, err
	}
	return row.toProgress(), nil
}

// CompleteProgress marks the user's progress completed, creating the row when missing.
// The update only matches an incomplete row, so concurrent calls complete it once.
func (s *Store) CompleteProgress(ctx context.Context, userID, lessonID string, timeSpent int) (storage.UserProgress, bool, error) {
	var row progressRow
	completed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Select("id").Where("id = ?", lessonID).Take(&lessonRow{}).Error; err != nil {
			return err
		}
		now := time.Now().UTC()
		err := tx.Where("user_id = ? AND lesson_id = ?", userID, lessonID).Order("id").Take(&row).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			row = progressRow{
				ID:          uuid.New().String(),
				UserID:      userID,
				LessonID:    lessonID,
				Completed:   true,
				TimeSpent:   timeSpent,
				CompletedAt: &now,
			}
			completed = true
			return tx.Create(&row).Error
		case err != nil:
			return err
		case row.Completed:
			return nil
		}
		res := tx.Model(&progressRow{}).Where("id = ? AND completed = ?", row.ID, false).Updates(map[string]interface{}{
			"completed":    true,
			"time_spent":   timeSpent,
			"completed_at": now,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return tx.Where("id = ?", row.ID).Take(&row).Error
		}
		row.Completed = true
		row.TimeSpent = timeSpent
		row.CompletedAt = &now
		completed = true
		return nil
	})
	if err != nil {
		return storage.UserProgress{}, false, notFound(err)
	}
	return row.toProgress(), completed, nil
}

// CreateQuiz inserts a quiz.
func (s *Store) CreateQuiz(ctx context.Context, q storage.Quiz) (storage.Quiz, error) {
	questions, err := toJSON(nonNil(q.Questions))
	if err != nil {
		return storage.Quiz{}, err
	}
	row := quizRow{
		ID:        uuid.New().String(),
		LessonID:  q.LessonID,
		UserID:    q.UserID,
		Questions: questions,
		XPReward:  q.XPReward,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return storage.Quiz{}, err
	}
	return row.toQuiz(), nil
}

// GetQuiz retrieves a quiz by id.
func (s *Store) GetQuiz(ctx context.Context, id string) (storage.Quiz, error) {
	var row quizRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return storage.Quiz{}, notFound(err)
	}
	return row.toQuiz(), nil
}

// CreateQuizAttempt inserts a graded attempt.
func (s *Store) CreateQuizAttempt(ctx context.Context, a storage.QuizAttempt) (storage.QuizAttempt, error) {
	answers, err := toJSON(nonNil(a.Answers))
	if err != nil {
		return storage.QuizAttempt{}, err
	}
	row := quizAttemptRow{
		ID:        uuid.New().String(),
		QuizID:    a.QuizID,
		UserID:    a.UserID,
		Answers:   answers,
		Correct:   a.Correct,
		Total:     a.Total,
		XPAwarded: a.XPAwarded,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return storage.QuizAttempt{}, err
	}
	return row.toAttempt(), nil
}

// CreateChatMessage inserts a chat exchange.
func (s *Store) CreateChatMessage(ctx context.Context, m storage.ChatMessage) (storage.ChatMessage, error) {
	row := chatMessageRow{
		ID:        uuid.New().String(),
		UserID:    m.UserID,
		Message:   m.Message,
		Response:  m.Response,
		Topic:     m.Topic,
		Persona:   m.Persona,
		XPGained:  m.XPGained,
		Role:      m.Role,
		Timestamp: m.Timestamp,
	}
	if row.Timestamp.IsZero() {
		row.Timestamp = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return storage.ChatMessage{}, err
	}
	return row.toChatMessage(), nil
}

// GetReview retrieves the review of a lesson for a user.
func (s *Store) GetReview(ctx context.Context, userID, lessonID string) (storage.LessonReview, error) {
	var row reviewRow
	err := s.db.WithContext(ctx).Where("user_id = ? AND lesson_id = ?", userID, lessonID).Take(&row).Error
	if err != nil {
		return storage.LessonReview{}, notFound(err)
	}
	return row.toReview(), nil
}

// SaveReview inserts or replaces the review for (user, lesson).
func (s *Store) SaveReview(ctx context.Context, r storage.LessonReview) (storage.LessonReview, error) {
	row := fromReview(r)
	row.UpdatedAt = time.Now().UTC()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing reviewRow
		err := tx.Select("id").Where("user_id = ? AND lesson_id = ?", r.UserID, r.LessonID).Take(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if row.ID == "" {
				row.ID = uuid.New().String()
			}
			return tx.Create(&row).Error
		case err != nil:
			return err
		}
		row.ID = existing.ID
		return tx.Save(&row).Error
	})
	if err != nil {
		return storage.LessonReview{}, err
	}
	return row.toReview(), nil
}

// ListQuizAttempts returns the user's attempts at a quiz, oldest first.
func (s *Store) ListQuizAttempts(ctx context.Context, userID, quizID string) ([]storage.QuizAttempt, error) {
	var rows []quizAttemptRow
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND quiz_id = ?", userID, quizID).
		Order("created_at asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]storage.QuizAttempt, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toAttempt())
	}
	return out, nil
}

// ListDueReviews returns the user's reviews due at or before now, earliest first.
func (s *Store) ListDueReviews(ctx context.Context, userID string, now time.Time) ([]storage.LessonReview, error) {
	var rows []reviewRow
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND due <= ?", userID, now).
		Order("due asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]storage.LessonReview, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toReview())
	}
	return out, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
