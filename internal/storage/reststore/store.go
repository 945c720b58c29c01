// Package reststore implements storage.Storage against the Supabase PostgREST API.
package reststore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/danieldreier/mcp-lumi/internal/gamification"
	"github.com/danieldreier/mcp-lumi/internal/storage"
	"github.com/google/uuid"
	"github.com/supabase-community/postgrest-go"
	"go.uber.org/zap"
)

// DefaultXPAttempts bounds the compare-and-swap loop in AddXP.
const DefaultXPAttempts = 5

// ErrXPContention is returned when AddXP loses every compare-and-swap attempt.
var ErrXPContention = errors.New("xp update kept conflicting with concurrent writers")

// Postgres error codes and messages surfaced by PostgREST for rejected rows.
var constraintMarkers = []string{"23514", "23502", "23503", "22P02", "violates check constraint", "invalid input value for enum"}

// Config holds the Supabase project URL and key.
type Config struct {
	URL        string
	Key        string
	XPAttempts int
	Logger     *zap.Logger
}

// Store talks to PostgREST. The postgrest-go client has no per-request context,
// so cancellation is only checked between requests.
type Store struct {
	client     *postgrest.Client
	xpAttempts int
	logger     *zap.Logger
}

var _ storage.Storage = (*Store)(nil)

// New creates a Store for the project at cfg.URL.
func New(cfg Config) (*Store, error) {
	if cfg.URL == "" || cfg.Key == "" {
		return nil, errors.New("supabase url and key are required")
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	attempts := cfg.XPAttempts
	if attempts <= 0 {
		attempts = DefaultXPAttempts
	}

	restURL := strings.TrimRight(cfg.URL, "/") + "/rest/v1"
	client := postgrest.NewClient(restURL, "public", map[string]string{
		"apikey":        cfg.Key,
		"Authorization": "Bearer " + cfg.Key,
	})
	if client.ClientError != nil {
		return nil, fmt.Errorf("creating postgrest client: %w", client.ClientError)
	}
	return &Store{client: client, xpAttempts: attempts, logger: log}, nil
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	for _, marker := range constraintMarkers {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %v", storage.ErrConstraint, err)
		}
	}
	return err
}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// selectOne runs a single row lookup and maps an empty result to ErrNotFound.
func selectOne[T any](ctx context.Context, fb *postgrest.FilterBuilder) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	var rows []T
	if _, err := fb.Limit(1, "").ExecuteTo(&rows); err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, storage.ErrNotFound
	}
	return rows[0], nil
}

// insertOne inserts payload and decodes the returned representation.
func insertOne[T any](ctx context.Context, s *Store, table string, payload map[string]interface{}) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	var rows []T
	_, err := s.client.From(table).Insert(payload, false, "", "representation", "").ExecuteTo(&rows)
	if err != nil {
		return zero, classify(err)
	}
	if len(rows) == 0 {
		return zero, fmt.Errorf("insert into %s returned no row", table)
	}
	return rows[0], nil
}

// FirstUserID returns the id of the earliest created user.
func (s *Store) FirstUserID(ctx context.Context) (string, error) {
	type idRow struct {
		ID string `json:"id"`
	}
	row, err := selectOne[idRow](ctx, s.client.From(storage.TableUsers).
		Select("id", "", false).
		Order("created_at", &postgrest.OrderOpts{Ascending: true}))
	if err != nil {
		return "", err
	}
	return row.ID, nil
}

// GetUser retrieves a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (storage.User, error) {
	return selectOne[storage.User](ctx, s.client.From(storage.TableUsers).Select("*", "", false).Eq("id", id))
}

// AddXP writes the new total only if xp still holds the value it was computed from,
// retrying a bounded number of times.
func (s *Store) AddXP(ctx context.Context, userID string, delta int) (storage.User, error) {
	for attempt := 1; attempt <= s.xpAttempts; attempt++ {
		current, err := s.GetUser(ctx, userID)
		if err != nil {
			return storage.User{}, err
		}
		newXP := current.XP + delta
		if newXP < 0 {
			newXP = 0
		}
		now := time.Now().UTC()
		update := map[string]interface{}{
			"xp":         newXP,
			"level":      gamification.CalculateLevel(newXP),
			"updated_at": stamp(now),
		}

		if err := ctx.Err(); err != nil {
			return storage.User{}, err
		}
		var rows []storage.User
		_, err = s.client.From(storage.TableUsers).
			Update(update, "representation", "").
			Eq("id", userID).
			Eq("xp", strconv.Itoa(current.XP)).
			ExecuteTo(&rows)
		if err != nil {
			return storage.User{}, fmt.Errorf("updating xp: %w", err)
		}
		if len(rows) > 0 {
			return rows[0], nil
		}
		s.logger.Debug("XP compare-and-swap lost, retrying",
			zap.String("user_id", userID), zap.Int("attempt", attempt))
	}
	return storage.User{}, ErrXPContention
}

// CreateLesson inserts a lesson.
func (s *Store) CreateLesson(ctx context.Context, l storage.Lesson) (storage.Lesson, error) {
	return insertOne[storage.Lesson](ctx, s, storage.TableLessons, map[string]interface{}{
		"id":         uuid.New().String(),
		"user_id":    l.UserID,
		"topic":      l.Topic,
		"subject":    l.Subject,
		"difficulty": l.Difficulty,
		"duration":   l.Duration,
		"content":    l.Content,
		"objectives": nonNil(l.Objectives),
		"key_points": nonNil(l.KeyPoints),
		"xp_reward":  l.XPReward,
		"created_at": stamp(time.Now()),
	})
}

// GetLesson retrieves a lesson by id.
func (s *Store) GetLesson(ctx context.Context, id string) (storage.Lesson, error) {
	return selectOne[storage.Lesson](ctx, s.client.From(storage.TableLessons).Select("*", "", false).Eq("id", id))
}

// CreateProgress inserts a progress row.
func (s *Store) CreateProgress(ctx context.Context, p storage.UserProgress) (storage.UserProgress, error) {
	return insertOne[storage.UserProgress](ctx, s, storage.TableProgress, map[string]interface{}{
		"id":         uuid.New().String(),
		"user_id":    p.UserID,
		"lesson_id":  p.LessonID,
		"completed":  p.Completed,
		"time_spent": p.TimeSpent,
	})
}

// CompleteProgress marks the user's progress completed, creating the row when missing.
// The PATCH only matches incomplete rows, so a completed row is never rewritten.
func (s *Store) CompleteProgress(ctx context.Context, userID, lessonID string, timeSpent int) (storage.UserProgress, bool, error) {
	if _, err := s.GetLesson(ctx, lessonID); err != nil {
		return storage.UserProgress{}, false, err
	}
	now := stamp(time.Now())
	fields := map[string]interface{}{
		"completed":    true,
		"time_spent":   timeSpent,
		"completed_at": now,
	}

	var rows []storage.UserProgress
	_, err := s.client.From(storage.TableProgress).
		Update(fields, "representation", "").
		Eq("user_id", userID).
		Eq("lesson_id", lessonID).
		Eq("completed", "false").
		ExecuteTo(&rows)
	if err != nil {
		return storage.UserProgress{}, false, classify(err)
	}
	if len(rows) > 0 {
		return rows[0], true, nil
	}

	existing, err := selectOne[storage.UserProgress](ctx, s.client.From(storage.TableProgress).
		Select("*", "", false).
		Eq("user_id", userID).
		Eq("lesson_id", lessonID))
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, storage.ErrNotFound):
		return storage.UserProgress{}, false, classify(err)
	}

	fields["id"] = uuid.New().String()
	fields["user_id"] = userID
	fields["lesson_id"] = lessonID
	p, err := insertOne[storage.UserProgress](ctx, s, storage.TableProgress, fields)
	if err != nil {
		return storage.UserProgress{}, false, err
	}
	return p, true, nil
}

// CreateQuiz inserts a quiz.
func (s *Store) CreateQuiz(ctx context.Context, q storage.Quiz) (storage.Quiz, error) {
	return insertOne[storage.Quiz](ctx, s, storage.TableQuizzes, map[string]interface{}{
		"id":         uuid.New().String(),
		"lesson_id":  q.LessonID,
		"user_id":    q.UserID,
		"questions":  nonNil(q.Questions),
		"xp_reward":  q.XPReward,
		"created_at": stamp(time.Now()),
	})
}

// GetQuiz retrieves a quiz by id.
func (s *Store) GetQuiz(ctx context.Context, id string) (storage.Quiz, error) {
	return selectOne[storage.Quiz](ctx, s.client.From(storage.TableQuizzes).Select("*", "", false).Eq("id", id))
}

// CreateQuizAttempt inserts a graded attempt.
func (s *Store) CreateQuizAttempt(ctx context.Context, a storage.QuizAttempt) (storage.QuizAttempt, error) {
	return insertOne[storage.QuizAttempt](ctx, s, storage.TableQuizAttempts, map[string]interface{}{
		"id":         uuid.New().String(),
		"quiz_id":    a.QuizID,
		"user_id":    a.UserID,
		"answers":    nonNil(a.Answers),
		"correct":    a.Correct,
		"total":      a.Total,
		"xp_awarded": a.XPAwarded,
		"created_at": stamp(time.Now()),
	})
}

// CreateChatMessage inserts a chat exchange. A role rejected by the schema yields ErrConstraint.
func (s *Store) CreateChatMessage(ctx context.Context, m storage.ChatMessage) (storage.ChatMessage, error) {
	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return insertOne[storage.ChatMessage](ctx, s, storage.TableChatMessages, map[string]interface{}{
		"id":        uuid.New().String(),
		"user_id":   m.UserID,
		"message":   m.Message,
		"response":  m.Response,
		"topic":     m.Topic,
		"persona":   m.Persona,
		"xp_gained": m.XPGained,
		"role":      m.Role,
		"timestamp": stamp(ts),
	})
}

// GetReview retrieves the review of a lesson for a user.
func (s *Store) GetReview(ctx context.Context, userID, lessonID string) (storage.LessonReview, error) {
	return selectOne[storage.LessonReview](ctx, s.client.From(storage.TableReviews).
		Select("*", "", false).
		Eq("user_id", userID).
		Eq("lesson_id", lessonID))
}

// SaveReview upserts on (user_id, lesson_id).
func (s *Store) SaveReview(ctx context.Context, r storage.LessonReview) (storage.LessonReview, error) {
	if err := ctx.Err(); err != nil {
		return storage.LessonReview{}, err
	}
	if r.ID == "" {
		if existing, err := s.GetReview(ctx, r.UserID, r.LessonID); err == nil {
			r.ID = existing.ID
		} else {
			r.ID = uuid.New().String()
		}
	}
	payload := map[string]interface{}{
		"id":             r.ID,
		"user_id":        r.UserID,
		"lesson_id":      r.LessonID,
		"due":            stamp(r.Due),
		"stability":      r.Stability,
		"difficulty":     r.Difficulty,
		"elapsed_days":   r.ElapsedDays,
		"scheduled_days": r.ScheduledDays,
		"reps":           r.Reps,
		"lapses":         r.Lapses,
		"state":          int(r.State),
		"last_review":    stamp(r.LastReview),
		"last_rating":    r.LastRating,
		"updated_at":     stamp(time.Now()),
	}
	var rows []storage.LessonReview
	_, err := s.client.From(storage.TableReviews).
		Upsert(payload, "user_id,lesson_id", "representation", "").
		ExecuteTo(&rows)
	if err != nil {
		return storage.LessonReview{}, classify(err)
	}
	if len(rows) == 0 {
		return storage.LessonReview{}, fmt.Errorf("upsert into %s returned no row", storage.TableReviews)
	}
	return rows[0], nil
}

// ListQuizAttempts returns the user's attempts at a quiz, oldest first.
func (s *Store) ListQuizAttempts(ctx context.Context, userID, quizID string) ([]storage.QuizAttempt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rows []storage.QuizAttempt
	_, err := s.client.From(storage.TableQuizAttempts).
		Select("*", "", false).
		Eq("user_id", userID).
		Eq("quiz_id", quizID).
		Order("created_at", &postgrest.OrderOpts{Ascending: true}).
		ExecuteTo(&rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListDueReviews returns the user's reviews due at or before now, earliest first.
func (s *Store) ListDueReviews(ctx context.Context, userID string, now time.Time) ([]storage.LessonReview, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rows []storage.LessonReview
	_, err := s.client.From(storage.TableReviews).
		Select("*", "", false).
		Eq("user_id", userID).
		Lte("due", stamp(now)).
		Order("due", &postgrest.OrderOpts{Ascending: true}).
		ExecuteTo(&rows)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []storage.LessonReview{}
	}
	return rows, nil
}

// Close is a no-op; the HTTP client holds no resources that need releasing.
func (s *Store) Close() error {
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
