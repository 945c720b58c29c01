package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/danieldreier/mcp-lumi/internal/gamification"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// fileData is the document stored in the JSON file.
type fileData struct {
	Users        map[string]User         `json:"users"`
	Lessons      map[string]Lesson       `json:"lessons"`
	Progress     []UserProgress          `json:"user_progress"`
	Quizzes      map[string]Quiz         `json:"quizzes"`
	QuizAttempts []QuizAttempt           `json:"quiz_attempts"`
	ChatMessages []ChatMessage           `json:"chat_messages"`
	Reviews      map[string]LessonReview `json:"lesson_reviews"`
	LastUpdated  time.Time               `json:"last_updated"`
}

func emptyFileData() fileData {
	return fileData{
		Users:        make(map[string]User),
		Lessons:      make(map[string]Lesson),
		Progress:     []UserProgress{},
		Quizzes:      make(map[string]Quiz),
		QuizAttempts: []QuizAttempt{},
		ChatMessages: []ChatMessage{},
		Reviews:      make(map[string]LessonReview),
	}
}

// fill replaces nil collections, e.g. after loading an older file.
func (d *fileData) fill() {
	if d.Users == nil {
		d.Users = make(map[string]User)
	}
	if d.Lessons == nil {
		d.Lessons = make(map[string]Lesson)
	}
	if d.Progress == nil {
		d.Progress = []UserProgress{}
	}
	if d.Quizzes == nil {
		d.Quizzes = make(map[string]Quiz)
	}
	if d.QuizAttempts == nil {
		d.QuizAttempts = []QuizAttempt{}
	}
	if d.ChatMessages == nil {
		d.ChatMessages = []ChatMessage{}
	}
	if d.Reviews == nil {
		d.Reviews = make(map[string]LessonReview)
	}
}

// FileOption configures a FileStorage.
type FileOption func(*FileStorage)

// WithAllowedRoles restricts the chat message roles the store accepts,
// mirroring a check constraint on the hosted schema. No roles means any role.
func WithAllowedRoles(roles ...string) FileOption {
	return func(fs *FileStorage) {
		fs.allowedRoles = make(map[string]bool, len(roles))
		for _, r := range roles {
			fs.allowedRoles[r] = true
		}
	}
}

// WithFileLogger sets the logger used by the file backend.
func WithFileLogger(logger *zap.Logger) FileOption {
	return func(fs *FileStorage) {
		fs.logger = logger
	}
}

// FileStorage implements Storage on a single JSON file. Every write is saved
// atomically before the call returns.
type FileStorage struct {
	filePath     string
	data         fileData
	allowedRoles map[string]bool
	logger       *zap.Logger
	mu           sync.RWMutex
}

var _ Storage = (*FileStorage)(nil)

// NewFileStorage creates a FileStorage. Call Load before use.
func NewFileStorage(filePath string, opts ...FileOption) *FileStorage {
	fs := &FileStorage{
		filePath: filePath,
		data:     emptyFileData(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(fs)
	}
	fs.logger.Debug("Creating file storage", zap.String("path", filePath))
	return fs
}

func reviewKey(userID, lessonID string) string {
	return userID + "/" + lessonID
}

// CreateUser inserts or replaces a user. The hosted deployments create users
// through signup; this exists for local data files and tests.
func (fs *FileStorage) CreateUser(_ context.Context, user User) (User, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	now := time.Now().UTC()
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	if user.XP < 0 {
		user.XP = 0
	}
	user.Level = gamification.CalculateLevel(user.XP)
	fs.data.Users[user.ID] = user
	return user, fs.save()
}

// FirstUserID returns the id of the earliest created user.
func (fs *FileStorage) FirstUserID(_ context.Context) (string, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var first *User
	for id := range fs.data.Users {
		u := fs.data.Users[id]
		if first == nil || u.CreatedAt.Before(first.CreatedAt) ||
			(u.CreatedAt.Equal(first.CreatedAt) && u.ID < first.ID) {
			first = &u
		}
	}
	if first == nil {
		return "", ErrNotFound
	}
	return first.ID, nil
}

// GetUser retrieves a user by id.
func (fs *FileStorage) GetUser(_ context.Context, id string) (User, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	u, ok := fs.data.Users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

// AddXP adds delta under the write lock.
func (fs *FileStorage) AddXP(_ context.Context, userID string, delta int) (User, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	u, ok := fs.data.Users[userID]
	if !ok {
		return User{}, ErrNotFound
	}
	u.XP += delta
	if u.XP < 0 {
		u.XP = 0
	}
	u.Level = gamification.CalculateLevel(u.XP)
	u.UpdatedAt = time.Now().UTC()
	fs.data.Users[userID] = u
	return u, fs.save()
}

// CreateLesson inserts a lesson.
func (fs *FileStorage) CreateLesson(_ context.Context, lesson Lesson) (Lesson, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	lesson.ID = uuid.New().String()
	lesson.CreatedAt = time.Now().UTC()
	fs.data.Lessons[lesson.ID] = lesson
	return lesson, fs.save()
}

// GetLesson retrieves a lesson by id.
func (fs *FileStorage) GetLesson(_ context.Context, id string) (Lesson, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	l, ok := fs.data.Lessons[id]
	if !ok {
		return Lesson{}, ErrNotFound
	}
	return l, nil
}

// CreateProgress inserts a progress row.
func (fs *FileStorage) CreateProgress(_ context.Context, p UserProgress) (UserProgress, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.data.Lessons[p.LessonID]; !ok {
		return UserProgress{}, fmt.Errorf("%w: lesson %s does not exist", ErrConstraint, p.LessonID)
	}
	p.ID = uuid.New().String()
	fs.data.Progress = append(fs.data.Progress, p)
	return p, fs.save()
}

// CompleteProgress marks the first matching progress row completed. A row that is
// already completed keeps its original time and completion stamp.
func (fs *FileStorage) CompleteProgress(_ context.Context, userID, lessonID string, timeSpent int) (UserProgress, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.data.Lessons[lessonID]; !ok {
		return UserProgress{}, false, ErrNotFound
	}
	now := time.Now().UTC()
	for i, p := range fs.data.Progress {
		if p.UserID == userID && p.LessonID == lessonID {
			if p.Completed {
				return p, false, nil
			}
			p.Completed = true
			p.TimeSpent = timeSpent
			p.CompletedAt = &now
			fs.data.Progress[i] = p
			return p, true, fs.save()
		}
	}
	p := UserProgress{
		ID:          uuid.New().String(),
		UserID:      userID,
		LessonID:    lessonID,
		Completed:   true,
		TimeSpent:   timeSpent,
		CompletedAt: &now,
	}
	fs.data.Progress = append(fs.data.Progress, p)
	return p, true, fs.save()
}

// CreateQuiz inserts a quiz for an existing lesson.
func (fs *FileStorage) CreateQuiz(_ context.Context, quiz Quiz) (Quiz, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.data.Lessons[quiz.LessonID]; !ok {
		return Quiz{}, fmt.Errorf("%w: lesson %s does not exist", ErrConstraint, quiz.LessonID)
	}
	quiz.ID = uuid.New().String()
	quiz.CreatedAt = time.Now().UTC()
	fs.data.Quizzes[quiz.ID] = quiz
	return quiz, fs.save()
}

// GetQuiz retrieves a quiz by id.
func (fs *FileStorage) GetQuiz(_ context.Context, id string) (Quiz, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	q, ok := fs.data.Quizzes[id]
	if !ok {
		return Quiz{}, ErrNotFound
	}
	return q, nil
}

// CreateQuizAttempt inserts a graded attempt.
func (fs *FileStorage) CreateQuizAttempt(_ context.Context, a QuizAttempt) (QuizAttempt, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.data.Quizzes[a.QuizID]; !ok {
		return QuizAttempt{}, fmt.Errorf("%w: quiz %s does not exist", ErrConstraint, a.QuizID)
	}
	a.ID = uuid.New().String()
	a.CreatedAt = time.Now().UTC()
	fs.data.QuizAttempts = append(fs.data.QuizAttempts, a)
	return a, fs.save()
}

// ListQuizAttempts returns the user's attempts at a quiz in insertion order.
func (fs *FileStorage) ListQuizAttempts(_ context.Context, userID, quizID string) ([]QuizAttempt, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var out []QuizAttempt
	for _, a := range fs.data.QuizAttempts {
		if a.UserID == userID && a.QuizID == quizID {
			out = append(out, a)
		}
	}
	return out, nil
}

// CreateChatMessage inserts a chat exchange, enforcing the allowed roles.
func (fs *FileStorage) CreateChatMessage(_ context.Context, msg ChatMessage) (ChatMessage, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if len(fs.allowedRoles) > 0 && !fs.allowedRoles[msg.Role] {
		fs.logger.Debug("Rejecting chat message role", zap.String("role", msg.Role))
		return ChatMessage{}, fmt.Errorf("%w: role %q is not allowed", ErrConstraint, msg.Role)
	}
	msg.ID = uuid.New().String()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	fs.data.ChatMessages = append(fs.data.ChatMessages, msg)
	return msg, fs.save()
}

// ChatMessages returns a copy of the stored chat messages.
func (fs *FileStorage) ChatMessages() []ChatMessage {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	out := make([]ChatMessage, len(fs.data.ChatMessages))
	copy(out, fs.data.ChatMessages)
	return out
}

// Progress returns a copy of the stored progress rows.
func (fs *FileStorage) Progress() []UserProgress {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	out := make([]UserProgress, len(fs.data.Progress))
	copy(out, fs.data.Progress)
	return out
}

// GetReview retrieves the review state of a lesson for a user.
func (fs *FileStorage) GetReview(_ context.Context, userID, lessonID string) (LessonReview, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	r, ok := fs.data.Reviews[reviewKey(userID, lessonID)]
	if !ok {
		return LessonReview{}, ErrNotFound
	}
	return r, nil
}

// SaveReview inserts or replaces the review for (user, lesson).
func (fs *FileStorage) SaveReview(_ context.Context, r LessonReview) (LessonReview, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	key := reviewKey(r.UserID, r.LessonID)
	if existing, ok := fs.data.Reviews[key]; ok {
		r.ID = existing.ID
	} else if r.ID == "" {
		r.ID = uuid.New().String()
	}
	r.UpdatedAt = time.Now().UTC()
	fs.data.Reviews[key] = r
	return r, fs.save()
}

// ListDueReviews returns the user's reviews due at or before now, earliest first.
func (fs *FileStorage) ListDueReviews(_ context.Context, userID string, now time.Time) ([]LessonReview, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	out := []LessonReview{}
	for _, r := range fs.data.Reviews {
		if r.UserID == userID && !r.Due.After(now) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Due.Before(out[j].Due) })
	return out, nil
}

// Close flushes the data file.
func (fs *FileStorage) Close() error {
	return fs.Save()
}

// save writes the store to disk. Assumes the write lock is held.
func (fs *FileStorage) save() error {
	fs.data.fill()
	fs.data.LastUpdated = time.Now().UTC()

	dataBytes, err := json.MarshalIndent(fs.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal storage data: %w", err)
	}

	dir := filepath.Dir(fs.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to a temp file and rename so a crash never leaves a half-written store.
	tempFile := fs.filePath + ".tmp"
	if err := os.WriteFile(tempFile, dataBytes, 0644); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := os.Rename(tempFile, fs.filePath); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}

// Load reads the data file, creating an empty one if it does not exist.
func (fs *FileStorage) Load() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.logger.Debug("Loading file storage", zap.String("path", fs.filePath))
	if _, err := os.Stat(fs.filePath); os.IsNotExist(err) {
		fs.logger.Info("Data file not found, initializing empty store", zap.String("path", fs.filePath))
		fs.data = emptyFileData()
		if err := fs.save(); err != nil {
			return fmt.Errorf("failed to save initial empty store: %w", err)
		}
		return nil
	}

	raw, err := os.ReadFile(fs.filePath)
	if err != nil {
		return fmt.Errorf("failed to read storage file: %w", err)
	}
	if len(raw) == 0 {
		fs.data = emptyFileData()
		return nil
	}

	var data fileData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("failed to unmarshal storage data: %w", err)
	}
	data.fill()
	fs.data = data
	fs.logger.Debug("File storage loaded",
		zap.Int("users", len(data.Users)),
		zap.Int("lessons", len(data.Lessons)),
		zap.Int("quizzes", len(data.Quizzes)))
	return nil
}

// Save writes the data file atomically.
func (fs *FileStorage) Save() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.save()
}
