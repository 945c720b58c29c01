package main

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danieldreier/mcp-lumi/internal/identity"
	"github.com/danieldreier/mcp-lumi/internal/llm"
	"github.com/danieldreier/mcp-lumi/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const lessonJSON = "```json\n" + `{
  "introduction": "Algebra uses letters to stand for numbers.",
  "objectives": ["Define a variable", "Solve one-step equations", "Check a solution"],
  "key_points": ["Variables", "Expressions", "Equations", "Inverse operations", "Checking answers"],
  "detailed_content": "An equation says two expressions are equal.",
  "summary": "Keep both sides balanced.",
  "practice_exercises": ["Solve x + 3 = 7", "Solve 2x = 10"], // optional
}` + "\n```"

const quizJSON = `{
  "questions": [
    {"question": "Solve x + 3 = 7", "options": ["2", "3", "4", "5"], "correct_answer": "4", "explanation": "Subtract 3."},
    {"question": "Solve 2x = 10", "options": ["2", "5", "8", "20"], "correct_answer": "5", "explanation": "Divide by 2."},
    {"question": "What is a variable?", "options": ["A letter for a number", "A constant", "An operator", "A graph"], "correct_answer": "A letter for a number", "explanation": "By definition."},
    {"question": "Inverse of addition?", "options": ["Multiplication", "Subtraction", "Division", "Powers"], "correct_answer": "Subtraction", "explanation": "Undo adding."},
    {"question": "Solve x - 1 = 1", "options": ["0", "1", "2", "3"], "correct_answer": "2", "explanation": "Add 1."},
  ]
}`

// fakeGenerator replies through respond and records every prompt.
type fakeGenerator struct {
	mu      sync.Mutex
	respond func(prompt string) (string, error)
	prompts []string
	models  []string
}

func (g *fakeGenerator) Generate(_ context.Context, model, prompt string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.models = append(g.models, model)
	g.mu.Unlock()
	return g.respond(prompt)
}

func (g *fakeGenerator) lastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		return ""
	}
	return g.prompts[len(g.prompts)-1]
}

func replyWith(text string) *fakeGenerator {
	return &fakeGenerator{respond: func(string) (string, error) { return text, nil }}
}

// tutorReplies answers lesson, quiz, inference and chat prompts.
func tutorReplies() *fakeGenerator {
	return &fakeGenerator{respond: func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "Extract the lesson details"):
			return `{"subject": "Mathematics", "topic": "Algebra", "difficulty": "intermediate", "duration": 45, "num_questions": 4}`, nil
		case strings.Contains(prompt, `"practice_exercises"`):
			return lessonJSON, nil
		case strings.Contains(prompt, `"questions"`):
			return quizJSON, nil
		default:
			return "Great question! A variable is a placeholder.", nil
		}
	}}
}

type testEnv struct {
	svc   *TutorService
	store *storage.FileStorage
	gen   *fakeGenerator
	logs  *observer.ObservedLogs
	user  storage.User
}

func newTestEnv(t *testing.T, gen *fakeGenerator, opts ...storage.FileOption) *testEnv {
	t.Helper()
	store := storage.NewFileStorage(filepath.Join(t.TempDir(), "lumi.json"), opts...)
	require.NoError(t, store.Load())

	user, err := store.CreateUser(context.Background(), storage.User{Name: "Ada", Email: "ada@example.com", Persona: "strict"})
	require.NoError(t, err)

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	resolver := identity.NewResolver(store, &identity.Memo{}, identity.WithGetenv(func(string) string { return "" }))
	svc := NewTutorService(store, llm.NewProvider(gen, "", logger), resolver, logger)
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

	return &testEnv{svc: svc, store: store, gen: gen, logs: logs, user: user}
}

// failingStore overrides selected Storage methods with errors.
type failingStore struct {
	storage.Storage
	createLesson   error
	createProgress error
	addXP          error
	listAttempts   error
}

func (f *failingStore) CreateLesson(ctx context.Context, l storage.Lesson) (storage.Lesson, error) {
	if f.createLesson != nil {
		return storage.Lesson{}, f.createLesson
	}
	return f.Storage.CreateLesson(ctx, l)
}

func (f *failingStore) CreateProgress(ctx context.Context, p storage.UserProgress) (storage.UserProgress, error) {
	if f.createProgress != nil {
		return storage.UserProgress{}, f.createProgress
	}
	return f.Storage.CreateProgress(ctx, p)
}

func (f *failingStore) AddXP(ctx context.Context, userID string, delta int) (storage.User, error) {
	if f.addXP != nil {
		return storage.User{}, f.addXP
	}
	return f.Storage.AddXP(ctx, userID, delta)
}

func (f *failingStore) ListQuizAttempts(ctx context.Context, userID, quizID string) ([]storage.QuizAttempt, error) {
	if f.listAttempts != nil {
		return nil, f.listAttempts
	}
	return f.Storage.ListQuizAttempts(ctx, userID, quizID)
}

func effect(effects []SideEffect, name string) SideEffect {
	for _, e := range effects {
		if e.Name == name {
			return e
		}
	}
	return SideEffect{Name: "missing:" + name, Err: errors.New("side effect not reported")}
}

func TestGenerateLesson(t *testing.T) {
	env := newTestEnv(t, tutorReplies())
	ctx := context.Background()

	result, err := env.svc.GenerateLesson(ctx, LessonRequest{
		UserID:     env.user.ID,
		Subject:    "Math",
		Topic:      "Algebra",
		Difficulty: "beginner",
		Duration:   30,
	})
	require.NoError(t, err)

	assert.Equal(t, 80, result.XPReward)
	assert.Equal(t, 80, result.Lesson.XPReward)
	assert.NotEmpty(t, result.Lesson.ID)
	assert.Equal(t, []string{"Define a variable", "Solve one-step equations", "Check a solution"}, result.Lesson.Objectives)
	assert.Len(t, result.Lesson.KeyPoints, 5)
	assert.Contains(t, result.Lesson.Content, "# Introduction")
	assert.Contains(t, result.Lesson.Content, "# Practice Exercises\n\n1. Solve x + 3 = 7\n2. Solve 2x = 10")
	assert.Contains(t, result.Message, "80 XP")

	saved, err := env.store.GetLesson(ctx, result.Lesson.ID)
	require.NoError(t, err)
	assert.Equal(t, result.Lesson.Content, saved.Content)

	progress := env.store.Progress()
	require.Len(t, progress, 1)
	assert.Equal(t, result.Lesson.ID, progress[0].LessonID)
	assert.Equal(t, env.user.ID, progress[0].UserID)
	assert.False(t, progress[0].Completed)
	assert.Zero(t, progress[0].TimeSpent)

	user, err := env.store.GetUser(ctx, env.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, user.XP, "lesson creation credits 10 XP, not the lesson reward")

	assert.True(t, effect(result.SideEffects, effectProgress).OK())
	assert.True(t, effect(result.SideEffects, effectXPAward).OK())

	prompt := env.gen.lastPrompt()
	assert.True(t, strings.HasPrefix(prompt, llm.Preamble(llm.Strict)), "uses the stored persona")
	assert.Contains(t, prompt, `"Algebra"`)
	assert.Contains(t, prompt, "30 minutes")
}

func TestGenerateLessonPersonaOverride(t *testing.T) {
	env := newTestEnv(t, tutorReplies())

	_, err := env.svc.GenerateLesson(context.Background(), LessonRequest{
		UserID: env.user.ID, Subject: "Math", Topic: "Algebra", Difficulty: "advanced", Duration: 60, Persona: "Fun",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(env.gen.lastPrompt(), llm.Preamble(llm.Fun)))
}

func TestGenerateLessonUnknownUserUsesFriendly(t *testing.T) {
	env := newTestEnv(t, tutorReplies())

	result, err := env.svc.GenerateLesson(context.Background(), LessonRequest{
		UserID: "ghost", Subject: "Math", Topic: "Algebra", Difficulty: "beginner", Duration: 15,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(env.gen.lastPrompt(), llm.Preamble(llm.Friendly)))
	assert.True(t, effect(result.SideEffects, effectXPAward).OK(), "missing user is a no-op award")
}

func TestGenerateLessonSoftFailures(t *testing.T) {
	env := newTestEnv(t, tutorReplies())
	progressErr := errors.New("progress table missing")
	xpErr := errors.New("users table locked")
	env.svc.Storage = &failingStore{Storage: env.store, createProgress: progressErr, addXP: xpErr}

	result, err := env.svc.GenerateLesson(context.Background(), LessonRequest{
		UserID: env.user.ID, Subject: "Math", Topic: "Algebra", Difficulty: "beginner", Duration: 30,
	})
	require.NoError(t, err, "auxiliary failures never fail the lesson")
	assert.NotEmpty(t, result.Lesson.ID)

	assert.ErrorIs(t, effect(result.SideEffects, effectProgress).Err, progressErr)
	assert.ErrorIs(t, effect(result.SideEffects, effectXPAward).Err, xpErr)
	assert.Equal(t, 2, env.logs.FilterMessage("Side effect failed").FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestGenerateLessonSaveFailure(t *testing.T) {
	env := newTestEnv(t, tutorReplies())
	env.svc.Storage = &failingStore{Storage: env.store, createLesson: errors.New("permission denied")}

	_, err := env.svc.GenerateLesson(context.Background(), LessonRequest{
		UserID: env.user.ID, Subject: "Math", Topic: "Algebra", Difficulty: "beginner", Duration: 30,
	})
	require.Error(t, err)
	assert.Equal(t, "Failed to save lesson: permission denied", err.Error())
	assert.Empty(t, env.store.Progress())
}

func TestGenerateLessonParseFailure(t *testing.T) {
	env := newTestEnv(t, replyWith("Sorry, I can't help with that."))

	_, err := env.svc.GenerateLesson(context.Background(), LessonRequest{
		UserID: env.user.ID, Subject: "Math", Topic: "Algebra", Difficulty: "beginner", Duration: 30,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "response was not valid JSON")
	var perr *llm.ParseError
	assert.ErrorAs(t, err, &perr)
}

func TestGenerateLessonUnresolvedUser(t *testing.T) {
	gen := tutorReplies()
	store := storage.NewFileStorage(filepath.Join(t.TempDir(), "empty.json"))
	require.NoError(t, store.Load())
	resolver := identity.NewResolver(store, &identity.Memo{}, identity.WithGetenv(func(string) string { return "" }))
	svc := NewTutorService(store, llm.NewProvider(gen, "", nil), resolver, nil)

	_, err := svc.GenerateLesson(context.Background(), LessonRequest{Subject: "Math", Topic: "Algebra", Difficulty: "beginner", Duration: 30})
	require.ErrorIs(t, err, identity.ErrUnresolved)
	assert.Contains(t, err.Error(), "could not be resolved")
	assert.Empty(t, gen.prompts)
}

func TestGenerateQuizTruncatesLessonContent(t *testing.T) {
	env := newTestEnv(t, tutorReplies())
	ctx := context.Background()

	content := strings.Repeat("a", 2000) + strings.Repeat("b", 3000)
	lesson, err := env.store.CreateLesson(ctx, storage.Lesson{
		UserID: env.user.ID, Subject: "Math", Topic: "Algebra", Difficulty: "intermediate", Duration: 30, Content: content,
	})
	require.NoError(t, err)

	result, err := env.svc.GenerateQuiz(ctx, QuizRequest{UserID: env.user.ID, LessonID: lesson.ID})
	require.NoError(t, err)

	prompt := env.gen.lastPrompt()
	assert.Contains(t, prompt, strings.Repeat("a", 2000)+"...")
	assert.NotContains(t, prompt, "ab")
	assert.NotContains(t, prompt, "bbb")
	assert.Contains(t, prompt, "5 multiple choice questions")

	assert.Equal(t, 67, result.XPReward, "floor(30*1.4 + 5*5)")
	assert.Len(t, result.Quiz.Questions, 5)
	assert.Equal(t, lesson.ID, result.Quiz.LessonID)

	saved, err := env.store.GetQuiz(ctx, result.Quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, "4", saved.Questions[0].CorrectAnswer)
}

func TestGenerateQuizShortContentIsNotTruncated(t *testing.T) {
	env := newTestEnv(t, tutorReplies())
	lesson, err := env.store.CreateLesson(context.Background(), storage.Lesson{
		UserID: env.user.ID, Topic: "Algebra", Difficulty: "beginner", Content: "Short lesson.",
	})
	require.NoError(t, err)

	_, err = env.svc.GenerateQuiz(context.Background(), QuizRequest{UserID: env.user.ID, LessonID: lesson.ID, NumQuestions: 8})
	require.NoError(t, err)
	assert.Contains(t, env.gen.lastPrompt(), "Short lesson.\n")
	assert.NotContains(t, env.gen.lastPrompt(), "Short lesson....")
	assert.Contains(t, env.gen.lastPrompt(), "8 multiple choice questions")
}

func TestGenerateQuizMissingLesson(t *testing.T) {
	env := newTestEnv(t, tutorReplies())

	_, err := env.svc.GenerateQuiz(context.Background(), QuizRequest{UserID: env.user.ID, LessonID: "nope"})
	require.ErrorIs(t, err, storage.ErrNotFound)
	assert.Empty(t, env.gen.prompts)
}

func TestGenerateQuizWithoutQuestions(t *testing.T) {
	env := newTestEnv(t, replyWith(`{"questions": []}`))
	lesson, err := env.store.CreateLesson(context.Background(), storage.Lesson{UserID: env.user.ID, Topic: "Algebra"})
	require.NoError(t, err)

	_, err = env.svc.GenerateQuiz(context.Background(), QuizRequest{UserID: env.user.ID, LessonID: lesson.ID})
	assert.ErrorIs(t, err, ErrNoQuestions)
}

func TestSendChatMessage(t *testing.T) {
	env := newTestEnv(t, tutorReplies())
	ctx := context.Background()

	result, err := env.svc.SendChatMessage(ctx, ChatRequest{
		UserID:  env.user.ID,
		Message: "What is a variable?",
		Topic:   "Algebra",
		Context: []string{"Student: hi", "Lumi: hello"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Great question! A variable is a placeholder.", result.Reply)
	assert.Equal(t, 5, result.XPGained)
	assert.NotEmpty(t, result.MessageID)
	assert.Equal(t, "ai", result.Role)

	prompt := env.gen.lastPrompt()
	assert.Contains(t, prompt, "Topic: Algebra\n\nPrevious context:\nStudent: hi\nLumi: hello\n\nWhat is a variable?\n\n"+chatInstruction)
	assert.Contains(t, prompt, chatInstruction)

	messages := env.store.ChatMessages()
	require.Len(t, messages, 1)
	require.NotNil(t, messages[0].Topic)
	assert.Equal(t, "Algebra", *messages[0].Topic)
	assert.Equal(t, "strict", messages[0].Persona)

	user, err := env.store.GetUser(ctx, env.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, user.XP)
}

func TestSendChatMessageRoleFallback(t *testing.T) {
	env := newTestEnv(t, tutorReplies(), storage.WithAllowedRoles("user", "system"))

	result, err := env.svc.SendChatMessage(context.Background(), ChatRequest{UserID: env.user.ID, Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "system", result.Role)

	messages := env.store.ChatMessages()
	require.Len(t, messages, 1)
	assert.Equal(t, "system", messages[0].Role)
	assert.Equal(t, messages[0].ID, result.MessageID)
	assert.Nil(t, messages[0].Topic)
}

func TestSendChatMessageAllRolesRejected(t *testing.T) {
	env := newTestEnv(t, tutorReplies(), storage.WithAllowedRoles("user"))

	_, err := env.svc.SendChatMessage(context.Background(), ChatRequest{UserID: env.user.ID, Message: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrConstraint)
	assert.Contains(t, err.Error(), `"bot"`, "the last candidate's error is surfaced")
	assert.Empty(t, env.store.ChatMessages())

	user, err := env.store.GetUser(context.Background(), env.user.ID)
	require.NoError(t, err)
	assert.Zero(t, user.XP)
}

func TestSendChatMessageRequiresMessage(t *testing.T) {
	env := newTestEnv(t, tutorReplies())
	_, err := env.svc.SendChatMessage(context.Background(), ChatRequest{UserID: env.user.ID, Message: "  "})
	assert.ErrorIs(t, err, ErrEmptyMessage)
}
