package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danieldreier/mcp-lumi/internal/storage"
	gofsrs "github.com/open-spaced-repetition/go-fsrs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedQuiz(t *testing.T, env *testEnv) (storage.Lesson, storage.Quiz) {
	t.Helper()
	ctx := context.Background()
	lesson, err := env.store.CreateLesson(ctx, storage.Lesson{
		UserID: env.user.ID, Subject: "Math", Topic: "Algebra", Difficulty: "beginner", Duration: 30, XPReward: 80,
	})
	require.NoError(t, err)
	quiz, err := env.store.CreateQuiz(ctx, storage.Quiz{
		LessonID: lesson.ID,
		UserID:   env.user.ID,
		XPReward: 55,
		Questions: []storage.QuizQuestion{
			{Question: "1 + 1?", Options: []string{"1", "2", "3", "4"}, CorrectAnswer: "2"},
			{Question: "2 + 2?", Options: []string{"2", "3", "4", "5"}, CorrectAnswer: "4"},
			{Question: "Capital of France?", Options: []string{"Paris", "Rome", "Berlin", "Madrid"}, CorrectAnswer: "Paris"},
			{Question: "3 * 3?", Options: []string{"6", "9", "12", "3"}, CorrectAnswer: "9"},
			{Question: "10 / 2?", Options: []string{"2", "5", "8", "20"}, CorrectAnswer: "5"},
		},
	})
	require.NoError(t, err)
	return lesson, quiz
}

func TestCompleteLesson(t *testing.T) {
	env := newTestEnv(t, tutorReplies())
	ctx := context.Background()

	generated, err := env.svc.GenerateLesson(ctx, LessonRequest{
		UserID: env.user.ID, Subject: "Math", Topic: "Algebra", Difficulty: "advanced", Duration: 45,
	})
	require.NoError(t, err)
	assert.Equal(t, 140, generated.XPReward)

	result, err := env.svc.CompleteLesson(ctx, env.user.ID, generated.Lesson.ID, 42)
	require.NoError(t, err)
	assert.Equal(t, 140, result.XPAwarded)
	assert.True(t, result.Progress.Completed)
	assert.Equal(t, 42, result.Progress.TimeSpent)
	assert.NotNil(t, result.Progress.CompletedAt)
	require.NotNil(t, result.User)
	assert.Equal(t, 150, result.User.XP)

	progress := env.store.Progress()
	require.Len(t, progress, 1, "the row created with the lesson is updated in place")
	assert.True(t, progress[0].Completed)
}

func TestCompleteLessonTwice(t *testing.T) {
	env := newTestEnv(t, tutorReplies())
	ctx := context.Background()
	lesson, _ := seedQuiz(t, env)

	first, err := env.svc.CompleteLesson(ctx, env.user.ID, lesson.ID, 20)
	require.NoError(t, err)
	assert.Equal(t, 80, first.XPAwarded)

	second, err := env.svc.CompleteLesson(ctx, env.user.ID, lesson.ID, 35)
	require.NoError(t, err)
	assert.Zero(t, second.XPAwarded)
	assert.Equal(t, "You already completed Algebra, so no XP was awarded.", second.Message)
	assert.Equal(t, 20, second.Progress.TimeSpent, "the first completion is kept")
	assert.Nil(t, second.User)

	user, err := env.store.GetUser(ctx, env.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 80, user.XP)
	assert.Equal(t, 1, env.logs.FilterMessage("Lesson already completed, skipping XP award").Len())
}

func TestCompleteLessonMissingLesson(t *testing.T) {
	env := newTestEnv(t, tutorReplies())

	_, err := env.svc.CompleteLesson(context.Background(), env.user.ID, "nope", 10)
	require.ErrorIs(t, err, storage.ErrNotFound)

	user, err := env.store.GetUser(context.Background(), env.user.ID)
	require.NoError(t, err)
	assert.Zero(t, user.XP)
}

func TestGradeAnswers(t *testing.T) {
	questions := []storage.QuizQuestion{
		{Options: []string{"Paris", "Rome", "Berlin", "Madrid"}, CorrectAnswer: "Paris"},
		{Options: []string{"1", "2", "3", "4"}, CorrectAnswer: "3"},
		{Options: []string{"Red", "Green", "Blue", "New York City"}, CorrectAnswer: "New York City"},
	}

	tests := []struct {
		name    string
		answers []string
		want    int
	}{
		{"exact text", []string{"Paris", "3", "New York City"}, 3},
		{"case and spacing", []string{" paris ", "3", "new  york\tcity"}, 3},
		{"letters", []string{"A", "c)", "d."}, 3},
		{"wrong letter", []string{"B", "a", "x"}, 0},
		{"missing answers", []string{"Paris"}, 1},
		{"blank answer", []string{"", "", ""}, 0},
		{"extra answers ignored", []string{"Paris", "3", "New York City", "Paris"}, 3},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, GradeAnswers(questions, tc.answers))
		})
	}
}

func TestSubmitQuiz(t *testing.T) {
	env := newTestEnv(t, tutorReplies())
	ctx := context.Background()
	lesson, quiz := seedQuiz(t, env)

	result, err := env.svc.SubmitQuiz(ctx, env.user.ID, quiz.ID, []string{"2", "b", "Paris", "6", "20"})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Correct)
	assert.Equal(t, 5, result.Total)
	assert.Equal(t, 33, result.XPAwarded, "55 * 3 / 5")
	assert.Equal(t, quiz.ID, result.Attempt.QuizID)
	assert.NotEmpty(t, result.Attempt.ID)
	require.NotNil(t, result.NextReview)

	user, err := env.store.GetUser(ctx, env.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 33, user.XP)

	review, err := env.store.GetReview(ctx, env.user.ID, lesson.ID)
	require.NoError(t, err)
	assert.Equal(t, int(gofsrs.Hard), review.LastRating)
	assert.Equal(t, uint64(1), review.Reps)
	assert.Equal(t, *result.NextReview, review.Due)
	assert.True(t, review.Due.After(env.svc.now()))

	for _, e := range result.SideEffects {
		assert.True(t, e.OK(), e.Name)
	}
}

func TestSubmitQuizReschedulesExistingReview(t *testing.T) {
	env := newTestEnv(t, tutorReplies())
	ctx := context.Background()
	lesson, quiz := seedQuiz(t, env)
	answers := []string{"2", "4", "Paris", "9", "5"}

	_, err := env.svc.SubmitQuiz(ctx, env.user.ID, quiz.ID, answers)
	require.NoError(t, err)
	first, err := env.store.GetReview(ctx, env.user.ID, lesson.ID)
	require.NoError(t, err)

	env.svc.now = func() time.Time { return first.Due.Add(time.Hour) }
	_, err = env.svc.SubmitQuiz(ctx, env.user.ID, quiz.ID, answers)
	require.NoError(t, err)

	second, err := env.store.GetReview(ctx, env.user.ID, lesson.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "one review per user and lesson")
	assert.Equal(t, uint64(2), second.Reps)
	assert.Equal(t, int(gofsrs.Easy), second.LastRating)
	assert.True(t, second.Due.After(first.Due))
}

func TestSubmitQuizCreditsOnlyImprovement(t *testing.T) {
	env := newTestEnv(t, tutorReplies())
	ctx := context.Background()
	_, quiz := seedQuiz(t, env)
	perfect := []string{"2", "4", "Paris", "9", "5"}

	tests := []struct {
		answers []string
		want    int
		xp      int
	}{
		{[]string{"2", "b", "Paris", "6", "20"}, 33, 33},
		{[]string{"2", "b", "x", "x", "x"}, 0, 33},
		{perfect, 22, 55},
		{perfect, 0, 55},
		{perfect, 0, 55},
	}
	for i, tc := range tests {
		result, err := env.svc.SubmitQuiz(ctx, env.user.ID, quiz.ID, tc.answers)
		require.NoError(t, err)
		assert.Equal(t, tc.want, result.XPAwarded, "attempt %d", i+1)
		assert.Equal(t, tc.want, result.Attempt.XPAwarded, "attempt %d", i+1)

		user, err := env.store.GetUser(ctx, env.user.ID)
		require.NoError(t, err)
		assert.Equal(t, tc.xp, user.XP, "attempt %d", i+1)
	}

	attempts, err := env.store.ListQuizAttempts(ctx, env.user.ID, quiz.ID)
	require.NoError(t, err)
	assert.Len(t, attempts, len(tests), "every attempt is recorded")
}

func TestSubmitQuizEarlierAttemptsUnavailable(t *testing.T) {
	env := newTestEnv(t, tutorReplies())
	ctx := context.Background()
	_, quiz := seedQuiz(t, env)
	env.svc.Storage = &failingStore{Storage: env.store, listAttempts: errors.New("connection reset")}

	_, err := env.svc.SubmitQuiz(ctx, env.user.ID, quiz.ID, []string{"2"})
	require.ErrorContains(t, err, "connection reset")

	user, err := env.store.GetUser(ctx, env.user.ID)
	require.NoError(t, err)
	assert.Zero(t, user.XP)
	attempts, err := env.store.ListQuizAttempts(ctx, env.user.ID, quiz.ID)
	require.NoError(t, err)
	assert.Empty(t, attempts)
}

func TestSubmitQuizZeroScore(t *testing.T) {
	env := newTestEnv(t, tutorReplies())
	ctx := context.Background()
	lesson, quiz := seedQuiz(t, env)

	result, err := env.svc.SubmitQuiz(ctx, env.user.ID, quiz.ID, nil)
	require.NoError(t, err)
	assert.Zero(t, result.Correct)
	assert.Zero(t, result.XPAwarded)

	review, err := env.store.GetReview(ctx, env.user.ID, lesson.ID)
	require.NoError(t, err)
	assert.Equal(t, int(gofsrs.Again), review.LastRating)
}

func TestSubmitQuizMissingQuiz(t *testing.T) {
	env := newTestEnv(t, tutorReplies())
	_, err := env.svc.SubmitQuiz(context.Background(), env.user.ID, "nope", []string{"a"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDueReviews(t *testing.T) {
	env := newTestEnv(t, tutorReplies())
	ctx := context.Background()
	now := env.svc.now()

	for i, due := range []time.Time{now.Add(-time.Hour), now.Add(-72 * time.Hour), now.Add(48 * time.Hour)} {
		review := storage.LessonReview{UserID: env.user.ID, LessonID: string(rune('a' + i)), Due: due, State: gofsrs.Review}
		_, err := env.store.SaveReview(ctx, review)
		require.NoError(t, err)
	}
	_, err := env.store.SaveReview(ctx, storage.LessonReview{UserID: "someone-else", LessonID: "z", Due: now.Add(-time.Hour)})
	require.NoError(t, err)

	result, err := env.svc.DueReviews(ctx, env.user.ID, 0)
	require.NoError(t, err)
	require.Len(t, result.Reviews, 2)
	assert.Equal(t, "b", result.Reviews[0].Review.LessonID, "most overdue first")
	assert.Equal(t, "a", result.Reviews[1].Review.LessonID)
	assert.GreaterOrEqual(t, result.Reviews[0].Priority, result.Reviews[1].Priority)

	limited, err := env.svc.DueReviews(ctx, env.user.ID, 1)
	require.NoError(t, err)
	assert.Len(t, limited.Reviews, 1)
}

func TestDueReviewsEmpty(t *testing.T) {
	env := newTestEnv(t, tutorReplies())

	result, err := env.svc.DueReviews(context.Background(), env.user.ID, 5)
	require.NoError(t, err)
	assert.NotNil(t, result.Reviews)
	assert.Empty(t, result.Reviews)
}

func TestProfile(t *testing.T) {
	env := newTestEnv(t, tutorReplies())
	ctx := context.Background()

	_, err := env.store.AddXP(ctx, env.user.ID, 250)
	require.NoError(t, err)

	profile, err := env.svc.Profile(ctx, "")
	require.NoError(t, err, "falls back to the first user")
	assert.Equal(t, env.user.ID, profile.UserID)
	assert.Equal(t, "Ada", profile.Name)
	assert.Equal(t, "strict", profile.Persona)
	assert.Equal(t, 250, profile.XP)
	assert.GreaterOrEqual(t, profile.Level, 1)
	assert.Positive(t, profile.XPToNextLevel)
}
