package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/danieldreier/mcp-lumi/internal/fsrs"
	"github.com/danieldreier/mcp-lumi/internal/gamification"
	"github.com/danieldreier/mcp-lumi/internal/llm"
	"github.com/danieldreier/mcp-lumi/internal/storage"
	gofsrs "github.com/open-spaced-repetition/go-fsrs"
	"go.uber.org/zap"
)

// DefaultDueReviewLimit caps get_due_reviews when no limit is given.
const DefaultDueReviewLimit = 10

// CompleteLesson marks a lesson completed and credits its XP reward. Completing
// a lesson that is already completed credits nothing.
func (s *TutorService) CompleteLesson(ctx context.Context, userID, lessonID string, timeSpent int) (CompleteLessonResult, error) {
	userID, err := s.Identity.Resolve(ctx, userID)
	if err != nil {
		return CompleteLessonResult{}, err
	}
	if timeSpent < 0 {
		timeSpent = 0
	}

	lesson, err := s.Storage.GetLesson(ctx, lessonID)
	if err != nil {
		return CompleteLessonResult{}, fmt.Errorf("loading lesson %s: %w", lessonID, err)
	}
	progress, first, err := s.Storage.CompleteProgress(ctx, userID, lesson.ID, timeSpent)
	if err != nil {
		return CompleteLessonResult{}, fmt.Errorf("Failed to save progress: %w", err)
	}
	if !first {
		s.Logger.Debug("Lesson already completed, skipping XP award",
			zap.String("user_id", userID),
			zap.String("lesson_id", lesson.ID))
		return CompleteLessonResult{
			Message:     fmt.Sprintf("You already completed %s, so no XP was awarded.", lesson.Topic),
			Progress:    progress,
			SideEffects: []SideEffect{{Name: effectXPAward}},
		}, nil
	}

	user, award := s.awardXP(ctx, userID, lesson.XPReward)
	return CompleteLessonResult{
		Message:     fmt.Sprintf("Completed %s and earned %d XP.", lesson.Topic, lesson.XPReward),
		XPAwarded:   lesson.XPReward,
		Progress:    progress,
		User:        user,
		SideEffects: []SideEffect{award},
	}, nil
}

// normalizeAnswer lowercases s and collapses whitespace.
func normalizeAnswer(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// isCorrect accepts the answer text or the option letter (A-D) of the correct option.
func isCorrect(q storage.QuizQuestion, answer string) bool {
	want := normalizeAnswer(q.CorrectAnswer)
	got := normalizeAnswer(answer)
	if got == "" {
		return false
	}
	if got == want {
		return true
	}
	letter := strings.TrimRightFunc(got, func(r rune) bool { return r == ')' || r == '.' || unicode.IsSpace(r) })
	if len(letter) == 1 && letter[0] >= 'a' && letter[0] <= 'd' {
		idx := int(letter[0] - 'a')
		if idx < len(q.Options) {
			return normalizeAnswer(q.Options[idx]) == want
		}
	}
	return false
}

// GradeAnswers counts correct answers. Missing answers count as wrong.
func GradeAnswers(questions []storage.QuizQuestion, answers []string) int {
	correct := 0
	for i, q := range questions {
		if i < len(answers) && isCorrect(q, answers[i]) {
			correct++
		}
	}
	return correct
}

// SubmitQuiz grades answers, records the attempt, credits score XP and
// reschedules the lesson's review. Only the improvement over the user's best
// earlier attempt at the quiz is credited.
func (s *TutorService) SubmitQuiz(ctx context.Context, userID, quizID string, answers []string) (SubmitQuizResult, error) {
	userID, err := s.Identity.Resolve(ctx, userID)
	if err != nil {
		return SubmitQuizResult{}, err
	}
	quiz, err := s.Storage.GetQuiz(ctx, quizID)
	if err != nil {
		return SubmitQuizResult{}, fmt.Errorf("loading quiz %s: %w", quizID, err)
	}

	total := len(quiz.Questions)
	correct := GradeAnswers(quiz.Questions, answers)
	earlier, err := s.Storage.ListQuizAttempts(ctx, userID, quiz.ID)
	if err != nil {
		return SubmitQuizResult{}, fmt.Errorf("loading earlier attempts at quiz %s: %w", quizID, err)
	}
	xp := quizGain(quiz, correct, earlier)

	attempt, err := s.Storage.CreateQuizAttempt(ctx, storage.QuizAttempt{
		QuizID:    quiz.ID,
		UserID:    userID,
		Answers:   answers,
		Correct:   correct,
		Total:     total,
		XPAwarded: xp,
	})
	if err != nil {
		return SubmitQuizResult{}, fmt.Errorf("Failed to save quiz attempt: %w", err)
	}

	result := SubmitQuizResult{
		Message:   fmt.Sprintf("You got %d of %d correct and earned %d XP.", correct, total, xp),
		Correct:   correct,
		Total:     total,
		XPAwarded: xp,
		Attempt:   attempt,
	}

	award := SideEffect{Name: effectXPAward}
	if xp > 0 {
		_, award = s.awardXP(ctx, userID, xp)
	}
	review, schedule := s.scheduleReview(ctx, userID, quiz.LessonID, fsrs.RatingForScore(correct, total))
	if schedule.OK() {
		due := review.Due
		result.NextReview = &due
	}
	result.SideEffects = []SideEffect{award, schedule}
	return result, nil
}

// quizGain is the score XP for correct answers minus the best score XP of the
// earlier attempts, floored at zero.
func quizGain(quiz storage.Quiz, correct int, earlier []storage.QuizAttempt) int {
	best := 0
	for _, a := range earlier {
		if prev := gamification.QuizScoreXP(quiz.XPReward, a.Correct, a.Total); prev > best {
			best = prev
		}
	}
	gain := gamification.QuizScoreXP(quiz.XPReward, correct, len(quiz.Questions)) - best
	if gain < 0 {
		return 0
	}
	return gain
}

func (s *TutorService) scheduleReview(ctx context.Context, userID, lessonID string, rating gofsrs.Rating) (storage.LessonReview, SideEffect) {
	effect := SideEffect{Name: effectReview}
	now := s.now().UTC()

	review, err := s.Storage.GetReview(ctx, userID, lessonID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		review = storage.LessonReview{UserID: userID, LessonID: lessonID}
		review.SetCard(fsrs.NewCard())
	case err != nil:
		effect.Err = err
		s.sideEffectFailed(effect, zap.String("lesson_id", lessonID))
		return storage.LessonReview{}, effect
	}

	review.SetCard(s.Scheduler.Schedule(review.Card(), rating, now))
	review.LastRating = int(rating)
	saved, err := s.Storage.SaveReview(ctx, review)
	if err != nil {
		effect.Err = err
		s.sideEffectFailed(effect, zap.String("lesson_id", lessonID))
		return storage.LessonReview{}, effect
	}
	s.Logger.Debug("Lesson review scheduled",
		zap.String("lesson_id", lessonID),
		zap.Int("rating", int(rating)),
		zap.Time("due", saved.Due))
	return saved, effect
}

// DueReviews lists the user's lesson reviews that are due, most urgent first.
func (s *TutorService) DueReviews(ctx context.Context, userID string, limit int) (DueReviewsResult, error) {
	userID, err := s.Identity.Resolve(ctx, userID)
	if err != nil {
		return DueReviewsResult{}, err
	}
	if limit <= 0 {
		limit = DefaultDueReviewLimit
	}
	now := s.now().UTC()
	due, err := s.Storage.ListDueReviews(ctx, userID, now)
	if err != nil {
		return DueReviewsResult{}, fmt.Errorf("listing due reviews: %w", err)
	}
	prioritized := s.Scheduler.Prioritize(due, now)
	if len(prioritized) > limit {
		prioritized = prioritized[:limit]
	}
	if prioritized == nil {
		prioritized = []fsrs.PrioritizedReview{}
	}
	return DueReviewsResult{Reviews: prioritized}, nil
}

// Profile returns the user's XP and level standing.
func (s *TutorService) Profile(ctx context.Context, userID string) (ProfileResult, error) {
	userID, err := s.Identity.Resolve(ctx, userID)
	if err != nil {
		return ProfileResult{}, err
	}
	user, err := s.Storage.GetUser(ctx, userID)
	if err != nil {
		return ProfileResult{}, fmt.Errorf("loading user %s: %w", userID, err)
	}
	return ProfileResult{
		UserID:        user.ID,
		Name:          user.Name,
		Persona:       string(llm.ParsePersona(strings.ToLower(user.Persona))),
		XP:            user.XP,
		Level:         gamification.CalculateLevel(user.XP),
		XPToNextLevel: gamification.XPToNextLevel(user.XP),
	}, nil
}
