package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/danieldreier/mcp-lumi/internal/gamification"
	"github.com/danieldreier/mcp-lumi/internal/llm"
	"github.com/danieldreier/mcp-lumi/internal/storage"
	"go.uber.org/zap"
)

// DefaultNumQuestions is the quiz length when none is requested.
const DefaultNumQuestions = 5

// ErrNoQuestions is returned when the model produced a quiz without questions.
var ErrNoQuestions = errors.New("model returned no quiz questions")

// GenerateQuiz builds a multiple choice quiz on an existing lesson and saves it.
func (s *TutorService) GenerateQuiz(ctx context.Context, req QuizRequest) (QuizResult, error) {
	userID, err := s.Identity.Resolve(ctx, req.UserID)
	if err != nil {
		return QuizResult{}, err
	}
	persona := s.resolvePersona(ctx, userID, req.Persona)

	lesson, err := s.Storage.GetLesson(ctx, req.LessonID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return QuizResult{}, fmt.Errorf("lesson %s not found: %w", req.LessonID, err)
		}
		return QuizResult{}, fmt.Errorf("loading lesson %s: %w", req.LessonID, err)
	}

	difficulty := strings.ToLower(strings.TrimSpace(req.Difficulty))
	if difficulty == "" {
		difficulty = lesson.Difficulty
	}
	numQuestions := req.NumQuestions
	if numQuestions <= 0 {
		numQuestions = DefaultNumQuestions
	}

	s.Logger.Debug("Generating quiz",
		zap.String("user_id", userID),
		zap.String("lesson_id", lesson.ID),
		zap.String("difficulty", difficulty),
		zap.Int("num_questions", numQuestions))

	prompt := quizPrompt(lesson.Content, lesson.Subject, lesson.Topic, difficulty, numQuestions)
	generated, err := llm.GenerateStructured[GeneratedQuiz](ctx, s.Provider, prompt, persona, req.Model)
	if err != nil {
		return QuizResult{}, fmt.Errorf("generating quiz: %w", err)
	}
	if len(generated.Questions) == 0 {
		return QuizResult{}, ErrNoQuestions
	}

	xpReward := gamification.QuizXPReward(difficulty, len(generated.Questions))
	quiz, err := s.Storage.CreateQuiz(ctx, storage.Quiz{
		LessonID:  lesson.ID,
		UserID:    userID,
		Questions: generated.Questions,
		XPReward:  xpReward,
	})
	if err != nil {
		return QuizResult{}, fmt.Errorf("Failed to save quiz: %w", err)
	}
	if quiz.ID == "" {
		return QuizResult{}, fmt.Errorf("Failed to save quiz: %w", storage.ErrNotFound)
	}

	s.Logger.Info("Quiz created",
		zap.String("quiz_id", quiz.ID),
		zap.String("lesson_id", lesson.ID),
		zap.Int("questions", len(quiz.Questions)))

	return QuizResult{
		Message:  fmt.Sprintf("Created a %d question quiz on %s. Score well to earn up to %d XP.", len(quiz.Questions), lesson.Topic, xpReward),
		XPReward: xpReward,
		Quiz:     quiz,
	}, nil
}
