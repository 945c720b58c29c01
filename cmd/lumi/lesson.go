package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/danieldreier/mcp-lumi/internal/gamification"
	"github.com/danieldreier/mcp-lumi/internal/llm"
	"github.com/danieldreier/mcp-lumi/internal/storage"
	"go.uber.org/zap"
)

// GenerateLesson asks the model for a lesson, saves it with an empty progress
// row and credits the fixed lesson creation XP. The returned XPReward is what
// completing the lesson is worth; it is not credited here.
func (s *TutorService) GenerateLesson(ctx context.Context, req LessonRequest) (LessonResult, error) {
	userID, err := s.Identity.Resolve(ctx, req.UserID)
	if err != nil {
		return LessonResult{}, err
	}
	difficulty := strings.ToLower(strings.TrimSpace(req.Difficulty))
	persona := s.resolvePersona(ctx, userID, req.Persona)

	s.Logger.Debug("Generating lesson",
		zap.String("user_id", userID),
		zap.String("subject", req.Subject),
		zap.String("topic", req.Topic),
		zap.String("difficulty", difficulty),
		zap.Int("duration", req.Duration),
		zap.String("persona", string(persona)))

	prompt := lessonPrompt(req.Subject, req.Topic, difficulty, req.Duration)
	content, err := llm.GenerateStructured[GeneratedLessonContent](ctx, s.Provider, prompt, persona, req.Model)
	if err != nil {
		return LessonResult{}, fmt.Errorf("generating lesson: %w", err)
	}

	xpReward := gamification.LessonXPReward(difficulty, req.Duration)
	lesson, err := s.Storage.CreateLesson(ctx, storage.Lesson{
		UserID:     userID,
		Topic:      req.Topic,
		Subject:    req.Subject,
		Difficulty: difficulty,
		Duration:   req.Duration,
		Content:    FormatLessonContent(content),
		Objectives: content.Objectives,
		KeyPoints:  content.KeyPoints,
		XPReward:   xpReward,
	})
	if err != nil {
		return LessonResult{}, fmt.Errorf("Failed to save lesson: %w", err)
	}
	if lesson.ID == "" {
		return LessonResult{}, fmt.Errorf("Failed to save lesson: %w", storage.ErrNotFound)
	}

	result := LessonResult{
		Message:  fmt.Sprintf("Created a %s lesson on %s (%s). Complete it to earn %d XP.", difficulty, req.Topic, req.Subject, xpReward),
		XPReward: xpReward,
		Lesson:   lesson,
	}

	progress := SideEffect{Name: effectProgress}
	if _, err := s.Storage.CreateProgress(ctx, storage.UserProgress{
		UserID:   userID,
		LessonID: lesson.ID,
	}); err != nil {
		progress.Err = err
		s.sideEffectFailed(progress, zap.String("lesson_id", lesson.ID))
	}
	_, award := s.awardXP(ctx, userID, gamification.LessonCreationXP)
	result.SideEffects = []SideEffect{progress, award}

	s.Logger.Info("Lesson created",
		zap.String("lesson_id", lesson.ID),
		zap.String("user_id", userID),
		zap.Int("xp_reward", xpReward))
	return result, nil
}
