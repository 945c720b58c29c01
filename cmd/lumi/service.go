// Package main implements the Lumi tutor MCP server.
package main

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/danieldreier/mcp-lumi/internal/fsrs"
	"github.com/danieldreier/mcp-lumi/internal/identity"
	"github.com/danieldreier/mcp-lumi/internal/llm"
	"github.com/danieldreier/mcp-lumi/internal/metrics"
	"github.com/danieldreier/mcp-lumi/internal/storage"
	"go.uber.org/zap"
)

// TutorService generates lessons, quizzes and chat replies and records the
// learner's progress.
type TutorService struct {
	Storage   storage.Storage
	Provider  *llm.Provider
	Identity  *identity.Resolver
	Scheduler fsrs.Scheduler
	Logger    *zap.Logger

	now func() time.Time
}

// NewTutorService creates a TutorService. A nil logger disables logging.
func NewTutorService(store storage.Storage, provider *llm.Provider, resolver *identity.Resolver, logger *zap.Logger) *TutorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TutorService{
		Storage:   store,
		Provider:  provider,
		Identity:  resolver,
		Scheduler: fsrs.NewScheduler(),
		Logger:    logger,
		now:       time.Now,
	}
}

// resolvePersona returns the override when given, else the user's stored persona, else Friendly.
func (s *TutorService) resolvePersona(ctx context.Context, userID, override string) llm.Persona {
	if p := strings.ToLower(strings.TrimSpace(override)); p != "" {
		return llm.ParsePersona(p)
	}
	user, err := s.Storage.GetUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.Logger.Warn("Could not load user persona", zap.String("user_id", userID), zap.Error(err))
		}
		return llm.Friendly
	}
	return llm.ParsePersona(strings.ToLower(user.Persona))
}

// awardXP credits delta XP to the user. A missing user is a no-op.
func (s *TutorService) awardXP(ctx context.Context, userID string, delta int) (*storage.User, SideEffect) {
	effect := SideEffect{Name: effectXPAward}
	user, err := s.Storage.AddXP(ctx, userID, delta)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.Logger.Debug("Skipping XP award for unknown user", zap.String("user_id", userID))
		return nil, effect
	case err != nil:
		effect.Err = err
		s.sideEffectFailed(effect, zap.String("user_id", userID), zap.Int("delta", delta))
		return nil, effect
	}
	metrics.XPAwarded.Add(float64(delta))
	s.Logger.Debug("Awarded XP",
		zap.String("user_id", userID),
		zap.Int("delta", delta),
		zap.Int("xp", user.XP),
		zap.Int("level", user.Level))
	return &user, effect
}

func (s *TutorService) sideEffectFailed(effect SideEffect, fields ...zap.Field) {
	metrics.SideEffectFailures.WithLabelValues(effect.Name).Inc()
	fields = append(fields, zap.String("side_effect", effect.Name), zap.Error(effect.Err))
	s.Logger.Warn("Side effect failed", fields...)
}
