package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/danieldreier/mcp-lumi/internal/gamification"
	"github.com/danieldreier/mcp-lumi/internal/storage"
	"go.uber.org/zap"
)

// chatRoleCandidates are the role labels tried, in order, when saving a chat
// reply. Hosted schemas differ in which label their check constraint allows.
var chatRoleCandidates = []string{"ai", "assistant", "system", "bot"}

// ErrEmptyMessage is returned for a chat call without a message.
var ErrEmptyMessage = errors.New("message is required")

// SendChatMessage answers a student message and stores the exchange.
func (s *TutorService) SendChatMessage(ctx context.Context, req ChatRequest) (ChatResult, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return ChatResult{}, ErrEmptyMessage
	}
	userID, err := s.Identity.Resolve(ctx, req.UserID)
	if err != nil {
		return ChatResult{}, err
	}
	persona := s.resolvePersona(ctx, userID, req.Persona)

	reply, err := s.Provider.GenerateText(ctx, chatPrompt(message, req.Topic, req.Context), persona, req.Model)
	if err != nil {
		return ChatResult{}, fmt.Errorf("generating reply: %w", err)
	}

	var topic *string
	if t := strings.TrimSpace(req.Topic); t != "" {
		topic = &t
	}
	row := storage.ChatMessage{
		UserID:    userID,
		Message:   message,
		Response:  reply,
		Topic:     topic,
		Persona:   string(persona),
		XPGained:  gamification.ChatMessageXP,
		Timestamp: s.now().UTC(),
	}

	var saved storage.ChatMessage
	var lastErr error
	for _, role := range chatRoleCandidates {
		row.Role = role
		saved, lastErr = s.Storage.CreateChatMessage(ctx, row)
		if lastErr == nil {
			break
		}
		s.Logger.Debug("Chat role rejected", zap.String("role", role), zap.Error(lastErr))
	}
	if lastErr != nil {
		return ChatResult{}, fmt.Errorf("Failed to save chat message: %w", lastErr)
	}

	_, award := s.awardXP(ctx, userID, gamification.ChatMessageXP)

	return ChatResult{
		Reply:       reply,
		XPGained:    gamification.ChatMessageXP,
		MessageID:   saved.ID,
		Timestamp:   saved.Timestamp,
		Role:        saved.Role,
		SideEffects: []SideEffect{award},
	}, nil
}
