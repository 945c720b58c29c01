package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/danieldreier/mcp-lumi/internal/metrics"
	"github.com/mark3labs/mcp-go/mcp"
)

type serviceKey struct{}

// withService stores the tutor service in ctx for the tool handlers.
func withService(ctx context.Context, s *TutorService) context.Context {
	return context.WithValue(ctx, serviceKey{}, s)
}

func serviceFrom(ctx context.Context) (*TutorService, error) {
	s, ok := ctx.Value(serviceKey{}).(*TutorService)
	if !ok || s == nil {
		return nil, errors.New("Error: Service not available")
	}
	return s, nil
}

type toolHandler func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// instrument counts tool calls by outcome.
func instrument(tool string, next toolHandler) toolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := next(ctx, request)
		status := metrics.Status(err)
		if result != nil && result.IsError {
			status = metrics.StatusError
		}
		metrics.ToolCalls.WithLabelValues(tool, status).Inc()
		return result, err
	}
}

func stringArg(request mcp.CallToolRequest, name string) string {
	v, _ := request.Params.Arguments[name].(string)
	return strings.TrimSpace(v)
}

// numberArg returns nil when the argument is absent or not a number.
func numberArg(request mcp.CallToolRequest, name string) *float64 {
	v, ok := request.Params.Arguments[name].(float64)
	if !ok {
		return nil
	}
	return &v
}

func stringsArg(request mcp.CallToolRequest, name string) []string {
	raw, ok := request.Params.Arguments[name].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// jsonResult returns a one line summary followed by the JSON payload.
func jsonResult(summary string, payload any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(summary),
			mcp.NewTextContent(string(jsonBytes)),
		},
	}, nil
}

// lessonDetails resolves lesson parameters from the request, running detail
// inference unless every parameter was given.
func lessonDetails(ctx context.Context, s *TutorService, request mcp.CallToolRequest) LessonDetails {
	overrides := DetailOverrides{
		Subject:      stringArg(request, "subject"),
		Topic:        stringArg(request, "topic"),
		Difficulty:   stringArg(request, "difficulty"),
		Duration:     numberArg(request, "duration"),
		NumQuestions: numberArg(request, "numQuestions"),
	}
	prompt := stringArg(request, "prompt")
	complete := overrides.Subject != "" && overrides.Topic != "" && overrides.Difficulty != "" && overrides.Duration != nil
	if complete && prompt == "" {
		return resolveDetails(overrides, extractedDetails{})
	}
	return s.InferLessonDetails(ctx, prompt, overrides, stringArg(request, "model"))
}

// handleGenerateLesson handles the generate_lesson tool.
func handleGenerateLesson(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, err := serviceFrom(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	details := lessonDetails(ctx, s, request)
	result, err := s.GenerateLesson(ctx, LessonRequest{
		UserID:     stringArg(request, "userId"),
		Subject:    details.Subject,
		Topic:      details.Topic,
		Difficulty: details.Difficulty,
		Duration:   details.Duration,
		Persona:    stringArg(request, "persona"),
		Model:      stringArg(request, "model"),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(result.Message, result)
}

// handleGenerateQuiz handles the generate_quiz tool. Without a lessonId a
// lesson is generated first and the quiz is built on it.
func handleGenerateQuiz(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, err := serviceFrom(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	userID := stringArg(request, "userId")
	persona := stringArg(request, "persona")
	model := stringArg(request, "model")
	lessonID := stringArg(request, "lessonId")
	difficulty := stringArg(request, "difficulty")
	numQuestions := 0
	if n := numberArg(request, "numQuestions"); n != nil {
		numQuestions = clampRound(n, MinNumQuestions, MaxNumQuestions, DefaultNumQuestions)
	}

	var generatedLesson *LessonResult
	if lessonID == "" {
		details := lessonDetails(ctx, s, request)
		lesson, err := s.GenerateLesson(ctx, LessonRequest{
			UserID:     userID,
			Subject:    details.Subject,
			Topic:      details.Topic,
			Difficulty: details.Difficulty,
			Duration:   details.Duration,
			Persona:    persona,
			Model:      model,
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		generatedLesson = &lesson
		lessonID = lesson.Lesson.ID
		difficulty = details.Difficulty
		if numQuestions == 0 {
			numQuestions = details.NumQuestions
		}
	}

	result, err := s.GenerateQuiz(ctx, QuizRequest{
		UserID:       userID,
		LessonID:     lessonID,
		Difficulty:   difficulty,
		NumQuestions: numQuestions,
		Persona:      persona,
		Model:        model,
	})
	if err != nil && generatedLesson != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Lesson %s was created but quiz generation failed: %v", lessonID, err)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if generatedLesson != nil {
		result.Lesson = &generatedLesson.Lesson
		result.Message = generatedLesson.Message + " " + result.Message
	}
	return jsonResult(result.Message, result)
}

// handleChatWithStudent handles the chat_with_student tool.
func handleChatWithStudent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message := stringArg(request, "message")
	if message == "" {
		return mcp.NewToolResultError("Missing required parameter: message"), nil
	}
	s, err := serviceFrom(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.SendChatMessage(ctx, ChatRequest{
		UserID:  stringArg(request, "userId"),
		Message: message,
		Topic:   stringArg(request, "topic"),
		Persona: stringArg(request, "persona"),
		Context: stringsArg(request, "context"),
		Model:   stringArg(request, "model"),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(fmt.Sprintf("Lumi replied (+%d XP).", result.XPGained), result)
}

// handleCompleteLesson handles the complete_lesson tool.
func handleCompleteLesson(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	lessonID := stringArg(request, "lessonId")
	if lessonID == "" {
		return mcp.NewToolResultError("Missing required parameter: lessonId"), nil
	}
	s, err := serviceFrom(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	timeSpent := 0
	if t := numberArg(request, "timeSpent"); t != nil && *t > 0 {
		timeSpent = int(*t + 0.5)
	}
	result, err := s.CompleteLesson(ctx, stringArg(request, "userId"), lessonID, timeSpent)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(result.Message, result)
}

// handleSubmitQuiz handles the submit_quiz tool.
func handleSubmitQuiz(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	quizID := stringArg(request, "quizId")
	if quizID == "" {
		return mcp.NewToolResultError("Missing required parameter: quizId"), nil
	}
	answers := stringsArg(request, "answers")
	if answers == nil {
		return mcp.NewToolResultError("Missing required parameter: answers"), nil
	}
	s, err := serviceFrom(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.SubmitQuiz(ctx, stringArg(request, "userId"), quizID, answers)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(result.Message, result)
}

// handleGetDueReviews handles the get_due_reviews tool.
func handleGetDueReviews(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, err := serviceFrom(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := 0
	if l := numberArg(request, "limit"); l != nil {
		limit = int(*l)
	}

	result, err := s.DueReviews(ctx, stringArg(request, "userId"), limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	summary := fmt.Sprintf("%d lessons are due for review.", len(result.Reviews))
	if len(result.Reviews) == 1 {
		summary = "1 lesson is due for review."
	}
	return jsonResult(summary, result)
}

// handleGetProfile handles the get_profile tool.
func handleGetProfile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, err := serviceFrom(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.Profile(ctx, stringArg(request, "userId"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	summary := fmt.Sprintf("Level %d with %d XP, %d XP to the next level.", result.Level, result.XP, result.XPToNextLevel)
	return jsonResult(summary, result)
}
