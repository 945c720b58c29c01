package main

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/danieldreier/mcp-lumi/internal/gamification"
	"github.com/danieldreier/mcp-lumi/internal/llm"
	"go.uber.org/zap"
)

// Defaults and bounds applied by InferLessonDetails.
const (
	DefaultSubject    = "General Studies"
	DefaultTopic      = "Study Session"
	DefaultDifficulty = gamification.Beginner
	DefaultDuration   = 30

	MinDuration     = 15
	MaxDuration     = 120
	MinNumQuestions = 3
	MaxNumQuestions = 12
)

// looseNumber accepts a JSON number or a numeric string.
type looseNumber struct {
	value float64
	set   bool
}

func (n *looseNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		n.value, n.set = f, true
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		n.value, n.set = f, true
	}
	return nil
}

func (n looseNumber) ptr() *float64 {
	if !n.set {
		return nil
	}
	v := n.value
	return &v
}

type extractedDetails struct {
	Subject      string      `json:"subject"`
	Topic        string      `json:"topic"`
	Difficulty   string      `json:"difficulty"`
	Duration     looseNumber `json:"duration"`
	NumQuestions looseNumber `json:"num_questions"`
}

// InferLessonDetails extracts lesson details from a free text request.
// Overrides win over extracted values, which win over defaults. A failed
// extraction is logged and falls back to the defaults.
func (s *TutorService) InferLessonDetails(ctx context.Context, freeText string, overrides DetailOverrides, model string) LessonDetails {
	extracted, err := llm.GenerateStructured[extractedDetails](ctx, s.Provider, inferencePrompt(freeText), llm.Scholar, model)
	if err != nil {
		s.Logger.Warn("Lesson detail inference failed, using defaults", zap.Error(err))
		extracted = extractedDetails{}
	}
	return resolveDetails(overrides, extracted)
}

func resolveDetails(o DetailOverrides, e extractedDetails) LessonDetails {
	subject := firstNonEmpty(o.Subject, e.Subject, e.Topic, DefaultSubject)
	topic := firstNonEmpty(o.Topic, e.Topic, e.Subject, DefaultTopic)

	difficulty := strings.ToLower(firstNonEmpty(o.Difficulty, e.Difficulty))
	if !gamification.IsDifficulty(difficulty) {
		difficulty = DefaultDifficulty
	}

	duration := o.Duration
	if duration == nil {
		duration = e.Duration.ptr()
	}
	numQuestions := o.NumQuestions
	if numQuestions == nil {
		numQuestions = e.NumQuestions.ptr()
	}

	return LessonDetails{
		Subject:      subject,
		Topic:        topic,
		Difficulty:   difficulty,
		Duration:     clampRound(duration, MinDuration, MaxDuration, DefaultDuration),
		NumQuestions: clampRound(numQuestions, MinNumQuestions, MaxNumQuestions, DefaultNumQuestions),
	}
}

// clampRound rounds v and clamps it into [lo, hi]. Missing or non-finite values yield def.
func clampRound(v *float64, lo, hi, def int) int {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return def
	}
	r := math.Round(*v)
	if r < float64(lo) {
		return lo
	}
	if r > float64(hi) {
		return hi
	}
	return int(r)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if t := strings.TrimSpace(v); t != "" {
			return t
		}
	}
	return ""
}
