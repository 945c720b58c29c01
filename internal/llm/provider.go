// Package llm wraps a hosted generative model behind persona-aware text and JSON helpers.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/danieldreier/mcp-lumi/internal/metrics"
	"go.uber.org/zap"
)

// DefaultModel is used when neither the provider nor the call names a model.
const DefaultModel = "gemini-2.0-flash-exp"

const jsonInstruction = "Return ONLY valid JSON. Do not wrap it in Markdown, do not add comments, " +
	"and do not include any text before or after the JSON."

// Generator sends a single prompt to a model and returns the raw text reply.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// ErrEmptyResponse is returned when the model replies with no text.
var ErrEmptyResponse = errors.New("model returned an empty response")

// ParseError reports a structured reply that could not be decoded even after cleanup.
// Raw and Cleaned are kept for logging and are not part of the message.
type ParseError struct {
	Raw     string
	Cleaned string
	Err     error
}

func (e *ParseError) Error() string {
	return "model response was not valid JSON"
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Provider builds persona prompts and sends them through a Generator.
type Provider struct {
	gen    Generator
	model  string
	logger *zap.Logger
}

// NewProvider creates a Provider. An empty model selects DefaultModel.
func NewProvider(gen Generator, model string, logger *zap.Logger) *Provider {
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{gen: gen, model: model, logger: logger}
}

// Model returns the provider's default model.
func (p *Provider) Model() string {
	return p.model
}

func (p *Provider) resolveModel(override string) string {
	if m := strings.TrimSpace(override); m != "" {
		return m
	}
	return p.model
}

// GenerateText sends the persona preamble plus prompt and returns the reply as is.
func (p *Provider) GenerateText(ctx context.Context, prompt string, persona Persona, model string) (string, error) {
	full := Preamble(persona) + "\n\n" + prompt
	text, err := p.call(ctx, "text", full, model)
	if err != nil {
		return "", err
	}
	return text, nil
}

// GenerateStructured asks for JSON and decodes the cleaned reply into T.
func GenerateStructured[T any](ctx context.Context, p *Provider, prompt string, persona Persona, model string) (T, error) {
	var out T
	full := Preamble(persona) + "\n\n" + jsonInstruction + "\n\n" + prompt
	text, err := p.call(ctx, "structured", full, model)
	if err != nil {
		return out, err
	}
	if err := ExtractJSON(text, &out); err != nil {
		var perr *ParseError
		if errors.As(err, &perr) {
			p.logger.Error("Structured response could not be parsed",
				zap.String("raw", perr.Raw),
				zap.String("cleaned", perr.Cleaned),
				zap.Error(perr.Err))
		}
		metrics.LLMRequests.WithLabelValues("structured_parse", metrics.StatusError).Inc()
		return out, err
	}
	return out, nil
}

func (p *Provider) call(ctx context.Context, kind, prompt, model string) (string, error) {
	m := p.resolveModel(model)
	p.logger.Debug("Sending prompt to model", zap.String("kind", kind), zap.String("model", m), zap.Int("prompt_len", len(prompt)))
	text, err := p.gen.Generate(ctx, m, prompt)
	if err == nil && strings.TrimSpace(text) == "" {
		err = ErrEmptyResponse
	}
	metrics.LLMRequests.WithLabelValues(kind, metrics.Status(err)).Inc()
	if err != nil {
		p.logger.Error("Model request failed", zap.String("kind", kind), zap.String("model", m), zap.Error(err))
		return "", fmt.Errorf("generating %s content: %w", kind, err)
	}
	return text, nil
}
