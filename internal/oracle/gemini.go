package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"statement-quality-service/internal/models"
	"statement-quality-service/pkg/errors"
	"statement-quality-service/pkg/logger"
)

// DefaultModelName is the Gemini model used for review.
const DefaultModelName = "gemini-2.5-flash"

// Generator sends one prompt to a model and returns the raw text answer.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

type genaiGenerator struct {
	client *genai.Client
}

func (g *genaiGenerator) Generate(ctx context.Context, model, prompt string) (string, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}
	resp, err := g.client.Models.GenerateContent(ctx, model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return resp.Text(), nil
}

// GeminiOracle asks a Gemini model to compare candidate transactions with
// the statement text.
type GeminiOracle struct {
	generator     Generator
	model         string
	maxCandidates int
	logger        logger.Logger
}

// NewGeminiOracle creates a client. Backend selection (Gemini API or Vertex
// AI) and credentials come from the GOOGLE_* environment variables.
func NewGeminiOracle(ctx context.Context, config *Config) (*GeminiOracle, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "oracle", config.Model, err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, errors.OracleError(errors.CodeOracleUnavailable, config.Model, err).
			WithSuggestion("Set GOOGLE_API_KEY, or GOOGLE_GENAI_USE_VERTEXAI with project and location")
	}
	return NewGeminiOracleWithGenerator(&genaiGenerator{client: client}, config), nil
}

// NewGeminiOracleWithGenerator builds the oracle around any Generator.
func NewGeminiOracleWithGenerator(g Generator, config *Config) *GeminiOracle {
	if config == nil {
		config = DefaultConfig()
	}
	return &GeminiOracle{
		generator:     g,
		model:         config.Model,
		maxCandidates: config.MaxCandidates,
		logger:        logger.GetGlobalLogger().WithComponent("gemini_oracle"),
	}
}

type modelAnswer struct {
	Transactions []models.Transaction `json:"transactions"`
	Notes        []string             `json:"notes"`
}

// Reconcile sends the source text and candidates and parses the corrected
// list. Statements larger than MaxCandidates are not sent.
func (o *GeminiOracle) Reconcile(ctx context.Context, sourceText string, candidates []models.Transaction) (*Result, error) {
	if len(candidates) > o.maxCandidates {
		return nil, errors.OracleError(errors.CodeResourceExhausted, o.model,
			fmt.Errorf("%d candidates exceed the limit of %d", len(candidates), o.maxCandidates))
	}

	prompt, err := buildPrompt(sourceText, candidates)
	if err != nil {
		return nil, errors.InternalError(errors.CodeProcessingError, "build oracle prompt", err)
	}

	raw, err := o.generator.Generate(ctx, o.model, prompt)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.OracleError(errors.CodeOracleTimeout, o.model, err)
		}
		return nil, errors.OracleError(errors.CodeOracleUnavailable, o.model, err)
	}
	if strings.TrimSpace(raw) == "" {
		return nil, errors.OracleError(errors.CodeOracleResponse, o.model, fmt.Errorf("empty response from model"))
	}

	var answer modelAnswer
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &answer); err != nil {
		return nil, errors.OracleError(errors.CodeOracleResponse, o.model, fmt.Errorf("unmarshal JSON: %w", err))
	}

	result := &Result{
		Transactions: answer.Transactions,
		Notes:        answer.Notes,
		Corrected:    changed(candidates, answer.Transactions),
	}
	o.logger.WithFields(logger.Fields{
		"model":     o.model,
		"corrected": result.Corrected,
		"notes":     len(result.Notes),
	}).Debug("Model answer parsed")
	return result, nil
}

func changed(before, after []models.Transaction) bool {
	if len(before) != len(after) {
		return true
	}
	for i := range before {
		if before[i].String() != after[i].String() || before[i].DocumentNumber != after[i].DocumentNumber ||
			before[i].Currency != after[i].Currency {
			return true
		}
	}
	return false
}

func buildPrompt(sourceText string, candidates []models.Transaction) (string, error) {
	payload, err := json.Marshal(candidates)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("You review bank statement transactions extracted by a parser.\n\n")
	b.WriteString("Task:\n")
	b.WriteString("- Compare the candidate transactions with the statement text.\n")
	b.WriteString("- Fix wrong amounts, dates, counterparties and debit/credit sides.\n")
	b.WriteString("- Do not invent transactions that are not in the text.\n")
	b.WriteString("- At most one of \"debit\" and \"credit\" may be nonzero per transaction.\n\n")
	b.WriteString("Return ONLY a raw JSON object with two fields:\n")
	b.WriteString("- \"transactions\": the corrected array, same field names as the input\n")
	b.WriteString("- \"notes\": array of short strings describing each correction\n")
	b.WriteString("Do NOT wrap the response in code fences.\n\n")
	b.WriteString("Statement text:\n")
	b.WriteString(sourceText)
	b.WriteString("\n\nCandidate transactions:\n")
	b.Write(payload)
	return b.String(), nil
}

// cleanModelJSON strips Markdown fences and any text around the outermost
// JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return s
		}
		s = strings.TrimSpace(s[idx+1:])
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
