// Package advice asks Gemini for personal-finance recommendations based on a
// summary of the user's ledger.
package advice

import (
	"context"
	"fmt"
	"strings"

	"github.com/dvloznov/smartfinance/internal/domain"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// Fixed replies returned instead of an error.
const (
	FallbackNoAPIKey    = "AI analysis is unavailable: no generation API key is configured. Contact the administrator or check the deployment secrets."
	FallbackEmpty       = "The AI could not produce advice right now. Please try again later."
	FallbackUnavailable = "The AI service is currently unreachable. Check the network or API key status."
)

const (
	DefaultModel           = "gemini-3-pro-preview"
	DefaultMaxTransactions = 20
	ThinkingBudget         = 4000
)

// Generator is the part of the genai client the advisor uses.
// *genai.Models satisfies it.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Config configures the advisor.
type Config struct {
	APIKey          string
	Model           string
	MaxTransactions int
}

// Client produces advice text. A client without a generator always returns
// FallbackNoAPIKey.
type Client struct {
	gen   Generator
	model string
	maxTx int
	log   zerolog.Logger
}

// NewClient creates a Gemini-backed advisor. With no API key it returns a
// client that only serves the fallback text.
func NewClient(ctx context.Context, cfg Config, log zerolog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return NewClientWithGenerator(nil, cfg, log), nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("NewClient: create genai client: %w", err)
	}
	return NewClientWithGenerator(client.Models, cfg, log), nil
}

// NewClientWithGenerator creates an advisor over gen. A nil gen disables generation.
func NewClientWithGenerator(gen Generator, cfg Config, log zerolog.Logger) *Client {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTx := cfg.MaxTransactions
	if maxTx <= 0 {
		maxTx = DefaultMaxTransactions
	}
	return &Client{
		gen:   gen,
		model: model,
		maxTx: maxTx,
		log:   log.With().Str("component", "advice").Logger(),
	}
}

// Enabled reports whether the client can reach a model.
func (c *Client) Enabled() bool {
	return c.gen != nil
}

// Advise returns Markdown advice for the ledger, or one of the fallback texts.
// transactions must be newest first; only the first MaxTransactions are sent.
func (c *Client) Advise(ctx context.Context, transactions []domain.Transaction, accounts []domain.Account) string {
	if c.gen == nil {
		return FallbackNoAPIKey
	}

	prompt, err := BuildPrompt(transactions, accounts, c.maxTx)
	if err != nil {
		c.log.Warn().Err(err).Msg("Failed to build advice prompt")
		return FallbackUnavailable
	}

	resp, err := c.gen.GenerateContent(ctx, c.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ThinkingConfig: &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr[int32](ThinkingBudget),
		},
	})
	if err != nil {
		c.log.Warn().Err(err).Str("model", c.model).Msg("Advice generation failed")
		return FallbackUnavailable
	}
	if resp == nil {
		return FallbackEmpty
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		c.log.Warn().Str("model", c.model).Msg("Advice generation returned no text")
		return FallbackEmpty
	}
	return text
}
