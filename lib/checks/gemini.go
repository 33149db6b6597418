package checks

import (
	"context"
	"errors"
	"log"

	"google.golang.org/genai"

	"github.com/spamd/spamd/lib/spamcheck"
)

//go:generate moq --out mocks/gemini_client.go --pkg mocks --skip-ensure . GeminiClient:GeminiClientMock

// GeminiName is the name of the Gemini check
const GeminiName = "gemini"

// GeminiClient is the subset of genai.Models used by the check
type GeminiClient interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content,
		config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiConfig contains parameters for the Gemini check
type GeminiConfig struct {
	Model             string
	SystemPrompt      string
	CustomPrompts     []string
	MaxTokensResponse int32
	MaxSymbolsRequest int
	FailOnError       bool
}

// Gemini asks a Gemini model whether the text is spam
type Gemini struct {
	client GeminiClient
	params GeminiConfig
}

// NewGemini makes the Gemini check, zero config values replaced with defaults.
func NewGemini(client GeminiClient, params GeminiConfig) *Gemini {
	if params.Model == "" {
		params.Model = "gemini-2.0-flash"
	}
	if params.SystemPrompt == "" {
		params.SystemPrompt = DefaultLLMPrompt
	}
	if params.MaxTokensResponse == 0 {
		params.MaxTokensResponse = 1024
	}
	if params.MaxSymbolsRequest == 0 {
		params.MaxSymbolsRequest = 8192
	}
	return &Gemini{client: client, params: params}
}

// Check is a non-blocking check function. Params: "fail_on_error" (bool).
func (g *Gemini) Check(ctx context.Context, text string, params spamcheck.Params) spamcheck.Result {
	failOnError := params.Bool("fail_on_error", g.params.FailOnError)
	resp, err := g.sendRequest(ctx, text)
	if err != nil {
		log.Printf("[WARN] gemini request failed: %v", err)
	}
	return llmResult(GeminiName, g.params.Model, resp, err, failOnError)
}

func (g *Gemini) sendRequest(ctx context.Context, msg string) (llmVerdict, error) {
	if g.client == nil {
		return llmVerdict{}, errors.New("gemini client is not configured")
	}
	msg = truncate(msg, g.params.MaxSymbolsRequest)

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(buildSystemPrompt(g.params.SystemPrompt, g.params.CustomPrompts), genai.RoleUser),
		ResponseMIMEType:  "application/json",
		MaxOutputTokens:   g.params.MaxTokensResponse,
	}
	resp, err := g.client.GenerateContent(ctx, g.params.Model, genai.Text(msg), cfg)
	if err != nil {
		return llmVerdict{}, err
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return llmVerdict{}, errors.New("no candidates in response")
	}
	return parseLLMVerdict(resp.Text())
}
