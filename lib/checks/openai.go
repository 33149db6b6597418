package checks

import (
	"context"
	"errors"
	"log"

	tokenizer "github.com/sandwich-go/gpt3-encoder"
	"github.com/sashabaranov/go-openai"

	"github.com/spamd/spamd/lib/spamcheck"
)

//go:generate moq --out mocks/openai_client.go --pkg mocks --skip-ensure . OpenAIClient:OpenAIClientMock

// OpenAIName is the name of the OpenAI check
const OpenAIName = "openai"

// OpenAIClient is the subset of openai.Client used by the check
type OpenAIClient interface {
	CreateChatCompletion(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIConfig contains parameters for the OpenAI check
type OpenAIConfig struct {
	// https://platform.openai.com/docs/api-reference/chat/create#chat/create-max_tokens
	MaxTokensResponse int // hard limit for the number of tokens in the response
	MaxTokensRequest  int // max request length in tokens
	MaxSymbolsRequest int // fallback: max request length in symbols, if tokenizer failed
	Model             string
	SystemPrompt      string
	CustomPrompts     []string // extra patterns to check, appended to the system prompt
	ReasoningEffort   string   // none, low, medium or high, not sent if empty
	FailOnError       bool     // result of a failed request, can be overridden with "fail_on_error" param
}

// OpenAI asks a chat model whether the text is spam
type OpenAI struct {
	client OpenAIClient
	params OpenAIConfig
}

// NewOpenAI makes the OpenAI check, zero config values replaced with defaults.
func NewOpenAI(client OpenAIClient, params OpenAIConfig) *OpenAI {
	if params.SystemPrompt == "" {
		params.SystemPrompt = DefaultLLMPrompt
	}
	if params.MaxTokensResponse == 0 {
		params.MaxTokensResponse = 1024
	}
	if params.MaxTokensRequest == 0 {
		params.MaxTokensRequest = 1024
	}
	if params.MaxSymbolsRequest == 0 {
		params.MaxSymbolsRequest = 8192
	}
	if params.Model == "" {
		params.Model = "gpt-4o-mini"
	}
	return &OpenAI{client: client, params: params}
}

// Check is a non-blocking check function. Params: "fail_on_error" (bool).
func (o *OpenAI) Check(ctx context.Context, text string, params spamcheck.Params) spamcheck.Result {
	failOnError := params.Bool("fail_on_error", o.params.FailOnError)
	resp, err := o.sendRequest(ctx, text)
	if err != nil {
		log.Printf("[WARN] openai request failed: %v", err)
	}
	return llmResult(OpenAIName, o.params.Model, resp, err, failOnError)
}

func (o *OpenAI) sendRequest(ctx context.Context, msg string) (llmVerdict, error) {
	if o.client == nil {
		return llmVerdict{}, errors.New("openai client is not configured")
	}

	data := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: buildSystemPrompt(o.params.SystemPrompt, o.params.CustomPrompts)},
		{Role: openai.ChatMessageRoleUser, Content: o.reduceRequest(msg)},
	}
	req := openai.ChatCompletionRequest{Model: o.params.Model, MaxTokens: o.params.MaxTokensResponse, Messages: data}
	if o.params.ReasoningEffort != "" {
		req.ReasoningEffort = o.params.ReasoningEffort
	}
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return llmVerdict{}, err
	}

	// only the first choice is used
	if len(resp.Choices) == 0 {
		return llmVerdict{}, errors.New("no choices in response")
	}
	return parseLLMVerdict(resp.Choices[0].Message.Content)
}

// reduceRequest cuts the text to MaxTokensRequest tokens, or to MaxSymbolsRequest characters if tokenizer fails
func (o *OpenAI) reduceRequest(text string) string {
	bySymbols := func() string { return truncate(text, o.params.MaxSymbolsRequest) }

	encoder, err := tokenizer.NewEncoder()
	if err != nil {
		return bySymbols()
	}
	tokens, err := encoder.Encode(text)
	if err != nil {
		return bySymbols()
	}
	if len(tokens) <= o.params.MaxTokensRequest {
		return text
	}
	return encoder.Decode(tokens[:o.params.MaxTokensRequest])
}
