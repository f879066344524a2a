// Package llm wraps the Gemini API behind the small interface the analyzer
// consumes.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultModel is the default Gemini model used for synthesis.
const DefaultModel = "gemini-flash-lite-latest"

// TextGenerator generates text from a prompt. When jsonResponse is true the
// model is asked for a JSON object; callers must still treat the result as
// untrusted and handle parse failures.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string, jsonResponse bool) (string, error)
}

// Client is the Gemini-backed TextGenerator.
type Client struct {
	gClient     *genai.Client
	modelName   string
	temperature float32
}

// NewClient creates a Gemini client. The API key is required; an empty model
// name falls back to DefaultModel.
func NewClient(ctx context.Context, apiKey, modelName string, temperature float32) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required. Set GEMINI_API_KEY or analyzer.gemini_api_key in the config file")
	}
	if modelName == "" {
		modelName = DefaultModel
	}

	gClient, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{
		gClient:     gClient,
		modelName:   modelName,
		temperature: temperature,
	}, nil
}

// GenerateText runs one generation call and returns the concatenated text
// parts of the first candidate.
func (c *Client) GenerateText(ctx context.Context, prompt string, jsonResponse bool) (string, error) {
	model := c.gClient.GenerativeModel(c.modelName)
	model.SetTemperature(c.temperature)
	if jsonResponse {
		model.ResponseMIMEType = "application/json"
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	text := responseText(resp)
	if text == "" {
		return "", fmt.Errorf("empty response from model")
	}
	return text, nil
}

// Close releases the underlying client.
func (c *Client) Close() error {
	return c.gClient.Close()
}

// responseText extracts the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return strings.TrimSpace(b.String())
}
