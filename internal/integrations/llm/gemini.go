package llm

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

type geminiCompleter struct {
	client    *genai.Client
	model     string
	maxTokens int32
}

func newGeminiCompleter(ctx context.Context, apiKey, model string, maxTokens int, baseURL string, httpClient *http.Client) (*geminiCompleter, error) {
	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClientOrDefault(httpClient),
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &geminiCompleter{client: client, model: model, maxTokens: int32(maxTokens)}, nil
}

func (g *geminiCompleter) provider() string  { return "gemini" }
func (g *geminiCompleter) modelName() string { return g.model }

func (g *geminiCompleter) complete(ctx context.Context, systemPrompt, userPrompt string) (string, Usage, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(userPrompt, genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
			ResponseMIMEType:  "application/json",
			Temperature:       genai.Ptr[float32](0),
			MaxOutputTokens:   g.maxTokens,
		},
	)
	if err != nil {
		return "", Usage{}, fmt.Errorf("Gemini API error: %w", err)
	}

	usage := Usage{}
	if md := resp.UsageMetadata; md != nil {
		usage.InputTokens = int64(md.PromptTokenCount)
		usage.OutputTokens = int64(md.CandidatesTokenCount)
		usage.CacheReadInputTokens = int64(md.CachedContentTokenCount)
	}
	text := resp.Text()
	if text == "" {
		return "", usage, fmt.Errorf("no text content in Gemini response")
	}
	return text, usage, nil
}
