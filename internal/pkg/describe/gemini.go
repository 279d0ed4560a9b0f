package describe

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini is a vision-description provider backed by Google Gemini
type Gemini struct {
	apiKey string
	model  string
}

// NewGemini returns a new Gemini provider
func NewGemini(apiKey, model string) *Gemini {
	return &Gemini{apiKey: apiKey, model: model}
}

// Name returns the provider name used in configuration
func (g *Gemini) Name() string { return "gemini" }

// Describe sends the image to Gemini
func (g *Gemini) Describe(ctx context.Context, imageData []byte) (Result, error) {
	if g.apiKey == "" {
		return Result{}, fmt.Errorf("Gemini API key not configured")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(g.apiKey))
	if err != nil {
		return Result{}, fmt.Errorf("failed to create gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(g.model)
	resp, err := model.GenerateContent(ctx,
		genai.ImageData("jpeg", imageData),
		genai.Text(prompt),
	)
	if err != nil {
		return Result{}, fmt.Errorf("failed to generate content: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return Result{}, fmt.Errorf("no candidates returned from Gemini")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return Result{}, fmt.Errorf("empty content returned from Gemini")
	}

	txt, ok := candidate.Content.Parts[0].(genai.Text)
	if !ok {
		return Result{}, fmt.Errorf("unexpected response format from Gemini")
	}

	return parseResponse(string(txt)), nil
}
