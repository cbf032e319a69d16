package rewrite

import (
	"context"
	"strings"

	"google.golang.org/genai"

	"redline/internal/fault"
)

// Rewriter is the external text-generation capability. The orchestrator
// hands it a fully built prompt and expects only the rewritten body back.
type Rewriter interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiRewriter generates rewrites through the Gemini API.
type GeminiRewriter struct {
	client *genai.Client
	model  string
}

// NewGeminiRewriter builds a Gemini-backed rewriter.
func NewGeminiRewriter(apiKey, model string) (*GeminiRewriter, error) {
	if apiKey == "" {
		return nil, fault.New(fault.Validation, "gemini rewriter requires an api key")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fault.Wrap(fault.Unavailable, err, "failed to create genai client")
	}
	return &GeminiRewriter{client: client, model: model}, nil
}

func (g *GeminiRewriter) Name() string { return "gemini:" + g.model }

// Generate calls the model with the prompt and returns the raw text.
func (g *GeminiRewriter) Generate(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}
	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		if ctx.Err() != nil {
			return "", fault.Wrap(fault.Timeout, err, "gemini generate timed out")
		}
		return "", fault.Wrap(fault.Unavailable, err, "gemini generate failed")
	}
	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", fault.New(fault.Unavailable, "gemini returned an empty rewrite")
	}
	return text, nil
}

// StaticRewriter returns a fixed output or error. Test double.
type StaticRewriter struct {
	Output string
	Err    error
	// Calls counts Generate invocations.
	Calls int
	// LastPrompt records the most recent prompt verbatim.
	LastPrompt string
	// Block, when non-nil, is received from before returning; lets tests
	// hold a call open past the orchestrator's timeout.
	Block <-chan struct{}
}

func (s *StaticRewriter) Name() string { return "static" }

func (s *StaticRewriter) Generate(ctx context.Context, prompt string) (string, error) {
	s.Calls++
	s.LastPrompt = prompt
	if s.Block != nil {
		select {
		case <-s.Block:
		case <-ctx.Done():
			return "", fault.Wrap(fault.Timeout, ctx.Err(), "rewrite canceled")
		}
	}
	if s.Err != nil {
		return "", s.Err
	}
	return s.Output, nil
}
