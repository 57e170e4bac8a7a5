package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/owlnotes/meeting-pipeline/internal/types"
)

// ErrAnalysis is returned only when no analysis payload can be assembled at
// all, i.e. the transcript itself is missing. Individual prompt failures are
// tolerated and surface as field placeholders.
var ErrAnalysis = errors.New("analysis failed")

const defaultBaseURL = "https://api.openai.com/v1"

// Analyzer runs the named prompt set against a transcript via the chat
// completions endpoint. The three prompt calls are independent reads over
// the same input and run concurrently.
type Analyzer struct {
	apiKey     string
	model      string
	baseURL    string
	prompts    map[string]string
	httpClient *http.Client
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithBaseURL points the analyzer at a different API host. Tests use this.
func WithBaseURL(u string) Option {
	return func(a *Analyzer) { a.baseURL = strings.TrimRight(u, "/") }
}

// WithTimeout bounds a single prompt call.
func WithTimeout(d time.Duration) Option {
	return func(a *Analyzer) { a.httpClient.Timeout = d }
}

// WithPrompts replaces individual prompt templates by kind.
func WithPrompts(overrides map[string]string) Option {
	return func(a *Analyzer) { a.prompts = MergePrompts(overrides) }
}

// NewAnalyzer creates an analyzer for the given chat model
// (e.g. gpt-4o-mini).
func NewAnalyzer(apiKey, model string, opts ...Option) *Analyzer {
	a := &Analyzer{
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultBaseURL,
		prompts:    DefaultPrompts(),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze runs all prompts over the transcript. A failed prompt does not
// discard the others: its field carries an error placeholder and the payload
// still succeeds.
func (a *Analyzer) Analyze(ctx context.Context, transcript string) (*types.Analysis, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, fmt.Errorf("%w: empty transcript", ErrAnalysis)
	}

	kinds := []string{KindSummary, KindStructuredNote, KindRecommendations}
	outputs := make([]string, len(kinds))

	var wg sync.WaitGroup
	for i, kind := range kinds {
		wg.Add(1)
		go func(i int, kind string) {
			defer wg.Done()
			text, err := a.runPrompt(ctx, a.prompts[kind], transcript)
			if err != nil {
				outputs[i] = types.ErrorPlaceholder(err)
				return
			}
			outputs[i] = text
		}(i, kind)
	}
	wg.Wait()

	return &types.Analysis{
		Transcript:      transcript,
		Summary:         outputs[0],
		StructuredNote:  outputs[1],
		Recommendations: outputs[2],
	}, nil
}

// runPrompt sends one chat completion request with the prompt prepended to
// the transcript.
func (a *Analyzer) runPrompt(ctx context.Context, prompt, transcript string) (string, error) {
	payload := map[string]any{
		"model": a.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt + transcript},
		},
	}

	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		return "", fmt.Errorf("encode prompt payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", buf)
	if err != nil {
		return "", fmt.Errorf("create prompt request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("prompt request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
			return "", fmt.Errorf("prompt request status %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return "", fmt.Errorf("prompt request status %d", resp.StatusCode)
	}

	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("decode prompt response: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", errors.New("no completion returned")
	}
	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}
