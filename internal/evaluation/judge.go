package evaluation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Score is one judgement from the scoring oracle.
type Score struct {
	Value     float64 `json:"score"`
	Rationale string  `json:"reason"`
}

// Judge is the capability interface over the scoring oracle. A
// deterministic stub substitutes for it in tests.
type Judge interface {
	Score(ctx context.Context, prompt string) (Score, error)
}

// GeminiJudge scores prompts with a Gemini model. The model is asked
// to answer with a single JSON object, which is parsed out of the
// first candidate's text.
type GeminiJudge struct {
	baseURL string
	model   string
	apiKey  string
	client  *http.Client
}

// NewGeminiJudge creates a judge for the given API endpoint and model.
func NewGeminiJudge(baseURL, model, apiKey string, timeout time.Duration) *GeminiJudge {
	return &GeminiJudge{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Score sends the prompt and parses the model's JSON verdict.
func (j *GeminiJudge) Score(ctx context.Context, prompt string) (Score, error) {
	payload, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	})
	if err != nil {
		return Score{}, fmt.Errorf("marshalling judge request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", j.baseURL, j.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Score{}, fmt.Errorf("building judge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if j.apiKey != "" {
		req.Header.Set("x-goog-api-key", j.apiKey)
	}

	resp, err := j.client.Do(req)
	if err != nil {
		return Score{}, fmt.Errorf("calling judge: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		limited, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Score{}, fmt.Errorf("judge returned status %d: %s", resp.StatusCode, limited)
	}

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Score{}, fmt.Errorf("decoding judge response: %w", err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return Score{}, fmt.Errorf("judge returned no candidates")
	}

	return parseVerdict(out.Candidates[0].Content.Parts[0].Text)
}

// parseVerdict extracts the JSON verdict from the model's text, which
// may be wrapped in a markdown code fence.
func parseVerdict(text string) (Score, error) {
	trimmed := strings.TrimSpace(text)
	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			trimmed = trimmed[start : end+1]
		}
	}

	var score Score
	if err := json.Unmarshal([]byte(trimmed), &score); err != nil {
		return Score{}, fmt.Errorf("parsing judge verdict %q: %w", text, err)
	}
	if score.Value < 0 {
		score.Value = 0
	}
	if score.Value > 1 {
		score.Value = 1
	}
	return score, nil
}
