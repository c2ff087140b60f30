// scorer/advisory.go - Advisory scoring over an Ollama-compatible backend
package scorer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"kicomport/internal/config"
	"kicomport/internal/errs"
	"kicomport/internal/model"
	"kicomport/pkg/logger"

	"github.com/tidwall/gjson"
	"github.com/valyala/fasthttp"
)

// Advisory is the narrow capability the scorer consumes: one candidate in,
// one score and reason out. Failures are never fatal to scoring.
type Advisory interface {
	Score(ctx context.Context, candidate *model.CandidateFile) (float64, string, error)
}

const advisoryPrompt = "You are ranking KiCad library assets (symbols, footprints, 3D models). " +
	"Reply with JSON only: {\"score\": <0-1>, \"reason\": \"...\"}. " +
	"Judge name relevance, description clarity and pad/pin plausibility. Be concise."

// OllamaAdvisory talks to an Ollama chat endpoint with a bounded timeout and
// bounded retries with backoff.
type OllamaAdvisory struct {
	cfg        config.ConfigAdvisory
	httpClient *fasthttp.Client
	logger     logger.Logger
}

// NewOllamaAdvisory creates the advisory client, or nil when disabled.
func NewOllamaAdvisory(cfg config.ConfigAdvisory, logger logger.Logger) Advisory {
	if !cfg.Enabled || cfg.BaseURL == "" || cfg.Model == "" {
		return nil
	}
	return &OllamaAdvisory{
		cfg: cfg,
		httpClient: &fasthttp.Client{
			MaxIdleConnDuration: 90 * time.Second,
			ReadTimeout:         time.Duration(cfg.TimeoutSeconds) * time.Second,
			WriteTimeout:        time.Duration(cfg.TimeoutSeconds) * time.Second,
			MaxConnsPerHost:     32,
		},
		logger: logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// Score requests one advisory score. Retries with exponential backoff up to
// cfg.MaxRetries; every failure path returns ErrAdvisoryUnavailable.
func (a *OllamaAdvisory) Score(ctx context.Context, candidate *model.CandidateFile) (float64, string, error) {
	body, err := json.Marshal(chatRequest{
		Model: a.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: advisoryPrompt},
			{Role: "user", Content: candidatePayload(candidate)},
		},
		Stream: false,
	})
	if err != nil {
		return 0, "", fmt.Errorf("%w: %v", errs.ErrAdvisoryUnavailable, err)
	}

	url := strings.TrimRight(a.cfg.BaseURL, "/") + "/api/chat"
	backoff := 500 * time.Millisecond
	var lastErr error

	for attempt := 0; attempt <= a.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, "", fmt.Errorf("%w: %v", errs.ErrAdvisoryUnavailable, ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		if err := ctx.Err(); err != nil {
			return 0, "", fmt.Errorf("%w: %v", errs.ErrAdvisoryUnavailable, err)
		}

		score, reason, err := a.doRequest(url, body)
		if err == nil {
			return score, reason, nil
		}
		lastErr = err
		a.logger.Warn("advisory request failed (attempt %d/%d): %v", attempt+1, a.cfg.MaxRetries+1, err)
	}
	return 0, "", fmt.Errorf("%w: %v", errs.ErrAdvisoryUnavailable, lastErr)
}

func (a *OllamaAdvisory) doRequest(url string, body []byte) (float64, string, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	deadline := time.Now().Add(time.Duration(a.cfg.TimeoutSeconds) * time.Second)
	if err := a.httpClient.DoDeadline(req, resp, deadline); err != nil {
		return 0, "", err
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return 0, "", fmt.Errorf("advisory backend returned status %d", resp.StatusCode())
	}
	return parseAdvisoryResponse(resp.Body())
}

// parseAdvisoryResponse extracts score/reason from the chat content. Model
// output wrapped in prose or code fences is tolerated; a missing or
// out-of-range score is an error.
func parseAdvisoryResponse(body []byte) (float64, string, error) {
	content := gjson.GetBytes(body, "message.content").String()
	if content == "" {
		content = gjson.GetBytes(body, "response").String()
	}
	if content == "" {
		return 0, "", fmt.Errorf("advisory response missing content")
	}

	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	parsed := gjson.Parse(content)
	scoreVal := parsed.Get("score")
	if !scoreVal.Exists() {
		return 0, "", fmt.Errorf("advisory response missing score: %s", truncate(content, 120))
	}
	score := scoreVal.Float()
	if score < 0 || score > 1 {
		return 0, "", fmt.Errorf("advisory score out of range: %f", score)
	}
	return score, parsed.Get("reason").String(), nil
}

func candidatePayload(candidate *model.CandidateFile) string {
	payload := map[string]any{
		"kind":        candidate.Kind,
		"path":        candidate.RelPath,
		"name":        candidate.Name,
		"description": candidate.Description,
		"pinCount":    candidate.PinCount,
		"padCount":    candidate.PadCount,
		"heuristic":   candidate.HeuristicScore,
	}
	data, _ := json.Marshal(payload)
	return string(data)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
