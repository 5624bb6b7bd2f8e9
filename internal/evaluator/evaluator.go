// Package evaluator generates a short, encouraging daily summary of Git
// activity via an OpenAI-compatible chat completions API, with canned
// fallback text when the API is disabled or unreachable.
package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/starford/gitsee/internal/stats"
)

// Options configures the evaluator. Zero values take the documented
// defaults; Enabled false or an empty APIKey disables API calls
// entirely and every evaluation uses fallback text.
type Options struct {
	Enabled     bool
	APIKey      string
	APIURL      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

func (o Options) withDefaults() Options {
	if o.APIURL == "" {
		o.APIURL = "https://api.openai.com/v1/chat/completions"
	}
	if o.Model == "" {
		o.Model = "gpt-4o-mini"
	}
	if o.MaxTokens == 0 {
		o.MaxTokens = 500
	}
	if o.Temperature == 0 {
		o.Temperature = 0.8
	}
	if o.Timeout == 0 {
		o.Timeout = 10 * time.Second
	}
	if o.APIKey == "" {
		o.Enabled = false
	}
	return o
}

// Evaluation is one generated daily summary.
type Evaluation struct {
	Text      string `json:"evaluation"`
	AIEnabled bool   `json:"ai_enabled"`
}

// Evaluator calls the chat completions API and caches one evaluation per
// calendar day so repeated dashboard loads don't burn tokens.
type Evaluator struct {
	opts   Options
	client *http.Client
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]Evaluation // keyed by YYYY-MM-DD
}

// New creates an evaluator with the given options.
func New(opts Options, logger *slog.Logger) *Evaluator {
	opts = opts.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		logger: logger,
		cache:  map[string]Evaluation{},
	}
}

// Enabled reports whether API calls are configured.
func (e *Evaluator) Enabled() bool { return e.opts.Enabled }

// EvaluateDay returns an evaluation for the given day summary. API
// failures fall back to canned text and are never surfaced as errors.
// Results are cached per date; the cached entry is reused even if the
// day's counts change, matching the one-evaluation-per-day contract.
func (e *Evaluator) EvaluateDay(ctx context.Context, sum stats.DaySummary) Evaluation {
	e.mu.Lock()
	if ev, ok := e.cache[sum.Date]; ok {
		e.mu.Unlock()
		return ev
	}
	e.mu.Unlock()

	ev := Evaluation{AIEnabled: e.opts.Enabled}
	if e.opts.Enabled {
		text, err := e.callAPI(ctx, sum)
		if err != nil {
			e.logger.Warn("evaluator: api call failed", slog.String("error", err.Error()))
		} else {
			ev.Text = text
		}
	}
	if ev.Text == "" {
		ev.Text = Fallback(sum)
	}

	e.mu.Lock()
	e.cache[sum.Date] = ev
	e.mu.Unlock()
	return ev
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (e *Evaluator) callAPI(ctx context.Context, sum stats.DaySummary) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: e.opts.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a warm, upbeat coding companion who celebrates developers' daily progress in a friendly, human voice."},
			{Role: "user", Content: buildPrompt(sum)},
		},
		MaxTokens:   e.opts.MaxTokens,
		Temperature: e.opts.Temperature,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.opts.APIURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.opts.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("evaluator: api status %d", resp.StatusCode)
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("evaluator: decode response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("evaluator: empty choices")
	}
	return strings.TrimSpace(cr.Choices[0].Message.Content), nil
}

func buildPrompt(sum stats.DaySummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Today's Git activity: %d commits and %d pushes.\n", sum.CommitCount, sum.PushCount)

	recent := sum.Activities
	if len(recent) > 10 {
		recent = recent[:10]
	}
	if len(recent) > 0 {
		b.WriteString("Recent activity:\n")
		for _, rec := range recent {
			msg := rec.CommitMessage
			if len(msg) > 50 {
				msg = msg[:50]
			}
			fmt.Fprintf(&b, "- %s: %s - %s\n", rec.ActivityType, lastSegment(rec.RepoPath), msg)
		}
	} else {
		b.WriteString("No activity recorded yet.\n")
	}

	b.WriteString("\nWrite a short (50-150 words), warm and encouraging evaluation of today's work. " +
		"Acknowledge the effort, suggest rest if the day was heavy, and gently motivate if it was light. " +
		"A few emoji are welcome.")
	return b.String()
}

func lastSegment(repoPath string) string {
	if i := strings.LastIndexByte(repoPath, '/'); i >= 0 {
		return repoPath[i+1:]
	}
	return repoPath
}

// Fallback returns canned evaluation text scaled to the day's totals.
func Fallback(sum stats.DaySummary) string {
	total := sum.CommitCount + sum.PushCount
	switch {
	case total == 0:
		return "No commits recorded today yet. However busy things get, remember to save a little time for yourself. Tomorrow is another chance!"
	case total >= 10:
		return fmt.Sprintf("What a productive day! %d commits and %d pushes is seriously impressive. Remember to take breaks, though. Your health comes first!", sum.CommitCount, sum.PushCount)
	case total >= 5:
		return fmt.Sprintf("Great work today! %d commits and %d pushes. Keep up this rhythm. Every bit of progress deserves to be seen!", sum.CommitCount, sum.PushCount)
	default:
		return fmt.Sprintf("Nice steady progress today with %d commits and %d pushes. Small steps add up. Keep going!", sum.CommitCount, sum.PushCount)
	}
}
