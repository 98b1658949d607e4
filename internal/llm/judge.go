// Package llm provides the completion-based judge used by the evals command
// to grade tool outputs against natural-language expectations.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Verdict is the judge's grading of one tool output.
type Verdict struct {
	Pass      bool   `json:"pass"`
	Score     int    `json:"score"`
	Reasoning string `json:"reasoning"`
}

// Judge grades text against an expectation via a chat-completion provider.
// Calls go through a circuit breaker and a rate limiter so a misbehaving
// provider cannot stall or flood an eval run.
type Judge struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  *logrus.Logger
}

// Config configures the judge.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	RateLimit float64
}

const judgeSystemPrompt = `You are a strict evaluator of tool outputs.
Given an expectation and an actual output, respond with JSON only:
{"pass": bool, "score": 0-100, "reasoning": "one sentence"}`

// NewJudge creates a judge. An empty base URL uses the provider default.
func NewJudge(cfg Config, logger *logrus.Logger) (*Judge, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm judge requires an API key")
	}
	if logger == nil {
		logger = logrus.New()
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	limit := cfg.RateLimit
	if limit <= 0 {
		limit = 1
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "LLMJudge",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return &Judge{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(limit), 1),
		breaker: breaker,
		logger:  logger,
	}, nil
}

// Grade asks the judge whether output satisfies the expectation.
func (j *Judge) Grade(ctx context.Context, expectation, output string) (*Verdict, error) {
	if err := j.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	raw, err := j.breaker.Execute(func() (any, error) {
		resp, err := j.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       j.model,
			Temperature: 0,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: judgeSystemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(
					"Expectation:\n%s\n\nActual output:\n%s", expectation, output)},
			},
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("judge returned no choices")
		}
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		return nil, fmt.Errorf("judge call failed: %w", err)
	}

	verdict, err := parseVerdict(raw.(string))
	if err != nil {
		return nil, err
	}
	j.logger.WithFields(logrus.Fields{
		"pass":  verdict.Pass,
		"score": verdict.Score,
	}).Debug("Judge verdict")
	return verdict, nil
}

// parseVerdict tolerates judges that wrap the JSON in a code fence.
func parseVerdict(content string) (*Verdict, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var v Verdict
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &v); err != nil {
		return nil, fmt.Errorf("parsing judge verdict: %w", err)
	}
	return &v, nil
}
