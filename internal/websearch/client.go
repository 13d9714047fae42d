// Package websearch drives the external web-search capability: one text
// prompt in, JSON-bearing text out, optionally as a stream of chunks. The
// capability is addressed by model name; retry policy belongs to callers.
package websearch

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"spendlens/internal/fault"
)

// Client is a rate-limited capability client.
type Client struct {
	api     *openai.Client
	model   string
	limiter *rate.Limiter
	timeout time.Duration
}

// Options configure the client; zero values fall back to defaults.
type Options struct {
	APIKey     string
	BaseURL    string // override for tests and gateways
	Model      string
	RatePerMin int
	Timeout    time.Duration
}

// NewClient builds a capability client. The per-minute rate guards the
// provider quota across batch workers sharing one process.
func NewClient(opts Options) *Client {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	perMin := opts.RatePerMin
	if perMin <= 0 {
		perMin = 30
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		api:     openai.NewClientWithConfig(cfg),
		model:   opts.Model,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMin)), 1),
		timeout: timeout,
	}
}

// Result is the capability's final text plus call accounting.
type Result struct {
	Text  string
	Calls int
}

// Search sends one prompt and waits for the final text response.
func (c *Client) Search(ctx context.Context, prompt string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return Result{}, searchErr(err)
	}
	resp, err := c.api.CreateChatCompletion(ctx, c.request(prompt))
	if err != nil {
		return Result{}, searchErr(err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, fault.New(fault.CapabilityUnavailable, "web search returned no choices")
	}
	log.Printf("[SEARCH] model=%s completed in %dms", c.model, time.Since(start).Milliseconds())
	return Result{Text: resp.Choices[0].Message.Content, Calls: 1}, nil
}

// SearchStream sends one prompt and forwards text chunks as they arrive.
// onChunk runs on the caller's goroutine between receives.
func (c *Client) SearchStream(ctx context.Context, prompt string, onChunk func(string)) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return Result{}, searchErr(err)
	}
	stream, err := c.api.CreateChatCompletionStream(ctx, c.request(prompt))
	if err != nil {
		return Result{}, searchErr(err)
	}
	defer stream.Close()

	var sb strings.Builder
	chunks := 0
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Result{}, searchErr(err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		sb.WriteString(delta)
		chunks++
		if onChunk != nil {
			onChunk(delta)
		}
	}
	log.Printf("[SEARCH] model=%s streamed %d chunks in %dms", c.model, chunks, time.Since(start).Milliseconds())
	return Result{Text: sb.String(), Calls: 1}, nil
}

func (c *Client) request(prompt string) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.2,
	}
}

// searchErr classifies provider failures: quota exhaustion is terminal,
// everything else on the wire reads as a capability outage.
func searchErr(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return fault.Wrap(fault.CapabilityQuota, err, "web search quota exhausted")
		}
		return fault.Wrap(fault.CapabilityUnavailable, err, "web search failed")
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == http.StatusTooManyRequests {
			return fault.Wrap(fault.CapabilityQuota, err, "web search quota exhausted")
		}
		return fault.Wrap(fault.CapabilityUnavailable, err, "web search failed")
	}
	if errors.Is(err, context.Canceled) {
		return fault.Wrap(fault.Cancelled, err, "web search cancelled")
	}
	return fault.Wrap(fault.CapabilityUnavailable, err, "web search failed")
}
