package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"

	"document-insights-backend/internal/logger"
	"document-insights-backend/models"
)

// Fragment is one unit pushed on an answer stream. Either Text is set or Err
// terminates the stream; the channel is closed after either outcome.
type Fragment struct {
	Text string
	Err  error
}

type GeminiClient struct {
	apiKey        string
	model         string
	breaker       *gobreaker.CircuitBreaker
	streamBreaker *gobreaker.TwoStepCircuitBreaker
	rateLimiter   *rate.Limiter
	tokenCounter  *TokenCounter
	client        *genai.Client
	tier          string
}

type TokenCounter struct {
	mu              sync.Mutex
	limits          RateLimits
	minuteTokens    int
	dailyTokens     int
	minuteRequests  int
	dailyRequests   int
	lastMinuteReset time.Time
	lastDayReset    time.Time
}

type RateLimits struct {
	RPM int // Requests per minute
	TPM int // Tokens per minute
	RPD int // Requests per day
}

func NewGeminiClient(apiKey, model, tier string) (*GeminiClient, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	// Configure rate limits based on tier
	limits := getRateLimits(tier)

	// Streaming calls report their outcome when the stream ends, long after
	// admission, so they go through the two-step breaker. One-shot calls keep
	// the plain Execute breaker.
	breaker := gobreaker.NewCircuitBreaker(breakerSettings("GeminiAPI"))
	streamBreaker := gobreaker.NewTwoStepCircuitBreaker(breakerSettings("GeminiStream"))

	// RPM limit with some buffer
	rateLimiter := rate.NewLimiter(rate.Limit(float64(limits.RPM)*0.9/60.0), limits.RPM/10+1)

	return &GeminiClient{
		apiKey:        apiKey,
		model:         model,
		breaker:       breaker,
		streamBreaker: streamBreaker,
		rateLimiter:   rateLimiter,
		tokenCounter:  &TokenCounter{limits: limits},
		client:        client,
		tier:          tier,
	}, nil
}

func breakerSettings(name string) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	}
}

func getRateLimits(tier string) RateLimits {
	switch tier {
	case "free":
		return RateLimits{RPM: 10, TPM: 250000, RPD: 250}
	case "tier1":
		return RateLimits{RPM: 1000, TPM: 1000000, RPD: 10000}
	case "tier2":
		return RateLimits{RPM: 2000, TPM: 4000000, RPD: 50000}
	default:
		return RateLimits{RPM: 10, TPM: 250000, RPD: 250}
	}
}

// BuildAnswerPrompt numbers each chunk so the model can cite with [1], [2] etc.
// Citation extraction downstream depends on this numbering matching
// Chunk.SequenceIndex.
func BuildAnswerPrompt(query string, chunks []models.Chunk) string {
	var sb strings.Builder

	sb.WriteString("Answer the question using the provided context.\n")
	sb.WriteString("IMPORTANT: When you use information from a source, cite it using [1], [2], [3] etc.\n\n")
	sb.WriteString("CONTEXT:\n")

	for i, chunk := range chunks {
		fmt.Fprintf(&sb, "[%d] Source: %s, Page %d\n%s\n\n", i+1, chunk.Source, chunk.Page, chunk.Content)
	}

	fmt.Fprintf(&sb, "QUESTION: %s\n\n", query)
	sb.WriteString("Provide a clear answer with inline citations like [1], [2], etc. referring to the source numbers above.")

	return sb.String()
}

// StreamAnswer starts a streamed generation and returns a channel of
// fragments in provider order. The producer goroutine stops and closes the
// provider iterator when ctx is cancelled, so an abandoned consumer does not
// leak the upstream connection.
func (gc *GeminiClient) StreamAnswer(ctx context.Context, query string, chunks []models.Chunk) <-chan Fragment {
	out := make(chan Fragment, 16)
	prompt := BuildAnswerPrompt(query, chunks)

	go func() {
		defer close(out)

		tracer := otel.Tracer("gemini-client")
		ctx, span := tracer.Start(ctx, "gemini.stream_answer")
		defer span.End()

		estimatedTokens := estimateTokens(prompt)
		span.SetAttributes(
			attribute.Int("gemini.estimated_tokens", estimatedTokens),
			attribute.Int("gemini.context_chunks", len(chunks)),
			attribute.String("gemini.model", gc.model),
		)

		if !gc.tokenCounter.CanConsume(estimatedTokens, 1) {
			span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
			emit(ctx, out, Fragment{Err: errors.New("rate limit exceeded: wait before retry")})
			return
		}

		if err := gc.rateLimiter.Wait(ctx); err != nil {
			emit(ctx, out, Fragment{Err: err})
			return
		}

		// Breaker admission for a long-lived streaming call; outcome is
		// reported once the stream terminates.
		done, err := gc.streamBreaker.Allow()
		if err != nil {
			span.SetAttributes(attribute.Bool("gemini.circuit_breaker_open", true))
			emit(ctx, out, Fragment{Err: fmt.Errorf("provider unavailable: %w", err)})
			return
		}

		model := gc.client.GenerativeModel(gc.model)
		model.SetTemperature(0.7)
		model.SetMaxOutputTokens(2048)

		iter := model.GenerateContentStream(ctx, genai.Text(prompt))

		fragments := 0
		actualTokens := 0
		for {
			resp, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				done(false)
				span.SetAttributes(attribute.Bool("gemini.error", true))
				span.SetAttributes(attribute.String("gemini.error_message", err.Error()))
				emit(ctx, out, Fragment{Err: err})
				return
			}

			if resp.UsageMetadata != nil {
				actualTokens = int(resp.UsageMetadata.TotalTokenCount)
			}

			for _, text := range candidateTexts(resp) {
				if text == "" {
					continue
				}
				fragments++
				if !emit(ctx, out, Fragment{Text: text}) {
					// Consumer gone; stream outcome still counts as success.
					done(true)
					return
				}
			}
		}

		done(true)
		gc.tokenCounter.RecordUsage(actualTokens, 1)
		span.SetAttributes(
			attribute.Int("gemini.fragments", fragments),
			attribute.Int("gemini.actual_tokens", actualTokens),
			attribute.Bool("gemini.success", true),
		)
	}()

	return out
}

// Complete issues a single non-streaming generation. Used for the secondary
// visualization request where the whole response is parsed at once.
func (gc *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.complete")
	defer span.End()

	estimatedTokens := estimateTokens(prompt)
	span.SetAttributes(
		attribute.Int("gemini.estimated_tokens", estimatedTokens),
		attribute.String("gemini.model", gc.model),
	)

	if !gc.tokenCounter.CanConsume(estimatedTokens, 1) {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return "", errors.New("rate limit exceeded: wait before retry")
	}

	if err := gc.rateLimiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return "", err
	}

	result, err := gc.breaker.Execute(func() (interface{}, error) {
		model := gc.client.GenerativeModel(gc.model)
		model.SetTemperature(0.2)
		model.SetMaxOutputTokens(1024)

		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			return nil, err
		}

		gc.tokenCounter.RecordUsage(extractTokenUsage(resp), 1)
		return resp, nil
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return "", err
	}

	span.SetAttributes(attribute.Bool("gemini.success", true))
	return strings.Join(candidateTexts(result.(*genai.GenerateContentResponse)), ""), nil
}

// emit sends a fragment unless ctx is already cancelled. Reports whether the
// consumer is still listening.
func emit(ctx context.Context, out chan<- Fragment, f Fragment) bool {
	select {
	case out <- f:
		return true
	case <-ctx.Done():
		return false
	}
}

func candidateTexts(resp *genai.GenerateContentResponse) []string {
	var texts []string
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				texts = append(texts, string(text))
			}
		}
	}
	return texts
}

func (tc *TokenCounter) CanConsume(tokens, requests int) bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	now := time.Now()

	// Reset counters if time windows expired
	if now.Sub(tc.lastMinuteReset) >= time.Minute {
		tc.minuteTokens = 0
		tc.minuteRequests = 0
		tc.lastMinuteReset = now
	}

	if now.Sub(tc.lastDayReset) >= 24*time.Hour {
		tc.dailyTokens = 0
		tc.dailyRequests = 0
		tc.lastDayReset = now
	}

	if tc.minuteRequests+requests > tc.limits.RPM {
		return false
	}
	if tc.minuteTokens+tokens > tc.limits.TPM {
		return false
	}
	if tc.dailyRequests+requests > tc.limits.RPD {
		return false
	}

	return true
}

func (tc *TokenCounter) RecordUsage(tokens, requests int) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.minuteTokens += tokens
	tc.minuteRequests += requests
	tc.dailyTokens += tokens
	tc.dailyRequests += requests
}

// Rough estimation: 1 token ≈ 4 characters for Gemini
func estimateTokens(prompt string) int {
	estimated := len(prompt) / 4
	if estimated < 1 {
		estimated = 1
	}
	return estimated
}

// Extract token usage from Gemini response
func extractTokenUsage(resp *genai.GenerateContentResponse) int {
	if resp.UsageMetadata != nil {
		return int(resp.UsageMetadata.TotalTokenCount)
	}

	totalText := strings.Join(candidateTexts(resp), "")
	estimated := len(totalText) / 4
	if estimated < 1 {
		estimated = 1
	}
	return estimated
}

// Close the client
func (gc *GeminiClient) Close() error {
	if gc.client != nil {
		return gc.client.Close()
	}
	return nil
}
