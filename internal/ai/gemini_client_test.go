package ai

import (
	"strings"
	"testing"

	"github.com/sony/gobreaker"

	"document-insights-backend/models"
)

func TestBuildAnswerPromptNumbersSources(t *testing.T) {
	chunks := []models.Chunk{
		{Content: "Revenue was 500", Source: "annual.pdf", Page: 12, SequenceIndex: 1},
		{Content: "Profit was 80", Source: "annual.pdf", Page: 14, SequenceIndex: 2},
	}

	prompt := BuildAnswerPrompt("What was revenue?", chunks)

	if !strings.Contains(prompt, "[1] Source: annual.pdf, Page 12") {
		t.Errorf("missing numbered source 1:\n%s", prompt)
	}
	if !strings.Contains(prompt, "[2] Source: annual.pdf, Page 14") {
		t.Errorf("missing numbered source 2:\n%s", prompt)
	}
	if !strings.Contains(prompt, "QUESTION: What was revenue?") {
		t.Errorf("missing question:\n%s", prompt)
	}
	if strings.Index(prompt, "[1]") > strings.Index(prompt, "[2]") {
		t.Error("sources out of order")
	}
}

func TestTokenCounterWindows(t *testing.T) {
	tc := &TokenCounter{limits: RateLimits{RPM: 2, TPM: 100, RPD: 3}}

	if !tc.CanConsume(50, 1) {
		t.Fatal("first request should be allowed")
	}
	tc.RecordUsage(50, 1)

	if tc.CanConsume(60, 1) {
		t.Error("request exceeding TPM should be denied")
	}
	if !tc.CanConsume(40, 1) {
		t.Error("request within TPM should be allowed")
	}
	tc.RecordUsage(40, 1)

	if tc.CanConsume(1, 1) {
		t.Error("request exceeding RPM should be denied")
	}
}

// The streaming path uses the two-step breaker: admission up front, outcome
// reported when the stream finishes. Verify the shared settings trip it after
// repeated failures and that an open breaker then refuses admission.
func TestStreamBreakerTripsOnFailures(t *testing.T) {
	cb := gobreaker.NewTwoStepCircuitBreaker(breakerSettings("test-stream"))

	for i := 0; i < 3; i++ {
		done, err := cb.Allow()
		if err != nil {
			t.Fatalf("admission %d refused: %v", i+1, err)
		}
		done(false)
	}

	if _, err := cb.Allow(); err == nil {
		t.Fatal("breaker should be open after repeated stream failures")
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := estimateTokens(""); got != 1 {
		t.Errorf("empty prompt estimate = %d, want 1", got)
	}
	if got := estimateTokens(strings.Repeat("a", 400)); got != 100 {
		t.Errorf("estimate = %d, want 100", got)
	}
}
