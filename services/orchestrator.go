package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"document-insights-backend/internal/ai"
	"document-insights-backend/internal/logger"
	"document-insights-backend/internal/telemetry"
	"document-insights-backend/models"
)

// AnswerStreamer is the LLM token source: it yields answer fragments in
// production order and closes the channel when the stream is exhausted or
// fails. Cancelling ctx must stop the producer.
type AnswerStreamer interface {
	StreamAnswer(ctx context.Context, query string, chunks []models.Chunk) <-chan ai.Fragment
}

// Orchestrator drives one job through retrieval, token streaming, citation
// extraction and visualization synthesis, producing a totally ordered event
// sequence that always ends in exactly one end or error event.
type Orchestrator struct {
	store     *JobStore
	retriever Retriever
	llm       AnswerStreamer
	viz       *VisualizationService
	topK      int
	metrics   *telemetry.Metrics
}

func NewOrchestrator(store *JobStore, retriever Retriever, llm AnswerStreamer, viz *VisualizationService, topK int, metrics *telemetry.Metrics) *Orchestrator {
	if topK < 1 {
		topK = 5
	}
	return &Orchestrator{
		store:     store,
		retriever: retriever,
		llm:       llm,
		viz:       viz,
		topK:      topK,
		metrics:   metrics,
	}
}

// Run starts processing the job and returns the event channel. The channel is
// closed after the terminal event, or as soon as ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context, jobID string) <-chan models.StreamEvent {
	out := make(chan models.StreamEvent, 16)
	go func() {
		defer close(out)
		o.process(ctx, jobID, out)
	}()
	return out
}

func (o *Orchestrator) process(ctx context.Context, jobID string, out chan<- models.StreamEvent) {
	start := time.Now()

	send := func(ev models.StreamEvent) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	progress := func(message string) bool {
		return send(models.StreamEvent{Event: models.EventToolCall, Data: models.ToolCallPayload{Message: message}})
	}

	// fail converts the first phase error into the single terminal error
	// event. A cancelled context means the client went away: the job keeps
	// its last status and nothing more is emitted.
	fail := func(message string) {
		if ctx.Err() != nil {
			logger.Debug("Client disconnected mid-stream", "job_id", jobID)
			return
		}
		logger.Error("Stream failed", "job_id", jobID, "error", message)
		o.store.SetError(jobID, message)
		o.metrics.RecordJobOutcome(ctx, false)
		send(models.StreamEvent{Event: models.EventError, Data: message})
	}
	complete := func(result string) {
		o.store.SetResult(jobID, result)
		o.store.SetStatus(jobID, models.JobCompleted)
		o.metrics.RecordJobOutcome(ctx, true)
		if o.metrics != nil {
			o.metrics.StreamDuration.Record(ctx, time.Since(start).Seconds())
		}
		send(models.StreamEvent{Event: models.EventEnd, Data: models.EndPayload})
	}

	job, ok := o.store.Get(jobID)
	if !ok {
		send(models.StreamEvent{Event: models.EventError, Data: "Job not found"})
		return
	}

	// Exactly one active processor per job id. Losing the claim is not that
	// job's failure, so its status is left alone.
	if !o.store.Claim(jobID) {
		send(models.StreamEvent{Event: models.EventError, Data: "Job is already being processed"})
		return
	}

	if !progress("🔍 Searching documents...") {
		return
	}

	chunks, err := o.retriever.Search(ctx, job.Query, o.topK)
	if err != nil {
		fail(fmt.Sprintf("Document search failed: %v", err))
		return
	}

	if !progress(fmt.Sprintf("📄 Found %d relevant passages", len(chunks))) {
		return
	}

	// Zero retrieved chunks is a valid empty-result outcome, not an error.
	if len(chunks) == 0 {
		const noContent = "No relevant content found in the ingested documents."
		if !send(models.StreamEvent{Event: models.EventText, Data: noContent}) {
			return
		}
		complete(noContent)
		return
	}

	if !progress("🔎 Analyzing content...") || !progress("🤖 Generating response...") {
		return
	}

	var full strings.Builder
	fragments := 0
	for frag := range o.llm.StreamAnswer(ctx, job.Query, chunks) {
		if frag.Err != nil {
			// Tokens already emitted stay delivered; there is no rollback.
			fail(fmt.Sprintf("Response generation failed: %v", frag.Err))
			return
		}
		full.WriteString(frag.Text)
		fragments++
		if !send(models.StreamEvent{Event: models.EventText, Data: frag.Text}) {
			logger.Debug("Client disconnected during token stream", "job_id", jobID, "fragments", fragments)
			return
		}
	}

	// A producer that closed because ctx was cancelled looks like a normal
	// exhausted stream; the job must stay at processing in that case.
	if ctx.Err() != nil {
		logger.Debug("Client disconnected during token stream", "job_id", jobID, "fragments", fragments)
		return
	}

	if o.metrics != nil {
		o.metrics.TokensStreamed.Add(ctx, int64(fragments))
	}

	answer := full.String()

	citations := ExtractCitations(answer, chunks)
	if len(citations) > 0 {
		if !progress("📚 Found citations") {
			return
		}
		for _, citation := range citations {
			if !send(models.StreamEvent{Event: models.EventCitation, Data: citation}) {
				return
			}
		}
	}

	if o.viz != nil {
		if component := o.viz.Synthesize(ctx, job.Query, answer, citations, chunks); component != nil {
			if !progress("📊 Generating visualizations...") {
				return
			}
			if !send(models.StreamEvent{Event: models.EventComponent, Data: component}) {
				return
			}
		}
	}

	complete(answer)
}
