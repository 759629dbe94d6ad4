package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"document-insights-backend/internal/ai"
	"document-insights-backend/models"
)

type fakeRetriever struct {
	chunks []models.Chunk
	err    error
}

func (f *fakeRetriever) Search(ctx context.Context, query string, k int) ([]models.Chunk, error) {
	return f.chunks, f.err
}

type fakeStreamer struct {
	fragments []string
	err       error
}

func (f *fakeStreamer) StreamAnswer(ctx context.Context, query string, chunks []models.Chunk) <-chan ai.Fragment {
	out := make(chan ai.Fragment)
	go func() {
		defer close(out)
		for _, text := range f.fragments {
			select {
			case out <- ai.Fragment{Text: text}:
			case <-ctx.Done():
				return
			}
		}
		if f.err != nil {
			select {
			case out <- ai.Fragment{Err: f.err}:
			case <-ctx.Done():
			}
		}
	}()
	return out
}

func collect(t *testing.T, events <-chan models.StreamEvent) []models.StreamEvent {
	t.Helper()
	var got []models.StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return got
			}
			got = append(got, ev)
		case <-timeout:
			t.Fatal("timed out collecting events")
		}
	}
}

// withoutProgress drops the cosmetic tool_call events so tests can assert on
// the data-carrying sequence.
func withoutProgress(events []models.StreamEvent) []models.StreamEvent {
	var out []models.StreamEvent
	for _, ev := range events {
		if ev.Event != models.EventToolCall {
			out = append(out, ev)
		}
	}
	return out
}

func newTestOrchestrator(store *JobStore, retriever Retriever, llm AnswerStreamer, completer Completer) *Orchestrator {
	var viz *VisualizationService
	if completer != nil {
		viz = NewVisualizationService(completer, 3500, nil)
	}
	return NewOrchestrator(store, retriever, llm, viz, 5, nil)
}

func TestOrchestratorZeroChunks(t *testing.T) {
	store := NewJobStore()
	job := store.Create("unanswerable")

	orch := newTestOrchestrator(store, &fakeRetriever{}, &fakeStreamer{}, nil)
	events := withoutProgress(collect(t, orch.Run(context.Background(), job.ID)))

	if len(events) != 2 {
		t.Fatalf("expected [text end], got %d events: %+v", len(events), events)
	}
	if events[0].Event != models.EventText || events[1].Event != models.EventEnd {
		t.Errorf("expected [text end], got [%s %s]", events[0].Event, events[1].Event)
	}
	if events[1].Data != models.EndPayload {
		t.Errorf("end data = %v, want complete", events[1].Data)
	}

	got, _ := store.Get(job.ID)
	if got.Status != models.JobCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
}

func TestOrchestratorFullSequenceOrdering(t *testing.T) {
	store := NewJobStore()
	job := store.Create("What was Q1 revenue?")

	retriever := &fakeRetriever{chunks: testChunks(3)}
	streamer := &fakeStreamer{fragments: []string{"Revenue grew ", "[1] to ₹500 Cr ", "[2]."}}
	completer := &fakeCompleter{response: `{"kind":"MetricCard","props":{"title":"Q1 Revenue","value":"₹500 Cr"}}`}

	orch := newTestOrchestrator(store, retriever, streamer, completer)
	events := collect(t, orch.Run(context.Background(), job.ID))

	// tool_call* → text* → citation* → component? → end
	phase := 0
	order := map[models.EventName]int{
		models.EventToolCall:  0,
		models.EventText:      1,
		models.EventCitation:  2,
		models.EventComponent: 3,
		models.EventEnd:       4,
	}
	for _, ev := range events {
		p, ok := order[ev.Event]
		if !ok {
			t.Fatalf("unexpected event %q", ev.Event)
		}
		if p < phase && ev.Event != models.EventToolCall {
			t.Fatalf("event %q out of order in %+v", ev.Event, events)
		}
		if p > phase {
			phase = p
		}
	}
	if phase != 4 {
		t.Fatalf("stream did not end with end event: %+v", events)
	}

	data := withoutProgress(events)
	var texts, citations, components int
	var answer strings.Builder
	var citationNumbers []int
	for _, ev := range data {
		switch ev.Event {
		case models.EventText:
			texts++
			answer.WriteString(ev.Data.(string))
		case models.EventCitation:
			citations++
			citationNumbers = append(citationNumbers, ev.Data.(models.Citation).Number)
		case models.EventComponent:
			components++
		}
	}

	if texts != 3 {
		t.Errorf("texts = %d, want 3 (one per fragment, unbatched)", texts)
	}
	if answer.String() != "Revenue grew [1] to ₹500 Cr [2]." {
		t.Errorf("accumulated answer = %q", answer.String())
	}
	if citations != 2 || citationNumbers[0] != 1 || citationNumbers[1] != 2 {
		t.Errorf("citations = %v, want [1 2]", citationNumbers)
	}
	if components != 1 {
		t.Errorf("components = %d, want 1", components)
	}

	got, _ := store.Get(job.ID)
	if got.Status != models.JobCompleted || got.Result != "Revenue grew [1] to ₹500 Cr [2]." {
		t.Errorf("unexpected terminal job: %+v", got)
	}
}

func TestOrchestratorRetrievalFailure(t *testing.T) {
	store := NewJobStore()
	job := store.Create("q")

	orch := newTestOrchestrator(store, &fakeRetriever{err: errors.New("index offline")}, &fakeStreamer{}, nil)
	events := withoutProgress(collect(t, orch.Run(context.Background(), job.ID)))

	if len(events) != 1 || events[0].Event != models.EventError {
		t.Fatalf("expected single error event, got %+v", events)
	}

	got, _ := store.Get(job.ID)
	if got.Status != models.JobError || !strings.Contains(got.Error, "index offline") {
		t.Errorf("unexpected job after retrieval failure: %+v", got)
	}
}

func TestOrchestratorProviderFailureMidStream(t *testing.T) {
	store := NewJobStore()
	job := store.Create("q")

	streamer := &fakeStreamer{fragments: []string{"partial ", "answer "}, err: errors.New("connection reset")}
	orch := newTestOrchestrator(store, &fakeRetriever{chunks: testChunks(1)}, streamer, nil)
	events := withoutProgress(collect(t, orch.Run(context.Background(), job.ID)))

	// Delivered tokens stay delivered; the stream ends with one error event.
	if len(events) != 3 {
		t.Fatalf("expected [text text error], got %+v", events)
	}
	if events[0].Event != models.EventText || events[1].Event != models.EventText || events[2].Event != models.EventError {
		t.Errorf("unexpected sequence: %+v", events)
	}

	got, _ := store.Get(job.ID)
	if got.Status != models.JobError {
		t.Errorf("status = %q, want error", got.Status)
	}
}

func TestOrchestratorOutOfRangeCitationsIgnored(t *testing.T) {
	store := NewJobStore()
	job := store.Create("q")

	streamer := &fakeStreamer{fragments: []string{"see [1] and [9]"}}
	orch := newTestOrchestrator(store, &fakeRetriever{chunks: testChunks(2)}, streamer, nil)
	events := withoutProgress(collect(t, orch.Run(context.Background(), job.ID)))

	var citations int
	for _, ev := range events {
		if ev.Event == models.EventCitation {
			citations++
		}
		if ev.Event == models.EventError {
			t.Fatalf("out-of-range marker must not fail the job: %+v", events)
		}
	}
	if citations != 1 {
		t.Errorf("citations = %d, want 1", citations)
	}
}

func TestOrchestratorVisualizationDegradation(t *testing.T) {
	store := NewJobStore()
	job := store.Create("q")

	streamer := &fakeStreamer{fragments: []string{"answer [1]"}}
	completer := &fakeCompleter{response: `{"kind":"BarChart","props":{"data":[`}
	orch := newTestOrchestrator(store, &fakeRetriever{chunks: testChunks(1)}, streamer, completer)
	events := withoutProgress(collect(t, orch.Run(context.Background(), job.ID)))

	last := events[len(events)-1]
	if last.Event != models.EventEnd {
		t.Fatalf("truncated visualization output must still reach end: %+v", events)
	}
	for _, ev := range events {
		if ev.Event == models.EventComponent {
			t.Error("no component event expected for invalid candidate")
		}
	}

	got, _ := store.Get(job.ID)
	if got.Status != models.JobCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
}

func TestOrchestratorUnknownJob(t *testing.T) {
	orch := newTestOrchestrator(NewJobStore(), &fakeRetriever{}, &fakeStreamer{}, nil)
	events := collect(t, orch.Run(context.Background(), "missing"))

	if len(events) != 1 || events[0].Event != models.EventError {
		t.Fatalf("expected single error event, got %+v", events)
	}
}

func TestOrchestratorSingleProcessorPerJob(t *testing.T) {
	store := NewJobStore()
	job := store.Create("q")

	orch := newTestOrchestrator(store, &fakeRetriever{chunks: testChunks(1)}, &fakeStreamer{fragments: []string{"a"}}, nil)

	first := collect(t, orch.Run(context.Background(), job.ID))
	if first[len(first)-1].Event != models.EventEnd {
		t.Fatalf("first stream should complete: %+v", first)
	}

	// Job is no longer pending; a second processor must not re-run it.
	second := collect(t, orch.Run(context.Background(), job.ID))
	if len(second) != 1 || second[0].Event != models.EventError {
		t.Fatalf("expected claim rejection, got %+v", second)
	}

	got, _ := store.Get(job.ID)
	if got.Status != models.JobCompleted {
		t.Errorf("losing claim must not disturb job status, got %q", got.Status)
	}
}

// blockingStreamer emits one fragment then holds the stream open until the
// consumer's context is cancelled.
type blockingStreamer struct{}

func (b *blockingStreamer) StreamAnswer(ctx context.Context, query string, chunks []models.Chunk) <-chan ai.Fragment {
	out := make(chan ai.Fragment)
	go func() {
		defer close(out)
		select {
		case out <- ai.Fragment{Text: "partial"}:
		case <-ctx.Done():
			return
		}
		<-ctx.Done()
	}()
	return out
}

func TestOrchestratorClientDisconnect(t *testing.T) {
	store := NewJobStore()
	job := store.Create("q")

	ctx, cancel := context.WithCancel(context.Background())
	orch := newTestOrchestrator(store, &fakeRetriever{chunks: testChunks(1)}, &blockingStreamer{}, nil)
	events := orch.Run(ctx, job.ID)

	// Drain until the first text fragment, then walk away.
	timeout := time.After(5 * time.Second)
	for {
		var ev models.StreamEvent
		select {
		case ev = <-events:
		case <-timeout:
			t.Fatal("timed out waiting for first fragment")
		}
		if ev.Event == models.EventText {
			break
		}
	}
	cancel()

	for ev := range events {
		if ev.Event == models.EventEnd || ev.Event == models.EventError {
			t.Fatalf("no terminal event expected after disconnect, got %q", ev.Event)
		}
	}

	got, _ := store.Get(job.ID)
	if got.Status != models.JobProcessing {
		t.Errorf("disconnected job must stay at processing, got %q", got.Status)
	}
}
