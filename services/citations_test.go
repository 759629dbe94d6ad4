package services

import (
	"strings"
	"testing"

	"document-insights-backend/models"
)

func testChunks(n int) []models.Chunk {
	chunks := make([]models.Chunk, n)
	for i := range chunks {
		chunks[i] = models.Chunk{
			Content:       strings.Repeat("x", 10),
			Source:        "report.pdf",
			Page:          i + 1,
			SequenceIndex: i + 1,
		}
	}
	return chunks
}

func TestExtractCitationsFirstAppearanceOrder(t *testing.T) {
	chunks := testChunks(3)
	text := "Margins improved [3] while revenue grew [1] and again [3]."

	citations := ExtractCitations(text, chunks)
	if len(citations) != 2 {
		t.Fatalf("expected 2 citations, got %d", len(citations))
	}
	if citations[0].Number != 3 || citations[1].Number != 1 {
		t.Errorf("expected first-appearance order [3 1], got [%d %d]", citations[0].Number, citations[1].Number)
	}
}

func TestExtractCitationsDeduplicates(t *testing.T) {
	chunks := testChunks(2)
	citations := ExtractCitations("A [1] B [1] C [2] D [1]", chunks)

	if len(citations) != 2 {
		t.Fatalf("expected 2 citations, got %d", len(citations))
	}
	if citations[0].Number != 1 || citations[1].Number != 2 {
		t.Errorf("unexpected order: %+v", citations)
	}
}

func TestExtractCitationsIgnoresOutOfRange(t *testing.T) {
	chunks := testChunks(2)
	citations := ExtractCitations("See [5] and [0] and [2]", chunks)

	if len(citations) != 1 {
		t.Fatalf("expected 1 citation, got %d", len(citations))
	}
	if citations[0].Number != 2 {
		t.Errorf("expected citation 2, got %d", citations[0].Number)
	}
}

func TestExtractCitationsRevenueScenario(t *testing.T) {
	chunks := testChunks(3)
	citations := ExtractCitations("Revenue grew [1] to ₹500 Cr [2].", chunks)

	if len(citations) != 2 {
		t.Fatalf("expected 2 citations, got %d", len(citations))
	}
	if citations[0].Number != 1 || citations[1].Number != 2 {
		t.Errorf("expected citations [1 2], got %+v", citations)
	}
	if citations[0].Source != "report.pdf" || citations[0].Page != 1 {
		t.Errorf("citation 1 should reference chunk 1: %+v", citations[0])
	}
}

func TestExtractCitationsNoMarkers(t *testing.T) {
	if got := ExtractCitations("plain answer, nothing cited", testChunks(3)); len(got) != 0 {
		t.Errorf("expected no citations, got %+v", got)
	}
}

func TestExcerptTruncation(t *testing.T) {
	long := strings.Repeat("a", 200)
	chunks := []models.Chunk{{Content: long, Source: "s.pdf", Page: 1}}

	citations := ExtractCitations("[1]", chunks)
	if len(citations) != 1 {
		t.Fatalf("expected 1 citation, got %d", len(citations))
	}
	want := strings.Repeat("a", 150) + "..."
	if citations[0].Excerpt != want {
		t.Errorf("excerpt not truncated to 150 chars with ellipsis, len=%d", len(citations[0].Excerpt))
	}

	short := ExtractCitations("[1]", []models.Chunk{{Content: "brief", Source: "s.pdf", Page: 1}})
	if short[0].Excerpt != "brief" {
		t.Errorf("short content should be untouched, got %q", short[0].Excerpt)
	}
}
