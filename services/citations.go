package services

import (
	"regexp"
	"strconv"

	"document-insights-backend/models"
)

var citationMarker = regexp.MustCompile(`\[(\d+)\]`)

const excerptLimit = 150

// ExtractCitations scans the response text for numbered markers like [1] and
// resolves each against the retrieved chunks. Order follows first appearance
// in the text, duplicates collapse to the first occurrence, and markers
// outside 1..len(chunks) are dropped silently.
func ExtractCitations(responseText string, chunks []models.Chunk) []models.Citation {
	matches := citationMarker.FindAllStringSubmatch(responseText, -1)

	citations := make([]models.Citation, 0, len(matches))
	seen := make(map[int]bool)

	for _, match := range matches {
		num, err := strconv.Atoi(match[1])
		if err != nil || num < 1 || num > len(chunks) || seen[num] {
			continue
		}
		seen[num] = true

		chunk := chunks[num-1]
		citations = append(citations, models.Citation{
			Number:  num,
			Source:  chunk.Source,
			Page:    chunk.Page,
			Excerpt: excerpt(chunk.Content),
		})
	}

	return citations
}

// excerpt truncates to the first 150 characters with an ellipsis marker.
func excerpt(content string) string {
	runes := []rune(content)
	if len(runes) <= excerptLimit {
		return content
	}
	return string(runes[:excerptLimit]) + "..."
}
