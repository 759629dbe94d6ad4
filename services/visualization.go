package services

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"document-insights-backend/internal/logger"
	"document-insights-backend/internal/telemetry"
	"document-insights-backend/models"
)

// Completer is the single-shot generation dependency of the synthesizer.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// VisualizationService produces at most one validated component per job by
// issuing a secondary generation request over the answer and its sources.
// Every failure mode here degrades to "no component"; nothing is job-fatal.
type VisualizationService struct {
	llm          Completer
	contextChars int
	metrics      *telemetry.Metrics
}

func NewVisualizationService(llm Completer, contextChars int, metrics *telemetry.Metrics) *VisualizationService {
	if contextChars <= 0 {
		contextChars = 3500
	}
	return &VisualizationService{
		llm:          llm,
		contextChars: contextChars,
		metrics:      metrics,
	}
}

// Synthesize returns a validated component or nil. It never returns an error:
// generation failures, unparseable output, and rejected candidates all log and
// yield nil so the job still reaches its end event.
func (vs *VisualizationService) Synthesize(ctx context.Context, query, answer string, citations []models.Citation, chunks []models.Chunk) *models.Component {
	prompt := vs.buildComponentPrompt(query, answer, citations, chunks)

	raw, err := vs.llm.Complete(ctx, prompt)
	if err != nil {
		logger.Warn("Visualization generation failed", "error", err)
		vs.metrics.RecordComponent(ctx, "none", false)
		return nil
	}

	component, err := ParseComponentCandidate(raw)
	if err != nil {
		logger.Debug("Visualization candidate rejected", "reason", err)
		vs.metrics.RecordComponent(ctx, "none", false)
		return nil
	}

	if err := ValidateComponent(component); err != nil {
		logger.Debug("Visualization candidate failed validation", "kind", component.Kind, "reason", err)
		vs.metrics.RecordComponent(ctx, component.Kind, false)
		return nil
	}

	vs.metrics.RecordComponent(ctx, component.Kind, true)
	return component
}

// buildComponentPrompt assembles the strict instruction contract plus a
// size-capped context block. Chunks arrive in relevance order, so capping the
// tail drops the least-relevant content first.
func (vs *VisualizationService) buildComponentPrompt(query, answer string, citations []models.Citation, chunks []models.Chunk) string {
	var sb strings.Builder

	sb.WriteString(componentInstructions)
	fmt.Fprintf(&sb, "\nUser Query: %q\n\nAnswer:\n%s\n\nDocument Content:\n", query, answer)

	budget := vs.contextChars
	for _, chunk := range chunks {
		if budget <= 0 {
			break
		}
		content := chunk.Content
		if len(content) > budget {
			cut := budget
			for cut > 0 && !utf8.RuneStart(content[cut]) {
				cut--
			}
			content = content[:cut]
		}
		sb.WriteString(content)
		sb.WriteString("\n")
		budget -= len(content) + 1
	}

	if len(citations) > 0 {
		sb.WriteString("\nSOURCE EXCERPTS:\n")
		for _, c := range citations {
			fmt.Fprintf(&sb, "[%d] %s p.%d: %s\n", c.Number, c.Source, c.Page, c.Excerpt)
		}
	}

	sb.WriteString("\nExtract REAL numerical data from the above content and respond with ONLY the JSON object.")
	return sb.String()
}

const componentInstructions = `You are a financial data visualization expert. Extract REAL numerical data from the content and create one meaningful visualization.

CRITICAL RULES:
1. Extract ACTUAL numbers, percentages, and values - NEVER use placeholder text
2. If you find financial data (revenue, profit, growth), use BarChart or MetricCard
3. If you find percentages or distributions, use PieChart
4. If you find comparisons or multiple metrics, use Table
5. Each data point must have a real numerical value extracted from the source

Available components:

1. MetricCard - For a key metric with change indicator
   {"kind": "MetricCard", "props": {"title": "Revenue Growth", "value": "₹2,34,500 Cr", "change": "+15.2%", "color": "green"}}

2. BarChart - For comparing values (MUST have real data points)
   {"kind": "BarChart", "props": {"title": "Quarterly Revenue", "data": [{"label": "Q1 FY24", "value": 12500}, {"label": "Q2 FY24", "value": 14200}]}}

3. LineChart - For trends over time with real numbers
   {"kind": "LineChart", "props": {"title": "Stock Price", "data": [{"label": "Jan", "value": 2450}, {"label": "Feb", "value": 2520}]}}

4. PieChart - For proportions (values are percentages that should sum meaningfully)
   {"kind": "PieChart", "props": {"title": "Revenue Mix", "data": [{"label": "Digital", "value": 45}, {"label": "Retail", "value": 55}]}}

5. Table - For structured comparisons
   {"kind": "Table", "props": {"title": "Financial Metrics", "headers": ["Metric", "Value", "Change"], "rows": [["Revenue", "₹2.3L Cr", "+15%"]]}}

6. InfoCard - ONLY if no numerical data exists (LAST RESORT)
   {"kind": "InfoCard", "props": {"title": "Summary", "value": "Key Finding", "icon": "📊"}}

PRIORITY: BarChart > Table > MetricCard > PieChart > LineChart > InfoCard
Respond with ONLY valid JSON, no markdown or explanation.`

// ParseComponentCandidate finds the first balanced JSON object in a model
// response and structurally parses it. Parsing success says nothing about
// acceptability; ValidateComponent is the separate gate for that.
func ParseComponentCandidate(raw string) (*models.Component, error) {
	blob, ok := ExtractJSONObject(raw)
	if !ok {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	// Older prompt revisions used "component" for the kind field; accept both.
	var candidate struct {
		Kind      string         `json:"kind"`
		Component string         `json:"component"`
		Props     map[string]any `json:"props"`
	}
	if err := json.Unmarshal([]byte(blob), &candidate); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	kind := candidate.Kind
	if kind == "" {
		kind = candidate.Component
	}
	if kind == "" {
		return nil, fmt.Errorf("candidate has no kind")
	}

	return &models.Component{Kind: kind, Props: candidate.Props}, nil
}

// ExtractJSONObject scans for the first balanced top-level brace region,
// tolerating surrounding prose and braces inside JSON strings.
func ExtractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	return "", false
}

var metricValuePattern = regexp.MustCompile(`[\d₹$%€£]`)

// ValidateComponent enforces the kind-specific minimums a candidate must meet
// before it may be emitted. InfoCard is the only kind accepted without a
// numeric requirement.
func ValidateComponent(c *models.Component) error {
	switch c.Kind {
	case models.ComponentBarChart, models.ComponentLineChart, models.ComponentPieChart:
		points, err := chartDataPoints(c.Props)
		if err != nil {
			return err
		}
		if len(points) < 2 {
			return fmt.Errorf("%s needs at least 2 data points, got %d", c.Kind, len(points))
		}
		return nil

	case models.ComponentTable:
		rows, ok := c.Props["rows"].([]any)
		if !ok || len(rows) < 1 {
			return fmt.Errorf("Table needs at least 1 row")
		}
		return nil

	case models.ComponentMetricCard:
		value, _ := c.Props["value"].(string)
		if !metricValuePattern.MatchString(value) {
			return fmt.Errorf("MetricCard value %q has no numeric content", value)
		}
		return nil

	case models.ComponentInfoCard:
		return nil

	default:
		return fmt.Errorf("unknown component kind %q", c.Kind)
	}
}

// chartDataPoints pulls props.data and checks every entry is a labeled number.
func chartDataPoints(props map[string]any) ([]models.DataPoint, error) {
	raw, ok := props["data"].([]any)
	if !ok {
		return nil, fmt.Errorf("chart has no data array")
	}

	points := make([]models.DataPoint, 0, len(raw))
	for _, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("chart data entry is not an object")
		}
		label, ok := m["label"].(string)
		if !ok || label == "" {
			return nil, fmt.Errorf("chart data entry missing label")
		}
		value, ok := m["value"].(float64)
		if !ok {
			return nil, fmt.Errorf("chart data entry %q has non-numeric value", label)
		}
		points = append(points, models.DataPoint{Label: label, Value: value})
	}

	return points, nil
}
