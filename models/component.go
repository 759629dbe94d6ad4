package models

// Component kinds the visualization synthesizer may produce. The generation
// prompt asks for them in priority order BarChart > Table > MetricCard >
// PieChart > LineChart > InfoCard.
const (
	ComponentBarChart   = "BarChart"
	ComponentLineChart  = "LineChart"
	ComponentPieChart   = "PieChart"
	ComponentTable      = "Table"
	ComponentMetricCard = "MetricCard"
	ComponentInfoCard   = "InfoCard"
)

// Component is a structured visualization descriptor accompanying an answer.
// Props shape depends on Kind; validation happens before it is ever emitted.
type Component struct {
	Kind  string         `json:"kind"`
	Props map[string]any `json:"props"`
}

// DataPoint is one labeled value inside a chart component's props.data.
type DataPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}
