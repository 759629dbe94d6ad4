package models

// Citation is a numbered back-reference from answer text to a retrieved chunk.
// Number always matches a chunk's SequenceIndex.
type Citation struct {
	Number  int    `json:"number"`
	Source  string `json:"source"`
	Page    int    `json:"page"`
	Excerpt string `json:"excerpt"`
}
