package models

// QueryRequest is the body of POST /ask.
type QueryRequest struct {
	Query string `json:"query" binding:"required,min=1,max=1000"`
}
