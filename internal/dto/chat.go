package dto

// ChatRequest is the body of POST /api/v1/chat.
type ChatRequest struct {
	Message string `json:"message"`
	Context string `json:"context,omitempty"`
}

// ChatResponse carries the reply plus the pipeline stage that produced it.
type ChatResponse struct {
	Response string `json:"response"`
	Source   string `json:"source"`
}
