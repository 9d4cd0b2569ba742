package domain

// ChatRequest is the body posted to the chat endpoint. A nil SessionID is
// encoded as JSON null.
type ChatRequest struct {
	Message   string  `json:"message"`
	SessionID *string `json:"session_id"`
}

// ChatResponse is the body returned by the chat endpoint. Both fields are
// optional on the wire so that missing ones can be told apart from empty ones.
type ChatResponse struct {
	Response  *string `json:"response"`
	SessionID *string `json:"session_id"`
}
