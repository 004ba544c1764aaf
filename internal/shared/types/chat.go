package types

// ChatMessage is a single entry of the conversation history. Roles use the
// frontend's compact encoding: "u" for the user, "a" for the assistant.
type ChatMessage struct {
	Role    string `json:"role" binding:"required,oneof=u a"`
	Content string `json:"content" binding:"required"`
}

// ChatRequest asks the SQL chatbot a natural-language question.
type ChatRequest struct {
	Question    string        `json:"question" binding:"required"`
	ChatHistory []ChatMessage `json:"chat_history" binding:"omitempty,dive"`

	// SessionID groups exchanges into a persisted session. Empty means a
	// new session is created for this exchange.
	SessionID string `json:"session_id"`
}

// ChatResponse carries the synthesized answer back to the caller.
type ChatResponse struct {
	Answer    string `json:"answer"`
	SessionID string `json:"session_id,omitempty"`
}

// DatabaseSummary describes one database the chatbot can query.
type DatabaseSummary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Connection  string `json:"connection"`
}
