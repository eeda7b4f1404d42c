package llm

// ChatMessageType is the author of a conversation message.
type ChatMessageType string

const (
	ChatUser ChatMessageType = "user"
	ChatAI   ChatMessageType = "ai"
)

// ChatMessage is one turn of the conversation owned by the UI layer. The
// orchestration core receives it by value and never stores it.
type ChatMessage struct {
	ID      string          `json:"id"`
	Type    ChatMessageType `json:"type"`
	Content string          `json:"content"`
}

// ChatHistory converts conversation turns into model messages.
func ChatHistory(history []ChatMessage) []Message {
	msgs := make([]Message, 0, len(history))
	for _, m := range history {
		if m.Content == "" {
			continue
		}
		role := RoleUser
		if m.Type == ChatAI {
			role = RoleAssistant
		}
		msgs = append(msgs, Message{Role: role, Content: m.Content})
	}
	return msgs
}
