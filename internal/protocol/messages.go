package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeUserMessage    MessageType = "user_message"
	TypeAssistantReply MessageType = "assistant_reply"
	TypeMemoriesStored MessageType = "memories_stored"
	TypeErrorEvent     MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// UserMessage starts a turn. ClientID is echoed back so clients can correlate replies.
type UserMessage struct {
	Type     MessageType `json:"type"`
	Text     string      `json:"text"`
	ClientID string      `json:"client_id,omitempty"`
}

type AssistantReply struct {
	Type           MessageType `json:"type"`
	ConversationID string      `json:"conversation_id"`
	ClientID       string      `json:"client_id,omitempty"`
	Text           string      `json:"text"`
	UsedMemories   []string    `json:"used_memories"`
	TSMs           int64       `json:"ts_ms"`
}

// MemoriesStored closes a turn once extraction and persistence finished.
type MemoriesStored struct {
	Type           MessageType `json:"type"`
	ConversationID string      `json:"conversation_id"`
	ClientID       string      `json:"client_id,omitempty"`
	Memories       []string    `json:"memories"`
}

type ErrorEvent struct {
	Type           MessageType `json:"type"`
	ConversationID string      `json:"conversation_id"`
	ClientID       string      `json:"client_id,omitempty"`
	Code           string      `json:"code"`
	Retryable      bool        `json:"retryable"`
	Detail         string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeUserMessage:
		var msg UserMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.Text) == "" {
			return nil, errors.New("invalid user_message: text is required")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
