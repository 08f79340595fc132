package webhook

import (
	"encoding/json"
	"fmt"
)

// Payload mirrors the Meta webhook envelope, down to the first message.
type Payload struct {
	Entry []Entry `json:"entry"`
}

type Entry struct {
	Changes []Change `json:"changes"`
}

type Change struct {
	Value Value `json:"value"`
}

type Value struct {
	Messages []Message `json:"messages"`
}

type Message struct {
	From string `json:"from"`
	ID   string `json:"id"`
	Type string `json:"type"`
	Text *Text  `json:"text,omitempty"`
}

type Text struct {
	Body string `json:"body"`
}

// InboundEvent is the parsed form of one webhook delivery. It lives for
// the duration of a single request.
type InboundEvent struct {
	EventID     string
	SenderID    string
	MessageType string
	Text        string
}

// ParseEvent extracts the first message from a webhook body. The second
// return is false when the payload carries no message (status updates,
// empty entries), which callers acknowledge without further work.
func ParseEvent(body []byte) (InboundEvent, bool, error) {
	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return InboundEvent{}, false, fmt.Errorf("parse webhook payload: %w", err)
	}

	if len(payload.Entry) == 0 || len(payload.Entry[0].Changes) == 0 {
		return InboundEvent{}, false, nil
	}
	value := payload.Entry[0].Changes[0].Value
	if len(value.Messages) == 0 {
		return InboundEvent{}, false, nil
	}

	msg := value.Messages[0]
	if msg.ID == "" || msg.From == "" {
		return InboundEvent{}, false, nil
	}

	ev := InboundEvent{
		EventID:     msg.ID,
		SenderID:    msg.From,
		MessageType: msg.Type,
	}
	if msg.Text != nil {
		ev.Text = msg.Text.Body
	}
	return ev, true, nil
}
