package signaling

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Kind identifies a signaling message type on the wire.
type Kind string

const (
	// Client -> server.
	KindCallRequest  Kind = "call-request"
	KindCallAnswer   Kind = "call-answer"
	KindICECandidate Kind = "ice-candidate"
	KindHangup       Kind = "hangup"

	// Server -> client. KindCallRequest, KindCallAnswer and KindICECandidate
	// are also forwarded outbound with the sender envelope added.
	KindIdentityAssigned Kind = "identity-assigned"
	KindCallEnded        Kind = "call-ended"
)

// ClientMessage is an inbound signaling frame. Payload is opaque to the
// server and forwarded byte-identical.
type ClientMessage struct {
	Type    Kind            `json:"type"`
	Target  string          `json:"target,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Name    string          `json:"name,omitempty"`
}

// ServerMessage is an outbound frame. From is always the server-known sender
// identity; clients cannot spoof it.
type ServerMessage struct {
	Type    Kind            `json:"type"`
	ID      string          `json:"id,omitempty"`
	From    string          `json:"from,omitempty"`
	Name    string          `json:"name,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ParseClientMessage strictly decodes an inbound frame: unknown fields,
// trailing data, or missing required fields reject the message. A rejected
// message is ignored without tearing down the connection.
func ParseClientMessage(data []byte) (ClientMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var msg ClientMessage
	if err := dec.Decode(&msg); err != nil {
		return ClientMessage{}, err
	}
	if err := msg.validate(); err != nil {
		return ClientMessage{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return ClientMessage{}, fmt.Errorf("unexpected trailing data")
	}
	return msg, nil
}

func (m ClientMessage) validate() error {
	switch m.Type {
	case KindCallRequest:
		if m.Target == "" {
			return fmt.Errorf("call-request missing target")
		}
		if len(m.Payload) == 0 {
			return fmt.Errorf("call-request missing payload")
		}
	case KindCallAnswer:
		if m.Target == "" {
			return fmt.Errorf("call-answer missing target")
		}
		if len(m.Payload) == 0 {
			return fmt.Errorf("call-answer missing payload")
		}
		if m.Name != "" {
			return fmt.Errorf("call-answer has unexpected name")
		}
	case KindICECandidate:
		if m.Target == "" {
			return fmt.Errorf("ice-candidate missing target")
		}
		if len(m.Payload) == 0 {
			return fmt.Errorf("ice-candidate missing payload")
		}
		if m.Name != "" {
			return fmt.Errorf("ice-candidate has unexpected name")
		}
	case KindHangup:
		// Target is accepted for compatibility but ignored: the partner is
		// resolved through the pairing table.
		if len(m.Payload) != 0 || m.Name != "" {
			return fmt.Errorf("hangup has unexpected fields")
		}
	default:
		return fmt.Errorf("unsupported message type %q", m.Type)
	}
	return nil
}
