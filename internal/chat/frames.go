package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gramseva/marketfeed/internal/model"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownType    = errors.New("unknown frame type")
)

// FrameType tags a frame.
type FrameType string

const (
	TypeConnected FrameType = "connected"
	TypePresence  FrameType = "presence"
	TypeTyping    FrameType = "typing"
	TypeMessage   FrameType = "message"
)

// PresenceEvent is a presence change.
type PresenceEvent string

const (
	PresenceJoin  PresenceEvent = "join"
	PresenceLeave PresenceEvent = "leave"
)

// User identifies a chat participant.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Event is one of Connected, Presence, Typing or Message.
type Event interface {
	Type() FrameType
}

// Connected is sent to a client right after it joins.
type Connected struct {
	ID    string `json:"id"`
	Users []User `json:"users"`
}

// Presence announces a join or leave to the other clients.
type Presence struct {
	Event PresenceEvent `json:"event"`
	User  User          `json:"user"`
}

// Typing relays a typing indicator.
type Typing struct {
	User     User `json:"user"`
	IsTyping bool `json:"isTyping"`
}

// Message is a chat message.
type Message struct {
	ID        string          `json:"id"`
	Content   string          `json:"content"`
	Sender    string          `json:"sender"`
	User      *User           `json:"user,omitempty"`
	Timestamp string          `json:"timestamp"`
	Meta      json.RawMessage `json:"meta,omitempty"`
}

func (Connected) Type() FrameType { return TypeConnected }
func (Presence) Type() FrameType  { return TypePresence }
func (Typing) Type() FrameType    { return TypeTyping }
func (Message) Type() FrameType   { return TypeMessage }

// envelope is the server to client wire shape.
type envelope struct {
	Type    FrameType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Encode wraps ev in a server envelope.
func Encode(ev Event) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", ev.Type(), err)
	}
	return json.Marshal(envelope{Type: ev.Type(), Payload: payload})
}

// Decode parses a server envelope.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	var (
		ev  Event
		err error
	)
	switch env.Type {
	case TypeConnected:
		var v Connected
		err = unmarshalPayload(env.Payload, &v)
		ev = v
	case TypePresence:
		var v Presence
		err = unmarshalPayload(env.Payload, &v)
		ev = v
	case TypeTyping:
		var v Typing
		err = unmarshalPayload(env.Payload, &v)
		ev = v
	case TypeMessage:
		var v Message
		err = unmarshalPayload(env.Payload, &v)
		ev = v
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func unmarshalPayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return fmt.Errorf("%w: missing payload", ErrMalformedFrame)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Client to server
// -----------------------------------------------------------------------------

// outbound is the flat client to server shape.
type outbound struct {
	Type      FrameType       `json:"type"`
	ID        string          `json:"id,omitempty"`
	Content   string          `json:"content,omitempty"`
	Sender    string          `json:"sender,omitempty"`
	User      *User           `json:"user,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Meta      json.RawMessage `json:"meta,omitempty"`
	IsTyping  *truthy         `json:"isTyping,omitempty"`
}

// truthy decodes any JSON value by truthiness: false, null, 0 and "" are
// false, everything else is true. It encodes as a plain bool.
type truthy bool

func (t *truthy) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case nil:
		*t = false
	case bool:
		*t = truthy(x)
	case float64:
		*t = x != 0
	case string:
		*t = x != ""
	default:
		*t = true
	}
	return nil
}

// NewMessage builds an outbound user message.
func NewMessage(user User, content string, meta json.RawMessage, now time.Time) Message {
	return Message{
		ID:        model.NewID(),
		Content:   content,
		Sender:    "user",
		User:      &user,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
		Meta:      meta,
	}
}

// EncodeClientMessage encodes m as a flat client frame.
func EncodeClientMessage(m Message) ([]byte, error) {
	return json.Marshal(outbound{
		Type:      TypeMessage,
		ID:        m.ID,
		Content:   m.Content,
		Sender:    m.Sender,
		User:      m.User,
		Timestamp: m.Timestamp,
		Meta:      m.Meta,
	})
}

// EncodeClientTyping encodes a flat typing frame.
func EncodeClientTyping(user User, isTyping bool) ([]byte, error) {
	v := truthy(isTyping)
	return json.Marshal(outbound{
		Type:     TypeTyping,
		User:     &user,
		IsTyping: &v,
	})
}

// DecodeClient parses a flat client frame and normalizes it the way the
// relay rebroadcasts it: message frames get a default id, sender, timestamp
// and meta; typing frames coerce isTyping to a boolean.
func DecodeClient(data []byte, now time.Time) (Event, error) {
	var in outbound
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch in.Type {
	case TypeMessage:
		m := Message{
			ID:        in.ID,
			Content:   in.Content,
			Sender:    in.Sender,
			User:      in.User,
			Timestamp: in.Timestamp,
			Meta:      in.Meta,
		}
		if m.ID == "" {
			m.ID = model.NewID()
		}
		if m.Sender == "" {
			m.Sender = "user"
		}
		if m.Timestamp == "" {
			m.Timestamp = now.UTC().Format(time.RFC3339Nano)
		}
		if len(m.Meta) == 0 || string(m.Meta) == "null" {
			m.Meta = json.RawMessage(`{}`)
		}
		return m, nil

	case TypeTyping:
		t := Typing{IsTyping: in.IsTyping != nil && bool(*in.IsTyping)}
		if in.User != nil {
			t.User = *in.User
		}
		return t, nil

	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, in.Type)
	}
}
