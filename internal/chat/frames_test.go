package chat

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestEncodeDecode(t *testing.T) {
	events := []Event{
		Connected{ID: "c1", Users: []User{{ID: "c1", Name: "User-0001"}}},
		Presence{Event: PresenceJoin, User: User{ID: "c2", Name: "User-0002"}},
		Typing{User: User{ID: "c2"}, IsTyping: true},
		Message{ID: "m1", Content: "mandi rates?", Sender: "user", Timestamp: "2026-03-15T10:00:00Z", Meta: json.RawMessage(`{}`)},
	}

	for _, ev := range events {
		t.Run(string(ev.Type()), func(t *testing.T) {
			data, err := Encode(ev)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if !strings.Contains(string(data), `"payload"`) {
				t.Errorf("frame missing payload envelope: %s", data)
			}

			got, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got.Type() != ev.Type() {
				t.Errorf("Type = %q, want %q", got.Type(), ev.Type())
			}
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"not json", `{oops`, ErrMalformedFrame},
		{"missing type", `{"payload":{}}`, ErrMalformedFrame},
		{"missing payload", `{"type":"message"}`, ErrMalformedFrame},
		{"bad payload", `{"type":"typing","payload":{"isTyping":"yes"}}`, ErrMalformedFrame},
		{"unknown type", `{"type":"reaction","payload":{}}`, ErrUnknownType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			if !errors.Is(err, tt.want) {
				t.Errorf("Decode() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestClientFrames(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	user := User{ID: "c1", Name: "You"}

	msg := NewMessage(user, "hello", nil, now)
	data, err := EncodeClientMessage(msg)
	if err != nil {
		t.Fatalf("EncodeClientMessage() error = %v", err)
	}

	var flat map[string]any
	json.Unmarshal(data, &flat)
	for _, key := range []string{"type", "id", "content", "sender", "user", "timestamp"} {
		if _, ok := flat[key]; !ok {
			t.Errorf("client message missing %q: %s", key, data)
		}
	}
	if flat["type"] != "message" || flat["sender"] != "user" {
		t.Errorf("client message = %s", data)
	}

	ev, err := DecodeClient(data, now)
	if err != nil {
		t.Fatalf("DecodeClient() error = %v", err)
	}
	m := ev.(Message)
	if m.ID != msg.ID || m.Content != "hello" || string(m.Meta) != "{}" {
		t.Errorf("decoded = %+v", m)
	}

	typing, _ := EncodeClientTyping(user, true)
	ev, err = DecodeClient(typing, now)
	if err != nil {
		t.Fatalf("DecodeClient(typing) error = %v", err)
	}
	if tp := ev.(Typing); !tp.IsTyping || tp.User.ID != "c1" {
		t.Errorf("typing = %+v", tp)
	}
}

func TestDecodeClient_TypingCoercion(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		value string
		want  bool
	}{
		{`true`, true},
		{`false`, false},
		{`1`, true},
		{`0`, false},
		{`"true"`, true},
		{`""`, false},
		{`null`, false},
		{`{}`, true},
		{`[]`, true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			data := `{"type":"typing","user":{"id":"c1","name":"A"},"isTyping":` + tt.value + `}`
			ev, err := DecodeClient([]byte(data), now)
			if err != nil {
				t.Fatalf("DecodeClient() error = %v", err)
			}
			if got := ev.(Typing).IsTyping; got != tt.want {
				t.Errorf("IsTyping = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeClient_Defaults(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

	ev, err := DecodeClient([]byte(`{"type":"message","content":"hi"}`), now)
	if err != nil {
		t.Fatalf("error = %v", err)
	}
	m := ev.(Message)
	if m.ID == "" || m.Sender != "user" || m.Timestamp != "2026-03-15T10:00:00Z" || string(m.Meta) != "{}" {
		t.Errorf("defaults not applied: %+v", m)
	}

	ev, _ = DecodeClient([]byte(`{"type":"typing","user":{"id":"x","name":"y"}}`), now)
	if ev.(Typing).IsTyping {
		t.Error("missing isTyping should decode as false")
	}

	if _, err := DecodeClient([]byte(`{"type":"presence"}`), now); !errors.Is(err, ErrUnknownType) {
		t.Errorf("presence from client: error = %v, want ErrUnknownType", err)
	}
	if _, err := DecodeClient([]byte(`[]`), now); !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("array frame: error = %v, want ErrMalformedFrame", err)
	}
}
