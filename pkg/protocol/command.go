package protocol

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

// FrameType is the first slot of an envelope.
type FrameType int

const (
	FrameMessage    FrameType = 0
	FrameAnnounce   FrameType = 1
	FrameDisconnect FrameType = 2
)

func (t FrameType) String() string {
	switch t {
	case FrameMessage:
		return "message"
	case FrameAnnounce:
		return "announce"
	case FrameDisconnect:
		return "disconnect"
	default:
		return fmt.Sprintf("frame(%d)", int(t))
	}
}

// Operation names used in payload "op" fields.
const (
	OpAuth        = "authKeyExpires"
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpAutoCancel  = "cancelAllAfter"
)

var (
	// Ping is the keepalive probe, sent as a bare text frame.
	Ping = []byte("ping")
	pong = "pong"
)

// IsPong reports whether data is the keepalive reply.
func IsPong(data []byte) bool {
	return string(data) == pong
}

// Command is an outbound message for one account.
type Command interface {
	FrameType() FrameType
	// Payload returns the fourth envelope slot, or nil when there is none.
	Payload() any
}

type opPayload struct {
	Op   string `json:"op"`
	Args any    `json:"args"`
}

// Announce registers the account on the shared socket.
type Announce struct{}

func (Announce) FrameType() FrameType { return FrameAnnounce }
func (Announce) Payload() any         { return nil }

// Disconnect removes the account from the shared socket without closing it.
type Disconnect struct{}

func (Disconnect) FrameType() FrameType { return FrameDisconnect }
func (Disconnect) Payload() any         { return nil }

// Auth authenticates the account with an expiring signature.
type Auth struct {
	Key       string
	Expires   int64
	Signature string
}

func (Auth) FrameType() FrameType { return FrameMessage }
func (a Auth) Payload() any {
	return opPayload{Op: OpAuth, Args: []any{a.Key, a.Expires, a.Signature}}
}

// Subscribe requests the given channel keys. An empty list is sent as [].
type Subscribe struct {
	Channels []string
}

func (Subscribe) FrameType() FrameType { return FrameMessage }
func (s Subscribe) Payload() any {
	return opPayload{Op: OpSubscribe, Args: nonNil(s.Channels)}
}

// Unsubscribe drops the given channel keys.
type Unsubscribe struct {
	Channels []string
}

func (Unsubscribe) FrameType() FrameType { return FrameMessage }
func (u Unsubscribe) Payload() any {
	return opPayload{Op: OpUnsubscribe, Args: nonNil(u.Channels)}
}

// AutoCancel arms the dead-man's switch. A zero Timeout disarms it.
type AutoCancel struct {
	Timeout time.Duration
}

func (AutoCancel) FrameType() FrameType { return FrameMessage }
func (a AutoCancel) Payload() any {
	return opPayload{Op: OpAutoCancel, Args: a.Timeout.Milliseconds()}
}

func nonNil(channels []string) []string {
	if channels == nil {
		return []string{}
	}
	return channels
}

// Encode builds the envelope for cmd on behalf of accountKey.
func Encode(accountKey string, cmd Command) ([]byte, error) {
	envelope := []any{int(cmd.FrameType()), accountKey, accountKey}
	if payload := cmd.Payload(); payload != nil {
		envelope = append(envelope, payload)
	}
	data, err := sonic.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("marshal %s command: %w", cmd.FrameType(), err)
	}
	return data, nil
}
