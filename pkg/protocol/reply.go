package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

// ErrMalformedFrame is wrapped by every Decode failure.
var ErrMalformedFrame = errors.New("malformed frame")

// Frame is a decoded inbound envelope.
type Frame struct {
	Type    FrameType
	Account string
	Reply   Reply
}

// Reply is the tagged union of inbound payloads.
type Reply interface {
	reply()
}

// ConnectAck is the welcome message sent after an account is announced.
type ConnectAck struct {
	Info      string
	Docs      string
	Timestamp string
	Version   string
}

// AuthAck confirms an authKeyExpires request.
type AuthAck struct{}

// SubscribeAck confirms one subscribed channel key.
type SubscribeAck struct {
	Channel string
}

// UnsubscribeAck confirms one unsubscribed channel key.
type UnsubscribeAck struct {
	Channel string
}

// DataMessage is a table update: partial, insert, update or delete.
type DataMessage struct {
	Table     string
	Action    string
	Keys      []string
	Types     map[string]string
	FilterKey string
	Filter    map[string]json.RawMessage
	Data      json.RawMessage
}

// AutoCancelAck answers cancelAllAfter. Active is false when the switch was disarmed.
type AutoCancelAck struct {
	Now        time.Time
	CancelTime time.Time
	Active     bool
}

// StreamError is an exchange-reported {status, error} reply.
type StreamError struct {
	Status  int
	Message string
	// Op and Args echo the request that failed, when the exchange includes it.
	Op   string
	Args []string
}

// ForcedDisconnect is a type 2 frame: the account was removed from the socket.
type ForcedDisconnect struct{}

// Unknown is a payload that matched no known shape. It is not an error.
type Unknown struct {
	Raw json.RawMessage
}

func (ConnectAck) reply()       {}
func (AuthAck) reply()          {}
func (SubscribeAck) reply()     {}
func (UnsubscribeAck) reply()   {}
func (*DataMessage) reply()     {}
func (AutoCancelAck) reply()    {}
func (StreamError) reply()      {}
func (ForcedDisconnect) reply() {}
func (Unknown) reply()          {}

type requestEcho struct {
	Op   string          `json:"op"`
	Args json.RawMessage `json:"args"`
}

type rawPayload struct {
	Info      string          `json:"info"`
	Docs      string          `json:"docs"`
	Timestamp string          `json:"timestamp"`
	Version   json.RawMessage `json:"version"`

	Success     bool         `json:"success"`
	Subscribe   string       `json:"subscribe"`
	Unsubscribe string       `json:"unsubscribe"`
	Request     *requestEcho `json:"request"`

	Table     string                     `json:"table"`
	Action    string                     `json:"action"`
	Keys      []string                   `json:"keys"`
	Types     map[string]string          `json:"types"`
	FilterKey string                     `json:"filterKey"`
	Filter    map[string]json.RawMessage `json:"filter"`
	Data      json.RawMessage            `json:"data"`

	Now        string          `json:"now"`
	CancelTime json.RawMessage `json:"cancelTime"`

	Status int             `json:"status"`
	Error  json.RawMessage `json:"error"`
}

func (p *rawPayload) requestOp() string {
	if p.Request == nil {
		return ""
	}
	return p.Request.Op
}

// Decode parses one inbound text frame. Callers must filter keepalive
// replies with IsPong first.
func Decode(data []byte) (*Frame, error) {
	var slots []json.RawMessage
	if err := sonic.Unmarshal(data, &slots); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if len(slots) < 3 {
		return nil, fmt.Errorf("%w: envelope has %d slots", ErrMalformedFrame, len(slots))
	}

	var frameType int
	if err := sonic.Unmarshal(slots[0], &frameType); err != nil {
		return nil, fmt.Errorf("%w: frame type: %v", ErrMalformedFrame, err)
	}
	var account string
	if err := sonic.Unmarshal(slots[1], &account); err != nil {
		return nil, fmt.Errorf("%w: account key: %v", ErrMalformedFrame, err)
	}

	frame := &Frame{Type: FrameType(frameType), Account: account}
	switch frame.Type {
	case FrameMessage:
		if len(slots) < 4 {
			return nil, fmt.Errorf("%w: message frame without payload", ErrMalformedFrame)
		}
		reply, err := decodeReply(slots[3])
		if err != nil {
			return nil, err
		}
		frame.Reply = reply
	case FrameDisconnect:
		frame.Reply = ForcedDisconnect{}
	default:
		return nil, fmt.Errorf("%w: unexpected frame type %d", ErrMalformedFrame, frameType)
	}
	return frame, nil
}

func decodeReply(payload json.RawMessage) (Reply, error) {
	var p rawPayload
	if err := sonic.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrMalformedFrame, err)
	}

	switch {
	case p.Info != "" && p.Docs != "" && p.Timestamp != "" && len(p.Version) > 0:
		return ConnectAck{
			Info:      p.Info,
			Docs:      p.Docs,
			Timestamp: p.Timestamp,
			Version:   rawText(p.Version),
		}, nil

	case p.Success && p.requestOp() == OpAuth:
		return AuthAck{}, nil

	case p.Success && p.Subscribe != "":
		return SubscribeAck{Channel: p.Subscribe}, nil

	case p.Success && p.Unsubscribe != "":
		return UnsubscribeAck{Channel: p.Unsubscribe}, nil

	case p.Table != "" && p.Action != "":
		return &DataMessage{
			Table:     p.Table,
			Action:    p.Action,
			Keys:      p.Keys,
			Types:     p.Types,
			FilterKey: p.FilterKey,
			Filter:    p.Filter,
			Data:      p.Data,
		}, nil

	case p.Now != "" && p.requestOp() == OpAutoCancel:
		ack := AutoCancelAck{Now: parseTime(p.Now)}
		if cancel := rawText(p.CancelTime); cancel != "" && cancel != "0" && cancel != "null" {
			ack.Active = true
			ack.CancelTime = parseTime(cancel)
		}
		return ack, nil

	case p.Status != 0 && len(p.Error) > 0 && rawText(p.Error) != "null":
		se := StreamError{Status: p.Status, Message: rawText(p.Error)}
		if p.Request != nil {
			se.Op = p.Request.Op
			se.Args = stringArgs(p.Request.Args)
		}
		return se, nil
	}

	return Unknown{Raw: payload}, nil
}

// CompositeKey returns "table:value" where value is read from the first row,
// using FilterKey when set and "symbol" otherwise. ok is false when the
// message has no rows or the row lacks the field.
func (m *DataMessage) CompositeKey() (key string, ok bool) {
	var rows []map[string]json.RawMessage
	if err := sonic.Unmarshal(m.Data, &rows); err != nil || len(rows) == 0 {
		return "", false
	}

	field := "symbol"
	if m.FilterKey != "" {
		field = m.FilterKey
	}
	raw, found := rows[0][field]
	if !found {
		return "", false
	}
	value := rawText(raw)
	if value == "" || value == "null" {
		return "", false
	}
	return m.Table + ":" + value, true
}

// Rows decodes Data into generic rows.
func (m *DataMessage) Rows() ([]map[string]any, error) {
	var rows []map[string]any
	if err := m.DecodeData(&rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// DecodeData unmarshals Data into v, typically a pointer to a slice of row structs.
func (m *DataMessage) DecodeData(v any) error {
	if len(m.Data) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode %s rows: %w", m.Table, err)
	}
	return nil
}

// rawText returns a JSON string's contents, or the literal text of any other value.
func rawText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := sonic.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	if raw[0] == '{' {
		var obj struct {
			Message string `json:"message"`
		}
		if err := sonic.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
			return obj.Message
		}
	}
	return string(raw)
}

func stringArgs(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []json.RawMessage
	if err := sonic.Unmarshal(raw, &list); err != nil {
		return []string{rawText(raw)}
	}
	args := make([]string, 0, len(list))
	for _, item := range list {
		args = append(args, rawText(item))
	}
	return args
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
