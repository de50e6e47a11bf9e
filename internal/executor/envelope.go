package executor

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrDecode marks a push envelope whose data could not be turned into a plan.
var ErrDecode = errors.New("could not decode message")

type Kind int

const (
	// KindDirect is a plan posted as the request body itself.
	KindDirect Kind = iota + 1
	// KindPush is a push subscription envelope carrying the plan in message.data.
	KindPush
	// KindRaw is a body that was not JSON at all.
	KindRaw
)

func (k Kind) String() string {
	switch k {
	case KindDirect:
		return "direct"
	case KindPush:
		return "push"
	case KindRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// Delivery is one decoded inbound message. Plan holds a generic JSON value: normally an object,
// but any JSON value for direct deliveries, and a sentinel object for KindRaw or failed pushes.
type Delivery struct {
	Kind Kind
	Plan any
	// Err is ErrDecode (wrapped) when a push envelope's data was unusable.
	Err error

	MessageID    string
	PublishTime  time.Time
	Attributes   map[string]string
	Subscription string
}

type pushEnvelope struct {
	Message      json.RawMessage `json:"message"`
	Subscription string          `json:"subscription"`
}

type pushMessage struct {
	Data        json.RawMessage   `json:"data"`
	Attributes  map[string]string `json:"attributes"`
	MessageID   string            `json:"messageId"`
	PublishTime time.Time         `json:"publishTime"`
}

// Decode never fails; every body yields a Delivery.
func Decode(body []byte) Delivery {
	doc, err := decodeJSON(body)
	if err != nil {
		return Delivery{
			Kind: KindRaw,
			Plan: map[string]any{"raw": string(body)},
		}
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return Delivery{Kind: KindDirect, Plan: doc}
	}
	if _, ok := obj["message"]; !ok {
		return Delivery{Kind: KindDirect, Plan: obj}
	}
	return decodePush(body, obj)
}

func decodePush(body []byte, obj map[string]any) Delivery {
	d := Delivery{Kind: KindPush}

	var env pushEnvelope
	var msg pushMessage
	// Metadata is best effort: a malformed envelope still reaches the data path below.
	if err := json.Unmarshal(body, &env); err == nil {
		d.Subscription = env.Subscription
		if err := json.Unmarshal(env.Message, &msg); err == nil {
			d.MessageID = msg.MessageID
			d.PublishTime = msg.PublishTime
			d.Attributes = msg.Attributes
		}
	}

	var raw any = ""
	if m, ok := obj["message"].(map[string]any); ok {
		if v, ok := m["data"]; ok {
			raw = v
		}
	}

	p, err := decodeData(raw)
	if err != nil {
		d.Plan = map[string]any{"error": ErrDecode.Error(), "raw": raw}
		d.Err = fmt.Errorf("%w: %w", ErrDecode, err)
		return d
	}
	d.Plan = p
	return d
}

func decodeData(raw any) (any, error) {
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("data is %T, not a base64 string", raw)
	}
	decoded, err := decodeBase64(s)
	if err != nil {
		return nil, err
	}
	return decodeJSON(decoded)
}

var base64Encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

func decodeBase64(s string) ([]byte, error) {
	var firstErr error
	for _, enc := range base64Encodings {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, fmt.Errorf("invalid base64: %w", firstErr)
}

// decodeJSON parses exactly one JSON value, keeping numbers as json.Number.
func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after JSON value")
	}
	return v, nil
}

// As re-decodes the delivered plan into v.
func (d Delivery) As(v any) error {
	data, err := json.Marshal(d.Plan)
	if err != nil {
		return fmt.Errorf("failed to marshal delivered plan: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal delivered plan: %w", err)
	}
	return nil
}

// PlanID returns the plan_id field of an object plan, or nil.
func (d Delivery) PlanID() any {
	if obj, ok := d.Plan.(map[string]any); ok {
		return obj["plan_id"]
	}
	return nil
}
