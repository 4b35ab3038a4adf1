package session

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultTimeout applies to requests that do not set their own
const DefaultTimeout = 10 * time.Second

// Request is one outbound message that expects exactly one reply
type Request struct {
	Type    string         // msg_type of the expected reply
	Payload map[string]any // venue request body
	Tag     string         // disambiguates same-typed requests in flight
	Timeout time.Duration  // 0 = DefaultTimeout, <0 = wait forever
}

func (r Request) key() string {
	return correlationKey(r.Type, r.Tag)
}

func correlationKey(msgType, tag string) string {
	return msgType + ":" + tag
}

// body copies the payload and attaches the tag as passthrough
func (r Request) body() map[string]any {
	out := make(map[string]any, len(r.Payload)+1)
	for k, v := range r.Payload {
		out[k] = v
	}
	if r.Tag != "" {
		out["passthrough"] = map[string]string{"tag": r.Tag}
	}
	return out
}

// Message is one decoded inbound frame
type Message struct {
	Type           string
	Tag            string
	SubscriptionID string
	Raw            json.RawMessage
}

// Decode unmarshals the whole frame into v
func (m Message) Decode(v any) error {
	if err := json.Unmarshal(m.Raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", m.Type, err)
	}
	return nil
}

// envelope is the part of every venue frame used for routing
type envelope struct {
	MsgType string `json:"msg_type"`
	EchoReq struct {
		Passthrough struct {
			Tag string `json:"tag"`
		} `json:"passthrough"`
	} `json:"echo_req"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Subscription *struct {
		ID string `json:"id"`
	} `json:"subscription"`
}

func parse(raw []byte) (envelope, Message, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, Message{}, err
	}

	msg := Message{
		Type: env.MsgType,
		Tag:  env.EchoReq.Passthrough.Tag,
		Raw:  append(json.RawMessage(nil), raw...),
	}
	if env.Subscription != nil {
		msg.SubscriptionID = env.Subscription.ID
	}
	return env, msg, nil
}
