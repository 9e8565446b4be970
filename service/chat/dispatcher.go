package chat

import (
	"context"
	"encoding/json"

	"ChirpChat/tools/errs"
)

// HandlerFunc processes one inbound event for a connected client. The raw
// frame is the full client JSON; handlers unmarshal their own typed request.
type HandlerFunc func(ctx context.Context, c *Client, raw json.RawMessage) error

type Dispatcher struct {
	handlers map[EventType]HandlerFunc
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[EventType]HandlerFunc)}
}

func (d *Dispatcher) Register(t EventType, h HandlerFunc) { d.handlers[t] = h }

func (d *Dispatcher) Dispatch(ctx context.Context, t EventType, c *Client, raw json.RawMessage) error {
	h, ok := d.handlers[t]
	if !ok {
		return errs.ErrBadPayload.WithDetail("unknown event_type: " + string(t))
	}
	return h(ctx, c, raw)
}
