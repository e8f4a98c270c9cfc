package feed

import (
	"context"
	"fmt"
	"sync"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/consultdesk/messaging-service/internal/model"
	"github.com/consultdesk/messaging-service/internal/pkg/jwt"
)

const eventBufSize = 64

// gatewayFrame is the wire envelope of the websocket gateway.
type gatewayFrame struct {
	// client → gateway
	Method  string `json:"method,omitempty"`
	Channel string `json:"channel,omitempty"`
	Token   string `json:"token,omitempty"`

	// gateway → client
	Type  string           `json:"type,omitempty"`
	Event *model.FeedEvent `json:"event,omitempty"`
	Error string           `json:"error,omitempty"`
}

const (
	frameAck   = "ack"
	frameEvent = "event"
	frameError = "error"
)

// Subscription is one live change-feed subscription for a single
// conversation channel. Connected fires once after the gateway acks
// the handshake; Done fires once when the channel dies. Close is
// idempotent.
type Subscription struct {
	conn *websocket.Conn

	events    chan model.FeedEvent
	connected chan struct{}
	done      chan error

	closeOnce sync.Once
}

func (s *Subscription) Events() <-chan model.FeedEvent { return s.events }
func (s *Subscription) Connected() <-chan struct{}     { return s.connected }
func (s *Subscription) Done() <-chan error             { return s.done }

func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		_ = s.conn.Close(websocket.StatusNormalClosure, "")
	})
	return nil
}

// Subscribe dials the gateway and subscribes to the conversation's
// channel with a fresh subscribe token. The caller owns the returned
// subscription and must Close it when the conversation view goes away.
func (c *Client) Subscribe(ctx context.Context, userID, conversationID string) (*Subscription, error) {
	token, _, err := c.tokens.GenerateSubscribeToken(userID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate subscribe token: %w", err)
	}

	conn, _, err := websocket.Dial(ctx, c.gatewayURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial gateway: %w", err)
	}

	frame := gatewayFrame{
		Method:  "subscribe",
		Channel: jwt.Channel(conversationID),
		Token:   token,
	}
	if err := wsjson.Write(ctx, conn, frame); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
		return nil, fmt.Errorf("failed to send subscribe frame: %w", err)
	}

	sub := &Subscription{
		conn:      conn,
		events:    make(chan model.FeedEvent, eventBufSize),
		connected: make(chan struct{}),
		done:      make(chan error, 1),
	}

	go sub.readLoop(ctx)

	return sub, nil
}

func (s *Subscription) readLoop(ctx context.Context) {
	acked := false

	for {
		var frame gatewayFrame
		if err := wsjson.Read(ctx, s.conn, &frame); err != nil {
			s.fail(err)
			return
		}

		switch frame.Type {
		case frameAck:
			if !acked {
				acked = true
				close(s.connected)
			}

		case frameEvent:
			if frame.Event == nil {
				continue
			}
			select {
			case s.events <- *frame.Event:
			case <-ctx.Done():
				s.fail(ctx.Err())
				return
			}

		case frameError:
			s.fail(fmt.Errorf("gateway error: %s", frame.Error))
			return
		}
	}
}

func (s *Subscription) fail(err error) {
	select {
	case s.done <- err:
	default:
	}
	_ = s.Close()
}
