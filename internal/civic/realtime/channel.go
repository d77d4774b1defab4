package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/petr-muller/civicfeed/internal/civic/model"
)

const (
	// TypeIssueCreated announces a newly published issue
	TypeIssueCreated = "issue:created"

	// MaxMessageSize bounds a single server push
	MaxMessageSize = 1 << 20

	closeWait = time.Second
)

// ErrDisabled is returned when no realtime endpoint is configured
var ErrDisabled = errors.New("realtime channel disabled")

// Message is the envelope of every server push
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Handler processes the payload of one message type
type Handler func(payload json.RawMessage) error

// Dispatcher routes messages to handlers by type. Unknown types are logged
// and dropped.
type Dispatcher struct {
	handlers map[string]Handler
}

// NewDispatcher creates an empty dispatch table
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: map[string]Handler{}}
}

// Handle registers h for messages of type t
func (d *Dispatcher) Handle(t string, h Handler) {
	d.handlers[t] = h
}

// Merger receives issues announced by the channel
type Merger interface {
	MergeRealtime(issue model.Issue) bool
}

// IssueDispatcher returns a dispatch table that merges created issues into m
func IssueDispatcher(m Merger) *Dispatcher {
	d := NewDispatcher()
	d.Handle(TypeIssueCreated, func(payload json.RawMessage) error {
		if len(payload) == 0 || string(payload) == "null" {
			return nil
		}
		var issue model.Issue
		if err := json.Unmarshal(payload, &issue); err != nil {
			return fmt.Errorf("malformed %s payload: %w", TypeIssueCreated, err)
		}
		if m.MergeRealtime(issue) {
			logrus.WithField("issue", issue.Key()).Debug("Merged announced issue")
		}
		return nil
	})
	return d
}

// Dispatch decodes one raw message and runs its handler. Errors never stop the
// subscription; they are only logged.
func (d *Dispatcher) Dispatch(raw []byte) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		logrus.WithError(err).Warn("Ignoring malformed realtime message")
		return
	}
	h, ok := d.handlers[msg.Type]
	if !ok {
		logrus.WithField("type", msg.Type).Debug("Ignoring realtime message of unknown type")
		return
	}
	if err := h(msg.Payload); err != nil {
		logrus.WithError(err).WithField("type", msg.Type).Warn("Failed to handle realtime message")
	}
}

// Subscription is a single best-effort WebSocket subscription. There is no
// reconnect; once the connection drops the subscription is done.
type Subscription struct {
	conn      *websocket.Conn
	done      chan struct{}
	closeOnce sync.Once
}

// Subscribe dials url once and dispatches every received message until the
// connection ends, ctx is cancelled or Close is called
func Subscribe(ctx context.Context, url string, d *Dispatcher) (*Subscription, error) {
	if url == "" {
		return nil, ErrDisabled
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to realtime channel: %w", err)
	}

	s := &Subscription{
		conn: conn,
		done: make(chan struct{}),
	}
	go s.readLoop(d)
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()

	logrus.WithField("url", url).Info("Subscribed to realtime channel")
	return s, nil
}

func (s *Subscription) readLoop(d *Dispatcher) {
	defer close(s.done)
	s.conn.SetReadLimit(MaxMessageSize)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, websocket.ErrCloseSent) {
				logrus.WithError(err).Debug("Realtime channel closed")
			}
			return
		}
		d.Dispatch(data)
	}
}

// Done is closed once the subscription stopped receiving
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close tears the connection down and waits for the reader to finish
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWait))
		_ = s.conn.Close()
	})
	<-s.done
}
