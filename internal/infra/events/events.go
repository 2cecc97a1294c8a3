// Package events fans governance notifications out to observers.
//
//   - Bus:      in-process subscriptions by event type
//   - NATSSink: JSON publication on <prefix>.<type>
//   - Multi:    combines sinks
//
// Delivery is best effort. Observers never influence engine state.
package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/GianlucaGuarini/go-observable"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/tutu-network/guild/internal/domain"
)

// AllEvents subscribes to every event type.
const AllEvents = "all"

// ─── In-Process Bus ─────────────────────────────────────────────────────────

// Compile-time contract assertion.
var _ domain.EventSink = (*Bus)(nil)

// Handler receives one event.
type Handler func(ev domain.Event)

// Bus dispatches events to in-process subscribers.
type Bus struct {
	ob *observable.Observable
}

// NewBus creates a bus with no subscribers.
func NewBus() *Bus {
	return &Bus{ob: observable.New()}
}

// Emit notifies subscribers of ev's type, then AllEvents subscribers.
func (b *Bus) Emit(ev domain.Event) {
	b.ob.Trigger(string(ev.Type), ev)
	b.ob.Trigger(AllEvents, ev)
}

// Subscribe registers h for the given types, or for every event when no
// type is given. The returned func removes the subscription.
func (b *Bus) Subscribe(h Handler, types ...domain.EventType) (cancel func()) {
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, string(t))
	}
	if len(names) == 0 {
		names = append(names, AllEvents)
	}

	// One registration per name: observable passes the event name as an
	// extra first argument to callbacks bound to a space-separated list.
	onFunc := func(args ...interface{}) {
		if len(args) == 0 {
			return
		}
		if ev, ok := args[len(args)-1].(domain.Event); ok {
			h(ev)
		}
	}
	for _, name := range names {
		b.ob.On(name, onFunc)
	}
	return func() {
		for _, name := range names {
			b.ob.Off(name, onFunc)
		}
	}
}

// ─── NATS Sink ──────────────────────────────────────────────────────────────

// Compile-time contract assertion.
var _ domain.EventSink = (*NATSSink)(nil)

// Publisher is the subset of *nats.Conn the sink needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes every event as JSON on <prefix>.<type>.
type NATSSink struct {
	pub    Publisher
	prefix string
	log    *zap.Logger
}

// NewNATSSink creates a sink publishing through pub.
func NewNATSSink(pub Publisher, prefix string, log *zap.Logger) *NATSSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &NATSSink{
		pub:    pub,
		prefix: strings.TrimSuffix(prefix, "."),
		log:    log.Named("nats"),
	}
}

// Subject returns the subject an event type is published on.
func (s *NATSSink) Subject(t domain.EventType) string {
	if s.prefix == "" {
		return string(t)
	}
	return s.prefix + "." + string(t)
}

// Emit publishes ev. Failures are logged and dropped.
func (s *NATSSink) Emit(ev domain.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.log.Error("encode event", zap.Uint64("seq", ev.Seq), zap.Error(err))
		return
	}
	subject := s.Subject(ev.Type)
	if err := s.pub.Publish(subject, data); err != nil {
		s.log.Warn("publish event",
			zap.String("subject", subject),
			zap.Uint64("seq", ev.Seq),
			zap.Error(err),
		)
	}
}

// DialNATS connects to a NATS server with reconnects enabled.
func DialNATS(url, name string, log *zap.Logger) (*nats.Conn, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	return conn, nil
}

// ─── Fan-Out ────────────────────────────────────────────────────────────────

// Multi emits to every non-nil sink, in order.
type Multi []domain.EventSink

// Emit forwards ev to each sink.
func (m Multi) Emit(ev domain.Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ev)
		}
	}
}

// LogSink logs every event at debug level.
type LogSink struct {
	Log *zap.Logger
}

// Emit logs ev.
func (s LogSink) Emit(ev domain.Event) {
	s.Log.Debug("event",
		zap.Uint64("seq", ev.Seq),
		zap.String("type", string(ev.Type)),
		zap.String("actor", ev.Actor),
		zap.Uint64("proposal", ev.ProposalID),
		zap.Any("attrs", ev.Attrs),
	)
}
