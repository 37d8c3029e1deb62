// Package session owns one broker session per connectivity epoch.
package session

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/go-logr/logr"

	"github.com/tramcast/tramcast/internal/agent/core"
	"github.com/tramcast/tramcast/pkg/log"
	"github.com/tramcast/tramcast/pkg/mqtt"
)

// ErrSubscribe ends a session whose subscriptions could not be established.
var ErrSubscribe = errors.New("failed to subscribe")

// Config describes a session.
type Config struct {
	Endpoint string
	ClientID string

	// Topics are subscribed on every Connected event.
	Topics []string
	QoS    mqtt.QoS

	// ReadinessTopic receives ReadinessPayload after subscribing, at most
	// once, not retained. Empty disables the notice.
	ReadinessTopic   string
	ReadinessPayload []byte
}

// HandlerFunc processes one inbound frame. A fatal error ends Serve; any
// other error drops the frame.
type HandlerFunc func(ctx context.Context, msg mqtt.Message) error

// Session is a broker session. It is never resumed: after Disconnected the
// caller closes it and opens a new one.
type Session struct {
	client    mqtt.Client
	cfg       Config
	publisher core.Publisher

	up bool

	// subscribed receives the outcome of the subscriptions started on the
	// last Connected. It is nil when none are in flight.
	subscribed <-chan error
	cancelSub  context.CancelFunc
}

// Open creates and starts a broker client. Connection progress is reported
// through Events.
func Open(ctx context.Context, broker core.Broker, cfg Config, publisher core.Publisher) (*Session, error) {
	client, err := broker.Open(ctx, cfg.Endpoint, cfg.ClientID)
	if err != nil {
		return nil, fmt.Errorf("failed to open broker session: %w", err)
	}
	if err := client.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start broker client: %w", err)
	}

	log.Info("Broker session opened", "endpoint", cfg.Endpoint, "clientID", cfg.ClientID)
	return &Session{client: client, cfg: cfg, publisher: publisher}, nil
}

// Subscribe subscribes every topic at the session QoS.
func (s *Session) Subscribe(ctx context.Context, topics ...string) error {
	for _, t := range topics {
		if err := s.client.Subscribe(ctx, t, s.cfg.QoS); err != nil {
			return fmt.Errorf("%w to %q: %w", ErrSubscribe, t, err)
		}
	}
	return nil
}

// Publish sends payload to topic.
func (s *Session) Publish(ctx context.Context, topic string, payload []byte, qos mqtt.QoS, retain bool) error {
	return s.client.Publish(ctx, topic, qos, retain, payload)
}

// Events yields the client's events until Disconnected, which is yielded
// last, or until ctx is done. A broker that never connects blocks the
// sequence until ctx is done.
//
// On Connected the session subscribes and sends the readiness notice in the
// background while frames keep flowing, since the client cannot read the
// acknowledgements while its event channel is full. Once that is done it
// publishes SessionChanged(true) and yields the Connected event. A failed
// subscription is reported as Disconnected.
func (s *Session) Events(ctx context.Context) iter.Seq[mqtt.Event] {
	return func(yield func(mqtt.Event) bool) {
		for {
			var ev mqtt.Event
			select {
			case <-ctx.Done():
				return
			case err := <-s.subscribed:
				ev = s.subscriptionDone(err)
			case ev = <-s.client.Events():
				if ev.Kind == mqtt.EventConnected {
					// A reconnect while subscribing starts over on the new connection.
					s.subscribe(ctx)
					continue
				}
			}

			switch ev.Kind {
			case mqtt.EventSubscribed:
				log.Debug("Subscription acknowledged", "topic", ev.Topic)
			case mqtt.EventUnsubscribed:
				log.Debug("Unsubscription acknowledged", "topic", ev.Topic)
			}

			if ev.Kind == mqtt.EventDisconnected {
				if s.subscribed != nil {
					s.cancelSub()
					if up := s.subscriptionDone(<-s.subscribed); up.Kind == mqtt.EventConnected {
						if !yield(up) {
							return
						}
					}
				}
				log.Warn("Broker session disconnected", "error", ev.Err)
				s.setUp(false)
				yield(ev)
				return
			}

			if !yield(ev) {
				return
			}
		}
	}
}

// subscribe starts the subscriptions for a new connection.
func (s *Session) subscribe(ctx context.Context) {
	if s.cancelSub != nil {
		s.cancelSub()
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	s.subscribed, s.cancelSub = done, cancel

	go func() {
		done <- s.onConnected(ctx)
	}()
}

// subscriptionDone turns the outcome of subscribe into the event to yield.
func (s *Session) subscriptionDone(err error) mqtt.Event {
	s.subscribed = nil
	s.cancelSub()
	if err != nil {
		return mqtt.Event{Kind: mqtt.EventDisconnected, Err: err}
	}

	log.Info("Broker session established", "topics", len(s.cfg.Topics))
	s.setUp(true)
	return mqtt.Event{Kind: mqtt.EventConnected}
}

func (s *Session) onConnected(ctx context.Context) error {
	if err := s.Subscribe(ctx, s.cfg.Topics...); err != nil {
		return err
	}

	if s.cfg.ReadinessTopic != "" {
		if err := s.Publish(ctx, s.cfg.ReadinessTopic, s.cfg.ReadinessPayload, mqtt.AtMostOnce, false); err != nil {
			log.Warn("Failed to publish readiness notice", "topic", s.cfg.ReadinessTopic, "error", err)
		}
	}
	return nil
}

// Serve passes every received frame to handle, in arrival order, until the
// session disconnects (nil), ctx is done (ctx.Err()) or handle returns a
// fatal error.
func (s *Session) Serve(ctx context.Context, handle HandlerFunc) error {
	logger := log.Logr()
	for ev := range s.Events(ctx) {
		if ev.Kind != mqtt.EventReceived || ev.Message == nil {
			continue
		}
		msg := *ev.Message
		hctx := logr.NewContext(ctx, logger.WithValues("topic", msg.Topic, "chunk", msg.Details.Kind.String()))
		if err := handle(hctx, msg); err != nil {
			if core.IsFatal(err) {
				return err
			}
			log.Warn("Dropped message", "topic", msg.Topic, "error", err)
		}
	}
	return ctx.Err()
}

// Close publishes SessionChanged(false) if the session is still up and
// disconnects the client.
func (s *Session) Close(ctx context.Context) {
	if s.cancelSub != nil {
		s.cancelSub()
	}
	s.setUp(false)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	s.client.Disconnect(ctx)
}

// Up reports whether the session is connected and subscribed.
func (s *Session) Up() bool {
	return s.up
}

func (s *Session) setUp(up bool) {
	if s.up == up {
		return
	}
	s.up = up
	s.publisher.Send(core.Session(up))
}
