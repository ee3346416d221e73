package client

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"portal-chat/internal/models"
	"portal-chat/internal/observability"
)

// FeedState is the subscription lifecycle state.
type FeedState int32

const (
	StateUnsubscribed FeedState = iota
	StateSubscribing
	StateActive
	StateClosed
	StateError
	StateTimedOut
)

func (s FeedState) String() string {
	switch s {
	case StateUnsubscribed:
		return "unsubscribed"
	case StateSubscribing:
		return "subscribing"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	case StateTimedOut:
		return "timed_out"
	}
	return "unknown"
}

// FeedHandler receives one change feed event.
type FeedHandler func(models.FeedEvent)

// StatusHandler observes subscription state transitions.
type StatusHandler func(FeedState)

// SubscriberConfig tunes the change feed subscriber.
type SubscriberConfig struct {
	// URL is the websocket feed endpoint, e.g. ws://host/ws/feed.
	URL string
	// ReconnectDelay is the fixed pause before a resubscribe attempt.
	ReconnectDelay time.Duration
	// PingInterval and ReadTimeout drive liveness detection.
	PingInterval time.Duration
	ReadTimeout  time.Duration
	Log          *logrus.Logger
}

// Subscriber owns the single live change feed subscription for an identity.
// On losing an active subscription it retries after the fixed delay,
// indefinitely, until the feed is regained or Unsubscribe is called.
// Subscribing while a subscription exists tears down the old one first, so
// a dangling subscription can never leak across an identity change.
type Subscriber struct {
	cfg    SubscriberConfig
	dialer *websocket.Dialer

	mu       sync.Mutex
	state    FeedState
	cancel   chan struct{}
	conn     *websocket.Conn
	onEvent  FeedHandler
	onStatus StatusHandler
}

// NewSubscriber builds an unsubscribed Subscriber.
func NewSubscriber(cfg SubscriberConfig) *Subscriber {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.Log == nil {
		cfg.Log = logrus.New()
	}
	return &Subscriber{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		state:  StateUnsubscribed,
	}
}

// State returns the current subscription state.
func (s *Subscriber) State() FeedState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe opens the feed for the identity behind the token. Any existing
// subscription is released first.
func (s *Subscriber) Subscribe(token string, onEvent FeedHandler, onStatus StatusHandler) {
	s.Unsubscribe()

	s.mu.Lock()
	done := make(chan struct{})
	s.cancel = done
	s.onEvent = onEvent
	s.onStatus = onStatus
	s.mu.Unlock()

	go s.run(token, done)
}

// Unsubscribe tears down the subscription. Terminal; the reconnect loop does
// not survive it.
func (s *Subscriber) Unsubscribe() {
	s.mu.Lock()
	if s.cancel != nil {
		close(s.cancel)
		s.cancel = nil
	}
	conn := s.conn
	s.conn = nil
	s.state = StateUnsubscribed
	onStatus := s.onStatus
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if onStatus != nil {
		onStatus(StateUnsubscribed)
	}
}

func (s *Subscriber) run(token string, done chan struct{}) {
	first := true
	for {
		if !first {
			observability.IncFeedReconnect()
		}
		first = false

		s.setState(done, StateSubscribing)
		header := http.Header{"Authorization": []string{"Bearer " + token}}
		conn, resp, err := s.dialer.Dial(s.cfg.URL, header)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			s.cfg.Log.WithError(err).Warn("feed dial failed")
			s.setState(done, StateError)
			if !s.pause(done) {
				return
			}
			continue
		}

		select {
		case <-done:
			conn.Close()
			return
		default:
		}

		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		s.setState(done, StateActive)

		next := s.readLoop(conn, done)

		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.mu.Unlock()
		conn.Close()

		select {
		case <-done:
			return
		default:
		}

		s.cfg.Log.WithField("state", next.String()).Warn("feed subscription lost, reconnecting")
		s.setState(done, next)
		if !s.pause(done) {
			return
		}
	}
}

// readLoop pumps events until the connection dies and classifies the exit.
func (s *Subscriber) readLoop(conn *websocket.Conn, done chan struct{}) FeedState {
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	})

	stop := make(chan struct{})
	defer close(stop)
	go s.pingLoop(conn, stop, done)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			switch {
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				return StateClosed
			case isTimeout(err):
				return StateTimedOut
			default:
				return StateError
			}
		}

		var event models.FeedEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			s.cfg.Log.WithError(err).Warn("malformed feed event")
			continue
		}
		s.emit(event)
	}
}

func (s *Subscriber) pingLoop(conn *websocket.Conn, stop, done chan struct{}) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(5 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (s *Subscriber) emit(event models.FeedEvent) {
	s.mu.Lock()
	onEvent := s.onEvent
	s.mu.Unlock()
	if onEvent != nil {
		onEvent(event)
	}
}

// pause waits the fixed reconnect delay. Returns false when the subscriber
// was torn down while waiting.
func (s *Subscriber) pause(done chan struct{}) bool {
	timer := time.NewTimer(s.cfg.ReconnectDelay)
	defer timer.Stop()
	select {
	case <-done:
		return false
	case <-timer.C:
		return true
	}
}

// setState records a transition and tells the status handler, unless the
// subscription was torn down in the meantime.
func (s *Subscriber) setState(done chan struct{}, state FeedState) {
	select {
	case <-done:
		return
	default:
	}

	s.mu.Lock()
	s.state = state
	onStatus := s.onStatus
	s.mu.Unlock()
	if onStatus != nil {
		onStatus(state)
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
