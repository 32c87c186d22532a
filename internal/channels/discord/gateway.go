package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	. "github.com/hwestman/personabot/internal/logging"
	. "github.com/hwestman/personabot/internal/metrics"
)

// Gateway opcodes.
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opResume         = 6
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatAck   = 11
)

// Gateway intents: GUILDS, GUILD_MESSAGES, DIRECT_MESSAGES and the
// privileged MESSAGE_CONTENT, which mention handling cannot work
// without.
const gatewayIntents = 1<<0 | 1<<9 | 1<<12 | 1<<15

// Close codes that reconnecting will never fix.
var fatalCloseCodes = []int{
	4004, // authentication failed
	4010, // invalid shard
	4011, // sharding required
	4012, // invalid API version
	4013, // invalid intents
	4014, // disallowed intents
}

const gatewayQuery = "/?v=10&encoding=json"

// dispatchFunc receives every gateway event by name.
type dispatchFunc func(event string, data json.RawMessage)

// session maintains one gateway connection: hello/identify handshake,
// heartbeats, and transparent resume or re-identify after drops. Events
// are handed to dispatch on the session's read goroutine.
type session struct {
	token    string
	url      string
	dispatch dispatchFunc

	mu        sync.Mutex
	conn      *websocket.Conn
	sessionID string
	resumeURL string

	seq       atomic.Int64
	acked     atomic.Bool
	connected atomic.Bool

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

type gatewayPayload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  int64           `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

func newSession(token, url string, dispatch dispatchFunc) *session {
	return &session{
		token:    token,
		url:      url,
		dispatch: dispatch,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Open performs the first connect synchronously so a bad token or
// disallowed intents fail the channel start, then keeps the connection
// alive in the background until Close.
func (s *session) Open(ctx context.Context) error {
	if err := s.connect(ctx); err != nil {
		return err
	}
	go s.run(ctx)
	return nil
}

// Close tears down the connection and stops reconnecting.
func (s *session) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.mu.Unlock()
	<-s.doneCh
}

// Connected reports whether a live gateway connection exists.
func (s *session) Connected() bool {
	return s.connected.Load()
}

// run reads the current connection until it drops, then reconnects
// with backoff. Fatal close codes end the session.
func (s *session) run(ctx context.Context) {
	defer close(s.doneCh)
	defer s.connected.Store(false)

	backoff := time.Second
	for {
		err := s.readLoop()
		s.connected.Store(false)
		MetricInc("discord", "gateway_disconnects")

		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if isFatalClose(err) {
			L_error("discord: gateway closed permanently, not reconnecting", "error", err)
			return
		}
		L_warn("discord: gateway connection lost, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-time.After(backoff):
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}

		if err := s.connect(ctx); err != nil {
			L_warn("discord: gateway reconnect failed", "error", err)
			backoff *= 2
			if backoff > time.Minute {
				backoff = time.Minute
			}
			continue
		}
		backoff = time.Second
	}
}

// connect dials, completes the hello handshake and sends either a
// resume or a fresh identify. The heartbeat loop starts here.
func (s *session) connect(ctx context.Context) error {
	url := s.url
	s.mu.Lock()
	resuming := s.sessionID != "" && s.resumeURL != ""
	if resuming {
		url = s.resumeURL
	}
	s.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url+gatewayQuery, nil)
	if err != nil {
		return fmt.Errorf("dialing gateway: %w", err)
	}

	var hello gatewayPayload
	if err := conn.ReadJSON(&hello); err != nil {
		conn.Close()
		return fmt.Errorf("reading hello: %w", err)
	}
	if hello.Op != opHello {
		conn.Close()
		return fmt.Errorf("expected hello, got op %d", hello.Op)
	}
	var helloData struct {
		HeartbeatInterval int `json:"heartbeat_interval"`
	}
	if err := json.Unmarshal(hello.D, &helloData); err != nil || helloData.HeartbeatInterval <= 0 {
		conn.Close()
		return fmt.Errorf("bad hello payload: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	if resuming {
		err = s.sendResume()
	} else {
		err = s.sendIdentify()
	}
	if err != nil {
		conn.Close()
		return err
	}

	s.acked.Store(true)
	s.connected.Store(true)
	interval := time.Duration(helloData.HeartbeatInterval) * time.Millisecond
	go s.heartbeatLoop(conn, interval)

	L_debug("discord: gateway connected", "resumed", resuming, "heartbeat", interval)
	return nil
}

// readLoop consumes payloads until the connection errors.
func (s *session) readLoop() error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return errors.New("no connection")
	}

	for {
		var p gatewayPayload
		if err := conn.ReadJSON(&p); err != nil {
			return err
		}

		switch p.Op {
		case opDispatch:
			s.seq.Store(p.S)
			s.handleDispatch(p)
		case opHeartbeat:
			s.sendHeartbeat(conn)
		case opHeartbeatAck:
			s.acked.Store(true)
		case opReconnect:
			L_info("discord: gateway requested reconnect")
			conn.Close()
			return nil
		case opInvalidSession:
			var resumable bool
			_ = json.Unmarshal(p.D, &resumable)
			if !resumable {
				s.mu.Lock()
				s.sessionID = ""
				s.resumeURL = ""
				s.mu.Unlock()
				// The gateway wants a fresh identify after a short,
				// randomized wait.
				time.Sleep(time.Duration(1+rand.Intn(4)) * time.Second)
			}
			L_info("discord: gateway session invalidated", "resumable", resumable)
			conn.Close()
			return nil
		}
	}
}

func (s *session) handleDispatch(p gatewayPayload) {
	if p.T == "READY" {
		var ready struct {
			SessionID        string `json:"session_id"`
			ResumeGatewayURL string `json:"resume_gateway_url"`
		}
		if err := json.Unmarshal(p.D, &ready); err == nil {
			s.mu.Lock()
			s.sessionID = ready.SessionID
			s.resumeURL = ready.ResumeGatewayURL
			s.mu.Unlock()
		}
	}
	s.dispatch(p.T, p.D)
}

// heartbeatLoop beats at the server's interval, after an initial
// jittered delay per the gateway contract. A missed ack closes the
// connection so the read loop reconnects.
func (s *session) heartbeatLoop(conn *websocket.Conn, interval time.Duration) {
	first := time.Duration(rand.Float64() * float64(interval))
	select {
	case <-time.After(first):
	case <-s.stopCh:
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		// A reconnect replaces s.conn; the loop for the old connection
		// must not judge the new one's acks.
		s.mu.Lock()
		current := s.conn == conn
		s.mu.Unlock()
		if !current {
			return
		}
		if !s.acked.Load() {
			L_warn("discord: heartbeat ack missing, recycling connection")
			conn.Close()
			return
		}
		s.acked.Store(false)
		if err := s.sendHeartbeat(conn); err != nil {
			return
		}

		select {
		case <-ticker.C:
		case <-s.stopCh:
			return
		}
	}
}

func (s *session) sendHeartbeat(conn *websocket.Conn) error {
	seq := s.seq.Load()
	var d json.RawMessage
	if seq > 0 {
		d = json.RawMessage(fmt.Sprintf("%d", seq))
	} else {
		d = json.RawMessage("null")
	}
	return s.write(conn, gatewayPayload{Op: opHeartbeat, D: d})
}

func (s *session) sendIdentify() error {
	identify := map[string]any{
		"token":   s.token,
		"intents": gatewayIntents,
		"properties": map[string]string{
			"os":      runtime.GOOS,
			"browser": "personabot",
			"device":  "personabot",
		},
	}
	d, err := json.Marshal(identify)
	if err != nil {
		return fmt.Errorf("encoding identify: %w", err)
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	return s.write(conn, gatewayPayload{Op: opIdentify, D: d})
}

func (s *session) sendResume() error {
	s.mu.Lock()
	resume := map[string]any{
		"token":      s.token,
		"session_id": s.sessionID,
		"seq":        s.seq.Load(),
	}
	conn := s.conn
	s.mu.Unlock()

	d, err := json.Marshal(resume)
	if err != nil {
		return fmt.Errorf("encoding resume: %w", err)
	}
	return s.write(conn, gatewayPayload{Op: opResume, D: d})
}

// write serializes websocket writes; gorilla connections allow one
// concurrent writer and heartbeats race the handshake sends.
func (s *session) write(conn *websocket.Conn, p gatewayPayload) error {
	if conn == nil {
		return errors.New("no connection")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return conn.WriteJSON(p)
}

func isFatalClose(err error) bool {
	if err == nil {
		return false
	}
	return websocket.IsCloseError(err, fatalCloseCodes...)
}
