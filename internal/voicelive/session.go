package voicelive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/contoso-voice/backend/pkg/audio"
)

// State is the session's upstream connection state. It is owned and
// transitioned only by Connect/Disconnect, never inferred from the transport.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// ToolDispatcher executes a named function call with JSON-encoded keyword
// arguments and returns the string result to send back into the conversation.
// Implementations convert their own failures into structured error results.
type ToolDispatcher interface {
	Execute(ctx context.Context, name string, args json.RawMessage) string
}

const (
	defaultNegotiationTimeout = 20 * time.Second
	dialHandshakeTimeout      = 15 * time.Second
	writeTimeout              = 10 * time.Second
)

type negotiationResult struct {
	sdp string
	err error
}

// Session relays one browser client conversation to the Voice Live service:
// it owns the upstream connection, the immutable session configuration, the
// event broadcaster and at most one in-flight avatar negotiation.
type Session struct {
	ID        string
	CreatedAt time.Time

	url    string
	apiKey string
	config SessionConfig

	broadcaster *Broadcaster
	tools       ToolDispatcher
	logger      *zap.Logger

	connectMu sync.Mutex // serializes Connect/Disconnect
	mu        sync.Mutex // guards state and conn
	state     State
	conn      *websocket.Conn
	writeMu   sync.Mutex // gorilla allows one concurrent writer

	negMu      sync.Mutex
	pending    chan negotiationResult
	negTimeout time.Duration
}

func newSession(id, wsURL, apiKey string, cfg SessionConfig, tools ToolDispatcher, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		ID:          id,
		CreatedAt:   time.Now(),
		url:         wsURL,
		apiKey:      apiKey,
		config:      cfg,
		broadcaster: NewBroadcaster(id, logger),
		tools:       tools,
		logger:      logger.With(zap.String("session_id", id)),
		state:       StateDisconnected,
		negTimeout:  defaultNegotiationTimeout,
	}
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers a new event subscriber queue.
func (s *Session) Subscribe() *Subscriber {
	return s.broadcaster.Register()
}

// Unsubscribe releases a subscriber queue.
func (s *Session) Unsubscribe(sub *Subscriber) {
	s.broadcaster.Unregister(sub)
}

// Connect opens the upstream transport, sends the initial session
// configuration and starts the receive loop. A no-op when already connected;
// safe to call concurrently with itself.
func (s *Session) Connect(ctx context.Context) error {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	if s.State() == StateConnected {
		return nil
	}
	s.setState(StateConnecting)

	header := http.Header{}
	header.Set("api-key", s.apiKey)
	dialer := websocket.Dialer{HandshakeTimeout: dialHandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, s.url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		s.setState(StateDisconnected)
		return fmt.Errorf("dial voice live: %w", err)
	}

	if err := s.writeTo(conn, typeSessionUpdate, map[string]any{"session": s.config}); err != nil {
		_ = conn.Close()
		s.setState(StateDisconnected)
		return fmt.Errorf("send session config: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.state = StateConnected
	s.mu.Unlock()

	go s.readLoop(conn)
	s.logger.Info("upstream connected")
	return nil
}

// Disconnect closes the upstream transport and cancels the receive loop.
// Idempotent. A pending avatar negotiation is failed immediately so its
// caller does not wait out the full deadline.
func (s *Session) Disconnect() {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.state = StateDisconnected
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
		s.logger.Info("upstream disconnected")
	}
	s.failPendingNegotiation(ErrConnectionUnavailable)
}

// Close tears the session down: upstream connection and all subscriber queues.
func (s *Session) Close() {
	s.Disconnect()
	s.broadcaster.Close()
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) currentConn() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// ensureConnected reconnects if the session dropped its transport.
func (s *Session) ensureConnected(ctx context.Context) error {
	if s.State() == StateConnected {
		return nil
	}
	if err := s.Connect(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionUnavailable, err)
	}
	if s.State() != StateConnected {
		return ErrConnectionUnavailable
	}
	return nil
}

// writeTo serializes one envelope onto a specific connection.
func (s *Session) writeTo(conn *websocket.Conn, typ string, fields map[string]any) error {
	body, err := envelope(typ, fields)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, body)
}

// sendEvent writes one event upstream, attempting exactly one reconnect when
// the transport is closed. A second failure is surfaced to the caller.
func (s *Session) sendEvent(ctx context.Context, typ string, fields map[string]any) error {
	if err := s.ensureConnected(ctx); err != nil {
		return err
	}
	conn := s.currentConn()
	if conn == nil {
		return ErrConnectionUnavailable
	}
	if err := s.writeTo(conn, typ, fields); err == nil {
		return nil
	}

	// Write failed on a stale transport: drop it and retry once on a fresh one.
	s.dropConn(conn)
	if err := s.ensureConnected(ctx); err != nil {
		return err
	}
	conn = s.currentConn()
	if conn == nil {
		return ErrConnectionUnavailable
	}
	if err := s.writeTo(conn, typ, fields); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionUnavailable, err)
	}
	return nil
}

// dropConn clears the connection if it is still current, so the next outbound
// call triggers a fresh connect.
func (s *Session) dropConn(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != conn {
		return false
	}
	s.conn = nil
	s.state = StateDisconnected
	_ = conn.Close()
	return true
}

// SendUserMessage sends a user text turn and asks the model to respond.
func (s *Session) SendUserMessage(ctx context.Context, text string) error {
	err := s.sendEvent(ctx, typeItemCreate, map[string]any{
		"item": map[string]any{
			"type": "message",
			"role": "user",
			"content": []map[string]any{
				{"type": "input_text", "text": text},
			},
		},
	})
	if err != nil {
		return err
	}
	return s.sendEvent(ctx, typeResponseCreate, nil)
}

// SendAudioChunk appends one microphone frame to the upstream input buffer.
// Float32 frames are converted to 16-bit PCM; pcm16 passes through unchanged.
func (s *Session) SendAudioChunk(ctx context.Context, dataB64, encoding string) error {
	payload := dataB64
	if encoding != "pcm16" {
		converted, err := audio.Float32Base64ToPCM16Base64(dataB64)
		if err != nil {
			return fmt.Errorf("convert audio chunk: %w", err)
		}
		payload = converted
	}
	return s.sendEvent(ctx, typeAudioAppend, map[string]any{"audio": payload})
}

// CommitAudio commits the buffered input audio as one user turn.
func (s *Session) CommitAudio(ctx context.Context) error {
	return s.sendEvent(ctx, typeAudioCommit, nil)
}

// ClearAudio discards the buffered input audio.
func (s *Session) ClearAudio(ctx context.Context) error {
	return s.sendEvent(ctx, typeAudioClear, nil)
}

// RequestResponse asks the model to generate a response now.
func (s *Session) RequestResponse(ctx context.Context) error {
	return s.sendEvent(ctx, typeResponseCreate, nil)
}

// ConnectAvatar performs the one-shot avatar SDP negotiation: sends the
// encoded client offer upstream and waits for the negotiating event carrying
// the answer. A second offer while one is outstanding is rejected.
func (s *Session) ConnectAvatar(ctx context.Context, offerSDP string) (string, error) {
	if err := s.ensureConnected(ctx); err != nil {
		return "", err
	}

	s.negMu.Lock()
	if s.pending != nil {
		s.negMu.Unlock()
		return "", ErrNegotiationPending
	}
	slot := make(chan negotiationResult, 1)
	s.pending = slot
	s.negMu.Unlock()

	clientSDP, err := EncodeOffer(offerSDP)
	if err != nil {
		s.clearNegotiation(slot)
		return "", fmt.Errorf("encode offer: %w", err)
	}
	err = s.sendEvent(ctx, typeAvatarConnect, map[string]any{
		"client_sdp": clientSDP,
		"rtc_configuration": map[string]any{
			"bundle_policy": "max-bundle",
		},
	})
	if err != nil {
		s.clearNegotiation(slot)
		return "", err
	}

	timer := time.NewTimer(s.negTimeout)
	defer timer.Stop()
	select {
	case res := <-slot:
		if res.err != nil {
			return "", res.err
		}
		return res.sdp, nil
	case <-timer.C:
		s.clearNegotiation(slot)
		return "", ErrNegotiationTimeout
	case <-ctx.Done():
		s.clearNegotiation(slot)
		return "", ctx.Err()
	}
}

// resolveNegotiation hands the decoded answer to the waiting caller. A
// resolution arriving after the slot was cleared is a no-op.
func (s *Session) resolveNegotiation(res negotiationResult) {
	s.negMu.Lock()
	slot := s.pending
	s.pending = nil
	s.negMu.Unlock()
	if slot == nil {
		return
	}
	slot <- res
}

func (s *Session) failPendingNegotiation(err error) {
	s.resolveNegotiation(negotiationResult{err: err})
}

// clearNegotiation empties the slot if it still belongs to this caller.
func (s *Session) clearNegotiation(slot chan negotiationResult) {
	s.negMu.Lock()
	if s.pending == slot {
		s.pending = nil
	}
	s.negMu.Unlock()
}

// runToolCall executes one function call and feeds the result back into the
// conversation. Runs on its own goroutine so a slow tool cannot stall the
// receive loop.
func (s *Session) runToolCall(name, callID, arguments string) {
	result := s.tools.Execute(context.Background(), name, json.RawMessage(arguments))

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	err := s.sendEvent(ctx, typeItemCreate, map[string]any{
		"item": map[string]any{
			"type":    "function_call_output",
			"call_id": callID,
			"output":  result,
		},
	})
	if err != nil {
		s.logger.Error("send function call output", zap.String("function", name), zap.Error(err))
		return
	}
	if err := s.sendEvent(ctx, typeResponseCreate, nil); err != nil {
		s.logger.Error("request response after function call", zap.String("function", name), zap.Error(err))
		return
	}
	s.broadcaster.Publish(NewEvent(EventFunctionCallCompleted, map[string]any{"name": name}))
}
