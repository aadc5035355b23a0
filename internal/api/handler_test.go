package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/contoso-voice/backend/internal/voicelive"
)

// upstreamStub plays the Voice Live service for the API tests: it answers
// avatar offers and can push events down to connected sessions.
type upstreamStub struct {
	t        *testing.T
	srv      *httptest.Server
	mu       sync.Mutex
	conns    []*websocket.Conn
	received chan map[string]any
}

func newUpstreamStub(t *testing.T) *upstreamStub {
	t.Helper()
	u := &upstreamStub{t: t, received: make(chan map[string]any, 128)}
	upgrader := websocket.Upgrader{}
	u.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		u.mu.Lock()
		u.conns = append(u.conns, conn)
		u.mu.Unlock()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg map[string]any
			if json.Unmarshal(data, &msg) != nil {
				continue
			}
			if msg["type"] == "session.avatar.connect" {
				reply, _ := json.Marshal(map[string]any{
					"type":       "session.avatar.connecting",
					"server_sdp": "v=0\r\nanswer",
				})
				_ = conn.WriteMessage(websocket.TextMessage, reply)
			}
			u.received <- msg
		}
	}))
	t.Cleanup(u.srv.Close)
	return u
}

func (u *upstreamStub) url() string {
	return "ws" + strings.TrimPrefix(u.srv.URL, "http")
}

func (u *upstreamStub) waitFor(typ string) map[string]any {
	u.t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case msg := <-u.received:
			if msg["type"] == typ {
				return msg
			}
		case <-deadline:
			u.t.Fatalf("timed out waiting for upstream message %q", typ)
			return nil
		}
	}
}

func (u *upstreamStub) push(event map[string]any) {
	u.t.Helper()
	u.mu.Lock()
	require.NotEmpty(u.t, u.conns)
	conn := u.conns[len(u.conns)-1]
	u.mu.Unlock()
	body, err := json.Marshal(event)
	require.NoError(u.t, err)
	require.NoError(u.t, conn.WriteMessage(websocket.TextMessage, body))
}

func newTestRouter(t *testing.T, upstream *upstreamStub) (*gin.Engine, *voicelive.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	registry := voicelive.NewRegistry(upstream.url(), "test-key",
		voicelive.SessionConfig{Modalities: []string{"text", "audio"}}, nil, logger)
	t.Cleanup(registry.CloseAll)

	handler := NewHandler(registry, logger)
	router := gin.New()
	router.GET("/health", handler.Health)
	router.POST("/sessions", handler.CreateSession)
	router.GET("/sessions", handler.ListSessions)
	router.DELETE("/sessions/:id", handler.RemoveSession)
	router.POST("/sessions/:id/avatar-offer", handler.AvatarOffer)
	router.POST("/sessions/:id/text", handler.SendText)
	router.POST("/sessions/:id/commit-audio", handler.CommitAudio)
	router.POST("/sessions/:id/clear-audio", handler.ClearAudio)
	router.GET("/ws/sessions/:id", ServeWS(registry, logger))
	return router, registry
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope struct {
		Success bool           `json:"success"`
		Data    map[string]any `json:"data"`
		Error   string         `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.True(t, envelope.Success, "expected success envelope, got error %q", envelope.Error)
	return envelope.Data
}

func createSession(t *testing.T, router *gin.Engine) string {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	id, ok := decodeData(t, rec)["session_id"].(string)
	require.True(t, ok)
	return id
}

func TestHealth(t *testing.T) {
	upstream := newUpstreamStub(t)
	router, _ := newTestRouter(t, upstream)

	rec := doJSON(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeData(t, rec)["status"])
}

func TestSessionLifecycle(t *testing.T) {
	upstream := newUpstreamStub(t)
	router, registry := newTestRouter(t, upstream)

	id := createSession(t, router)
	upstream.waitFor("session.update")
	_, err := registry.Get(id)
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodGet, "/sessions", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	ids, ok := decodeData(t, rec)["session_ids"].([]any)
	require.True(t, ok)
	assert.Contains(t, ids, id)

	rec = doJSON(t, router, http.MethodDelete, "/sessions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, err = registry.Get(id)
	assert.ErrorIs(t, err, voicelive.ErrSessionNotFound)

	// Deleting again is still 204.
	rec = doJSON(t, router, http.MethodDelete, "/sessions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCreateSession_UpstreamDown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := voicelive.NewRegistry("ws://127.0.0.1:1/voice-live", "test-key",
		voicelive.SessionConfig{}, nil, zap.NewNop())
	handler := NewHandler(registry, zap.NewNop())
	router := gin.New()
	router.POST("/sessions", handler.CreateSession)

	rec := doJSON(t, router, http.MethodPost, "/sessions", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUnknownSessionIs404(t *testing.T) {
	upstream := newUpstreamStub(t)
	router, _ := newTestRouter(t, upstream)

	for _, path := range []string{
		"/sessions/nope/avatar-offer",
		"/sessions/nope/text",
		"/sessions/nope/commit-audio",
		"/sessions/nope/clear-audio",
	} {
		rec := doJSON(t, router, http.MethodPost, path, map[string]string{"sdp": "v=0", "text": "hi"})
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestAvatarOffer(t *testing.T) {
	upstream := newUpstreamStub(t)
	router, _ := newTestRouter(t, upstream)
	id := createSession(t, router)

	rec := doJSON(t, router, http.MethodPost, "/sessions/"+id+"/avatar-offer",
		map[string]string{"sdp": "v=0\r\noffer"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "v=0\r\nanswer", decodeData(t, rec)["sdp"])

	rec = doJSON(t, router, http.MethodPost, "/sessions/"+id+"/avatar-offer",
		map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendTextAndAudioControls(t *testing.T) {
	upstream := newUpstreamStub(t)
	router, _ := newTestRouter(t, upstream)
	id := createSession(t, router)
	upstream.waitFor("session.update")

	rec := doJSON(t, router, http.MethodPost, "/sessions/"+id+"/text",
		map[string]string{"text": "what is the return policy"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "queued", decodeData(t, rec)["status"])
	upstream.waitFor("conversation.item.create")
	upstream.waitFor("response.create")

	rec = doJSON(t, router, http.MethodPost, "/sessions/"+id+"/commit-audio", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	upstream.waitFor("input_audio_buffer.commit")

	rec = doJSON(t, router, http.MethodPost, "/sessions/"+id+"/clear-audio", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	upstream.waitFor("input_audio_buffer.clear")

	rec = doJSON(t, router, http.MethodPost, "/sessions/"+id+"/text",
		map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeWS(t *testing.T) {
	upstream := newUpstreamStub(t)
	router, _ := newTestRouter(t, upstream)
	id := createSession(t, router)
	upstream.waitFor("session.update")

	front := httptest.NewServer(router)
	defer front.Close()

	wsURL := "ws" + strings.TrimPrefix(front.URL, "http") + "/ws/sessions/" + id
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	// First frame announces readiness.
	var ready map[string]any
	require.NoError(t, conn.ReadJSON(&ready))
	assert.Equal(t, "session_ready", ready["type"])
	assert.Equal(t, id, ready["session_id"])

	// Upstream events reach the client translated.
	upstream.push(map[string]any{"type": "response.audio.delta", "delta": "QUJD"})
	var delta map[string]any
	require.NoError(t, conn.ReadJSON(&delta))
	assert.Equal(t, "assistant_audio_delta", delta["type"])
	assert.Equal(t, "QUJD", delta["delta"])

	// Client commands are relayed upstream; unknown ones are ignored.
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "bogus_command"}))
	audio := base64.StdEncoding.EncodeToString(make([]byte, 8))
	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "audio_chunk", "data": audio, "encoding": "float32",
	}))
	upstream.waitFor("input_audio_buffer.append")
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "user_text", "text": "hi"}))
	upstream.waitFor("conversation.item.create")
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "request_response"}))
	upstream.waitFor("response.create")
}

func TestServeWS_UnknownSession(t *testing.T) {
	upstream := newUpstreamStub(t)
	router, _ := newTestRouter(t, upstream)

	front := httptest.NewServer(router)
	defer front.Close()

	wsURL := "ws" + strings.TrimPrefix(front.URL, "http") + "/ws/sessions/nope"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	if conn != nil {
		conn.Close()
	}
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
