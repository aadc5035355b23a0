package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/contoso-voice/backend/internal/voicelive"
)

const (
	pingInterval   = 30 * time.Second
	pongWait       = 60 * time.Second
	wsWriteTimeout = 10 * time.Second
	maxMessageSize = 1 << 20 // audio chunks are base64 float32 frames
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS policy is enforced on the REST surface
	},
}

// clientCommand is the inbound client WebSocket message.
type clientCommand struct {
	Type     string `json:"type"`
	Data     string `json:"data,omitempty"`
	Encoding string `json:"encoding,omitempty"`
	Text     string `json:"text,omitempty"`
}

// wsClient is one browser WebSocket attached to a session's event stream.
type wsClient struct {
	sessionID string
	conn      *websocket.Conn
	session   *voicelive.Session
	sub       *voicelive.Subscriber
	logger    *zap.Logger
}

// ServeWS handles GET /ws/sessions/:id: upgrades, registers a subscriber
// queue and relays events out and commands in until either side disconnects.
func ServeWS(registry *voicelive.Registry, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("id")
		session, err := registry.Get(sessionID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &wsClient{
			sessionID: sessionID,
			conn:      conn,
			session:   session,
			sub:       session.Subscribe(),
			logger:    logger.With(zap.String("session_id", sessionID)),
		}
		go client.writePump()
		client.readPump()
	}
}

// writePump is the sole writer: announces session_ready, then drains the
// subscriber queue onto the socket, with keepalive pings.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	ready := voicelive.NewEvent(voicelive.EventSessionReady, map[string]any{"session_id": c.sessionID})
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := c.conn.WriteJSON(ready); err != nil {
		return
	}

	for {
		select {
		case event, ok := <-c.sub.Events():
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes client commands. Unknown command types are logged and
// ignored without terminating the connection.
func (c *wsClient) readPump() {
	defer func() {
		c.session.Unsubscribe(c.sub)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var cmd clientCommand
		if err := c.conn.ReadJSON(&cmd); err != nil {
			c.logger.Info("client disconnected")
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		ctx := context.Background()
		var err error
		switch cmd.Type {
		case "audio_chunk":
			encoding := cmd.Encoding
			if encoding == "" {
				encoding = "float32"
			}
			err = c.session.SendAudioChunk(ctx, cmd.Data, encoding)
		case "commit_audio":
			err = c.session.CommitAudio(ctx)
		case "clear_audio":
			err = c.session.ClearAudio(ctx)
		case "user_text":
			err = c.session.SendUserMessage(ctx, cmd.Text)
		case "request_response":
			err = c.session.RequestResponse(ctx)
		default:
			c.logger.Warn("unknown client command", zap.String("command", cmd.Type))
			continue
		}
		if err != nil {
			c.logger.Warn("client command failed", zap.String("command", cmd.Type), zap.Error(err))
		}
	}
}
