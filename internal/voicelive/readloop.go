package voicelive

import (
	"encoding/json"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// readLoop runs for the lifetime of one upstream connection, translating each
// inbound message into the client-facing vocabulary and publishing it. It
// terminates on transport closure or an unrecoverable read error.
func (s *Session) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			wasCurrent := s.dropConn(conn)
			abnormal := !websocket.IsCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway)
			if wasCurrent {
				s.failPendingNegotiation(ErrConnectionUnavailable)
				if abnormal {
					s.logger.Warn("upstream read loop ended", zap.Error(err))
					s.broadcaster.Publish(NewEvent(EventError, map[string]any{
						"payload": map[string]any{"message": err.Error()},
					}))
				}
			}
			return
		}
		s.handleServerMessage(data)
	}
}

// handleServerMessage translates one upstream event by type tag. Malformed
// messages are logged and dropped; unknown tags are republished verbatim so
// the client protocol degrades gracefully to new upstream event types.
func (s *Session) handleServerMessage(data []byte) {
	var ev serverEvent
	if err := json.Unmarshal(data, &ev); err != nil || ev.Type == "" {
		s.logger.Warn("malformed upstream message", zap.Error(err), zap.Int("bytes", len(data)))
		return
	}

	switch ev.Type {
	case typeError:
		s.logger.Warn("upstream error event", zap.ByteString("error", ev.Error))
		s.broadcaster.Publish(NewEvent(EventError, map[string]any{
			"payload": json.RawMessage(ev.Error),
		}))
	case typeAudioDelta:
		s.broadcaster.Publish(NewEvent(EventAssistantAudioDelta, map[string]any{
			"delta": ev.Delta,
		}))
	case typeAudioDone:
		s.broadcaster.Publish(NewEvent(EventAssistantAudioDone, nil))
	case typeTranscriptDelta:
		s.broadcaster.Publish(NewEvent(EventTranscriptDelta, map[string]any{
			"delta":   ev.Delta,
			"item_id": ev.ItemID,
		}))
	case typeTranscriptDone:
		s.broadcaster.Publish(NewEvent(EventTranscriptDone, map[string]any{
			"transcript": ev.Transcript,
			"item_id":    ev.ItemID,
		}))
	case typeInputTranscribed:
		s.broadcaster.Publish(NewEvent(EventUserTranscript, map[string]any{
			"transcript": ev.Transcript,
			"item_id":    ev.ItemID,
		}))
	case typeSpeechStarted:
		s.broadcaster.Publish(NewEvent(EventSpeechStarted, nil))
	case typeSpeechStopped:
		s.broadcaster.Publish(NewEvent(EventSpeechStopped, nil))
	case typeAudioCommitted:
		s.broadcaster.Publish(NewEvent(EventInputAudioCommitted, nil))
	case typeAvatarConnecting:
		s.handleAvatarConnecting(ev.ServerSDP)
	case typeResponseDone:
		s.handleResponseDone(ev.Response)
	default:
		s.broadcaster.Publish(NewEvent(EventGeneric, map[string]any{
			"payload": json.RawMessage(data),
		}))
	}
}

// handleAvatarConnecting decodes the embedded SDP answer and resolves the
// pending negotiation. The avatar_connecting notification goes out regardless
// of the negotiation outcome.
func (s *Session) handleAvatarConnecting(serverSDP string) {
	answer := DecodeAnswer(serverSDP)
	if answer == "" {
		s.resolveNegotiation(negotiationResult{err: ErrNegotiationDecode})
	} else {
		s.resolveNegotiation(negotiationResult{sdp: answer})
	}
	s.broadcaster.Publish(NewEvent(EventAvatarConnecting, nil))
}

// handleResponseDone dispatches the tool-call sequence when a completed
// response carries a function call; otherwise republishes the status.
func (s *Session) handleResponseDone(resp *serverResponse) {
	if resp == nil {
		s.broadcaster.Publish(NewEvent(EventResponseStatus, map[string]any{"status": ""}))
		return
	}
	if resp.Status == "completed" && len(resp.Output) > 0 && resp.Output[0].Type == "function_call" {
		item := resp.Output[0]
		if s.tools == nil {
			s.logger.Warn("function call with no dispatcher configured", zap.String("function", item.Name))
			return
		}
		s.logger.Info("dispatching function call",
			zap.String("function", item.Name), zap.String("call_id", item.CallID))
		go s.runToolCall(item.Name, item.CallID, item.Arguments)
		return
	}
	s.broadcaster.Publish(NewEvent(EventResponseStatus, map[string]any{"status": resp.Status}))
}
