package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/mnemo/internal/protocol"
	"github.com/ent0n29/mnemo/internal/turn"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsIdleTimeout  = 120 * time.Second
)

func (s *Server) handleConversationWS(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if _, err := s.conversations.Get(conversationID); err != nil {
		s.respondErr(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.observeConversationEvent("ws_connected")
	logger := s.logger.With("conversation_id", conversationID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan protocol.UserMessage, 16)
	outbound := make(chan any, 64)

	// Turns on one connection run in arrival order.
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		for msg := range inbound {
			s.runStreamedTurn(ctx, conversationID, msg, outbound)
		}
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(ctx, cancel, conn, outbound, logger)
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.enqueue(ctx, outbound, protocol.ErrorEvent{
				Type:           protocol.TypeErrorEvent,
				ConversationID: conversationID,
				Code:           "invalid_client_message",
				Detail:         err.Error(),
			})
			continue
		}
		msg, ok := parsed.(protocol.UserMessage)
		if !ok {
			continue
		}
		s.observeWSMessage("inbound", msg.Type)
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- msg:
		}
	}

	close(inbound)
	// Let an in-flight turn finish so its reply is appended before the socket closes.
	<-runDone
	cancel()
	<-writerDone
	s.observeConversationEvent("ws_disconnected")
}

// wsWriter is the write half of a websocket connection.
type wsWriter interface {
	SetWriteDeadline(t time.Time) error
	WriteJSON(v any) error
	Close() error
}

// writeLoop drains outbound until ctx ends. A failed write closes the
// connection so the read loop unblocks.
func (s *Server) writeLoop(ctx context.Context, cancel context.CancelFunc, conn wsWriter, outbound <-chan any, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-outbound:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				logger.Warn("websocket write failed", "err", err)
				cancel()
				_ = conn.Close()
				return
			}
			if t, ok := messageTypeOf(msg); ok {
				s.observeWSMessage("outbound", t)
			}
		}
	}
}

func (s *Server) runStreamedTurn(ctx context.Context, conversationID string, msg protocol.UserMessage, outbound chan<- any) {
	result, err := s.orchestrator.Stream(ctx, conversationID, msg.Text, func(partial turn.Result) {
		s.enqueue(ctx, outbound, protocol.AssistantReply{
			Type:           protocol.TypeAssistantReply,
			ConversationID: conversationID,
			ClientID:       msg.ClientID,
			Text:           partial.Reply.Content,
			UsedMemories:   partial.UsedMemories,
			TSMs:           partial.Reply.Timestamp.UnixMilli(),
		})
	})
	if err != nil {
		status, code := classifyError(err)
		s.enqueue(ctx, outbound, protocol.ErrorEvent{
			Type:           protocol.TypeErrorEvent,
			ConversationID: conversationID,
			ClientID:       msg.ClientID,
			Code:           code,
			Retryable:      status >= http.StatusInternalServerError,
			Detail:         err.Error(),
		})
		return
	}
	s.enqueue(ctx, outbound, protocol.MemoriesStored{
		Type:           protocol.TypeMemoriesStored,
		ConversationID: conversationID,
		ClientID:       msg.ClientID,
		Memories:       result.NewMemories,
	})
}

func (s *Server) enqueue(ctx context.Context, outbound chan<- any, msg any) {
	select {
	case outbound <- msg:
	case <-ctx.Done():
	}
}

func (s *Server) observeWSMessage(direction string, t protocol.MessageType) {
	if s.metrics == nil {
		return
	}
	s.metrics.WSMessages.WithLabelValues(direction, string(t)).Inc()
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.UserMessage:
		return m.Type, true
	case protocol.AssistantReply:
		return m.Type, true
	case protocol.MemoriesStored:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
