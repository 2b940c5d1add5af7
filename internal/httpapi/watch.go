package httpapi

import (
	"context"
	"net/http"
	"sync"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/rolodexhq/rolodex/internal/contact"
)

const subscriberBuffer = 16

// Hub fans contact change events out to websocket subscribers. Publish
// never blocks; a subscriber that cannot keep up drops events rather than
// stalling the write path.
type Hub struct {
	mu          sync.Mutex
	subscribers map[chan contact.ChangeEvent]struct{}
	logger      *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subscribers: map[chan contact.ChangeEvent]struct{}{},
		logger:      logger,
	}
}

func (h *Hub) Publish(ev contact.ChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
			h.logger.Debug("dropping change event for slow subscriber",
				zap.String("event_id", ev.EventID))
		}
	}
}

func (h *Hub) subscribe() chan contact.ChangeEvent {
	ch := make(chan contact.ChangeEvent, subscriberBuffer)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(ch chan contact.ChangeEvent) {
	h.mu.Lock()
	delete(h.subscribers, ch)
	h.mu.Unlock()
}

func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closing")

	ch := s.hub.subscribe()
	defer s.hub.unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev := <-ch:
			writeCtx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
			err := wsjson.Write(writeCtx, conn, ev)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
