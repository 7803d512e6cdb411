// Package hub streams order status changes to connected staff dashboards as server-sent events.
package hub

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	inErrors "github.com/Alturino/foodorder/internal/errors"
	inHttp "github.com/Alturino/foodorder/internal/http"
	"github.com/Alturino/foodorder/internal/log"
	"github.com/Alturino/foodorder/internal/middleware"
	"github.com/Alturino/foodorder/internal/otel"
)

const (
	clientBuffer      = 16
	DefaultKeepAlive  = 15 * time.Second
	eventStatusChange = "order-status-changed"
)

// Hub fans every broadcast payload out to all connected clients. A client whose buffer is full
// misses the payload instead of stalling the others.
type Hub struct {
	mu        sync.RWMutex
	clients   map[chan []byte]struct{}
	keepAlive time.Duration
}

func New(keepAlive time.Duration) *Hub {
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	return &Hub{clients: map[chan []byte]struct{}{}, keepAlive: keepAlive}
}

func (h *Hub) subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast returns how many clients received the payload.
func (h *Hub) Broadcast(payload []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for ch := range h.clients {
		select {
		case ch <- payload:
			delivered++
		default:
		}
	}
	return delivered
}

func AttachHub(router *mux.Router, h *Hub) {
	router.Handle("/events", middleware.RequireStaff(http.HandlerFunc(h.ServeEvents))).Methods(http.MethodGet)
}

func (h *Hub) ServeEvents(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "Hub ServeEvents")
	defer span.End()

	logger := zerolog.Ctx(c).With().Str(log.KeyTag, "Hub ServeEvents").Logger()

	flusher, ok := w.(http.Flusher)
	if !ok {
		err := inErrors.New(inErrors.CodeInternal, "streaming unsupported")
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteError(c, w, err)
		return
	}

	ch := h.subscribe()
	defer h.unsubscribe(ch)
	logger.Info().Int(log.KeySubscribers, h.Clients()).Msg("dashboard connected")

	w.Header().Set(inHttp.KeyHeaderContentType, inHttp.ValueHeaderEventStream)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	// an initial comment lets the client know the stream is open
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-c.Done():
			logger.Info().Msg("dashboard disconnected")
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case payload := <-ch:
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventStatusChange, payload)
			flusher.Flush()
		}
	}
}
