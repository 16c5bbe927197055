package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"SolSignal/internal/domain/models"
	"SolSignal/internal/usecase"
	pkgcache "SolSignal/pkg/cache"
	xlogger "SolSignal/pkg/logger"
)

const wsWriteWait = 5 * time.Second

// Hub fans market updates out to connected websocket clients on a fixed
// interval.
type Hub struct {
	l        *xlogger.Logger
	market   *usecase.MarketUseCase
	interval time.Duration
	upgrader websocket.Upgrader

	latest  pkgcache.Service
	symbols []string

	mu      sync.Mutex
	conns   map[*websocket.Conn]bool
	stopCh  chan struct{}
	started bool
}

func NewHub(lgr *xlogger.Logger, market *usecase.MarketUseCase, interval time.Duration) *Hub {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Hub{
		l:        lgr,
		market:   market,
		interval: interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns:  make(map[*websocket.Conn]bool),
		stopCh: make(chan struct{}),
	}
}

// SetLatestSource attaches the cache holding the freshest signal per symbol;
// pushes then carry a per-symbol signal snapshot next to the overview.
func (h *Hub) SetLatestSource(c pkgcache.Service, symbols []string) {
	h.latest = c
	h.symbols = symbols
}

// Serve upgrades the request and registers the client.
func (h *Hub) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.conns[conn] = true
	n := len(h.conns)
	h.mu.Unlock()
	h.l.Info("ws client connected", xlogger.Int("clients", n))

	go h.reader(conn)
	return nil
}

// reader drains client frames so close handshakes and pings are processed.
func (h *Hub) reader(conn *websocket.Conn) {
	defer func() {
		h.remove(conn)
		_ = conn.Close()
	}()
	conn.SetReadLimit(1024)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	n := len(h.conns)
	h.mu.Unlock()
	h.l.Info("ws client disconnected", xlogger.Int("clients", n))
}

func (h *Hub) clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Start launches the periodic broadcast loop.
func (h *Hub) Start(ctx context.Context) {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return
	}
	h.started = true
	h.mu.Unlock()

	go func() {
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-h.stopCh:
				return
			case <-ticker.C:
				h.push(ctx)
			}
		}
	}()
}

func (h *Hub) push(ctx context.Context) {
	if h.clients() == 0 {
		return
	}
	overview, err := h.market.Overview(ctx)
	if err != nil {
		h.l.Warn("ws overview error", xlogger.Error(err))
		return
	}
	msg := map[string]interface{}{
		"type":      "market_update",
		"data":      overview,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if snap := h.latestSignals(ctx); len(snap) > 0 {
		msg["signals"] = snap
	}
	h.Broadcast(msg)
}

// latestSignals reads the freshest scanner output for every tracked symbol.
func (h *Hub) latestSignals(ctx context.Context) map[string]models.TradingSignal {
	if h.latest == nil || len(h.symbols) == 0 {
		return nil
	}
	keys := make([]string, 0, len(h.symbols))
	for _, sym := range h.symbols {
		keys = append(keys, usecase.LatestSignalKey(sym))
	}
	byKey, err := pkgcache.MGetTyped[models.TradingSignal](ctx, h.latest, keys...)
	if err != nil {
		h.l.Warn("ws latest-signal read error", xlogger.Error(err))
		return nil
	}
	out := make(map[string]models.TradingSignal, len(byKey))
	for _, sig := range byKey {
		out[sig.Symbol] = sig
	}
	return out
}

// Broadcast sends one JSON message to every client, dropping the slow or gone.
func (h *Hub) Broadcast(v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		h.l.Warn("ws marshal error", xlogger.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			delete(h.conns, conn)
			_ = conn.Close()
		}
	}
}

// Stop halts broadcasting and closes every client connection.
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return
	}
	h.started = false
	for conn := range h.conns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
		_ = conn.Close()
		delete(h.conns, conn)
	}
	h.mu.Unlock()
	close(h.stopCh)
}
