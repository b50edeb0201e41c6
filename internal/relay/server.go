package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chaz8081/invisa-link/internal/ble"
)

const (
	pingPeriod     = 30 * time.Second
	pongWait       = 60 * time.Second
	shutdownWait   = 5 * time.Second
	subscribeDepth = 64
)

// Source is the session surface the relay needs.
type Source interface {
	Subscribe(buffer int) (<-chan ble.Event, func())
	State() ble.State
	Address() string
	Handles() []*ble.Handle
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server serves /events and /status for one session.
type Server struct {
	source Source
	hub    *Hub
	mux    *http.ServeMux
}

// NewServer builds a relay for source.
func NewServer(source Source) *Server {
	s := &Server{
		source: source,
		hub:    NewHub(),
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("/events", s.handleEvents)
	s.mux.HandleFunc("/status", corsMiddleware(s.handleStatus))
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.mux }

// Hub returns the client hub.
func (s *Server) Hub() *Hub { return s.hub }

// Pump forwards session events to clients until ctx is done or the
// session closes.
func (s *Server) Pump(ctx context.Context) {
	events, cancel := s.source.Subscribe(subscribeDepth)
	defer cancel()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.hub.Broadcast(FromEvent(ev))
		case <-ticker.C:
			s.hub.Ping()
		}
	}
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.Pump(ctx)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("[Relay] listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.hub.CloseAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("[Relay] upgrade failed", "error", err)
		return
	}
	s.hub.AddClient(conn)
	slog.Debug("[Relay] client connected", "remote", conn.RemoteAddr().String())
	go s.readLoop(conn)
}

// readLoop drains client frames so control messages are processed, and
// unregisters the client when it goes away.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.hub.RemoveClient(conn)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		json.NewEncoder(w).Encode(ErrorResponse{Error: "Method not allowed"})
		return
	}

	st := Status{
		State:   s.source.State().String(),
		Address: s.source.Address(),
		Handles: []HandleInfo{},
		Clients: s.hub.ClientCount(),
	}
	for _, h := range s.source.Handles() {
		st.Handles = append(st.Handles, HandleInfo{
			Role:       string(h.Role),
			Service:    h.ServiceUUID,
			UUID:       h.UUID,
			Properties: h.Properties.String(),
			WriteType:  h.WriteType.String(),
			Delivery:   h.Delivery.String(),
		})
	}

	if err := json.NewEncoder(w).Encode(st); err != nil {
		slog.Warn("[Relay] encoding status", "error", err)
	}
}

func corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}
