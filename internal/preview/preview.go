// Package preview serves captured frames to browsers over a
// websocket so an operator can eyeball the microscope feed without a
// local display.
package preview

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const indexPage = `<!DOCTYPE html>
<html>
<head><title>scopeview preview</title></head>
<body style="margin:0;background:#111">
<canvas id="view" style="display:block;margin:auto"></canvas>
<script>
const ws = new WebSocket("ws://" + location.host + "/ws/frames");
ws.binaryType = "blob";
const canvas = document.getElementById("view");
const ctx = canvas.getContext("2d");
ws.onmessage = async (ev) => {
  const bmp = await createImageBitmap(ev.data);
  canvas.width = bmp.width;
  canvas.height = bmp.height;
  ctx.drawImage(bmp, 0, 0);
  bmp.close();
};
</script>
</body>
</html>`

// Server fans captured frames out to every connected websocket
// client. Frames are sent as binary messages; clients that fall
// behind or error out are dropped.
type Server struct {
	addr     string
	httpSrv  *http.Server
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func New(addr string) *Server {
	return &Server{
		addr: addr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
}

// Start begins serving in the background. The listener keeps running
// until Stop.
func (s *Server) Start() error {
	if s.httpSrv != nil {
		return fmt.Errorf("preview: server already running on %s", s.addr)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/frames", s.handleFrames)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, indexPage)
	})

	s.httpSrv = &http.Server{Addr: s.addr, Handler: mux}
	go func() {
		slog.Info("preview: serving", "addr", s.addr)
		if err := s.httpSrv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("preview: http server error", "error", err)
		}
	}()
	return nil
}

// Stop shuts the listener down and closes every client.
func (s *Server) Stop() error {
	if s.httpSrv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.httpSrv.Shutdown(ctx)

	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
		delete(s.conns, conn)
	}
	s.mu.Unlock()

	s.httpSrv = nil
	return err
}

func (s *Server) handleFrames(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("preview: websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	slog.Info("preview: client connected", "remote", r.RemoteAddr)

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		slog.Info("preview: client disconnected", "remote", r.RemoteAddr)
	}()

	// Drain control messages; the feed is one-way.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast sends one frame to every connected client, dropping
// clients whose write fails.
func (s *Server) Broadcast(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			slog.Warn("preview: dropping client", "error", err)
			conn.Close()
			delete(s.conns, conn)
		}
	}
}

// ClientCount reports how many viewers are attached.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}
