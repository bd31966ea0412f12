package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

const (
	// writeWait bounds a single write to a client.
	writeWait = 10 * time.Second

	// pongWait bounds how long a client may stay silent before the read
	// loop gives up on it.
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait so pings keep idle
	// connections alive.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize caps inbound messages; clients only listen.
	maxMessageSize = 512
)

// Client is one connected preview browser.
type Client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	server *PreviewServer
}

// handleWebSocket upgrades a live-reload connection and registers it with
// the hub.
func (s *PreviewServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.checkOrigin(r) {
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.allowedOriginHosts(),
	})
	if err != nil {
		s.logger.Warn(r.Context(), err, "websocket upgrade failed")
		return
	}

	client := &Client{
		id:     uuid.New().String(),
		conn:   conn,
		send:   make(chan []byte, 256),
		server: s,
	}

	go client.writePump()
	go client.readPump()

	s.register <- client
}

// checkOrigin accepts same-host browsers plus any explicitly allowed
// origins. Cross-site pages must not be able to open reload sockets.
func (s *PreviewServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return false
	}

	for _, host := range s.allowedOriginHosts() {
		if strings.EqualFold(originURL.Host, host) {
			return true
		}
	}
	return false
}

// allowedOriginHosts lists the origin hosts that may connect: the configured
// address, its loopback aliases, and anything in server.allowed_origins.
func (s *PreviewServer) allowedOriginHosts() []string {
	hosts := []string{
		fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port),
		fmt.Sprintf("localhost:%d", s.config.Server.Port),
		fmt.Sprintf("127.0.0.1:%d", s.config.Server.Port),
	}
	for _, origin := range s.config.Server.AllowedOrigins {
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			hosts = append(hosts, u.Host)
			continue
		}
		hosts = append(hosts, origin)
	}
	return hosts
}

// runWebSocketHub owns the client set: registrations, disconnects, and
// fan-out of reload broadcasts.
func (s *PreviewServer) runWebSocketHub(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-s.register:
			if client == nil || client.conn == nil {
				continue
			}
			s.clientsMutex.Lock()
			s.clients[client.conn] = client
			count := len(s.clients)
			s.clientsMutex.Unlock()
			s.logger.Debug(ctx, "preview client connected",
				"client", client.id,
				"total", count)

		case conn := <-s.unregister:
			if conn == nil {
				continue
			}
			s.clientsMutex.Lock()
			if client, ok := s.clients[conn]; ok {
				delete(s.clients, conn)
				close(client.send)
				_ = conn.Close(websocket.StatusNormalClosure, "")
				s.logger.Debug(ctx, "preview client disconnected",
					"client", client.id,
					"total", len(s.clients))
			}
			s.clientsMutex.Unlock()

		case message := <-s.broadcast:
			s.clientsMutex.RLock()
			var failed []*websocket.Conn
			for conn, client := range s.clients {
				select {
				case client.send <- message:
				default:
					failed = append(failed, conn)
				}
			}
			s.clientsMutex.RUnlock()

			// drop clients whose send buffer is full
			if len(failed) > 0 {
				s.clientsMutex.Lock()
				for _, conn := range failed {
					if client, ok := s.clients[conn]; ok {
						delete(s.clients, conn)
						close(client.send)
						_ = conn.Close(websocket.StatusPolicyViolation, "send buffer full")
					}
				}
				s.clientsMutex.Unlock()
			}
		}
	}
}

// readPump drains inbound frames so control messages are processed, and
// unregisters the client when the connection dies.
func (c *Client) readPump() {
	defer func() {
		c.server.unregister <- c.conn
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		ctx, cancel := context.WithTimeout(context.Background(), pongWait)
		_, _, err := c.conn.Read(ctx)
		cancel()
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				c.server.logger.Debug(context.Background(), "websocket read ended",
					"client", c.id,
					"status", int(status))
			}
			return
		}
	}
}

// writePump pushes broadcasts to the client and pings it while idle.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
