package httpserver

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/voxpersona/voxpersona/internal/stt"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The demo serves its own UI; cross-origin pages are fine here.
	CheckOrigin: func(*http.Request) bool { return true },
}

// inbound is a client-to-server message.
type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// outbound is a server-to-client message.
type outbound struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// client is one connected UI. Gorilla allows a single concurrent writer, so
// every send goes through the mutex.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(msg outbound) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(msg)
}

// hub tracks connected clients for broadcast.
type hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	logger  zerolog.Logger
}

func newHub(logger zerolog.Logger) *hub {
	return &hub{
		clients: make(map[*client]struct{}),
		logger:  logger.With().Str("component", "ws").Logger(),
	}
}

func (h *hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func (h *hub) broadcast(msg outbound) {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if err := c.send(msg); err != nil {
			h.logger.Debug().Err(err).Msg("Broadcast write failed")
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	for c := range h.clients {
		c.conn.Close()
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()
}

// handleWS upgrades the connection and pumps client events into the session
// controller. The newest client also carries speech recognition: listen
// commands go out to it and transcripts come back from it.
func (s *Server) handleWS(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	cl := &client{conn: conn}
	s.hub.add(cl)
	s.takeSender(cl)

	// Hand the fresh client the current state and history.
	cl.send(outbound{Type: "session/state", Data: s.ctrl.State()})
	cl.send(outbound{Type: "chat/history", Data: s.store.Messages()})

	defer func() {
		s.hub.remove(cl)
		s.releaseSender(cl)
		conn.Close()
	}()

	for {
		var msg inbound
		if err := conn.ReadJSON(&msg); err != nil {
			return nil
		}
		s.dispatch(msg)
	}
}

// takeSender makes cl the recognition transport.
func (s *Server) takeSender(cl *client) {
	if s.rec == nil {
		return
	}
	s.senderMu.Lock()
	s.senderOwner = cl
	s.senderMu.Unlock()
	s.rec.SetSender(func(cmd string) error {
		return cl.send(outbound{Type: "stt/command", Data: cmd})
	})
}

// releaseSender detaches recognition only if cl still owns it. A stale tab
// closing must not pull the transport out from under a newer client.
func (s *Server) releaseSender(cl *client) {
	if s.rec == nil {
		return
	}
	s.senderMu.Lock()
	owns := s.senderOwner == cl
	if owns {
		s.senderOwner = nil
	}
	s.senderMu.Unlock()
	if owns {
		s.rec.SetSender(nil)
	}
}

func (s *Server) dispatch(msg inbound) {
	switch msg.Type {
	case "session/start":
		s.ctrl.StartSession()
	case "session/stop":
		s.ctrl.StopSession()
	case "session/toggle":
		s.ctrl.ToggleSession()
	case "session/skip":
		s.ctrl.Skip()
	case "session/mute":
		var data struct {
			Muted bool `json:"muted"`
		}
		if err := json.Unmarshal(msg.Data, &data); err == nil {
			s.ctrl.SetMuted(data.Muted)
		}
	case "stt/started":
		// Recognition kicking in while the persona talks is a barge-in.
		s.ctrl.BargeIn()
	case "stt/result":
		var data struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(msg.Data, &data); err == nil && s.rec != nil {
			s.rec.HandleResult(data.Text)
		}
	case "stt/error":
		var data struct {
			Kind    string `json:"kind"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(msg.Data, &data); err == nil && s.rec != nil {
			s.rec.HandleError(stt.ErrorKind(data.Kind), data.Message)
		}
	case "stt/ended":
		if s.rec != nil {
			s.rec.HandleEnded()
		}
	default:
		s.logger.Debug().Str("type", msg.Type).Msg("Unknown client message")
	}
}
