// Package httpserver exposes the chat API and the realtime WebSocket bridge
// that UI surfaces talk to.
package httpserver

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/voxpersona/voxpersona/internal/bus"
	"github.com/voxpersona/voxpersona/internal/session"
	"github.com/voxpersona/voxpersona/internal/stt"
	"github.com/voxpersona/voxpersona/internal/transcript"
)

// Deps wires the server to the rest of the application.
type Deps struct {
	Controller *session.Controller
	Recognizer *stt.Remote
	Store      *transcript.Store
	Bus        *bus.EventBus
	Persona    string
	Logger     zerolog.Logger
}

// Server is the HTTP and WebSocket front.
type Server struct {
	echo    *echo.Echo
	ctrl    *session.Controller
	rec     *stt.Remote
	store   *transcript.Store
	bus     *bus.EventBus
	hub     *hub
	persona string
	logger  zerolog.Logger

	// senderOwner is the client currently carrying speech recognition.
	senderMu    sync.Mutex
	senderOwner *client
}

// New creates a configured server.
func New(deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echo:    e,
		ctrl:    deps.Controller,
		rec:     deps.Recognizer,
		store:   deps.Store,
		bus:     deps.Bus,
		hub:     newHub(deps.Logger),
		persona: deps.Persona,
		logger:  deps.Logger.With().Str("component", "httpserver").Logger(),
	}

	e.GET("/healthz", s.handleHealth)
	e.GET("/ws", s.handleWS)

	api := e.Group("/api")
	api.POST("/chat", s.handleChat)
	api.POST("/reset", s.handleReset)
	api.GET("/messages", s.handleMessages)
	api.GET("/state", s.handleState)
	api.GET("/auth/user", s.handleAuthUser)
	api.POST("/auth/login", s.handleAuthLogin)
	api.POST("/auth/logout", s.handleAuthLogout)

	s.forwardBusEvents()
	return s
}

// Start serves until Shutdown or a listener error.
func (s *Server) Start(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("HTTP server starting")
	err := s.echo.Start(addr)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.closeAll()
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

func (s *Server) handleChat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}

	reply, err := s.ctrl.HandleText(c.Request().Context(), req.Message)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "chat failed")
	}
	return c.JSON(http.StatusOK, chatResponse{Reply: reply})
}

func (s *Server) handleReset(c echo.Context) error {
	s.ctrl.Reset()
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleMessages(c echo.Context) error {
	return c.JSON(http.StatusOK, s.store.Messages())
}

func (s *Server) handleState(c echo.Context) error {
	return c.JSON(http.StatusOK, s.ctrl.State())
}

type authUser struct {
	Name    string `json:"name"`
	Persona string `json:"persona"`
}

// The auth endpoints are a stateless demo surface: there is one guest user
// and login just echoes the chosen display name back.
func (s *Server) handleAuthUser(c echo.Context) error {
	return c.JSON(http.StatusOK, authUser{Name: "guest", Persona: s.persona})
}

func (s *Server) handleAuthLogin(c echo.Context) error {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		req.Name = "guest"
	}
	return c.JSON(http.StatusOK, authUser{Name: req.Name, Persona: s.persona})
}

func (s *Server) handleAuthLogout(c echo.Context) error {
	return c.NoContent(http.StatusNoContent)
}

// forwardBusEvents relays application events to connected UI clients.
func (s *Server) forwardBusEvents() {
	if s.bus == nil {
		return
	}
	forward := func(name string) bus.Handler {
		return func(e bus.Event) {
			s.hub.broadcast(outbound{Type: name, Data: e.Data})
		}
	}

	s.bus.Subscribe(bus.EventTypeSessionStarted, func(bus.Event) { s.broadcastState() })
	s.bus.Subscribe(bus.EventTypeSessionEnded, func(bus.Event) { s.broadcastState() })
	s.bus.Subscribe(bus.EventTypeTurnChanged, func(bus.Event) { s.broadcastState() })
	s.bus.Subscribe(bus.EventTypeMuteChanged, func(bus.Event) { s.broadcastState() })

	s.bus.Subscribe(bus.EventTypeMessageAppended, forward("chat/message"))
	s.bus.Subscribe(bus.EventTypeHistoryReset, forward("chat/reset"))
	s.bus.Subscribe(bus.EventTypeTranscript, forward("stt/transcript"))
	s.bus.Subscribe(bus.EventTypeVisemeChanged, forward("avatar/viseme"))
	s.bus.Subscribe(bus.EventTypeAvatarStateChanged, forward("avatar/state"))
	s.bus.Subscribe(bus.EventTypeUserNotice, forward("notice"))
	s.bus.Subscribe(bus.EventTypeInputError, forward("stt/error"))
}

func (s *Server) broadcastState() {
	s.hub.broadcast(outbound{Type: "session/state", Data: s.ctrl.State()})
}
