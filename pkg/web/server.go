// Package web serves the car's HTTP API, the live status websocket and the
// teleop endpoint.
package web

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/teslashibe/go-picarx/internal/log"
	"github.com/teslashibe/go-picarx/pkg/dispatch"
	"github.com/teslashibe/go-picarx/pkg/hub"
	"github.com/teslashibe/go-picarx/pkg/movement"
	"github.com/teslashibe/go-picarx/pkg/protocol"
	"github.com/teslashibe/go-picarx/pkg/teleop"
)

// maxLogs is how many diagnostics /api/logs keeps.
const maxLogs = 200

// Engine is what the server reads from the maneuver engine.
type Engine interface {
	Status() movement.Status
}

// Dispatcher is what the server reads from the dispatcher.
type Dispatcher interface {
	State() dispatch.State
	Keys() dispatch.KeyMap
}

// LogEntry is one diagnostic for the dashboard.
type LogEntry struct {
	Time    string `json:"time"`
	Kind    string `json:"kind"`
	Level   string `json:"level"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// Config configures the server.
type Config struct {
	Port       string
	Engine     Engine
	Dispatcher Dispatcher
	// Keys receives key presses from the API and teleop operators.
	Keys   teleop.KeySink
	Logger *slog.Logger
}

// Server is the HTTP API and websocket server. It implements
// dispatch.Observer and fans state and reports out to dashboards and
// teleop operators.
type Server struct {
	app  *fiber.App
	port string
	log  *slog.Logger

	engine     Engine
	dispatcher Dispatcher
	keys       teleop.KeySink

	statusHub *hub.Hub
	teleop    *teleop.Endpoint

	logs   []LogEntry
	logsMu sync.RWMutex
}

var _ dispatch.Observer = (*Server)(nil)

// NewServer creates the server and registers its routes.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.L()
	}
	s := &Server{
		port:       cfg.Port,
		log:        logger.With("component", "web"),
		engine:     cfg.Engine,
		dispatcher: cfg.Dispatcher,
		keys:       cfg.Keys,
		statusHub:  hub.New("status", logger),
		logs:       make([]LogEntry, 0, maxLogs),
	}
	s.teleop = teleop.New(cfg.Keys, s.stateData, logger)
	s.statusHub.SetSnapshot(func() (hub.Message, error) {
		return s.stateMessage()
	})

	app := fiber.New(fiber.Config{
		AppName:               "PiCar-X",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/maneuvers", s.handleListManeuvers)
	api.Get("/maneuvers/:name", s.handleGetManeuver)
	api.Get("/keys", s.handleListKeys)
	api.Post("/keys/:key", s.handlePressKey)
	api.Post("/stop", s.handleStop)
	api.Get("/logs", s.handleGetLogs)
	s.teleop.RegisterAPIRoutes(api)

	// WebSocket routes
	app.Use("/ws/status", hub.Upgrade)
	app.Get("/ws/status", s.statusHub.Handler())
	s.teleop.RegisterRoutes(app)

	s.app = app
	return s
}

// App returns the Fiber app, for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Teleop returns the teleop endpoint.
func (s *Server) Teleop() *teleop.Endpoint {
	return s.teleop
}

// Start runs the status hub and serves until the listener fails or
// Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.log.Info("web server listening", "port", s.port)
	go s.statusHub.Run(ctx)
	return s.app.Listen(":" + s.port)
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync(ctx context.Context) {
	go func() {
		if err := s.Start(ctx); err != nil {
			s.log.Error("web server error", "err", err)
		}
	}()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(2 * time.Second)
}

// StateChanged implements dispatch.Observer.
func (s *Server) StateChanged(from, to dispatch.State) {
	if msg, err := s.stateMessage(); err == nil {
		s.statusHub.Broadcast(msg)
	}
	s.teleop.StateChanged(from, to)
}

// Report implements dispatch.Observer.
func (s *Server) Report(r dispatch.Report) {
	if r.Kind == dispatch.ReportHandled {
		return
	}
	d := teleop.DiagnosticData(r)
	s.addLog(LogEntry{
		Time:    r.Time.Format("15:04:05"),
		Kind:    d.Kind,
		Level:   d.Level,
		Message: d.Message,
		Error:   d.Error,
	})
	if msg, err := protocol.NewDiagnosticMessage(d); err == nil {
		s.broadcast(msg)
	}
	s.teleop.Report(r)
}

// OnRun broadcasts run records; register it with Engine.OnRun.
func (s *Server) OnRun(run movement.Run) {
	if msg, err := protocol.NewRunMessage(teleop.RunData(run)); err == nil {
		s.broadcast(msg)
	}
	s.teleop.OnRun(run)
}

func (s *Server) stateData() protocol.StateData {
	return teleop.StateData(s.dispatcher.State(), s.engine.Status())
}

func (s *Server) stateMessage() (hub.Message, error) {
	msg, err := protocol.NewStateMessage(s.stateData())
	if err != nil {
		return hub.Message{}, err
	}
	data, err := msg.Bytes()
	if err != nil {
		return hub.Message{}, err
	}
	return hub.NewJSONMessage(data), nil
}

func (s *Server) broadcast(msg *protocol.Message) {
	data, err := msg.Bytes()
	if err != nil {
		return
	}
	s.statusHub.Broadcast(hub.NewJSONMessage(data))
}

func (s *Server) addLog(entry LogEntry) {
	s.logsMu.Lock()
	defer s.logsMu.Unlock()
	s.logs = append(s.logs, entry)
	if len(s.logs) > maxLogs {
		s.logs = s.logs[1:]
	}
}
