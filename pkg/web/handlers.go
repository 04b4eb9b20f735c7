package web

import (
	"errors"
	"sort"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-picarx/pkg/dispatch"
	"github.com/teslashibe/go-picarx/pkg/movement"
	"github.com/teslashibe/go-picarx/pkg/protocol"
)

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Dispatcher string          `json:"dispatcher"`
	Engine     movement.Status `json:"engine"`
}

// handleStatus returns dispatcher and engine state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(StatusResponse{
		Dispatcher: s.dispatcher.State().String(),
		Engine:     s.engine.Status(),
	})
}

// ManeuverInfo describes a catalogue maneuver
type ManeuverInfo struct {
	movement.Maneuver
	DurationSec float64 `json:"duration_sec"`
}

func maneuverInfo(m movement.Maneuver) ManeuverInfo {
	return ManeuverInfo{Maneuver: m, DurationSec: m.Duration().Seconds()}
}

// handleListManeuvers returns the maneuver catalogue
func (s *Server) handleListManeuvers(c *fiber.Ctx) error {
	names := movement.Names()
	out := make([]ManeuverInfo, 0, len(names))
	for _, name := range names {
		m, _ := movement.Lookup(name)
		out = append(out, maneuverInfo(m))
	}
	return c.JSON(out)
}

// handleGetManeuver returns one catalogue maneuver
func (s *Server) handleGetManeuver(c *fiber.Ctx) error {
	m, err := movement.Lookup(c.Params("name"))
	if errors.Is(err, movement.ErrUnknownManeuver) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(maneuverInfo(m))
}

// KeyInfo describes one key binding
type KeyInfo struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Action   string `json:"action"`
	Maneuver string `json:"maneuver,omitempty"`
}

// handleListKeys returns the key bindings
func (s *Server) handleListKeys(c *fiber.Ctx) error {
	km := s.dispatcher.Keys()
	out := make([]KeyInfo, 0, len(km))
	for r, b := range km {
		info := KeyInfo{Key: string(r), Label: b.Label}
		switch b.Kind {
		case dispatch.ActionManeuver:
			info.Action = "maneuver"
			info.Maneuver = b.Maneuver.Name
		case dispatch.ActionStop:
			info.Action = "stop"
		case dispatch.ActionExit:
			info.Action = "exit"
		}
		if r == ' ' {
			info.Key = "space"
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return c.JSON(out)
}

// handlePressKey queues a key press as if typed at the console
func (s *Server) handlePressKey(c *fiber.Ctx) error {
	r, err := protocol.ParseKey(c.Params("key"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return s.queue(c, dispatch.Key(r).From("web"))
}

// handleStop queues an emergency stop
func (s *Server) handleStop(c *fiber.Ctx) error {
	return s.queue(c, dispatch.Key(' ').From("web"))
}

func (s *Server) queue(c *fiber.Ctx, ev dispatch.Event) error {
	if err := s.keys.Push(ev); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"key":    ev.Display(),
		"status": "queued",
	})
}

// handleGetLogs returns recent diagnostics
func (s *Server) handleGetLogs(c *fiber.Ctx) error {
	s.logsMu.RLock()
	defer s.logsMu.RUnlock()
	return c.JSON(s.logs)
}
