package robot

import (
	"log/slog"
	"sync"

	"github.com/teslashibe/go-picarx/internal/log"
)

// SimController stands in for the robot HAT when no motor bridge is
// configured. It keeps the abstract hardware state and logs every command.
type SimController struct {
	log *slog.Logger

	mu    sync.Mutex
	state State
}

// NewSimController creates a simulated controller. A nil logger uses the global one.
func NewSimController(logger *slog.Logger) *SimController {
	if logger == nil {
		logger = log.L()
	}
	return &SimController{log: logger.With("component", "sim")}
}

// SetSteeringAngle records the servo angle.
func (c *SimController) SetSteeringAngle(angle int) error {
	c.mu.Lock()
	c.state.Angle = angle
	c.mu.Unlock()
	c.log.Info("steering", "angle", angle)
	return nil
}

// DriveForward records forward motion.
func (c *SimController) DriveForward(speed int) error {
	c.set(Forward, speed)
	return nil
}

// DriveBackward records backward motion.
func (c *SimController) DriveBackward(speed int) error {
	c.set(Backward, speed)
	return nil
}

// StopMotors records a stop.
func (c *SimController) StopMotors() error {
	c.set(Stopped, 0)
	return nil
}

// State returns the simulated hardware state.
func (c *SimController) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *SimController) set(dir Direction, speed int) {
	if speed == 0 {
		dir = Stopped
	}
	c.mu.Lock()
	c.state.Direction = dir
	c.state.Speed = speed
	c.mu.Unlock()
	c.log.Info("drive", "direction", dir.String(), "speed", speed)
}
