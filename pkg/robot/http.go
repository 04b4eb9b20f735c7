package robot

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/teslashibe/go-picarx/internal/httpc"
)

// HTTPController implements Controller against the motor bridge daemon
// running on the robot. Every call is synchronous; a transport error or a
// non-2xx reply means the actuator did not acknowledge.
type HTTPController struct {
	BaseURL string

	client *http.Client
}

// NewHTTPController creates a new HTTP-based robot controller.
// baseURL is the bridge root, e.g. http://192.168.1.50:8000.
func NewHTTPController(baseURL string) *HTTPController {
	return &HTTPController{
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  httpc.Client,
	}
}

// SetSteeringAngle sets the steering servo angle in degrees.
func (r *HTTPController) SetSteeringAngle(angle int) error {
	return r.post("/api/steering", map[string]interface{}{
		"angle": angle,
	})
}

// DriveForward drives the rear motors forward.
func (r *HTTPController) DriveForward(speed int) error {
	return r.post("/api/drive", map[string]interface{}{
		"direction": Forward.String(),
		"speed":     speed,
	})
}

// DriveBackward drives the rear motors backward.
func (r *HTTPController) DriveBackward(speed int) error {
	return r.post("/api/drive", map[string]interface{}{
		"direction": Backward.String(),
		"speed":     speed,
	})
}

// StopMotors stops both rear motors.
func (r *HTTPController) StopMotors() error {
	return r.post("/api/stop", nil)
}

// GetBridgeStatus returns the bridge's reported hardware state.
func (r *HTTPController) GetBridgeStatus() (State, error) {
	resp, err := r.client.Get(r.BaseURL + "/api/status")
	if err != nil {
		return State{}, fmt.Errorf("bridge status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return State{}, fmt.Errorf("bridge status: HTTP %d", resp.StatusCode)
	}

	var st State
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return State{}, fmt.Errorf("failed to decode bridge status: %w", err)
	}
	return st, nil
}

// post sends a command to the bridge API.
func (r *HTTPController) post(path string, payload map[string]interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal %s payload: %w", path, err)
		}
		body = strings.NewReader(string(data))
	}

	resp, err := r.client.Post(r.BaseURL+path, "application/json", body)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("%w: %s: HTTP %d: %s", ErrNotAcknowledged, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
