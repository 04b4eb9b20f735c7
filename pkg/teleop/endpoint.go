// Package teleop lets remote operators drive the car over a websocket. Key
// presses received from operators enter the dispatcher through the same
// event path as the local terminal.
package teleop

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-picarx/internal/log"
	"github.com/teslashibe/go-picarx/pkg/dispatch"
	"github.com/teslashibe/go-picarx/pkg/movement"
	"github.com/teslashibe/go-picarx/pkg/protocol"
)

const (
	// writeWait bounds a single write to an operator.
	writeWait = time.Second

	// sendBuffer is how many messages may wait for an operator's writer.
	sendBuffer = 32
)

// ErrSlowOperator is returned when an operator's send queue is full. The
// operator is disconnected.
var ErrSlowOperator = errors.New("teleop: operator too slow, disconnected")

// KeySink accepts input events for the dispatcher.
type KeySink interface {
	Push(ev dispatch.Event) error
}

// Operator represents a connected operator console. Messages are queued
// and written by the operator's own writer goroutine.
type Operator struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time
	LastSeen  time.Time

	mu sync.Mutex

	send      chan []byte
	quit      chan struct{}
	closeOnce sync.Once
}

func newOperator(id string, conn *websocket.Conn) *Operator {
	now := time.Now()
	return &Operator{
		ID:        id,
		Conn:      conn,
		Connected: now,
		LastSeen:  now,
		send:      make(chan []byte, sendBuffer),
		quit:      make(chan struct{}),
	}
}

// Send queues a message for the operator without blocking. An operator
// whose queue is full is disconnected and ErrSlowOperator returned.
func (o *Operator) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	select {
	case <-o.quit:
		return ErrClosed
	default:
	}
	select {
	case o.send <- data:
		return nil
	default:
		o.close()
		return ErrSlowOperator
	}
}

// close stops the writer and drops the connection, which ends the
// operator's read loop.
func (o *Operator) close() {
	o.closeOnce.Do(func() {
		close(o.quit)
		if o.Conn != nil {
			o.Conn.Close()
		}
	})
}

// writeLoop is the only writer on Conn.
func (o *Operator) writeLoop(done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case data := <-o.send:
			o.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := o.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				o.close()
				return
			}
		case <-o.quit:
			return
		}
	}
}

// Endpoint manages operator websocket connections. It implements
// dispatch.Observer to push state and diagnostics to every operator.
type Endpoint struct {
	mu        sync.RWMutex
	operators map[string]*Operator

	keys   KeySink
	status func() protocol.StateData
	log    *slog.Logger

	// Stats
	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	keysAccepted     atomic.Uint64
	rejected         atomic.Uint64
}

var _ dispatch.Observer = (*Endpoint)(nil)

// New creates an endpoint that pushes key presses into keys. status, if
// not nil, supplies the state message sent on connect and on every
// dispatcher state change.
func New(keys KeySink, status func() protocol.StateData, logger *slog.Logger) *Endpoint {
	if logger == nil {
		logger = log.L()
	}
	return &Endpoint{
		operators: make(map[string]*Operator),
		keys:      keys,
		status:    status,
		log:       logger.With("component", "teleop"),
	}
}

// RegisterRoutes registers the websocket routes on a Fiber router
func (e *Endpoint) RegisterRoutes(r fiber.Router) {
	r.Use("/ws/teleop", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	r.Get("/ws/teleop", websocket.New(e.handleOperator))
	r.Get("/ws/teleop/:id", websocket.New(e.handleOperator))
}

// handleOperator serves one operator connection
func (e *Endpoint) handleOperator(c *websocket.Conn) {
	id := c.Params("id")
	if id == "" {
		id = uuid.NewString()
	}

	op := newOperator(id, c)
	writerDone := make(chan struct{})
	go op.writeLoop(writerDone)

	e.mu.Lock()
	e.operators[id] = op
	count := len(e.operators)
	e.mu.Unlock()
	e.log.Info("operator connected", "operator", id, "total", count)

	defer func() {
		op.close()
		<-writerDone
		e.remove(op)
		e.log.Info("operator disconnected", "operator", id, "total", e.OperatorCount())
	}()

	if e.status != nil {
		if msg, err := protocol.NewStateMessage(e.status()); err == nil {
			e.send(op, msg)
		}
	}

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			e.log.Debug("operator read ended", "operator", id, "err", err)
			return
		}

		op.mu.Lock()
		op.LastSeen = time.Now()
		op.mu.Unlock()

		e.messagesReceived.Add(1)
		e.handleMessage(op, data)
	}
}

// handleMessage processes one message from an operator
func (e *Endpoint) handleMessage(op *Operator, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		e.reject(op, "invalid message: %v", err)
		return
	}
	source := "teleop:" + op.ID

	switch msg.Type {
	case protocol.TypeKey:
		kd, err := msg.GetKeyData()
		if err != nil {
			e.reject(op, "invalid key data: %v", err)
			return
		}
		r, err := kd.Rune()
		if err != nil {
			e.reject(op, "%v", err)
			return
		}
		e.push(op, dispatch.Key(r).From(source))

	case protocol.TypeStop:
		e.push(op, dispatch.Key(' ').From(source))

	case protocol.TypePing:
		pong, err := protocol.NewPongMessage("", msg.Timestamp, time.Now().UnixMilli())
		if err == nil {
			e.send(op, pong)
		}

	default:
		e.reject(op, "unsupported message type %q", msg.Type)
	}
}

func (e *Endpoint) push(op *Operator, ev dispatch.Event) {
	if err := e.keys.Push(ev); err != nil {
		e.reject(op, "key %s not accepted: %v", ev.Display(), err)
		return
	}
	e.keysAccepted.Add(1)
	e.log.Debug("operator key", "operator", op.ID, "key", ev.Display())
}

func (e *Endpoint) reject(op *Operator, format string, args ...any) {
	e.rejected.Add(1)
	msg, err := protocol.NewErrorMessage(format, args...)
	if err != nil {
		return
	}
	e.log.Warn("rejected operator message", "operator", op.ID, "reason", string(msg.Data))
	e.send(op, msg)
}

func (e *Endpoint) send(op *Operator, msg *protocol.Message) {
	err := op.Send(msg)
	switch {
	case err == nil:
		e.messagesSent.Add(1)
	case errors.Is(err, ErrSlowOperator):
		e.log.Warn("dropping slow operator", "operator", op.ID)
		e.remove(op)
	default:
		e.log.Debug("send to operator failed", "operator", op.ID, "err", err)
	}
}

func (e *Endpoint) remove(op *Operator) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.operators[op.ID] == op {
		delete(e.operators, op.ID)
	}
}

// Broadcast queues a message for all connected operators. It never blocks
// on a slow connection.
func (e *Endpoint) Broadcast(msg *protocol.Message) {
	for _, op := range e.snapshot() {
		e.send(op, msg)
	}
}

// StateChanged implements dispatch.Observer.
func (e *Endpoint) StateChanged(from, to dispatch.State) {
	if e.status == nil {
		return
	}
	if msg, err := protocol.NewStateMessage(e.status()); err == nil {
		e.Broadcast(msg)
	}
}

// Report implements dispatch.Observer.
func (e *Endpoint) Report(r dispatch.Report) {
	if r.Kind == dispatch.ReportHandled {
		return
	}
	if msg, err := protocol.NewDiagnosticMessage(DiagnosticData(r)); err == nil {
		e.Broadcast(msg)
	}
}

// OnRun broadcasts run records; register it with Engine.OnRun.
func (e *Endpoint) OnRun(run movement.Run) {
	if msg, err := protocol.NewRunMessage(RunData(run)); err == nil {
		e.Broadcast(msg)
	}
}

func (e *Endpoint) snapshot() []*Operator {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ops := make([]*Operator, 0, len(e.operators))
	for _, op := range e.operators {
		ops = append(ops, op)
	}
	return ops
}

// OperatorCount returns the number of connected operators
func (e *Endpoint) OperatorCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.operators)
}

// Stats contains endpoint statistics
type Stats struct {
	OperatorCount    int    `json:"operator_count"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	KeysAccepted     uint64 `json:"keys_accepted"`
	Rejected         uint64 `json:"rejected"`
}

// GetStats returns endpoint statistics
func (e *Endpoint) GetStats() Stats {
	return Stats{
		OperatorCount:    e.OperatorCount(),
		MessagesReceived: e.messagesReceived.Load(),
		MessagesSent:     e.messagesSent.Load(),
		KeysAccepted:     e.keysAccepted.Load(),
		Rejected:         e.rejected.Load(),
	}
}

// OperatorInfo contains info about a connected operator
type OperatorInfo struct {
	ID        string    `json:"id"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
}

// GetOperatorInfos returns info about all connected operators
func (e *Endpoint) GetOperatorInfos() []OperatorInfo {
	ops := e.snapshot()
	infos := make([]OperatorInfo, 0, len(ops))
	for _, op := range ops {
		op.mu.Lock()
		infos = append(infos, OperatorInfo{
			ID:        op.ID,
			Connected: op.Connected,
			LastSeen:  op.LastSeen,
		})
		op.mu.Unlock()
	}
	return infos
}

// RegisterAPIRoutes registers API routes for operator management
func (e *Endpoint) RegisterAPIRoutes(api fiber.Router) {
	ops := api.Group("/operators")

	ops.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"operators": e.GetOperatorInfos(),
			"count":     e.OperatorCount(),
		})
	})

	ops.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(e.GetStats())
	})
}
