package grbl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/scratchdesk/scratchdesk/coord"
	"github.com/scratchdesk/scratchdesk/gcode"
	"github.com/scratchdesk/scratchdesk/machine"
)

// The desk API works in centimeters, the controller in millimeters.
const mmPerCm = 10

// realtime command bytes
const (
	cmdStatus   byte = '?'
	cmdFeedHold byte = '!'
)

// Config holds Adapter tuning knobs.
type Config struct {
	// PollInterval is how often sensors and motion state are polled.
	PollInterval time.Duration
	// MoveTimeout bounds a single axis move or homing cycle.
	MoveTimeout time.Duration
}

func (c *Config) fill() {
	if c.PollInterval <= 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	if c.MoveTimeout <= 0 {
		c.MoveTimeout = 60 * time.Second
	}
}

// Adapter drives the physical desk: axis motion through a GRBL
// controller on one serial line and pistons/sensors through the I/O
// board on another. It implements machine.Adapter.
type Adapter struct {
	conn *Conn
	bus  *Bus
	cfg  Config

	mx        sync.Mutex
	status    Status
	statusOK  bool
	commanded map[machine.Tool]machine.ToolDirection

	closeCh chan struct{}
}

var _ machine.Adapter = (*Adapter)(nil)

// NewAdapter creates an Adapter from an open GRBL serial line and I/O
// board line, and starts the status poller.
func NewAdapter(grblRW, busRW io.ReadWriter, cfg Config) *Adapter {
	cfg.fill()
	a := &Adapter{
		conn:      NewConn(grblRW),
		bus:       NewBus(busRW),
		cfg:       cfg,
		commanded: make(map[machine.Tool]machine.ToolDirection),
	}
	a.closeCh = make(chan struct{})
	go a.statusLoop()
	return a
}

// Close shuts down the poller and the GRBL connection.
func (a *Adapter) Close() error {
	close(a.closeCh)
	return a.conn.Close()
}

func (a *Adapter) statusLoop() {
	t := time.NewTicker(a.cfg.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-a.closeCh:
			return
		case <-t.C:
			if err := a.conn.WriteRealtime(cmdStatus); err != nil {
				return
			}
		case line := <-a.conn.Push():
			st, err := parseStatus(line)
			if err != nil {
				log.Println("ERROR:", err)
				continue
			}
			a.mx.Lock()
			a.status = st
			a.statusOK = true
			a.mx.Unlock()
		}
	}
}

func (a *Adapter) currentStatus() (Status, bool) {
	a.mx.Lock()
	defer a.mx.Unlock()
	return a.status, a.statusOK
}

// waitIdle blocks until the controller reports Idle, meaning all
// queued motion is complete.
func (a *Adapter) waitIdle() error {
	deadline := time.Now().Add(a.cfg.MoveTimeout)
	t := time.NewTicker(a.cfg.PollInterval)
	defer t.Stop()

	// let at least one report arrive after the move was queued
	sawRun := false
	for {
		select {
		case <-a.closeCh:
			return io.ErrClosedPipe
		case <-t.C:
		}
		st, ok := a.currentStatus()
		if !ok {
			continue
		}
		switch st.State {
		case "Alarm":
			return errors.New("grbl: controller in alarm state")
		case "Idle":
			if sawRun {
				return nil
			}
			sawRun = true
		default:
			sawRun = true
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("grbl: move did not complete within %s", a.cfg.MoveTimeout)
		}
	}
}

func (a *Adapter) move(axis byte, pos float64) error {
	b := gcode.Block{
		{W: 'G', Arg: 90},
		{W: 'G', Arg: 0},
		{W: axis, Arg: pos * mmPerCm},
	}
	if err := a.conn.SendLine(b.Line()); err != nil {
		return err
	}
	return a.waitIdle()
}

// MoveX drives the rows motor to an absolute position in cm.
func (a *Adapter) MoveX(pos float64) error { return a.move('X', pos) }

// MoveY drives the lines motor to an absolute position in cm.
func (a *Adapter) MoveY(pos float64) error { return a.move('Y', pos) }

// Home runs the GRBL homing cycle and blocks until it finishes.
func (a *Adapter) Home() error {
	if err := a.conn.SendLine("$H"); err != nil {
		return err
	}
	return a.waitIdle()
}

// SetTool drives a tool piston. The coil stays energized while the
// tool is down.
func (a *Adapter) SetTool(t machine.Tool, dir machine.ToolDirection) error {
	coil, ok := toolCoil(t)
	if !ok {
		return fmt.Errorf("grbl: unknown tool %q", t)
	}
	if err := a.bus.SetCoil(coil, dir == machine.DirDown); err != nil {
		return err
	}
	a.mx.Lock()
	a.commanded[t] = dir
	a.mx.Unlock()
	return nil
}

// WaitSensor blocks until the I/O board reports a latched trigger for
// the named sensor, polling at the configured interval so ctx
// cancellation is honored promptly.
func (a *Adapter) WaitSensor(ctx context.Context, id machine.SensorID) error {
	bit := sensorTriggerBit(id)
	if bit == 0 {
		return fmt.Errorf("grbl: unknown sensor %q", id)
	}

	// clear anything latched before this wait began
	if _, err := a.bus.ReadTriggers(); err != nil {
		return err
	}

	t := time.NewTicker(a.cfg.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		trig, err := a.bus.ReadTriggers()
		if err != nil {
			return err
		}
		if trig&bit != 0 {
			return nil
		}
	}
}

// FlushSensors clears the board's latched trigger register.
func (a *Adapter) FlushSensors() {
	if _, err := a.bus.ReadTriggers(); err != nil {
		log.Println("ERROR: flush sensors:", err)
	}
}

// EdgeSensor reads the current level of the named edge sensor.
func (a *Adapter) EdgeSensor(id machine.SensorID) bool {
	bit := sensorInputBit(id)
	if bit == 0 {
		return false
	}
	in, err := a.bus.ReadInputs()
	if err != nil {
		log.Println("ERROR: read inputs:", err)
		return false
	}
	return in&bit != 0
}

// DoorClosed reads the row-marker door limit switch.
func (a *Adapter) DoorClosed() bool {
	in, err := a.bus.ReadInputs()
	if err != nil {
		log.Println("ERROR: read inputs:", err)
		return false
	}
	return in&inDoorClosed != 0
}

// Position returns the last reported machine position in cm.
func (a *Adapter) Position() coord.Point {
	st, _ := a.currentStatus()
	return coord.Point{X: st.MPos.X / mmPerCm, Y: st.MPos.Y / mmPerCm}
}

// Snapshot reads the full hardware state for a safety decision.
func (a *Adapter) Snapshot() machine.Snapshot {
	in, err := a.bus.ReadInputs()
	if err != nil {
		log.Println("ERROR: read inputs:", err)
	}

	a.mx.Lock()
	pos := coord.Point{X: a.status.MPos.X / mmPerCm, Y: a.status.MPos.Y / mmPerCm}
	commanded := make(map[machine.Tool]machine.ToolDirection, len(a.commanded))
	for t, d := range a.commanded {
		commanded[t] = d
	}
	a.mx.Unlock()

	tool := func(t machine.Tool) machine.ToolStatus {
		up, down := toolSensorBits(t)
		cmd, ok := commanded[t]
		if !ok {
			cmd = machine.DirUp
		}
		return machine.ToolStatus{
			Commanded: cmd,
			Actual:    machine.Tri(in&up != 0, in&down != 0),
		}
	}
	return machine.Snapshot{
		Pos:        pos,
		DoorClosed: in&inDoorClosed != 0,
		LineMarker: tool(machine.ToolLineMarker),
		LineCutter: tool(machine.ToolLineCutter),
		RowMarker:  tool(machine.ToolRowMarker),
		RowCutter:  tool(machine.ToolRowCutter),
	}
}

// EmergencyStop issues a feed hold and retracts every piston.
func (a *Adapter) EmergencyStop() error {
	err := a.conn.WriteRealtime(cmdFeedHold)
	for _, t := range []machine.Tool{
		machine.ToolLineMarker, machine.ToolLineCutter,
		machine.ToolRowMarker, machine.ToolRowCutter,
	} {
		if e := a.SetTool(t, machine.DirUp); e != nil && err == nil {
			err = e
		}
	}
	return err
}
