// Package sim is the simulated scratch desk backend. Moves complete
// instantly, edge sensors fire when the operator (or a test) triggers
// them, and every piston settles immediately into its commanded
// position unless a test overrides the sensor pair.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/scratchdesk/scratchdesk/coord"
	"github.com/scratchdesk/scratchdesk/machine"
)

// ErrHalted is returned from motion and tool calls after an emergency
// stop until Reset is called.
var ErrHalted = errors.New("sim: halted by emergency stop")

type piston struct {
	commanded  machine.ToolDirection
	upSensor   bool
	downSensor bool
}

type Sim struct {
	mx     sync.Mutex
	pos    coord.Point
	door   bool
	halted bool
	tools  map[machine.Tool]*piston
	edges  map[machine.SensorID]bool

	triggers map[machine.SensorID]chan struct{}
}

var _ machine.Adapter = &Sim{}

func New() *Sim {
	s := &Sim{
		tools:    make(map[machine.Tool]*piston),
		edges:    make(map[machine.SensorID]bool),
		triggers: make(map[machine.SensorID]chan struct{}),
	}
	for _, id := range []machine.SensorID{
		machine.SensorXLeft, machine.SensorXRight,
		machine.SensorYTop, machine.SensorYBottom,
	} {
		s.triggers[id] = make(chan struct{}, 1)
	}
	s.reset()
	return s
}

func (s *Sim) reset() {
	s.pos = coord.Point{}
	s.door = false
	s.halted = false
	for _, t := range []machine.Tool{
		machine.ToolLineMarker, machine.ToolLineCutter,
		machine.ToolRowMarker, machine.ToolRowCutter,
	} {
		s.tools[t] = &piston{commanded: machine.DirUp, upSensor: true}
	}
	for id := range s.edges {
		s.edges[id] = false
	}
}

// Reset restores power-on state: both motors at home, all pistons up,
// door open.
func (s *Sim) Reset() {
	s.mx.Lock()
	s.reset()
	s.mx.Unlock()
	s.FlushSensors()
}

func (s *Sim) MoveX(pos float64) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.halted {
		return ErrHalted
	}
	s.pos.X = pos
	return nil
}

func (s *Sim) MoveY(pos float64) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.halted {
		return ErrHalted
	}
	s.pos.Y = pos
	return nil
}

func (s *Sim) Home() error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.halted {
		return ErrHalted
	}
	s.pos = coord.Point{}
	return nil
}

func (s *Sim) SetTool(t machine.Tool, dir machine.ToolDirection) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.halted {
		return ErrHalted
	}
	p, ok := s.tools[t]
	if !ok {
		return fmt.Errorf("sim: unknown tool %q", t)
	}
	p.commanded = dir
	p.upSensor = dir == machine.DirUp
	p.downSensor = dir == machine.DirDown
	return nil
}

// SetToolSensors overrides a piston's physical sensor pair, e.g. to
// hold it in transit where neither sensor reads true.
func (s *Sim) SetToolSensors(t machine.Tool, up, down bool) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if p, ok := s.tools[t]; ok {
		p.upSensor = up
		p.downSensor = down
	}
}

// Trigger raises an edge sensor once, as the operator's button or the
// physical paper edge would. A trigger nobody consumes stays buffered
// until a wait begins or the buffers are flushed.
func (s *Sim) Trigger(id machine.SensorID) {
	ch, ok := s.triggers[id]
	if !ok {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (s *Sim) WaitSensor(ctx context.Context, id machine.SensorID) error {
	ch, ok := s.triggers[id]
	if !ok {
		return fmt.Errorf("sim: unknown sensor %q", id)
	}
	// discard anything raised before this wait began
	select {
	case <-ch:
	default:
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sim) FlushSensors() {
	for _, ch := range s.triggers {
		select {
		case <-ch:
		default:
		}
	}
}

func (s *Sim) EdgeSensor(id machine.SensorID) bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.edges[id]
}

// SetEdgeSensor latches an edge sensor's level read.
func (s *Sim) SetEdgeSensor(id machine.SensorID, v bool) {
	s.mx.Lock()
	s.edges[id] = v
	s.mx.Unlock()
}

func (s *Sim) DoorClosed() bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.door
}

// SetDoorClosed toggles the row-marker door limit switch.
func (s *Sim) SetDoorClosed(v bool) {
	s.mx.Lock()
	s.door = v
	s.mx.Unlock()
}

func (s *Sim) Position() coord.Point {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.pos
}

func (s *Sim) Snapshot() machine.Snapshot {
	s.mx.Lock()
	defer s.mx.Unlock()
	status := func(t machine.Tool) machine.ToolStatus {
		p := s.tools[t]
		return machine.ToolStatus{
			Commanded: p.commanded,
			Actual:    machine.Tri(p.upSensor, p.downSensor),
		}
	}
	return machine.Snapshot{
		Pos:        s.pos,
		DoorClosed: s.door,
		LineMarker: status(machine.ToolLineMarker),
		LineCutter: status(machine.ToolLineCutter),
		RowMarker:  status(machine.ToolRowMarker),
		RowCutter:  status(machine.ToolRowCutter),
	}
}

// EmergencyStop halts the simulated machine and retracts all pistons.
func (s *Sim) EmergencyStop() error {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.halted = true
	for _, p := range s.tools {
		p.commanded = machine.DirUp
		p.upSensor = true
		p.downSensor = false
	}
	return nil
}
