package plan

import (
	"fmt"

	"github.com/scratchdesk/scratchdesk/machine"
)

// Op tags the atomic hardware operation a step performs.
type Op string

const (
	OpMoveX           Op = "move_x"
	OpMoveY           Op = "move_y"
	OpMoveTo          Op = "move_to"
	OpTool            Op = "tool_action"
	OpWaitSensor      Op = "wait_sensor"
	OpProgramStart    Op = "program_start"
	OpProgramComplete Op = "program_complete"
)

// Context classifies a step for the safety interlock. Setup steps are
// the explicit home-parking moves emitted before a phase begins and
// are exempt from the door interlock. The flag is assigned by the
// generator only; nothing ever infers it from the description text.
type Context uint8

const (
	Operational Context = iota
	Setup
)

func (c Context) String() string {
	if c == Setup {
		return "setup"
	}
	return "operational"
}

// A Step is one atomic operation in a generated plan. Steps are built
// once by Generate and never mutated; the engine owns the slice after
// loading it.
type Step struct {
	Op      Op
	Context Context

	// Position is the absolute target in cm for OpMoveX/OpMoveY.
	Position float64
	// X, Y are the targets for OpMoveTo.
	X, Y float64

	Tool machine.Tool
	Dir  machine.ToolDirection

	Sensor machine.SensorID

	// Program is the owning program number on start/complete steps.
	Program int

	// Desc is shown to the operator while the step runs.
	Desc string
}

func (s Step) String() string {
	return fmt.Sprintf("%s: %s", s.Op, s.Desc)
}

func moveX(pos float64, ctx Context, desc string) Step {
	return Step{Op: OpMoveX, Context: ctx, Position: pos, Desc: desc}
}

func moveY(pos float64, ctx Context, desc string) Step {
	return Step{Op: OpMoveY, Context: ctx, Position: pos, Desc: desc}
}

func tool(t machine.Tool, dir machine.ToolDirection, desc string) Step {
	return Step{Op: OpTool, Tool: t, Dir: dir, Desc: desc}
}

func waitSensor(id machine.SensorID, desc string) Step {
	return Step{Op: OpWaitSensor, Sensor: id, Desc: desc}
}
