package safety

import (
	"fmt"
	"sync"
	"time"

	"github.com/scratchdesk/scratchdesk/machine"
	"github.com/scratchdesk/scratchdesk/plan"
)

// maxViolations bounds the violation log.
const maxViolations = 100

// Code identifies the rule a vetoed operation broke.
type Code string

const (
	CodeYAxisBlocked   Code = "y_axis_blocked"
	CodeLinesDoorOpen  Code = "lines_door_open"
	CodeRowsDoorClosed Code = "rows_door_closed"
	CodeUnknown        Code = "unknown"
)

// A Violation is a vetoed operation with its coded reason. It
// implements error so the engine can surface it directly.
type Violation struct {
	Code   Code
	Reason string
	Time   time.Time
}

func (v *Violation) Error() string {
	return fmt.Sprintf("safety violation [%s]: %s", v.Code, v.Reason)
}

// Interlock vetoes steps that would be physically dangerous given the
// current hardware state. Decisions are pure; the interlock never
// reads hardware itself, it is handed a snapshot per check.
type Interlock struct {
	mx      sync.Mutex
	enabled bool
	log     []Violation
}

func NewInterlock() *Interlock {
	return &Interlock{enabled: true}
}

// Enable turns checking back on.
func (il *Interlock) Enable() {
	il.mx.Lock()
	il.enabled = true
	il.mx.Unlock()
}

// Disable turns checking off. Debugging only.
func (il *Interlock) Disable() {
	il.mx.Lock()
	il.enabled = false
	il.mx.Unlock()
}

// Check approves or vetoes a step against a hardware snapshot. A
// non-nil return is always a *Violation, already appended to the log.
func (il *Interlock) Check(step plan.Step, hw machine.Snapshot) error {
	il.mx.Lock()
	enabled := il.enabled
	il.mx.Unlock()
	if !enabled {
		return nil
	}

	v := decide(step, hw)
	if v == nil {
		return nil
	}

	v.Time = time.Now()
	il.mx.Lock()
	il.log = append(il.log, *v)
	if len(il.log) > maxViolations {
		il.log = il.log[len(il.log)-maxViolations:]
	}
	il.mx.Unlock()
	return v
}

// decide evaluates the rules for one step. Setup steps are the
// generator's explicit home-parking moves and bypass the door
// interlock entirely.
func decide(step plan.Step, hw machine.Snapshot) *Violation {
	if step.Context == plan.Setup {
		return nil
	}

	switch step.Op {
	case plan.OpMoveY:
		return checkLines(hw, CodeLinesDoorOpen)
	case plan.OpMoveX:
		return checkRows(hw)
	case plan.OpMoveTo:
		// a compound move bears both axes
		if v := checkLines(hw, CodeYAxisBlocked); v != nil {
			return v
		}
		return checkRows(hw)
	case plan.OpTool:
		switch step.Tool {
		case machine.ToolLineMarker, machine.ToolLineCutter:
			return checkLines(hw, CodeLinesDoorOpen)
		case machine.ToolRowMarker, machine.ToolRowCutter:
			return checkRows(hw)
		}
	case plan.OpWaitSensor:
		// a sensor wait inherits the interlock of its axis
		if step.Sensor.XAxis() {
			return checkLines(hw, CodeLinesDoorOpen)
		}
		return checkRows(hw)
	}
	return nil
}

// checkLines vetoes lines-phase work while the row marker is extended:
// either the piston was commanded down or the door limit switch reads
// engaged. Line motor travel would collide with the extended marker.
func checkLines(hw machine.Snapshot, code Code) *Violation {
	if hw.RowMarker.Commanded == machine.DirDown || hw.DoorClosed {
		return &Violation{
			Code: code,
			Reason: fmt.Sprintf(
				"row marker is engaged (commanded %s, door switch closed=%t); lines motor must not move",
				hw.RowMarker.Commanded, hw.DoorClosed),
		}
	}
	return nil
}

// checkRows vetoes rows-phase work when the door is closed while the
// lines motor is away from home. Closing the door off-home risks a
// collision with the line tool assembly.
func checkRows(hw machine.Snapshot) *Violation {
	if hw.DoorClosed && hw.Pos.Y != 0 {
		return &Violation{
			Code: CodeRowsDoorClosed,
			Reason: fmt.Sprintf(
				"door switch closed while lines motor is at %.1fcm, not at home", hw.Pos.Y),
		}
	}
	return nil
}

// Violations returns a copy of the bounded log, oldest first.
func (il *Interlock) Violations() []Violation {
	il.mx.Lock()
	defer il.mx.Unlock()
	out := make([]Violation, len(il.log))
	copy(out, il.log)
	return out
}

// ClearViolations empties the log.
func (il *Interlock) ClearViolations() {
	il.mx.Lock()
	il.log = nil
	il.mx.Unlock()
}
