package machine

import (
	"context"

	"github.com/scratchdesk/scratchdesk/coord"
)

// An Adapter represents the minimal scratch desk hardware interface.
// Two variants exist: the simulated backend in machine/sim and the
// GRBL serial backend in machine/grbl.
type Adapter interface {
	// MoveX drives the rows motor to an absolute position in cm.
	MoveX(pos float64) error
	// MoveY drives the lines motor to an absolute position in cm.
	MoveY(pos float64) error
	// Home runs the homing cycle and zeroes both axes.
	Home() error

	// SetTool actuates one of the four tool pistons.
	SetTool(t Tool, dir ToolDirection) error

	// WaitSensor blocks until the edge sensor triggers or ctx is
	// canceled. Implementations must poll so cancellation is observed
	// within one poll interval.
	WaitSensor(ctx context.Context, id SensorID) error
	// FlushSensors discards any sensor triggers received but not yet
	// consumed. Called before resuming from a pause so a stale
	// trigger cannot complete a step the operator never authorized.
	FlushSensors()

	// EdgeSensor reads the named paper edge sensor.
	EdgeSensor(id SensorID) bool
	// DoorClosed reads the row-marker door limit switch.
	DoorClosed() bool

	Position() coord.Point
	Snapshot() Snapshot

	// EmergencyStop halts all motion and retracts every piston. Safe
	// to call from any goroutine in any state.
	EmergencyStop() error
}
