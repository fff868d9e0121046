package machine

import (
	"github.com/scratchdesk/scratchdesk/coord"
)

// Tool identifies one of the four independent tool pistons.
type Tool string

const (
	ToolLineMarker Tool = "line_marker"
	ToolLineCutter Tool = "line_cutter"
	ToolRowMarker  Tool = "row_marker"
	ToolRowCutter  Tool = "row_cutter"
)

// ToolDirection is a commanded piston direction.
type ToolDirection string

const (
	DirUp   ToolDirection = "up"
	DirDown ToolDirection = "down"
)

// SensorID names a paper edge sensor. The IDs are shared between step
// parameters, the hardware backends, and the safety interlock.
type SensorID string

const (
	SensorXLeft   SensorID = "x_left"
	SensorXRight  SensorID = "x_right"
	SensorYTop    SensorID = "y_top"
	SensorYBottom SensorID = "y_bottom"
)

// XAxis reports whether the sensor belongs to the lines-phase pair.
func (s SensorID) XAxis() bool {
	return s == SensorXLeft || s == SensorXRight
}

// Valid reports whether s names a known sensor.
func (s SensorID) Valid() bool {
	switch s {
	case SensorXLeft, SensorXRight, SensorYTop, SensorYBottom:
		return true
	}
	return false
}

// TriState is a piston position derived from its paired up/down
// sensors. A piston in transit can read neither or both, which is
// Unknown, not an error.
type TriState uint8

const (
	TriUnknown TriState = iota
	TriUp
	TriDown
)

func (t TriState) String() string {
	switch t {
	case TriUp:
		return "up"
	case TriDown:
		return "down"
	}
	return "unknown"
}

// Tri derives a piston state from its two physical sensors.
func Tri(upSensor, downSensor bool) TriState {
	switch {
	case upSensor && !downSensor:
		return TriUp
	case downSensor && !upSensor:
		return TriDown
	}
	return TriUnknown
}

// ToolStatus pairs the last commanded direction with the position the
// sensors actually report.
type ToolStatus struct {
	Commanded ToolDirection
	Actual    TriState
}

// Snapshot is a read-only view of hardware state taken for a single
// safety decision. Callers must not cache it across decisions.
type Snapshot struct {
	Pos coord.Point

	// DoorClosed is the row-marker door limit switch.
	DoorClosed bool

	LineMarker ToolStatus
	LineCutter ToolStatus
	RowMarker  ToolStatus
	RowCutter  ToolStatus
}

// Tool returns the status of the named tool piston.
func (s Snapshot) Tool(t Tool) ToolStatus {
	switch t {
	case ToolLineMarker:
		return s.LineMarker
	case ToolLineCutter:
		return s.LineCutter
	case ToolRowMarker:
		return s.RowMarker
	case ToolRowCutter:
		return s.RowCutter
	}
	return ToolStatus{}
}
