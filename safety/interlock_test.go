package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scratchdesk/scratchdesk/coord"
	"github.com/scratchdesk/scratchdesk/machine"
	"github.com/scratchdesk/scratchdesk/plan"
)

func yMove(ctx plan.Context) plan.Step {
	return plan.Step{Op: plan.OpMoveY, Context: ctx, Position: 25, Desc: "move to line"}
}

func xMove(ctx plan.Context) plan.Step {
	return plan.Step{Op: plan.OpMoveX, Context: ctx, Position: 40, Desc: "move to page"}
}

func TestCheck_LinesDoorOpen(t *testing.T) {
	il := NewInterlock()

	// marker commanded down vetoes Y movement
	hw := machine.Snapshot{RowMarker: machine.ToolStatus{Commanded: machine.DirDown}}
	err := il.Check(yMove(plan.Operational), hw)
	require.Error(t, err)
	v, ok := err.(*Violation)
	require.True(t, ok)
	assert.Equal(t, CodeLinesDoorOpen, v.Code)
	assert.False(t, v.Time.IsZero())

	// the physical switch alone is enough, whatever was commanded
	hw = machine.Snapshot{
		RowMarker:  machine.ToolStatus{Commanded: machine.DirUp},
		DoorClosed: true,
	}
	err = il.Check(yMove(plan.Operational), hw)
	require.Error(t, err)
	assert.Equal(t, CodeLinesDoorOpen, err.(*Violation).Code)

	// marker retracted and door clear: approved
	hw = machine.Snapshot{RowMarker: machine.ToolStatus{Commanded: machine.DirUp}}
	assert.NoError(t, il.Check(yMove(plan.Operational), hw))
}

func TestCheck_SetupExemption(t *testing.T) {
	il := NewInterlock()
	hw := machine.Snapshot{
		RowMarker:  machine.ToolStatus{Commanded: machine.DirDown},
		DoorClosed: true,
	}

	assert.NoError(t, il.Check(yMove(plan.Setup), hw))
	assert.Empty(t, il.Violations())
}

func TestCheck_RowsDoorClosed(t *testing.T) {
	il := NewInterlock()

	// door closed away from home vetoes X movement
	hw := machine.Snapshot{DoorClosed: true, Pos: coord.Point{Y: 25}}
	err := il.Check(xMove(plan.Operational), hw)
	require.Error(t, err)
	assert.Equal(t, CodeRowsDoorClosed, err.(*Violation).Code)

	// at home the closed door is fine
	hw = machine.Snapshot{DoorClosed: true, Pos: coord.Point{Y: 0}}
	assert.NoError(t, il.Check(xMove(plan.Operational), hw))

	// door open is always fine for rows work
	hw = machine.Snapshot{DoorClosed: false, Pos: coord.Point{Y: 25}}
	assert.NoError(t, il.Check(xMove(plan.Operational), hw))
}

func TestCheck_ToolActions(t *testing.T) {
	il := NewInterlock()
	hw := machine.Snapshot{DoorClosed: true, Pos: coord.Point{Y: 25}}

	lines := plan.Step{Op: plan.OpTool, Tool: machine.ToolLineMarker, Dir: machine.DirDown}
	err := il.Check(lines, hw)
	require.Error(t, err)
	assert.Equal(t, CodeLinesDoorOpen, err.(*Violation).Code)

	rows := plan.Step{Op: plan.OpTool, Tool: machine.ToolRowCutter, Dir: machine.DirDown}
	err = il.Check(rows, hw)
	require.Error(t, err)
	assert.Equal(t, CodeRowsDoorClosed, err.(*Violation).Code)
}

func TestCheck_SensorWaitsInheritAxisRules(t *testing.T) {
	il := NewInterlock()
	hw := machine.Snapshot{DoorClosed: true, Pos: coord.Point{Y: 25}}

	xWait := plan.Step{Op: plan.OpWaitSensor, Sensor: machine.SensorXLeft}
	err := il.Check(xWait, hw)
	require.Error(t, err)
	assert.Equal(t, CodeLinesDoorOpen, err.(*Violation).Code)

	yWait := plan.Step{Op: plan.OpWaitSensor, Sensor: machine.SensorYBottom}
	err = il.Check(yWait, hw)
	require.Error(t, err)
	assert.Equal(t, CodeRowsDoorClosed, err.(*Violation).Code)
}

func TestCheck_OtherOpsApproved(t *testing.T) {
	il := NewInterlock()
	hw := machine.Snapshot{DoorClosed: true, Pos: coord.Point{Y: 25}}

	assert.NoError(t, il.Check(plan.Step{Op: plan.OpProgramStart}, hw))
	assert.NoError(t, il.Check(plan.Step{Op: plan.OpProgramComplete}, hw))
}

func TestViolationLogBounded(t *testing.T) {
	il := NewInterlock()
	hw := machine.Snapshot{DoorClosed: true, Pos: coord.Point{Y: 25}}

	for i := 0; i < 130; i++ {
		_ = il.Check(xMove(plan.Operational), hw)
	}
	log := il.Violations()
	assert.Len(t, log, 100)

	// timestamps stay ordered
	for i := 1; i < len(log); i++ {
		assert.False(t, log[i].Time.Before(log[i-1].Time))
	}

	il.ClearViolations()
	assert.Empty(t, il.Violations())
}

func TestDisableSkipsChecks(t *testing.T) {
	il := NewInterlock()
	il.Disable()

	hw := machine.Snapshot{RowMarker: machine.ToolStatus{Commanded: machine.DirDown}}
	assert.NoError(t, il.Check(yMove(plan.Operational), hw))
	assert.Empty(t, il.Violations())

	il.Enable()
	assert.Error(t, il.Check(yMove(plan.Operational), hw))
}
