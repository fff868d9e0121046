package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scratchdesk/scratchdesk/machine"
	"github.com/scratchdesk/scratchdesk/machine/sim"
	"github.com/scratchdesk/scratchdesk/plan"
	"github.com/scratchdesk/scratchdesk/safety"
)

const testInterval = 5 * time.Millisecond

type recorder struct {
	mx sync.Mutex
	ps []Progress
}

func (r *recorder) notify(p Progress) {
	r.mx.Lock()
	r.ps = append(r.ps, p)
	r.mx.Unlock()
}

func (r *recorder) last() Progress {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.ps[len(r.ps)-1]
}

func (r *recorder) states() []State {
	r.mx.Lock()
	defer r.mx.Unlock()
	var out []State
	for _, p := range r.ps {
		if len(out) == 0 || out[len(out)-1] != p.State {
			out = append(out, p.State)
		}
	}
	return out
}

func newTestEngine(t *testing.T) (*Engine, *sim.Sim, *recorder) {
	t.Helper()
	hw := sim.New()
	e := New(hw, safety.NewInterlock(), testInterval)
	rec := &recorder{}
	e.SetNotify(rec.notify)
	return e, hw, rec
}

func moveSteps() []plan.Step {
	return []plan.Step{
		{Op: plan.OpProgramStart, Program: 1, Desc: "starting program 1"},
		{Op: plan.OpMoveX, Position: 15, Desc: "move to X=15"},
		{Op: plan.OpMoveY, Position: 25, Desc: "move to Y=25"},
		{Op: plan.OpTool, Tool: machine.ToolLineCutter, Dir: machine.DirDown, Desc: "line cutter down"},
		{Op: plan.OpTool, Tool: machine.ToolLineCutter, Dir: machine.DirUp, Desc: "line cutter up"},
		{Op: plan.OpProgramComplete, Program: 1, Desc: "program 1 complete"},
	}
}

func TestEngineRunToCompletion(t *testing.T) {
	e, hw, rec := newTestEngine(t)

	require.NoError(t, e.Load(moveSteps()))
	require.NoError(t, e.Start())
	e.Wait()

	st := e.Status()
	assert.Equal(t, StateCompleted, st.State)
	assert.Equal(t, st.Total, st.Index)
	assert.Equal(t, 1.0, st.Fraction)
	assert.Equal(t, 15.0, hw.Position().X)
	assert.Equal(t, 25.0, hw.Position().Y)
	assert.Equal(t, StateCompleted, rec.states()[len(rec.states())-1])
}

func TestEngineSensorWait(t *testing.T) {
	e, hw, _ := newTestEngine(t)

	require.NoError(t, e.Load([]plan.Step{
		{Op: plan.OpWaitSensor, Sensor: machine.SensorXLeft, Desc: "waiting for left edge"},
	}))
	require.NoError(t, e.Start())

	// still blocked until the operator presses the paper in
	time.Sleep(10 * testInterval)
	assert.Equal(t, StateRunning, e.Status().State)
	assert.Equal(t, 0, e.Status().Index)

	hw.Trigger(machine.SensorXLeft)
	e.Wait()
	assert.Equal(t, StateCompleted, e.Status().State)
}

func TestEngineStopCancelsWait(t *testing.T) {
	e, _, _ := newTestEngine(t)

	require.NoError(t, e.Load([]plan.Step{
		{Op: plan.OpWaitSensor, Sensor: machine.SensorYTop, Desc: "waiting for top edge"},
	}))
	require.NoError(t, e.Start())
	time.Sleep(2 * testInterval)

	done := make(chan struct{})
	go func() {
		e.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stop did not cancel the blocked wait")
	}

	st := e.Status()
	assert.Equal(t, StateStopped, st.State)
	assert.Equal(t, 0, st.Index)
}

func TestEngineVetoPausesWithoutAdvance(t *testing.T) {
	e, hw, _ := newTestEngine(t)

	hw.SetDoorClosed(true)
	require.NoError(t, e.Load([]plan.Step{
		{Op: plan.OpMoveY, Position: 10, Desc: "move to Y=10"},
	}))
	require.NoError(t, e.Start())

	assert.Eventually(t, func() bool {
		return e.Status().State == StatePaused
	}, time.Second, testInterval)

	st := e.Status()
	assert.Equal(t, 0, st.Index)
	require.NotNil(t, st.Violation)
	assert.Equal(t, safety.CodeLinesDoorOpen, st.Violation.Code)
	assert.Equal(t, 0.0, hw.Position().Y)

	// clearing the door lets the monitor resume on its own
	hw.SetDoorClosed(false)
	e.Wait()
	assert.Equal(t, StateCompleted, e.Status().State)
	assert.Equal(t, 10.0, hw.Position().Y)
}

func TestEngineResumeBlockedWhileVetoPersists(t *testing.T) {
	e, hw, _ := newTestEngine(t)

	hw.SetDoorClosed(true)
	require.NoError(t, e.Load([]plan.Step{
		{Op: plan.OpMoveY, Position: 10, Desc: "move to Y=10"},
	}))
	require.NoError(t, e.Start())
	assert.Eventually(t, func() bool {
		return e.Status().State == StatePaused
	}, time.Second, testInterval)

	err := e.Resume()
	require.Error(t, err)
	v, ok := err.(*safety.Violation)
	require.True(t, ok)
	assert.Equal(t, safety.CodeLinesDoorOpen, v.Code)

	e.Stop()
}

func TestEnginePauseDiscardsTrigger(t *testing.T) {
	e, hw, _ := newTestEngine(t)

	require.NoError(t, e.Load([]plan.Step{
		{Op: plan.OpWaitSensor, Sensor: machine.SensorXRight, Desc: "waiting for right edge"},
	}))
	require.NoError(t, e.Start())
	time.Sleep(2 * testInterval)
	require.NoError(t, e.Pause())

	// a press made while paused must not complete the step
	hw.Trigger(machine.SensorXRight)
	time.Sleep(10 * testInterval)
	st := e.Status()
	assert.Equal(t, StatePaused, st.State)
	assert.Equal(t, 0, st.Index)

	require.NoError(t, e.Resume())
	time.Sleep(10 * testInterval)
	assert.Equal(t, StateRunning, e.Status().State)

	hw.Trigger(machine.SensorXRight)
	e.Wait()
	assert.Equal(t, StateCompleted, e.Status().State)
}

func TestEngineHardwareErrorStops(t *testing.T) {
	e, hw, rec := newTestEngine(t)

	require.NoError(t, hw.EmergencyStop())
	require.NoError(t, e.Load(moveSteps()))
	require.NoError(t, e.Start())
	e.Wait()

	st := e.Status()
	assert.Equal(t, StateStopped, st.State)
	assert.Contains(t, st.Err, "halted")
	assert.Contains(t, rec.last().Err, "halted")
}

func TestEngineOperatorStopCarriesNoError(t *testing.T) {
	e, _, _ := newTestEngine(t)

	require.NoError(t, e.Load([]plan.Step{
		{Op: plan.OpWaitSensor, Sensor: machine.SensorYTop, Desc: "waiting for top edge"},
	}))
	require.NoError(t, e.Start())
	time.Sleep(2 * testInterval)
	require.NoError(t, e.Stop())

	st := e.Status()
	assert.Equal(t, StateStopped, st.State)
	assert.Empty(t, st.Err)
}

func TestEngineManualStepping(t *testing.T) {
	e, hw, _ := newTestEngine(t)

	require.NoError(t, e.Load(moveSteps()))

	require.NoError(t, e.ExecuteCurrentStep()) // program start
	require.NoError(t, e.ExecuteCurrentStep()) // move X
	assert.Equal(t, 15.0, hw.Position().X)
	assert.Equal(t, 2, e.Status().Index)

	require.NoError(t, e.StepBackward())
	assert.Equal(t, 1, e.Status().Index)
	require.NoError(t, e.StepForward())
	assert.Equal(t, 2, e.Status().Index)

	// out of range is rejected
	for e.Status().Index < e.Status().Total-1 {
		require.NoError(t, e.StepForward())
	}
	assert.Equal(t, ErrOutOfRange, e.StepForward())
}

func TestEngineManualStepHoldsTheHardware(t *testing.T) {
	e, hw, _ := newTestEngine(t)

	require.NoError(t, e.Load([]plan.Step{
		{Op: plan.OpWaitSensor, Sensor: machine.SensorXLeft, Desc: "waiting for left edge"},
		{Op: plan.OpWaitSensor, Sensor: machine.SensorXRight, Desc: "waiting for right edge"},
	}))

	done := make(chan error, 1)
	go func() { done <- e.ExecuteCurrentStep() }()
	time.Sleep(10 * testInterval)

	// the manual wait is the only writer until it finishes
	assert.Equal(t, ErrBusy, e.Start())
	assert.Equal(t, ErrBusy, e.Load(moveSteps()))
	assert.Equal(t, ErrBusy, e.Reset())

	hw.Trigger(machine.SensorXLeft)
	require.NoError(t, <-done)
	assert.Equal(t, 1, e.Status().Index)

	// the worker picks up from the second step, not past it
	require.NoError(t, e.Start())
	time.Sleep(5 * testInterval)
	assert.Equal(t, StateRunning, e.Status().State)
	assert.Equal(t, 1, e.Status().Index)

	hw.Trigger(machine.SensorXRight)
	e.Wait()
	assert.Equal(t, StateCompleted, e.Status().State)
}

func TestEngineStopCancelsManualStep(t *testing.T) {
	e, _, _ := newTestEngine(t)

	require.NoError(t, e.Load([]plan.Step{
		{Op: plan.OpWaitSensor, Sensor: machine.SensorYTop, Desc: "waiting for top edge"},
	}))

	done := make(chan error, 1)
	go func() { done <- e.ExecuteCurrentStep() }()
	time.Sleep(10 * testInterval)

	require.NoError(t, e.Stop())
	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("stop did not cancel the manual wait")
	}
	assert.Equal(t, 0, e.Status().Index)

	// the engine is free again afterwards
	require.NoError(t, e.Start())
	e.Stop()
}

func TestEngineManualStepVetoed(t *testing.T) {
	e, hw, _ := newTestEngine(t)

	hw.SetDoorClosed(true)
	require.NoError(t, e.Load([]plan.Step{
		{Op: plan.OpMoveY, Position: 5, Desc: "move to Y=5"},
	}))

	err := e.ExecuteCurrentStep()
	require.Error(t, err)
	assert.Equal(t, 0, e.Status().Index)
	assert.Equal(t, 0.0, hw.Position().Y)
}

func TestEngineSetupStepsExempt(t *testing.T) {
	e, hw, _ := newTestEngine(t)

	hw.SetDoorClosed(true)
	require.NoError(t, e.Load([]plan.Step{
		{Op: plan.OpMoveY, Context: plan.Setup, Position: 0, Desc: "park lines motor"},
	}))
	require.NoError(t, e.Start())
	e.Wait()
	assert.Equal(t, StateCompleted, e.Status().State)
}

func TestEngineLoadWhileRunning(t *testing.T) {
	e, _, _ := newTestEngine(t)

	require.NoError(t, e.Load([]plan.Step{
		{Op: plan.OpWaitSensor, Sensor: machine.SensorYBottom, Desc: "waiting for bottom edge"},
	}))
	require.NoError(t, e.Start())
	assert.Equal(t, ErrBusy, e.Load(moveSteps()))
	assert.Equal(t, ErrBusy, e.Start())
	e.Stop()

	require.NoError(t, e.Reset())
	require.NoError(t, e.Load(moveSteps()))
}

func TestEngineFullPlan(t *testing.T) {
	e, hw, _ := newTestEngine(t)

	steps := []plan.Step{
		{Op: plan.OpMoveX, Position: 20, Desc: "move to X=20"},
		{Op: plan.OpWaitSensor, Sensor: machine.SensorXLeft, Desc: "waiting for left edge"},
		{Op: plan.OpTool, Tool: machine.ToolLineMarker, Dir: machine.DirDown, Desc: "line marker down"},
		{Op: plan.OpWaitSensor, Sensor: machine.SensorXRight, Desc: "waiting for right edge"},
		{Op: plan.OpTool, Tool: machine.ToolLineMarker, Dir: machine.DirUp, Desc: "line marker up"},
	}
	require.NoError(t, e.Load(steps))
	require.NoError(t, e.Start())

	assert.Eventually(t, func() bool { return e.Status().Index == 1 }, time.Second, testInterval)
	hw.Trigger(machine.SensorXLeft)
	assert.Eventually(t, func() bool { return e.Status().Index == 3 }, time.Second, testInterval)
	assert.Equal(t, machine.TriDown, hw.Snapshot().LineMarker.Actual)
	hw.Trigger(machine.SensorXRight)
	e.Wait()

	assert.Equal(t, StateCompleted, e.Status().State)
	assert.Equal(t, machine.TriUp, hw.Snapshot().LineMarker.Actual)
}
