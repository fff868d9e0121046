package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/scratchdesk/scratchdesk/machine"
	"github.com/scratchdesk/scratchdesk/plan"
	"github.com/scratchdesk/scratchdesk/safety"
)

// State is the engine lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateStopped   State = "stopped"
	StateCompleted State = "completed"
)

// Progress is reported to the notify callback after every state
// change and every completed step.
type Progress struct {
	State    State
	Index    int
	Total    int
	Fraction float64

	// Desc is the description of the current step, empty once the
	// plan is complete.
	Desc string

	// Elapsed is the wall time since the plan was started, zero
	// before the first Start.
	Elapsed time.Duration

	// Violation is set while the engine is pause-parked on a safety
	// veto.
	Violation *safety.Violation

	// Err carries the hardware failure that forced a stop, empty for
	// an operator stop.
	Err string
}

// NotifyFunc receives progress updates. It is called from the
// engine's worker goroutine and must not block.
type NotifyFunc func(Progress)

var (
	ErrNotRunning = errors.New("engine: not running")
	ErrBusy       = errors.New("engine: a plan is already running")
	ErrNoPlan     = errors.New("engine: no plan loaded")
	ErrOutOfRange = errors.New("engine: step index out of range")
)

// Engine executes a generated plan against a hardware adapter, one
// step at a time, gating every dispatch through the safety interlock.
type Engine struct {
	hw       machine.Adapter
	il       *safety.Interlock
	notify   NotifyFunc
	interval time.Duration

	mx      sync.Mutex
	steps   []plan.Step
	idx     int
	state   State
	vio     *safety.Violation
	lastErr string
	started time.Time

	manual       bool
	manualCancel context.CancelFunc

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an Engine. interval governs how often sensor waits
// observe cancellation and how often a veto pause re-checks the
// parked step; zero selects 100ms.
func New(hw machine.Adapter, il *safety.Interlock, interval time.Duration) *Engine {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Engine{hw: hw, il: il, interval: interval, state: StateIdle}
}

// SetNotify registers the progress callback. Call before Start.
func (e *Engine) SetNotify(fn NotifyFunc) {
	e.mx.Lock()
	e.notify = fn
	e.mx.Unlock()
}

// Load replaces the plan and rewinds to the first step. It fails
// while a plan is running or paused, or while a manual step is in
// flight.
func (e *Engine) Load(steps []plan.Step) error {
	e.mx.Lock()
	defer e.mx.Unlock()
	if e.state == StateRunning || e.state == StatePaused || e.manual {
		return ErrBusy
	}
	e.steps = steps
	e.idx = 0
	e.state = StateIdle
	e.vio = nil
	e.lastErr = ""
	e.started = time.Time{}
	return nil
}

// Reset rewinds to the first step after a stop or completion.
func (e *Engine) Reset() error {
	e.mx.Lock()
	defer e.mx.Unlock()
	if e.state == StateRunning || e.state == StatePaused || e.manual {
		return ErrBusy
	}
	e.idx = 0
	e.state = StateIdle
	e.vio = nil
	e.lastErr = ""
	e.started = time.Time{}
	return nil
}

// Start launches the worker from the current step. The engine is the
// only writer on the hardware, so Start is refused while a manual
// step still holds it.
func (e *Engine) Start() error {
	e.mx.Lock()
	defer e.mx.Unlock()
	if e.state == StateRunning || e.state == StatePaused || e.manual {
		return ErrBusy
	}
	if len(e.steps) == 0 {
		return ErrNoPlan
	}
	if e.idx >= len(e.steps) {
		return ErrOutOfRange
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	e.state = StateRunning
	e.vio = nil
	e.lastErr = ""
	if e.idx == 0 {
		e.started = time.Now()
	}
	go e.run(ctx, e.done)
	return nil
}

// Pause parks the engine after the current step. An in-flight sensor
// wait keeps waiting, but triggers received while paused are
// discarded.
func (e *Engine) Pause() error {
	e.mx.Lock()
	defer e.mx.Unlock()
	if e.state != StateRunning {
		return ErrNotRunning
	}
	e.state = StatePaused
	e.notifyLocked()
	return nil
}

// Resume continues from a pause. Stale sensor triggers are flushed
// first so a press made while paused cannot complete the next wait.
// If the pause came from a safety veto the interlock is consulted
// again and Resume fails while the condition persists.
func (e *Engine) Resume() error {
	e.mx.Lock()
	defer e.mx.Unlock()
	if e.state != StatePaused {
		return ErrNotRunning
	}
	if e.manual {
		return ErrBusy
	}
	if e.vio != nil && e.idx < len(e.steps) {
		if err := e.il.Check(e.steps[e.idx], e.hw.Snapshot()); err != nil {
			return err
		}
	}
	e.hw.FlushSensors()
	e.vio = nil
	e.state = StateRunning
	e.notifyLocked()
	return nil
}

// Stop aborts the plan. A blocked sensor wait is canceled and the
// worker exits within one poll interval. A manual step parked in a
// sensor wait is canceled the same way.
func (e *Engine) Stop() error {
	e.mx.Lock()
	if e.manual && e.manualCancel != nil {
		cancel := e.manualCancel
		e.mx.Unlock()
		cancel()
		return nil
	}
	if e.state != StateRunning && e.state != StatePaused {
		e.mx.Unlock()
		return ErrNotRunning
	}
	cancel, done := e.cancel, e.done
	e.mx.Unlock()

	cancel()
	<-done
	return nil
}

// Wait blocks until the worker goroutine exits.
func (e *Engine) Wait() {
	e.mx.Lock()
	done := e.done
	e.mx.Unlock()
	if done != nil {
		<-done
	}
}

// StepForward advances the current step pointer without executing
// anything. Allowed while idle or operator-paused.
func (e *Engine) StepForward() error { return e.seek(1) }

// StepBackward rewinds the current step pointer without executing
// anything. Allowed while idle or operator-paused.
func (e *Engine) StepBackward() error { return e.seek(-1) }

func (e *Engine) seek(delta int) error {
	e.mx.Lock()
	defer e.mx.Unlock()
	if e.state == StateRunning || (e.state == StatePaused && e.vio != nil) {
		return ErrBusy
	}
	if len(e.steps) == 0 {
		return ErrNoPlan
	}
	n := e.idx + delta
	if n < 0 || n >= len(e.steps) {
		return ErrOutOfRange
	}
	e.idx = n
	e.notifyLocked()
	return nil
}

// ExecuteCurrentStep runs the current step once, interlock-gated, and
// advances past it on success. Used for manual step-through.
func (e *Engine) ExecuteCurrentStep() error {
	e.mx.Lock()
	if e.state == StateRunning || e.manual {
		e.mx.Unlock()
		return ErrBusy
	}
	if e.idx >= len(e.steps) {
		e.mx.Unlock()
		return ErrNoPlan
	}
	step := e.steps[e.idx]
	ctx, cancel := context.WithCancel(context.Background())
	e.manual = true
	e.manualCancel = cancel
	e.mx.Unlock()

	defer func() {
		cancel()
		e.mx.Lock()
		e.manual = false
		e.manualCancel = nil
		e.mx.Unlock()
	}()

	if err := e.il.Check(step, e.hw.Snapshot()); err != nil {
		return err
	}
	if err := e.execute(ctx, step, false); err != nil {
		return err
	}

	e.mx.Lock()
	e.idx++
	e.notifyLocked()
	e.mx.Unlock()
	return nil
}

// Status returns the current progress.
func (e *Engine) Status() Progress {
	e.mx.Lock()
	defer e.mx.Unlock()
	return e.progressLocked()
}

func (e *Engine) progressLocked() Progress {
	p := Progress{
		State:     e.state,
		Index:     e.idx,
		Total:     len(e.steps),
		Violation: e.vio,
	}
	if p.Total > 0 {
		p.Fraction = float64(e.idx) / float64(p.Total)
	}
	if e.idx < len(e.steps) {
		p.Desc = e.steps[e.idx].Desc
	}
	if !e.started.IsZero() {
		p.Elapsed = time.Since(e.started)
	}
	p.Err = e.lastErr
	return p
}

func (e *Engine) notifyLocked() {
	if e.notify != nil {
		e.notify(e.progressLocked())
	}
}

func (e *Engine) paused() bool {
	e.mx.Lock()
	defer e.mx.Unlock()
	return e.state == StatePaused
}

func (e *Engine) finish(st State) {
	e.mx.Lock()
	e.state = st
	e.notifyLocked()
	e.mx.Unlock()
}

func (e *Engine) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		if ctx.Err() != nil {
			e.finish(StateStopped)
			return
		}

		e.mx.Lock()
		if e.idx >= len(e.steps) {
			e.state = StateCompleted
			e.notifyLocked()
			e.mx.Unlock()
			return
		}
		st := e.state
		step := e.steps[e.idx]
		e.mx.Unlock()

		if st == StatePaused {
			select {
			case <-ctx.Done():
				continue
			case <-time.After(e.interval):
			}
			e.resumeIfClear(step)
			continue
		}

		if err := e.il.Check(step, e.hw.Snapshot()); err != nil {
			var v *safety.Violation
			errors.As(err, &v)
			e.mx.Lock()
			e.state = StatePaused
			e.vio = v
			e.notifyLocked()
			e.mx.Unlock()
			continue
		}

		if err := e.execute(ctx, step, true); err != nil {
			if ctx.Err() == nil {
				log.Println("ERROR:", err)
				e.mx.Lock()
				e.lastErr = err.Error()
				e.mx.Unlock()
			}
			e.finish(StateStopped)
			return
		}

		e.mx.Lock()
		e.idx++
		e.notifyLocked()
		e.mx.Unlock()
	}
}

// resumeIfClear re-checks a veto-parked step and auto-resumes when
// the hardware condition has cleared. Operator pauses are left alone.
func (e *Engine) resumeIfClear(step plan.Step) {
	e.mx.Lock()
	defer e.mx.Unlock()
	if e.state != StatePaused || e.vio == nil {
		return
	}
	if e.il.Check(step, e.hw.Snapshot()) != nil {
		return
	}
	e.hw.FlushSensors()
	e.vio = nil
	e.state = StateRunning
	e.notifyLocked()
}

func (e *Engine) execute(ctx context.Context, step plan.Step, pauseAware bool) error {
	switch step.Op {
	case plan.OpMoveX:
		return e.hw.MoveX(step.Position)
	case plan.OpMoveY:
		return e.hw.MoveY(step.Position)
	case plan.OpMoveTo:
		if err := e.hw.MoveX(step.X); err != nil {
			return err
		}
		return e.hw.MoveY(step.Y)
	case plan.OpTool:
		return e.hw.SetTool(step.Tool, step.Dir)
	case plan.OpWaitSensor:
		return e.waitSensor(ctx, step.Sensor, pauseAware)
	case plan.OpProgramStart, plan.OpProgramComplete:
		return nil
	}
	panic(fmt.Sprintf("engine: unknown step op %q", step.Op))
}

// waitSensor blocks on the adapter until a trigger arrives or ctx is
// canceled by Stop. A trigger that arrives while the engine is paused
// is flushed and the wait re-armed, so only a fresh press after
// resume can complete the step.
func (e *Engine) waitSensor(ctx context.Context, id machine.SensorID, pauseAware bool) error {
	for {
		if err := e.hw.WaitSensor(ctx, id); err != nil {
			return err
		}
		if pauseAware && e.paused() {
			e.hw.FlushSensors()
			continue
		}
		return nil
	}
}
