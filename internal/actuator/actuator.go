// Package actuator injects pointer input into the operating system.
package actuator

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnsupported is returned by actuators that cannot perform an operation.
var ErrUnsupported = errors.New("actuator: operation not supported")

// Actuator performs pointer side effects. Implementations report failures as
// errors; the Worker logs them and keeps going.
type Actuator interface {
	MoveAbsolute(x, y int) error
	MoveRelative(dx, dy int) error
	ClickLeft() error
	ClickRight() error
	DoubleClick() error
	// Scroll scrolls by whole notches. Positive dy scrolls down.
	Scroll(dx, dy int) error
}

// Op names a recorded actuator call.
type Op string

const (
	OpMove        Op = "move"
	OpMoveRel     Op = "move_relative"
	OpClickLeft   Op = "click_left"
	OpClickRight  Op = "click_right"
	OpDoubleClick Op = "double_click"
	OpScroll      Op = "scroll"
)

// Call is one recorded actuator call.
type Call struct {
	Op Op
	X  int
	Y  int
}

func (c Call) String() string {
	switch c.Op {
	case OpMove, OpMoveRel, OpScroll:
		return fmt.Sprintf("%s(%d,%d)", c.Op, c.X, c.Y)
	}
	return string(c.Op)
}

// Recorder is an in-memory Actuator. It backs dry runs and tests.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
	fail  map[Op]error
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{fail: make(map[Op]error)}
}

// FailOn makes every subsequent op call return err. A nil err clears it.
func (r *Recorder) FailOn(op Op, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.fail, op)
		return
	}
	r.fail[op] = err
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Reset forgets recorded calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

func (r *Recorder) record(c Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail[c.Op]; err != nil {
		return err
	}
	r.calls = append(r.calls, c)
	return nil
}

func (r *Recorder) MoveAbsolute(x, y int) error   { return r.record(Call{Op: OpMove, X: x, Y: y}) }
func (r *Recorder) MoveRelative(dx, dy int) error { return r.record(Call{Op: OpMoveRel, X: dx, Y: dy}) }
func (r *Recorder) ClickLeft() error              { return r.record(Call{Op: OpClickLeft}) }
func (r *Recorder) ClickRight() error             { return r.record(Call{Op: OpClickRight}) }
func (r *Recorder) DoubleClick() error            { return r.record(Call{Op: OpDoubleClick}) }
func (r *Recorder) Scroll(dx, dy int) error       { return r.record(Call{Op: OpScroll, X: dx, Y: dy}) }
