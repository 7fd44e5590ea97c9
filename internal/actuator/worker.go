package actuator

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/mukha/internal/action"
	"github.com/ayusman/mukha/internal/logging"
	"github.com/ayusman/mukha/internal/pointer"
)

// DefaultClickQueue is the click queue depth used when none is given.
const DefaultClickQueue = 8

// Worker applies pointer commands and clicks on its own goroutine so the
// frame loop never waits on the OS. Moves coalesce through a Mailbox; clicks
// go through a small bounded queue and are dropped when it is full.
type Worker struct {
	act    Actuator
	log    logrus.FieldLogger
	moves  *Mailbox
	clicks chan action.Kind

	// fractional scroll carried between commands
	remX, remY float64

	failures atomic.Int64
	dropped  atomic.Int64
}

// NewWorker creates a worker. queue <= 0 selects DefaultClickQueue.
func NewWorker(act Actuator, queue int, log logrus.FieldLogger) *Worker {
	if queue <= 0 {
		queue = DefaultClickQueue
	}
	return &Worker{
		act:    act,
		log:    logging.Component(log, "actuator"),
		moves:  NewMailbox(),
		clicks: make(chan action.Kind, queue),
	}
}

// Submit hands a pointer command to the worker without blocking.
func (w *Worker) Submit(cmd pointer.Command) {
	w.moves.Put(cmd)
}

// Click queues a click action. It reports false if kind is not a click or
// the queue is full.
func (w *Worker) Click(kind action.Kind) bool {
	if !kind.IsClick() {
		return false
	}
	select {
	case w.clicks <- kind:
		return true
	default:
		w.dropped.Add(1)
		w.log.WithField("action", string(kind)).Warn("Click queue full, dropping")
		return false
	}
}

// Failures returns how many actuator calls have failed.
func (w *Worker) Failures() int64 { return w.failures.Load() }

// Dropped returns how many clicks were dropped on a full queue.
func (w *Worker) Dropped() int64 { return w.dropped.Load() }

// Run processes commands until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.moves.Ready():
			w.flushMove()
		case kind := <-w.clicks:
			// a click lands where the latest move put the pointer
			w.flushMove()
			w.report(string(kind), w.click(kind))
		}
	}
}

func (w *Worker) flushMove() {
	cmd, ok := w.moves.Take()
	if !ok {
		return
	}
	switch cmd.Kind {
	case pointer.Move:
		w.report("move", w.act.MoveAbsolute(cmd.X, cmd.Y))
	case pointer.Scroll:
		w.remX += cmd.DX
		w.remY += cmd.DY
		dx, dy := math.Trunc(w.remX), math.Trunc(w.remY)
		if dx == 0 && dy == 0 {
			return
		}
		w.remX -= dx
		w.remY -= dy
		w.report("scroll", w.act.Scroll(int(dx), int(dy)))
	}
}

func (w *Worker) click(kind action.Kind) error {
	switch kind {
	case action.LeftClick:
		return w.act.ClickLeft()
	case action.RightClick:
		return w.act.ClickRight()
	case action.DoubleClick:
		return w.act.DoubleClick()
	}
	return fmt.Errorf("click %s: %w", kind, ErrUnsupported)
}

func (w *Worker) report(op string, err error) {
	if err == nil {
		return
	}
	w.failures.Add(1)
	w.log.WithError(err).WithField("op", op).Warn("Actuator call failed")
}
