package actuator

import (
	"github.com/sirupsen/logrus"

	"github.com/ayusman/mukha/internal/logging"
)

// LogActuator performs no input and logs every call at debug level. It backs
// --dry-run.
type LogActuator struct {
	log logrus.FieldLogger
}

// NewLogActuator creates a LogActuator.
func NewLogActuator(log logrus.FieldLogger) *LogActuator {
	return &LogActuator{log: logging.Component(log, "dry-run")}
}

func (l *LogActuator) emit(c Call) error {
	l.log.WithField("op", string(c.Op)).Debug(c.String())
	return nil
}

func (l *LogActuator) MoveAbsolute(x, y int) error { return l.emit(Call{Op: OpMove, X: x, Y: y}) }
func (l *LogActuator) MoveRelative(dx, dy int) error {
	return l.emit(Call{Op: OpMoveRel, X: dx, Y: dy})
}
func (l *LogActuator) ClickLeft() error        { return l.emit(Call{Op: OpClickLeft}) }
func (l *LogActuator) ClickRight() error       { return l.emit(Call{Op: OpClickRight}) }
func (l *LogActuator) DoubleClick() error      { return l.emit(Call{Op: OpDoubleClick}) }
func (l *LogActuator) Scroll(dx, dy int) error { return l.emit(Call{Op: OpScroll, X: dx, Y: dy}) }
