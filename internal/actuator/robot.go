package actuator

import (
	"fmt"

	"github.com/go-vgo/robotgo"
)

// RobotActuator drives the real pointer through robotgo.
type RobotActuator struct{}

// NewRobotActuator returns an actuator bound to the local display.
func NewRobotActuator() *RobotActuator {
	return &RobotActuator{}
}

// guard converts a panic inside robotgo (no display, missing permissions)
// into an error.
func guard(op string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: %v", op, r)
		}
	}()
	fn()
	return nil
}

func (RobotActuator) MoveAbsolute(x, y int) error {
	return guard("move", func() { robotgo.Move(x, y) })
}

func (RobotActuator) MoveRelative(dx, dy int) error {
	return guard("move relative", func() { robotgo.MoveRelative(dx, dy) })
}

func (RobotActuator) ClickLeft() error {
	return guard("left click", func() { robotgo.Click("left") })
}

func (RobotActuator) ClickRight() error {
	return guard("right click", func() { robotgo.Click("right") })
}

func (RobotActuator) DoubleClick() error {
	return guard("double click", func() { robotgo.Click("left", true) })
}

// Scroll takes positive dy as down; robotgo scrolls up for positive y.
func (RobotActuator) Scroll(dx, dy int) error {
	return guard("scroll", func() { robotgo.Scroll(dx, -dy) })
}

// ScreenSize queries the main display size once.
func ScreenSize() (w, h int, err error) {
	err = guard("screen size", func() { w, h = robotgo.GetScreenSize() })
	if err == nil && (w <= 0 || h <= 0) {
		err = fmt.Errorf("screen size: invalid %dx%d", w, h)
	}
	return w, h, err
}
