// Package motion defines the closed set of drive commands and the sinks that
// carry them to the wheels.
package motion

import (
	"fmt"
	"strings"
)

// Command is a differential-drive motion primitive.
type Command uint8

const (
	Stop Command = iota
	Forward
	Left
	Right
)

// Commands lists every command in declaration order.
var Commands = []Command{Stop, Forward, Left, Right}

func (c Command) String() string {
	switch c {
	case Stop:
		return "stop"
	case Forward:
		return "forward"
	case Left:
		return "left"
	case Right:
		return "right"
	}
	return fmt.Sprintf("command(%d)", uint8(c))
}

// ParseCommand accepts the lower-case names produced by String.
func ParseCommand(s string) (Command, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stop":
		return Stop, nil
	case "forward":
		return Forward, nil
	case "left":
		return Left, nil
	case "right":
		return Right, nil
	}
	return Stop, fmt.Errorf("unknown motion command %q", s)
}

// Turning reports whether c rotates the robot.
func (c Command) Turning() bool {
	return c == Left || c == Right
}
