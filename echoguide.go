package echoguide

import (
	"strconv"
	"time"
)

// Side identifies one of the two independent sensing pipelines
type Side int

const (
	SideLeft Side = iota
	SideRight
)

// Sides lists both pipelines in a stable order
var Sides = [2]Side{SideLeft, SideRight}

func (s Side) String() string {
	switch s {
	case SideLeft:
		return "Left"
	case SideRight:
		return "Right"
	default:
		return "Unknown"
	}
}

// Short returns the single-letter form used on the serial line
func (s Side) Short() string {
	if s == SideRight {
		return "R"
	}
	return "L"
}

// Other returns the opposite side
func (s Side) Other() Side {
	if s == SideLeft {
		return SideRight
	}
	return SideLeft
}

// ParseSide parses the single-letter form of a Side
func ParseSide(in string) (Side, bool) {
	switch in {
	case "L", "l":
		return SideLeft, true
	case "R", "r":
		return SideRight, true
	}
	return SideLeft, false
}

// IntensityLevel is the haptic output strength. 0 is off and higher levels mean a closer obstacle.
type IntensityLevel uint8

const LevelOff IntensityLevel = 0

func (l IntensityLevel) String() string {
	if l == LevelOff {
		return "off"
	}
	return "L" + strconv.Itoa(int(l))
}

// RawSample is one reading from a single trigger cycle
type RawSample struct {
	Side      Side
	Distance  float64
	Timestamp time.Time
	// Valid is false when the echo timed out or the reading is outside the sensor's rated range
	Valid bool
}

// StableEstimate is the filtered distance for one Side
type StableEstimate struct {
	Side      Side
	Distance  float64
	Valid     bool
	Timestamp time.Time
}

// FeedbackCommand is what a Side's haptic and the shared alert should be doing
type FeedbackCommand struct {
	Side  Side
	Level IntensityLevel
	Alert bool
}

// Snapshot is a read-only telemetry record of one completed cycle
type Snapshot struct {
	Side      Side
	Estimate  StableEstimate
	Command   FeedbackCommand
	Timestamp time.Time
}

// Fault is a hardware failure reported by a driver. It never stops the control loop.
type Fault struct {
	Side      Side
	Component string
	Err       error
	Timestamp time.Time
}

func (f Fault) Error() string {
	msg := "<nil>"
	if f.Err != nil {
		msg = f.Err.Error()
	}
	return f.Side.String() + " " + f.Component + ": " + msg
}

// CycleState is the per-side measurement state
type CycleState int32

const (
	StateIdle CycleState = iota
	StateTriggered
	StateAwaitingEcho
	StateResolved
)

func (cs CycleState) String() string {
	switch cs {
	case StateIdle:
		return "Idle"
	case StateTriggered:
		return "Triggered"
	case StateAwaitingEcho:
		return "AwaitingEcho"
	case StateResolved:
		return "Resolved"
	default:
		return "Unknown"
	}
}

// Next is the following state in a normal cycle. Resolved always returns to Idle.
func (cs CycleState) Next() CycleState {
	if cs == StateResolved {
		return StateIdle
	}
	return cs + 1
}
