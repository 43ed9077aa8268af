package telemetry

import (
	"strings"
	"time"

	"github.com/calvinmclean/echoguide"
)

// SnapshotMessage is the JSON form of a Snapshot used by network sinks
type SnapshotMessage struct {
	Side       string    `json:"side"`
	Timestamp  time.Time `json:"timestamp"`
	Valid      bool      `json:"valid"`
	DistanceCM float64   `json:"distance_cm"`
	Level      uint8     `json:"level"`
	Alert      bool      `json:"alert"`
}

func NewSnapshotMessage(s echoguide.Snapshot) SnapshotMessage {
	return SnapshotMessage{
		Side:       strings.ToLower(s.Side.String()),
		Timestamp:  s.Timestamp,
		Valid:      s.Estimate.Valid,
		DistanceCM: s.Estimate.Distance,
		Level:      uint8(s.Command.Level),
		Alert:      s.Command.Alert,
	}
}

// FaultMessage is the JSON form of a Fault used by network sinks
type FaultMessage struct {
	Side      string    `json:"side"`
	Timestamp time.Time `json:"timestamp"`
	Component string    `json:"component"`
	Error     string    `json:"error"`
}

func NewFaultMessage(f echoguide.Fault) FaultMessage {
	msg := FaultMessage{
		Side:      strings.ToLower(f.Side.String()),
		Timestamp: f.Timestamp,
		Component: f.Component,
	}
	if f.Err != nil {
		msg.Error = f.Err.Error()
	}
	return msg
}
