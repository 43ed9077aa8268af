package telemetry

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/calvinmclean/echoguide"
)

// ErrNotTelemetry is returned by Decode for console lines that aren't telemetry records
var ErrNotTelemetry = errors.New("not a telemetry line")

const (
	snapshotPrefix = "S"
	faultPrefix    = "F"
)

// Encode formats a snapshot as a single line without the trailing newline:
//
//	S,<L|R>,<unix ms>,<estimate valid 0|1>,<distance>,<level>,<alert 0|1>
func Encode(s echoguide.Snapshot) string {
	return strings.Join([]string{
		snapshotPrefix,
		s.Side.Short(),
		strconv.FormatInt(s.Timestamp.UnixMilli(), 10),
		b2s(s.Estimate.Valid),
		strconv.FormatFloat(s.Estimate.Distance, 'f', 1, 64),
		strconv.Itoa(int(s.Command.Level)),
		b2s(s.Command.Alert),
	}, ",")
}

// EncodeFault formats a fault as a single line:
//
//	F,<L|R>,<unix ms>,<component>,<message>
func EncodeFault(f echoguide.Fault) string {
	msg := ""
	if f.Err != nil {
		msg = strings.ReplaceAll(f.Err.Error(), "\n", " ")
	}
	return strings.Join([]string{
		faultPrefix,
		f.Side.Short(),
		strconv.FormatInt(f.Timestamp.UnixMilli(), 10),
		f.Component,
		msg,
	}, ",")
}

// Record is a decoded telemetry line. Exactly one of Snapshot and Fault is set.
type Record struct {
	Snapshot *echoguide.Snapshot
	Fault    *echoguide.Fault
}

// Publish sends the record to a Sink
func (r Record) Publish(sink Sink) {
	switch {
	case r.Snapshot != nil:
		sink.PublishSnapshot(*r.Snapshot)
	case r.Fault != nil:
		sink.PublishFault(*r.Fault)
	}
}

// Decode parses a line produced by Encode or EncodeFault
func Decode(line string) (Record, error) {
	line = strings.TrimRight(line, "\r\n")
	prefix, rest, ok := strings.Cut(line, ",")
	if !ok {
		return Record{}, ErrNotTelemetry
	}

	switch prefix {
	case snapshotPrefix:
		s, err := decodeSnapshot(rest)
		if err != nil {
			return Record{}, err
		}
		return Record{Snapshot: &s}, nil
	case faultPrefix:
		f, err := decodeFault(rest)
		if err != nil {
			return Record{}, err
		}
		return Record{Fault: &f}, nil
	default:
		return Record{}, ErrNotTelemetry
	}
}

func decodeSnapshot(in string) (echoguide.Snapshot, error) {
	parts := strings.Split(in, ",")
	if len(parts) != 6 {
		return echoguide.Snapshot{}, fmt.Errorf("snapshot: expected 6 fields, got %d", len(parts))
	}

	side, ok := echoguide.ParseSide(parts[0])
	if !ok {
		return echoguide.Snapshot{}, fmt.Errorf("snapshot: invalid side %q", parts[0])
	}

	ms, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return echoguide.Snapshot{}, fmt.Errorf("snapshot: invalid timestamp: %w", err)
	}
	ts := time.UnixMilli(ms)

	distance, err := strconv.ParseFloat(parts[3], 64)
	if err != nil {
		return echoguide.Snapshot{}, fmt.Errorf("snapshot: invalid distance: %w", err)
	}

	level, err := strconv.ParseUint(parts[4], 10, 8)
	if err != nil {
		return echoguide.Snapshot{}, fmt.Errorf("snapshot: invalid level: %w", err)
	}

	return echoguide.Snapshot{
		Side: side,
		Estimate: echoguide.StableEstimate{
			Side:      side,
			Distance:  distance,
			Valid:     parts[2] == "1",
			Timestamp: ts,
		},
		Command: echoguide.FeedbackCommand{
			Side:  side,
			Level: echoguide.IntensityLevel(level),
			Alert: parts[5] == "1",
		},
		Timestamp: ts,
	}, nil
}

func decodeFault(in string) (echoguide.Fault, error) {
	parts := strings.SplitN(in, ",", 4)
	if len(parts) != 4 {
		return echoguide.Fault{}, fmt.Errorf("fault: expected 4 fields, got %d", len(parts))
	}

	side, ok := echoguide.ParseSide(parts[0])
	if !ok {
		return echoguide.Fault{}, fmt.Errorf("fault: invalid side %q", parts[0])
	}

	ms, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return echoguide.Fault{}, fmt.Errorf("fault: invalid timestamp: %w", err)
	}

	return echoguide.Fault{
		Side:      side,
		Component: parts[2],
		Err:       errors.New(parts[3]),
		Timestamp: time.UnixMilli(ms),
	}, nil
}

func b2s(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// LineWriter is a Sink that writes encoded lines to w. Writes can block, so wrap it with Buffered
// before handing it to the control loop.
type LineWriter struct {
	w io.Writer
}

var _ Sink = (*LineWriter)(nil)

// NewLineWriter creates a LineWriter
func NewLineWriter(w io.Writer) *LineWriter {
	return &LineWriter{w: w}
}

// PublishSnapshot implements Sink.
func (l *LineWriter) PublishSnapshot(s echoguide.Snapshot) {
	_, _ = io.WriteString(l.w, Encode(s)+"\r\n")
}

// PublishFault implements Sink.
func (l *LineWriter) PublishFault(f echoguide.Fault) {
	_, _ = io.WriteString(l.w, EncodeFault(f)+"\r\n")
}
