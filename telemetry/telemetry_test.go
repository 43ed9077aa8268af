package telemetry

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinmclean/echoguide"
)

var ts = time.UnixMilli(1760800000123)

func snapshot(side echoguide.Side, d float64, level echoguide.IntensityLevel, alert bool) echoguide.Snapshot {
	return echoguide.Snapshot{
		Side:      side,
		Estimate:  echoguide.StableEstimate{Side: side, Distance: d, Valid: true, Timestamp: ts},
		Command:   echoguide.FeedbackCommand{Side: side, Level: level, Alert: alert},
		Timestamp: ts,
	}
}

func TestEncode(t *testing.T) {
	assert.Equal(t, "S,R,1760800000123,1,142.5,2,1", Encode(snapshot(echoguide.SideRight, 142.5, 2, true)))

	f := echoguide.Fault{Side: echoguide.SideLeft, Component: "haptic", Err: errors.New("stalled,\nno current"), Timestamp: ts}
	assert.Equal(t, "F,L,1760800000123,haptic,stalled, no current", EncodeFault(f))
}

func TestDecode(t *testing.T) {
	t.Run("Snapshot", func(t *testing.T) {
		want := snapshot(echoguide.SideLeft, 200, 2, false)
		rec, err := Decode(Encode(want) + "\r\n")
		require.NoError(t, err)
		require.NotNil(t, rec.Snapshot)
		assert.Nil(t, rec.Fault)
		if diff := cmp.Diff(want, *rec.Snapshot); diff != "" {
			t.Errorf("unexpected snapshot (-want +got):\n%s", diff)
		}
	})

	t.Run("Fault", func(t *testing.T) {
		rec, err := Decode("F,R,1760800000123,alert,buzzer open, check wiring")
		require.NoError(t, err)
		require.NotNil(t, rec.Fault)
		assert.Equal(t, echoguide.SideRight, rec.Fault.Side)
		assert.Equal(t, "alert", rec.Fault.Component)
		assert.EqualError(t, rec.Fault.Err, "buzzer open, check wiring")
		assert.True(t, ts.Equal(rec.Fault.Timestamp))
	})

	t.Run("Errors", func(t *testing.T) {
		tests := []struct {
			name         string
			in           string
			notTelemetry bool
		}{
			{"ConsoleOutput", "[1.2s] config updated", true},
			{"Empty", "", true},
			{"UnknownPrefix", "Q,L,1", true},
			{"ShortSnapshot", "S,L,1,1", false},
			{"BadSide", "S,X,1,1,100.0,1,0", false},
			{"BadDistance", "S,L,1,1,far,1,0", false},
			{"BadLevel", "S,L,1,1,100.0,300,0", false},
			{"ShortFault", "F,L,1", false},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := Decode(tt.in)
				require.Error(t, err)
				assert.Equal(t, tt.notTelemetry, errors.Is(err, ErrNotTelemetry))
			})
		}
	})
}

func TestLineWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewLineWriter(&buf)
	w.PublishSnapshot(snapshot(echoguide.SideLeft, 80, 3, true))
	w.PublishFault(echoguide.Fault{Side: echoguide.SideRight, Component: "alert", Err: errors.New("x"), Timestamp: ts})

	assert.Equal(t, "S,L,1760800000123,1,80.0,3,1\r\nF,R,1760800000123,alert,x\r\n", buf.String())
}

type blockingSink struct {
	release chan struct{}
	Recorder
}

func (b *blockingSink) PublishSnapshot(s echoguide.Snapshot) {
	<-b.release
	b.Recorder.PublishSnapshot(s)
}

func TestBuffered(t *testing.T) {
	t.Run("NeverBlocks", func(t *testing.T) {
		next := &blockingSink{release: make(chan struct{})}
		b := Buffered(next, 2)

		done := make(chan struct{})
		go func() {
			defer close(done)
			for range 100 {
				b.PublishSnapshot(snapshot(echoguide.SideLeft, 100, 1, false))
			}
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("publishing blocked on a slow sink")
		}

		// at most the queue plus the one item held by drain can survive
		assert.GreaterOrEqual(t, b.Dropped(), uint64(97))

		close(next.release)
		b.Close()
		assert.Equal(t, uint64(100), b.Dropped()+uint64(len(next.Snapshots())))
	})

	t.Run("DrainsFaultsAndSnapshots", func(t *testing.T) {
		rec := &Recorder{}
		b := Buffered(rec, 16)
		b.PublishSnapshot(snapshot(echoguide.SideLeft, 100, 1, false))
		b.PublishFault(echoguide.Fault{Side: echoguide.SideLeft, Component: "haptic", Err: errors.New("x")})
		b.Close()

		assert.Len(t, rec.Snapshots(), 1)
		assert.Len(t, rec.Faults(), 1)
		assert.Zero(t, b.Dropped())
	})
}

func TestMulti(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	m := Multi(a, Noop{}, b)

	rec, err := Decode("S,R,1,0,0.0,0,0")
	require.NoError(t, err)
	rec.Publish(m)
	m.PublishFault(echoguide.Fault{Component: "alert"})

	for _, r := range []*Recorder{a, b} {
		assert.Len(t, r.Snapshots(), 1)
		assert.Len(t, r.Faults(), 1)
	}
}
