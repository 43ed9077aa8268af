package echoguide

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSide(t *testing.T) {
	assert.Equal(t, "Left", SideLeft.String())
	assert.Equal(t, "Right", SideRight.String())
	assert.Equal(t, SideRight, SideLeft.Other())
	assert.Equal(t, SideLeft, SideRight.Other())

	for _, s := range Sides {
		parsed, ok := ParseSide(s.Short())
		assert.True(t, ok)
		assert.Equal(t, s, parsed)
	}

	_, ok := ParseSide("X")
	assert.False(t, ok)
}

func TestCycleStateNext(t *testing.T) {
	tests := []struct {
		in       CycleState
		expected CycleState
	}{
		{StateIdle, StateTriggered},
		{StateTriggered, StateAwaitingEcho},
		{StateAwaitingEcho, StateResolved},
		{StateResolved, StateIdle},
	}

	for _, tt := range tests {
		t.Run(tt.in.String(), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.in.Next())
		})
	}
}

func TestIntensityLevelString(t *testing.T) {
	assert.Equal(t, "off", LevelOff.String())
	assert.Equal(t, "L3", IntensityLevel(3).String())
}

func TestFaultError(t *testing.T) {
	f := Fault{Side: SideRight, Component: "haptic", Err: errors.New("stalled")}
	assert.Equal(t, "Right haptic: stalled", f.Error())
}
