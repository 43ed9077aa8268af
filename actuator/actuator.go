// Package actuator realizes FeedbackCommands as physical output. Drivers are stateless apart from
// what the hardware needs; the coordinator decides what to write and when.
package actuator

import (
	"errors"
	"strconv"
	"sync"

	"github.com/calvinmclean/echoguide"
)

// Haptic drives one vibration motor
type Haptic interface {
	SetIntensity(echoguide.IntensityLevel) error
}

// Alert drives the shared audible alert
type Alert interface {
	SetAlert(on bool) error
}

// PWM is the subset of a hardware PWM peripheral needed to drive a motor. It matches the methods of
// the servo.PWM interface from tinygo.org/x/drivers that are used after configuration.
type PWM interface {
	Top() uint32
	Set(channel uint8, value uint32)
}

// PWMHaptic converts an IntensityLevel into a duty cycle on one PWM channel
type PWMHaptic struct {
	pwm     PWM
	channel uint8
	levels  int
	// minDuty is the fraction of Top at level 1. Small vibration motors stall below roughly a third.
	minDuty float32
}

// NewPWMHaptic creates a PWMHaptic with the given number of non-off levels
func NewPWMHaptic(pwm PWM, channel uint8, levels int, minDuty float32) (*PWMHaptic, error) {
	if levels < 1 {
		return nil, errors.New("at least one level is required")
	}
	if minDuty < 0 || minDuty > 1 {
		return nil, errors.New("minDuty must be between 0 and 1")
	}
	return &PWMHaptic{pwm: pwm, channel: channel, levels: levels, minDuty: minDuty}, nil
}

// SetLevels changes the number of levels after a config update
func (h *PWMHaptic) SetLevels(levels int) {
	if levels > 0 {
		h.levels = levels
	}
}

// SetIntensity sets the motor duty cycle for the level
func (h *PWMHaptic) SetIntensity(level echoguide.IntensityLevel) error {
	if int(level) > h.levels {
		return errors.New("level out of range: " + level.String() + " > L" + strconv.Itoa(h.levels))
	}
	h.pwm.Set(h.channel, DutyCycle(level, h.levels, h.minDuty, h.pwm.Top()))
	return nil
}

// DutyCycle maps a level onto 0..top. Off is 0, level 1 is minDuty*top and the highest level is top.
func DutyCycle(level echoguide.IntensityLevel, levels int, minDuty float32, top uint32) uint32 {
	if level == echoguide.LevelOff || levels < 1 {
		return 0
	}
	if int(level) >= levels {
		return top
	}

	// level 1..levels spread evenly across minDuty..1
	frac := minDuty
	if levels > 1 {
		frac += (1 - minDuty) * float32(level-1) / float32(levels-1)
	}
	return uint32(frac * float32(top))
}

// Switch is an on/off output such as a buzzer
type Switch interface {
	On() error
	Off() error
}

// SwitchAlert drives a Switch from alert commands
type SwitchAlert struct {
	sw Switch
}

// NewSwitchAlert creates an Alert backed by a Switch
func NewSwitchAlert(sw Switch) *SwitchAlert {
	return &SwitchAlert{sw: sw}
}

// SetAlert turns the switch on or off
func (a *SwitchAlert) SetAlert(on bool) error {
	if on {
		return a.sw.On()
	}
	return a.sw.Off()
}

// SerializedHaptic makes sure only one command reaches the wrapped Haptic at a time
type SerializedHaptic struct {
	mu sync.Mutex
	h  Haptic
}

// SerializeHaptic wraps h
func SerializeHaptic(h Haptic) *SerializedHaptic {
	return &SerializedHaptic{h: h}
}

// SetIntensity implements Haptic
func (s *SerializedHaptic) SetIntensity(level echoguide.IntensityLevel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.h.SetIntensity(level)
}

// SetLevels forwards to the wrapped Haptic if it supports it
func (s *SerializedHaptic) SetLevels(levels int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ls, ok := s.h.(interface{ SetLevels(int) }); ok {
		ls.SetLevels(levels)
	}
}

// SerializedAlert makes sure only one command reaches the wrapped Alert at a time
type SerializedAlert struct {
	mu sync.Mutex
	a  Alert
}

// SerializeAlert wraps a
func SerializeAlert(a Alert) *SerializedAlert {
	return &SerializedAlert{a: a}
}

// SetAlert implements Alert
func (s *SerializedAlert) SetAlert(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.a.SetAlert(on)
}
