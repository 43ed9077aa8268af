//go:build tinygo

package device

import (
	"machine"

	"tinygo.org/x/drivers/servo"

	"github.com/calvinmclean/echoguide/sensor"
)

// SensorConfig has the pins for one HC-SR04 and its rated range
type SensorConfig struct {
	Trigger machine.Pin
	Echo    machine.Pin
	Range   sensor.Config
}

// HapticConfig has device-level values for setting up a vibration motor on a PWM channel
type HapticConfig struct {
	Pin machine.Pin
	PWM servo.PWM
	// Period is the PWM period in nanoseconds. Coin motors run well around 1kHz.
	Period uint64
	// MinDuty is the duty cycle fraction used for the lowest level
	MinDuty float32
}

// AlertConfig is the pin driving the piezo buzzer
type AlertConfig struct {
	Pin machine.Pin
}
