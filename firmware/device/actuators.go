//go:build tinygo

package device

import (
	"errors"
	"machine"

	"tinygo.org/x/drivers/buzzer"

	"github.com/calvinmclean/echoguide/actuator"
)

func newHaptic(cfg HapticConfig, levels int) (*actuator.PWMHaptic, error) {
	err := cfg.PWM.Configure(machine.PWMConfig{Period: cfg.Period})
	if err != nil {
		return nil, errors.New("error configuring PWM: " + err.Error())
	}

	channel, err := cfg.PWM.Channel(cfg.Pin)
	if err != nil {
		return nil, errors.New("error getting PWM channel: " + err.Error())
	}

	h, err := actuator.NewPWMHaptic(cfg.PWM, channel, levels, cfg.MinDuty)
	if err != nil {
		return nil, err
	}
	// start with the motor stopped
	return h, h.SetIntensity(0)
}

func newAlert(cfg AlertConfig) *actuator.SwitchAlert {
	cfg.Pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	bz := buzzer.New(cfg.Pin)
	_ = bz.Off()
	return actuator.NewSwitchAlert(&bz)
}
