//go:build tinygo

package main

import (
	"context"
	"fmt"
	"machine"
	"os"
	"time"

	"github.com/calvinmclean/echoguide/config"
	"github.com/calvinmclean/echoguide/firmware/commands"
	"github.com/calvinmclean/echoguide/firmware/device"
	"github.com/calvinmclean/echoguide/internal/monitoring"
	"github.com/calvinmclean/echoguide/sensor"
	"github.com/calvinmclean/echoguide/telemetry"
)

func main() {
	// console output shares the serial port with telemetry, so it is prefixed to keep it out of the decoder
	monitoring.SetLogger(func(format string, v ...any) {
		println("#", fmt.Sprintf(format, v...))
	})

	leftSensor := device.SensorConfig{
		Trigger: machine.GP2,
		Echo:    machine.GP3,
		Range:   sensor.DefaultConfig(),
	}
	rightSensor := device.SensorConfig{
		Trigger: machine.GP4,
		Echo:    machine.GP5,
		Range:   sensor.DefaultConfig(),
	}

	// GP16 and GP18 are on different PWM slices so each motor can be configured independently
	leftHaptic := device.HapticConfig{
		Pin:     machine.GP16,
		PWM:     machine.PWM0,
		Period:  uint64(time.Millisecond),
		MinDuty: 0.35,
	}
	rightHaptic := device.HapticConfig{
		Pin:     machine.GP18,
		PWM:     machine.PWM1,
		Period:  uint64(time.Millisecond),
		MinDuty: 0.35,
	}

	alertCfg := device.AlertConfig{Pin: machine.GP22}

	sink := telemetry.Buffered(telemetry.NewLineWriter(os.Stdout), 32)

	d, err := device.New(leftSensor, rightSensor, leftHaptic, rightHaptic, alertCfg, config.NewStore(config.Default()), sink)
	if err != nil {
		panic(err)
	}

	d.Start(context.Background())

	commands.Run(d, os.Stdout)
}
