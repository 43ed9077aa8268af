//go:build tinygo

package device

import (
	"context"
	"errors"
	"machine"
	"time"

	"github.com/calvinmclean/echoguide"
	"github.com/calvinmclean/echoguide/actuator"
	"github.com/calvinmclean/echoguide/config"
	"github.com/calvinmclean/echoguide/coordinator"
	"github.com/calvinmclean/echoguide/sensor"
	"github.com/calvinmclean/echoguide/telemetry"
)

// Device is the wearable: two HC-SR04 sensors, a vibration motor per side and a shared buzzer. It embeds
// the Coordinator so it can be handed straight to the serial command loop.
type Device struct {
	*coordinator.Coordinator
}

// New configures the hardware and creates the Coordinator that runs it
func New(left, right SensorConfig, leftHaptic, rightHaptic HapticConfig, alertCfg AlertConfig, store *config.Store, sink telemetry.Sink) (Device, error) {
	levels := store.Load().NumLevels()

	var pipelines [2]coordinator.Pipeline
	for _, id := range echoguide.Sides {
		sensorCfg, hapticCfg := left, leftHaptic
		if id == echoguide.SideRight {
			sensorCfg, hapticCfg = right, rightHaptic
		}

		h, err := newHaptic(hapticCfg, levels)
		if err != nil {
			return Device{}, errors.New("error creating " + id.String() + " haptic: " + err.Error())
		}

		pipelines[id] = coordinator.Pipeline{
			Sensor: sensor.New(id, newTransducer(sensorCfg), sensorCfg.Range, nil),
			Haptic: actuator.SerializeHaptic(h),
		}
	}

	c, err := coordinator.New(
		store,
		pipelines[echoguide.SideLeft],
		pipelines[echoguide.SideRight],
		actuator.SerializeAlert(newAlert(alertCfg)),
		coordinator.WithTelemetry(sink),
	)
	if err != nil {
		return Device{}, errors.New("error creating coordinator: " + err.Error())
	}

	return Device{Coordinator: c}, nil
}

// Start runs the control loop in the background
func (d Device) Start(ctx context.Context) {
	go func() {
		_ = d.Run(ctx)
	}()
}

// ReadByte reads from the USB serial console. When nothing is buffered it sleeps briefly so the
// control loop keeps getting scheduled.
func (d Device) ReadByte() (byte, error) {
	b, err := machine.Serial.ReadByte()
	if err != nil {
		time.Sleep(10 * time.Millisecond)
	}
	return b, err
}
