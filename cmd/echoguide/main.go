package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/calvinmclean/echoguide"
	"github.com/calvinmclean/echoguide/collector"
	"github.com/calvinmclean/echoguide/config"
	"github.com/calvinmclean/echoguide/coordinator"
	"github.com/calvinmclean/echoguide/monitor"
	"github.com/calvinmclean/echoguide/publish"
	"github.com/calvinmclean/echoguide/sensor"
	"github.com/calvinmclean/echoguide/sim"
	"github.com/calvinmclean/echoguide/stats"
	"github.com/calvinmclean/echoguide/store"
	"github.com/calvinmclean/echoguide/telemetry"
)

var (
	flagPort       string
	flagBaud       int
	flagDB         string
	flagMQTT       string
	flagTopic      string
	flagCollector  string
	flagSession    string
	flagConfigFile string
	flagProfile    string
	flagRealtime   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "echoguide",
		Short: "Host tools for the EchoGuide obstacle detection wearable",
		Long: `EchoGuide is a wearable with two ultrasonic sensors that turns obstacle distance into
vibration on each side and sounds a buzzer when something is critically close.

These commands talk to the device over its USB serial console, record and summarize its
telemetry, and run the control loop against simulated hardware.`,
		SilenceUsage: true,
	}

	defaultPort := os.Getenv("ECHOGUIDE_PORT")

	portsCmd := &cobra.Command{
		Use:   "ports",
		Short: "List USB serial ports",
		RunE:  runPorts,
	}

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Show live telemetry from the device and optionally record or forward it",
		RunE:  runWatch,
	}
	watchCmd.Flags().StringVar(&flagDB, "db", "", "Record telemetry to this SQLite file")
	watchCmd.Flags().StringVar(&flagMQTT, "mqtt", "", "Publish telemetry to this MQTT broker, like tcp://localhost:1883")
	watchCmd.Flags().StringVar(&flagTopic, "topic", publish.DefaultTopic, "MQTT topic prefix")
	watchCmd.Flags().StringVar(&flagCollector, "collector", "", "Upload telemetry to the collector service at this address")
	watchCmd.Flags().StringVar(&flagSession, "session", "", "Session name for the collector. Defaults to the current time")

	pushCmd := &cobra.Command{
		Use:   "push-config",
		Short: "Send a JSON config file to the device",
		RunE:  runPushConfig,
	}
	pushCmd.Flags().StringVar(&flagConfigFile, "file", "", "JSON config file. Omitted fields use the defaults")
	_ = pushCmd.MarkFlagRequired("file")

	for _, cmd := range []*cobra.Command{watchCmd, pushCmd} {
		cmd.Flags().StringVar(&flagPort, "port", defaultPort, "Serial port. Defaults to $ECHOGUIDE_PORT or the first USB serial port")
		cmd.Flags().IntVar(&flagBaud, "baud", monitor.DefaultBaudRate, "Serial baud rate")
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize telemetry recorded with watch --db",
		RunE:  runStats,
	}
	statsCmd.Flags().StringVar(&flagDB, "db", "echoguide.db", "SQLite file to read")

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the control loop against simulated sensors",
		Long: `Runs the real coordinator with simulated sensors and actuators. Profiles:

  approach   an obstacle walks towards the left sensor while the right side is clear
  pass       an obstacle passes close on the right then moves away
  dropout    the left sensor loses its echo for a while`,
		RunE: runSimulate,
	}
	simulateCmd.Flags().StringVar(&flagProfile, "profile", "approach", "Scenario to play: approach, pass or dropout")
	simulateCmd.Flags().BoolVar(&flagRealtime, "realtime", true, "Wait for simulated echoes like real hardware")
	simulateCmd.Flags().StringVar(&flagConfigFile, "file", "", "Optional JSON config file")

	rootCmd.AddCommand(portsCmd, watchCmd, pushCmd, statsCmd, simulateCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runPorts(cmd *cobra.Command, _ []string) error {
	ports, err := monitor.GetSerialPorts()
	if errors.Is(err, monitor.ErrNoUSBSerial) {
		fmt.Fprintln(cmd.OutOrStdout(), styleMuted.Render("no USB serial ports found"))
		return nil
	}
	if err != nil {
		return err
	}

	for _, p := range ports {
		fmt.Fprintln(cmd.OutOrStdout(), p)
	}
	return nil
}

func openPort() (io.ReadWriteCloser, error) {
	if flagPort == "" {
		ports, err := monitor.GetSerialPorts()
		if err != nil {
			return nil, err
		}
		flagPort = ports[0]
	}
	return monitor.Open(flagPort, flagBaud)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	port, err := openPort()
	if err != nil {
		return err
	}
	defer port.Close()

	sinks := []telemetry.Sink{newConsole(cmd.OutOrStdout())}
	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	if flagDB != "" {
		db, err := store.NewDB(flagDB)
		if err != nil {
			return fmt.Errorf("error opening database: %w", err)
		}
		buffered := telemetry.Buffered(db, 256)
		sinks = append(sinks, buffered)
		closers = append(closers, func() {
			buffered.Close()
			_ = db.Close()
		})
	}

	if flagMQTT != "" {
		p, err := publish.Connect(flagMQTT, flagTopic)
		if err != nil {
			return err
		}
		sinks = append(sinks, p)
		closers = append(closers, p.Close)
	}

	if flagCollector != "" {
		c := collector.NewClient(flagCollector)
		name := flagSession
		if name == "" {
			name = "Walk " + time.Now().Format(time.DateTime)
		}
		// the device config isn't known here, so the session records the defaults it boots with
		_, err := c.CreateSession(ctx, name, config.Default())
		if err != nil {
			return fmt.Errorf("error creating collector session: %w", err)
		}
		buffered := telemetry.Buffered(c, 256)
		sinks = append(sinks, buffered)
		closers = append(closers, func() {
			buffered.Close()
			doneCtx, doneCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer doneCancel()
			if err := c.Done(doneCtx); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "error finishing collector session:", err)
			}
		})
	}

	err = monitor.Stream(ctx, port, telemetry.Multi(sinks...))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func loadConfigFile() (config.DeviceConfig, error) {
	if flagConfigFile == "" {
		return config.Default(), nil
	}
	f, err := config.LoadFile(flagConfigFile)
	if err != nil {
		return config.DeviceConfig{}, err
	}
	return f.Apply(config.Default())
}

func runPushConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfigFile()
	if err != nil {
		return err
	}

	port, err := openPort()
	if err != nil {
		return err
	}
	defer port.Close()

	if err := monitor.PushConfig(port, cfg); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderConfig(cfg))
	return nil
}

func runStats(cmd *cobra.Command, _ []string) error {
	if _, err := os.Stat(flagDB); err != nil {
		return fmt.Errorf("error opening database: %w", err)
	}

	db, err := store.NewDB(flagDB)
	if err != nil {
		return fmt.Errorf("error opening database: %w", err)
	}
	defer db.Close()

	var reports []sideReport
	for _, side := range echoguide.Sides {
		distances, err := db.Distances(side)
		if err != nil {
			return err
		}
		ratio, err := db.AlertRatio(side)
		if err != nil {
			return err
		}
		faults, err := db.FaultCounts(side)
		if err != nil {
			return err
		}
		reports = append(reports, sideReport{
			Side:       side,
			Summary:    stats.Summarize(distances),
			AlertRatio: ratio,
			Faults:     faults,
		})
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderStats(reports))
	return nil
}

func simulationProfiles(name string) (left, right sim.Profile, err error) {
	switch name {
	case "approach":
		return sim.Approach(380, 40, 60).Then(sim.Constant(40, 10)), sim.Silence(70), nil
	case "pass":
		return sim.Silence(70), sim.Approach(250, 90, 25).Then(sim.Constant(90, 10), sim.Approach(90, 350, 35)), nil
	case "dropout":
		return sim.Constant(180, 20).Then(sim.Silence(4), sim.Constant(180, 10), sim.Silence(20)), sim.Constant(320, 54), nil
	default:
		return nil, nil, fmt.Errorf("unknown profile %q", name)
	}
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	left, right, err := simulationProfiles(flagProfile)
	if err != nil {
		return err
	}

	cfg, err := loadConfigFile()
	if err != nil {
		return err
	}

	transducers := [2]*sim.Transducer{sim.NewTransducer(left), sim.NewTransducer(right)}
	var pipelines [2]coordinator.Pipeline
	for _, side := range echoguide.Sides {
		transducers[side].Realtime = flagRealtime
		pipelines[side] = coordinator.Pipeline{
			Sensor: sensor.New(side, transducers[side], sensor.DefaultConfig(), nil),
			Haptic: &sim.Haptic{},
		}
	}
	alert := &sim.Alert{}
	sink := telemetry.Buffered(newConsole(cmd.OutOrStdout()), 64)

	c, err := coordinator.New(
		config.NewStore(cfg),
		pipelines[echoguide.SideLeft],
		pipelines[echoguide.SideRight],
		alert,
		coordinator.WithTelemetry(sink),
	)
	if err != nil {
		sink.Close()
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		for _, t := range transducers {
			select {
			case <-t.Exhausted():
			case <-ctx.Done():
				return
			}
		}
		cancel()
	}()

	err = c.Run(ctx)
	sink.Close()
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), styleMuted.Render(c.Debug()))
	return nil
}
