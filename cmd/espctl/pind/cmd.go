// Package pind is receiving side of toggle protocol, drives local GPIO.
package pind

import (
	"context"
	"flag"
	"net"

	"github.com/coreos/go-systemd/daemon"
	"github.com/iotlab/espctl/cmd/espctl/subcmd"
	"github.com/iotlab/espctl/helpers/cli"
	"github.com/iotlab/espctl/internal/pin"
	"github.com/iotlab/espctl/internal/state"
	"github.com/iotlab/espctl/internal/state/persist"
	"github.com/juju/errors"
)

const persistTag = "pind"

var Mod = subcmd.Mod{
	Name:  "pind",
	Usage: "receive GPIO command datagrams, drive local output",
	Flags: Flags,
	Main:  Main,
}

func Flags(fs *flag.FlagSet, config *state.Config) {
	fs.StringVar(&config.Pind.Listen, "listen", config.Pind.Listen, "UDP listen address")
	fs.StringVar(&config.Pind.GpioDriver, "driver", config.Pind.GpioDriver, "GPIO driver: cdev, periph or log")
	fs.StringVar(&config.Pind.GpioChip, "chip", config.Pind.GpioChip, "GPIO chip device for cdev driver")
	fs.BoolVar(&config.Pind.ActiveLow, "active-low", config.Pind.ActiveLow, "invert output levels")
	fs.StringVar(&config.Pind.PersistRoot, "persist", config.Pind.PersistRoot, "directory for last pin state, empty disables")
}

func Main(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	pins, err := config.PindPins()
	if err != nil {
		return err
	}

	out, err := pin.OpenOutput(pin.OutputOptions{
		Driver:    config.Pind.GpioDriver,
		Chip:      config.Pind.GpioChip,
		Consumer:  "espctl-pind",
		ActiveLow: config.Pind.ActiveLow,
		Log:       g.Log,
	})
	if err != nil {
		return errors.Annotate(err, "pind output")
	}
	defer out.Close()

	pinState := pin.NewState()
	p := new(persist.Persist)
	if err = p.Init(persistTag, pinState, config.Pind.PersistRoot, g.Log); err != nil {
		return err
	}
	if err = p.Load(); err != nil {
		// corrupt state must not prevent service start
		g.Log.Error(err)
	}

	conn, err := net.ListenPacket("udp", config.Pind.Listen)
	if err != nil {
		return errors.Annotatef(err, "pind listen=%s", config.Pind.Listen)
	}
	defer conn.Close()

	agent := pin.NewAgent(conn, out, pin.AgentOptions{
		Log:     g.Log,
		Pins:    pins,
		State:   pinState,
		Persist: p,
		OnApply: func(c pin.Command) { g.Tele.PinState(c.Pin, c.Level) },
	})
	if err = agent.Restore(); err != nil {
		return err
	}
	g.Log.Infof("pind listening on udp %s driver=%s", agent.Addr(), config.Pind.GpioDriver)

	ctx, cancel := cli.WithSignals(ctx)
	defer cancel()
	if !g.Alive.Add(1) {
		return nil
	}
	go func() {
		<-g.Alive.StopChan()
		cancel()
	}()
	subcmd.SdNotify(daemon.SdNotifyReady)
	err = agent.Run(ctx)
	g.Alive.Done()
	g.Stop()
	g.Log.Infof("pind stopped %s", agent.Stat())
	return err
}
