// Package toggle is interactive pin toggle sender.
package toggle

import (
	"context"
	"flag"
	"os"

	"github.com/c-bata/go-prompt"
	"github.com/iotlab/espctl/cmd/espctl/subcmd"
	"github.com/iotlab/espctl/helpers"
	"github.com/iotlab/espctl/helpers/cli"
	"github.com/iotlab/espctl/internal/input"
	"github.com/iotlab/espctl/internal/pin"
	"github.com/iotlab/espctl/internal/state"
)

const modName = "toggle"

var Mod = subcmd.Mod{
	Name:  modName,
	Usage: "read 0/1, send GPIO command datagram to peer",
	Flags: Flags,
	Main:  Main,
}

func Flags(fs *flag.FlagSet, config *state.Config) {
	fs.StringVar(&config.Toggle.Peer, "peer", config.Toggle.Peer, "peer host:port")
	if config.Toggle.Pin == nil {
		p := int(config.TogglePin())
		config.Toggle.Pin = &p
	}
	fs.IntVar(config.Toggle.Pin, "pin", *config.Toggle.Pin, "GPIO number in command")
	fs.IntVar(&config.Toggle.PauseMs, "pause-ms", config.Toggle.PauseMs, "pause after each sent command")
	fs.BoolVar(&config.Toggle.Broadcast, "broadcast", config.Toggle.Broadcast, "allow broadcast peer address")
	fs.StringVar(&config.Toggle.Input, "input", config.Toggle.Input, "/dev/input/eventN keyboard instead of stdin")
}

func Main(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	if err := config.CheckTogglePin(); err != nil {
		return err
	}

	conn, err := pin.DialPeer(ctx, config.Toggle.Peer, config.Toggle.Broadcast)
	if err != nil {
		return err
	}
	defer conn.Close()

	sender := pin.NewSender(conn, g.Log)
	t := &pin.Toggler{
		Sender: sender,
		Pin:    config.TogglePin(),
		Pause:  helpers.IntMillisecondDefault(config.Toggle.PauseMs, pin.DefaultPause),
		Out:    os.Stdout,
	}
	g.Log.Debugf("toggle peer=%s pin=%d pause=%v", sender.Peer(), t.Pin, t.Pause)

	if config.Toggle.Input != "" {
		src, err := input.NewDevInputEventSource(config.Toggle.Input)
		if err != nil {
			return err
		}
		defer src.Close()
		ctx, cancel := cli.WithSignals(ctx)
		defer cancel()
		err = cli.RunReader(ctx, src, os.Stdout, pin.Prompt+" ", t.Execute)
		g.Log.Debugf("toggle %s", sender.Stat())
		return err
	}

	err = cli.MainLoop(ctx, cli.Options{
		Tag:    modName,
		Prefix: pin.Prompt + " ",
		Suggest: []prompt.Suggest{
			{Text: "1", Description: "on"},
			{Text: "0", Description: "off"},
		},
	}, t.Execute)
	g.Log.Debugf("toggle %s", sender.Stat())
	return err
}
