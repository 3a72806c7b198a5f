package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/iotlab/espctl/cmd/espctl/fetch"
	"github.com/iotlab/espctl/cmd/espctl/ota"
	"github.com/iotlab/espctl/cmd/espctl/pind"
	"github.com/iotlab/espctl/cmd/espctl/subcmd"
	"github.com/iotlab/espctl/cmd/espctl/toggle"
	"github.com/iotlab/espctl/internal/state"
	"github.com/iotlab/espctl/internal/tele"
	"github.com/iotlab/espctl/log2"
	"github.com/juju/errors"
)

var log = log2.NewStderr(log2.LDebug)

// set by `go build -ldflags="-X main.BuildVersion=..."`
var BuildVersion string = "unknown"

var modules = []subcmd.Mod{
	toggle.Mod,
	ota.Mod,
	pind.Mod,
	fetch.Mod,
}

func main() {
	flagConfig := flag.String("config", "", "config file, default "+state.DefaultConfigFile+" if present")
	flagVersion := flag.Bool("version", false, "print build version and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: espctl [-config FILE] COMMAND [flags]\n")
		flag.PrintDefaults()
		subcmd.Usage(flag.CommandLine.Output(), modules)
	}
	flag.Parse()

	if *flagVersion {
		fmt.Println(BuildVersion)
		return
	}

	mod, err := subcmd.Parse(flag.Arg(0), modules)
	if err != nil {
		fmt.Fprintf(flag.CommandLine.Output(), "error: %v\n", err)
		flag.Usage()
		os.Exit(2)
	}

	if subcmd.SdNotify("start") {
		// we're under systemd, assume systemd journal logging, remove timestamp
		log.SetFlags(log2.LServiceFlags)
	} else {
		log.SetFlags(log2.LInteractiveFlags)
	}

	fs, err := state.NewOsFullReader(".")
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	config := state.MustReadConfig(log, fs, state.ConfigFromFlag(*flagConfig))
	if err := mod.ParseFlags(flag.Args()[1:], config, flag.CommandLine.Output()); err != nil {
		if err == flag.ErrHelp {
			return
		}
		os.Exit(2)
	}

	ctx, g := state.NewContext(BuildVersion, log, tele.New())
	g.MustInit(ctx, config)
	log.Debugf("espctl version=%s command=%s", BuildVersion, mod.Name)

	err = mod.Main(ctx, config)
	g.Tele.Close()
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
}
