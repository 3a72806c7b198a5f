// Package fetch checks firmware server the way a device does: version, then image.
package fetch

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/iotlab/espctl/cmd/espctl/subcmd"
	"github.com/iotlab/espctl/helpers"
	"github.com/iotlab/espctl/internal/ota"
	"github.com/iotlab/espctl/internal/state"
	"github.com/juju/errors"
)

var Mod = subcmd.Mod{
	Name:  "fetch",
	Usage: "download /version and /firmware.bin from ota server",
	Flags: Flags,
	Main:  Main,
}

func Flags(fs *flag.FlagSet, config *state.Config) {
	fs.StringVar(&config.Fetch.URL, "url", config.Fetch.URL, "server base URL")
	fs.StringVar(&config.Fetch.TlsCaFile, "ca", config.Fetch.TlsCaFile, "CA certificate PEM file")
	fs.BoolVar(&config.Fetch.TlsInsecure, "insecure", config.Fetch.TlsInsecure, "skip TLS certificate verification")
	fs.StringVar(&config.Fetch.Output, "o", config.Fetch.Output, "firmware output file, - for version only")
	fs.IntVar(&config.Fetch.TimeoutSec, "timeout", config.Fetch.TimeoutSec, "request timeout in seconds")
}

func Main(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	timeout := helpers.IntSecondDefault(config.Fetch.TimeoutSec, ota.DefaultFetchTimeout)
	client, err := ota.NewTLSClient(config.Fetch.URL, config.Fetch.TlsCaFile, config.Fetch.TlsInsecure, timeout)
	if err != nil {
		return err
	}

	v, err := client.Version(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("version: %s\n", strings.TrimRight(v, "\r\n"))
	if config.Fetch.Output == "-" {
		return nil
	}

	tbegin := time.Now()
	f, err := os.Create(config.Fetch.Output)
	if err != nil {
		return errors.Annotatef(err, "fetch output=%s", config.Fetch.Output)
	}
	n, err := client.Firmware(ctx, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(config.Fetch.Output)
		return err
	}
	g.Log.Infof("fetch firmware size=%d duration=%v", n, time.Since(tbegin))
	fmt.Printf("firmware: %s %d bytes\n", config.Fetch.Output, n)
	return nil
}
