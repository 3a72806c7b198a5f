// Package ota runs HTTPS firmware distribution server.
package ota

import (
	"context"
	"flag"
	"net"
	"os"
	"strconv"

	"github.com/coreos/go-systemd/daemon"
	"github.com/iotlab/espctl/cmd/espctl/subcmd"
	"github.com/iotlab/espctl/helpers/cli"
	"github.com/iotlab/espctl/internal/ota"
	"github.com/iotlab/espctl/internal/state"
)

var Mod = subcmd.Mod{
	Name:  "ota",
	Usage: "serve /version and /firmware.bin over HTTPS",
	Flags: Flags,
	Main:  Main,
}

func Flags(fs *flag.FlagSet, config *state.Config) {
	fs.StringVar(&config.Ota.Listen, "listen", config.Ota.Listen, "listen address")
	fs.StringVar(&config.Ota.TlsCert, "cert", config.Ota.TlsCert, "TLS certificate PEM file")
	fs.StringVar(&config.Ota.TlsKey, "key", config.Ota.TlsKey, "TLS private key PEM file")
	fs.StringVar(&config.Ota.VersionFile, "version-file", config.Ota.VersionFile, "first line is served at /version")
	fs.StringVar(&config.Ota.FirmwareFile, "firmware", config.Ota.FirmwareFile, "served at /firmware.bin")
	fs.BoolVar(&config.Ota.QR, "qr", config.Ota.QR, "print QR code of firmware URL")
	fs.StringVar(&config.Ota.PublicURL, "public-url", config.Ota.PublicURL, "base URL for QR code")
	fs.BoolFunc("debug", "log every request (default true)", func(s string) error {
		b, err := strconv.ParseBool(s)
		if err == nil {
			config.Ota.Debug = &b
		}
		return err
	})
}

func Main(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	srv := ota.NewServer(ota.ServerOptions{
		Log:          g.Log,
		Listen:       config.Ota.Listen,
		TLSCert:      config.Ota.TlsCert,
		TLSKey:       config.Ota.TlsKey,
		VersionFile:  config.Ota.VersionFile,
		FirmwareFile: config.Ota.FirmwareFile,
		Debug:        config.OtaDebug(),
	})

	if v, err := ota.ReadVersion(config.Ota.VersionFile); err != nil {
		g.Log.Errorf("ota version file=%s err=%v", config.Ota.VersionFile, err)
	} else {
		g.Log.Infof("ota version=%q", v)
		g.Tele.Version(v)
	}

	ctx, cancel := cli.WithSignals(ctx)
	defer cancel()
	onListen := func(addr net.Addr) {
		if config.Ota.QR {
			url := ota.FirmwareURL(config.Ota.PublicURL, addr.String())
			g.Log.Infof("ota firmware url=%s", url)
			if err := ota.WriteQR(os.Stdout, url); err != nil {
				g.Log.Error(err)
			}
		}
		subcmd.SdNotify(daemon.SdNotifyReady)
	}
	err := srv.ListenAndServeTLS(ctx, onListen)
	srv.Stop()
	srv.Wait()
	g.Log.Infof("ota stopped %s", srv.Stat())
	return err
}
