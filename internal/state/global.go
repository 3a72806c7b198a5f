// Package state holds process wide configuration and services shared by espctl sub-commands.
package state

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/iotlab/espctl/internal/tele"
	"github.com/iotlab/espctl/log2"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
)

type Global struct {
	Alive        *alive.Alive
	BuildVersion string
	Config       *Config
	Log          *log2.Log
	Tele         tele.Teler

	_copy_guard sync.Mutex //nolint:unused
}

const ContextKey = "run/state-global"

func NewContext(tag string, log *log2.Log, teler tele.Teler) (context.Context, *Global) {
	if log == nil {
		panic("code error NewContext() log=nil")
	}
	if teler == nil {
		teler = tele.Noop{}
	}
	g := &Global{
		Alive:        alive.NewAlive(),
		BuildVersion: tag,
		Log:          log,
		Tele:         teler,
	}
	ctx := context.Background()
	ctx = context.WithValue(ctx, log2.ContextKey, log)
	ctx = context.WithValue(ctx, ContextKey, g)
	return ctx, g
}

func GetGlobal(ctx context.Context) *Global {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Sprintf("context['%s'] is nil", ContextKey))
	}
	if g, ok := v.(*Global); ok {
		return g
	}
	panic(fmt.Sprintf("context['%s'] expected type *Global actual=%#v", ContextKey, v))
}

// Init applies config to shared services.
// Telemetry failure is not fatal, Tele falls back to Noop.
func (g *Global) Init(ctx context.Context, cfg *Config) error {
	g.Config = cfg
	g.Log.Debugf("build version=%s", g.BuildVersion)

	if cfg.LogLevel != "" {
		level, ok := log2.ParseLevel(cfg.LogLevel)
		if !ok {
			return errors.NotValidf("config log_level=%s", cfg.LogLevel)
		}
		g.Log.SetLevel(level)
	}

	// Tele.Init gets g.Log clone before SetErrorFunc, so Tele.Log.Error doesn't recurse on itself
	if err := g.Tele.Init(ctx, g.Log.Clone(log2.LInfo), cfg.Tele); err != nil {
		g.Tele = tele.Noop{}
		g.Log.Errorf("tele init err=%v", err)
		return nil
	}
	g.Log.SetErrorFunc(g.Tele.Error)
	return nil
}

func (g *Global) MustInit(ctx context.Context, cfg *Config) {
	err := g.Init(ctx, cfg)
	if err != nil {
		g.Fatal(err)
	}
}

func (g *Global) Error(err error, args ...interface{}) {
	if err != nil {
		if len(args) != 0 {
			msg := args[0].(string)
			args = args[1:]
			err = errors.Annotatef(err, msg, args...)
		}
		g.Log.Error(err)
	}
}

func (g *Global) Fatal(err error, args ...interface{}) {
	if err != nil {
		g.Error(err, args...)
		g.StopWait(5 * time.Second)
		g.Tele.Close()
		g.Log.Fatal(errors.ErrorStack(err))
		os.Exit(1)
	}
}

func (g *Global) Stop() {
	g.Alive.Stop()
}

func (g *Global) StopWait(timeout time.Duration) bool {
	g.Alive.Stop()
	select {
	case <-g.Alive.WaitChan():
		return true
	case <-time.After(timeout):
		return false
	}
}
