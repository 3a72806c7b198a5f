package pin

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/iotlab/espctl/log2"
	"github.com/juju/errors"
	"github.com/temoto/atomic_clock"
)

const DefaultPollInterval = 500 * time.Millisecond

type Storer interface {
	Store() error
}

type AgentOptions struct {
	Log *log2.Log
	// Pins allowed to drive, empty means any.
	Pins  []uint8
	State *State
	// Persist stores State after each applied command, optional.
	Persist Storer
	// OnApply is called after output was set, e.g. telemetry.
	OnApply      func(Command)
	PollInterval time.Duration
}

// Agent is receiving side of toggle protocol, drives local GPIO output.
type Agent struct {
	conn net.PacketConn
	out  Output
	opt  AgentOptions
	stat struct {
		received uint32
		applied  uint32
		dropped  uint32
		last     atomic_clock.Clock
	}
}

func NewAgent(conn net.PacketConn, out Output, opt AgentOptions) *Agent {
	if opt.State == nil {
		opt.State = NewState()
	}
	if opt.PollInterval == 0 {
		opt.PollInterval = DefaultPollInterval
	}
	return &Agent{conn: conn, out: out, opt: opt}
}

func (a *Agent) Addr() net.Addr { return a.conn.LocalAddr() }

// Restore applies levels from State, normally loaded from persistent storage.
func (a *Agent) Restore() error {
	for _, c := range a.opt.State.Commands() {
		if !a.allowed(c.Pin) {
			a.opt.Log.Errorf("pind: restore skip not allowed %s", c)
			continue
		}
		if err := a.out.Set(c.Pin, c.Level); err != nil {
			return errors.Annotatef(err, "restore %s", c)
		}
		a.opt.Log.Infof("pind: restored %s", c)
	}
	return nil
}

// Run reads datagrams until ctx is done or socket fails.
func (a *Agent) Run(ctx context.Context) error {
	buf := make([]byte, MaxDatagram+1)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := a.conn.SetReadDeadline(time.Now().Add(a.opt.PollInterval)); err != nil {
			return errors.Annotate(err, "set deadline")
		}
		n, from, err := a.conn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return errors.Annotate(err, "pind read")
		}
		a.handle(buf[:n], from)
	}
}

func (a *Agent) handle(b []byte, from net.Addr) {
	atomic.AddUint32(&a.stat.received, 1)
	a.stat.last.SetNow()
	c, err := ParseDatagram(b)
	if err != nil {
		atomic.AddUint32(&a.stat.dropped, 1)
		a.opt.Log.Errorf("pind: from=%s payload=%q err=%v", from, b, err)
		return
	}
	if !a.allowed(c.Pin) {
		atomic.AddUint32(&a.stat.dropped, 1)
		a.opt.Log.Errorf("pind: from=%s %s pin not allowed", from, c)
		return
	}
	if err = a.out.Set(c.Pin, c.Level); err != nil {
		atomic.AddUint32(&a.stat.dropped, 1)
		a.opt.Log.Error(errors.Annotatef(err, "pind: from=%s %s", from, c))
		return
	}
	atomic.AddUint32(&a.stat.applied, 1)
	a.opt.Log.Debugf("pind: from=%s applied %s", from, c)
	a.opt.State.Set(c)
	if a.opt.Persist != nil {
		if err = a.opt.Persist.Store(); err != nil {
			a.opt.Log.Error(err)
		}
	}
	if a.opt.OnApply != nil {
		a.opt.OnApply(c)
	}
}

func (a *Agent) allowed(pin uint8) bool {
	if len(a.opt.Pins) == 0 {
		return true
	}
	for _, p := range a.opt.Pins {
		if p == pin {
			return true
		}
	}
	return false
}

type AgentStat struct {
	Received  uint32
	Applied   uint32
	Dropped   uint32
	SinceLast time.Duration
}

func (s AgentStat) String() string {
	return fmt.Sprintf("received=%d applied=%d dropped=%d since_last=%v",
		s.Received, s.Applied, s.Dropped, s.SinceLast)
}

func (a *Agent) Stat() AgentStat {
	s := AgentStat{
		Received: atomic.LoadUint32(&a.stat.received),
		Applied:  atomic.LoadUint32(&a.stat.applied),
		Dropped:  atomic.LoadUint32(&a.stat.dropped),
	}
	if !a.stat.last.IsZero() {
		s.SinceLast = atomic_clock.Since(&a.stat.last)
	}
	return s
}
