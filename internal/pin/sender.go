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

// Sender transmits commands to one peer, exactly one datagram per Send.
// No retry, no delivery confirmation.
type Sender struct {
	conn net.Conn
	log  *log2.Log
	sent uint32
	last atomic_clock.Clock
}

// NewSender does not take ownership of conn, caller must close it.
func NewSender(conn net.Conn, log *log2.Log) *Sender {
	return &Sender{conn: conn, log: log}
}

func (s *Sender) Peer() net.Addr { return s.conn.RemoteAddr() }

func (s *Sender) Send(ctx context.Context, c Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := s.conn.SetWriteDeadline(deadline); err != nil {
			return errors.Annotate(err, "set deadline")
		}
	}
	b := c.Bytes()
	n, err := s.conn.Write(b)
	if err != nil {
		return errors.Annotatef(err, "send %s to %s", c, s.Peer())
	}
	if n != len(b) {
		return errors.Errorf("send %s to %s short write n=%d", c, s.Peer(), n)
	}
	atomic.AddUint32(&s.sent, 1)
	s.last.SetNow()
	s.log.Debugf("pin: sent %s to %s", c, s.Peer())
	return nil
}

type SenderStat struct {
	Sent      uint32
	SinceLast time.Duration // 0 if nothing was sent
}

func (s SenderStat) String() string {
	return fmt.Sprintf("sent=%d since_last=%v", s.Sent, s.SinceLast)
}

func (s *Sender) Stat() SenderStat {
	st := SenderStat{Sent: atomic.LoadUint32(&s.sent)}
	if !s.last.IsZero() {
		st.SinceLast = atomic_clock.Since(&s.last)
	}
	return st
}

// PeerConn is unconnected UDP socket bound to one destination.
// Unlike connected socket, ICMP port unreachable from previous datagram
// does not fail the next write.
type PeerConn struct {
	net.PacketConn
	peer net.Addr
}

func (p *PeerConn) Read(b []byte) (int, error) {
	n, _, err := p.PacketConn.ReadFrom(b)
	return n, err
}

func (p *PeerConn) Write(b []byte) (int, error) { return p.PacketConn.WriteTo(b, p.peer) }
func (p *PeerConn) RemoteAddr() net.Addr        { return p.peer }

// DialPeer resolves peer once and opens local UDP socket for sending to it.
// broadcast=true allows subnet broadcast peer address.
func DialPeer(ctx context.Context, peer string, broadcast bool) (*PeerConn, error) {
	addr, err := net.ResolveUDPAddr("udp", peer)
	if err != nil {
		return nil, errors.Annotatef(err, "resolve peer=%s", peer)
	}
	network := "udp6"
	if addr.IP == nil || addr.IP.To4() != nil {
		network = "udp4"
	}
	lc := net.ListenConfig{}
	if broadcast {
		lc.Control = controlBroadcast
	}
	conn, err := lc.ListenPacket(ctx, network, ":0")
	if err != nil {
		return nil, errors.Annotatef(err, "socket peer=%s", peer)
	}
	return &PeerConn{PacketConn: conn, peer: addr}, nil
}
