package pin

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/iotlab/espctl/log2"
	"github.com/stretchr/testify/require"
)

// testPeer is loopback UDP receiver standing in for the device.
type testPeer struct {
	t    testing.TB
	conn net.PacketConn
}

func newTestPeer(t testing.TB) *testPeer {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &testPeer{t: t, conn: conn}
}

func (p *testPeer) Addr() string { return p.conn.LocalAddr().String() }

// recv returns nil on timeout.
func (p *testPeer) recv(timeout time.Duration) []byte {
	buf := make([]byte, 64)
	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(timeout)))
	n, _, err := p.conn.ReadFrom(buf)
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return nil
	}
	require.NoError(p.t, err)
	return buf[:n]
}

func newTestSender(t testing.TB, peer *testPeer) *Sender {
	conn, err := DialPeer(context.Background(), peer.Addr(), false)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	log := log2.NewTest(t, log2.LDebug)
	log.SetFlags(log2.LTestFlags)
	return NewSender(conn, log)
}
