package pin

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSenderSend(t *testing.T) {
	t.Parallel()

	peer := newTestPeer(t)
	s := newTestSender(t, peer)
	assert.Equal(t, peer.Addr(), s.Peer().String())
	assert.Equal(t, uint32(0), s.Stat().Sent)
	assert.Equal(t, time.Duration(0), s.Stat().SinceLast)

	require.NoError(t, s.Send(context.Background(), Command{Pin: 4, Level: true}))
	assert.Equal(t, []byte("GPIO4=1"), peer.recv(time.Second))
	require.NoError(t, s.Send(context.Background(), Command{Pin: 4, Level: false}))
	assert.Equal(t, []byte("GPIO4=0"), peer.recv(time.Second))

	st := s.Stat()
	assert.Equal(t, uint32(2), st.Sent)
	assert.True(t, st.SinceLast > 0)
	assert.Contains(t, st.String(), "sent=2")
}

func TestSenderCanceled(t *testing.T) {
	t.Parallel()

	peer := newTestPeer(t)
	s := newTestSender(t, peer)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Send(ctx, Command{Pin: 4, Level: true})
	require.Error(t, err)
	assert.Nil(t, peer.recv(50*time.Millisecond))
	assert.Equal(t, uint32(0), s.Stat().Sent)
}

func TestSenderClosed(t *testing.T) {
	t.Parallel()

	peer := newTestPeer(t)
	conn, err := DialPeer(context.Background(), peer.Addr(), false)
	require.NoError(t, err)
	conn.Close()
	s := NewSender(conn, nil)
	err = s.Send(context.Background(), Command{Pin: 4, Level: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send GPIO4=1")
}

func TestDialPeerResolvesOnce(t *testing.T) {
	t.Parallel()

	peer := newTestPeer(t)
	conn, err := DialPeer(context.Background(), peer.Addr(), false)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, peer.Addr(), conn.RemoteAddr().String())
	assert.NotEqual(t, conn.LocalAddr().String(), conn.RemoteAddr().String())
}

func TestSenderPeerNotListening(t *testing.T) {
	t.Parallel()

	// port is free after close, loopback answers with ICMP port unreachable
	closed, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := closed.LocalAddr().String()
	require.NoError(t, closed.Close())

	conn, err := DialPeer(context.Background(), addr, false)
	require.NoError(t, err)
	defer conn.Close()
	s := NewSender(conn, nil)
	for i := 0; i < 4; i++ {
		require.NoError(t, s.Send(context.Background(), Command{Pin: 4, Level: i%2 == 0}), "iteration=%d", i)
		time.Sleep(20 * time.Millisecond)
	}
	assert.Equal(t, uint32(4), s.Stat().Sent)
}

func TestDialPeerBroadcast(t *testing.T) {
	t.Parallel()

	peer := newTestPeer(t)
	conn, err := DialPeer(context.Background(), peer.Addr(), true)
	require.NoError(t, err)
	defer conn.Close()
	s := NewSender(conn, nil)
	require.NoError(t, s.Send(context.Background(), Command{Pin: 4, Level: true}))
	assert.Equal(t, []byte("GPIO4=1"), peer.recv(time.Second))
}

func TestDialPeerInvalid(t *testing.T) {
	t.Parallel()

	_, err := DialPeer(context.Background(), "no-port", false)
	assert.Error(t, err)
}
