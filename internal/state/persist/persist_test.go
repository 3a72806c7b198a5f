package persist

import (
	"testing"

	"github.com/iotlab/espctl/internal/pin"
	"github.com/iotlab/espctl/log2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistRoundTrip(t *testing.T) {
	t.Parallel()

	log := log2.NewTest(t, log2.LDebug)
	root := t.TempDir()

	s1 := pin.NewState()
	p1 := new(Persist)
	require.NoError(t, p1.Init("pind", s1, root, log))
	assert.True(t, p1.Enabled())
	require.NoError(t, p1.Load()) // nothing stored yet
	assert.Empty(t, s1.Commands())
	s1.Set(pin.Command{Pin: 4, Level: true})
	require.NoError(t, p1.Store())

	s2 := pin.NewState()
	p2 := new(Persist)
	require.NoError(t, p2.Init("pind", s2, root, log))
	require.NoError(t, p2.Load())
	assert.Equal(t, []pin.Command{{Pin: 4, Level: true}}, s2.Commands())
}

func TestPersistDisabled(t *testing.T) {
	t.Parallel()

	p := new(Persist)
	require.NoError(t, p.Init("pind", pin.NewState(), "", nil))
	assert.False(t, p.Enabled())
	assert.NoError(t, p.Load())
	assert.NoError(t, p.Store())
}

func TestPersistCodeErrors(t *testing.T) {
	t.Parallel()

	p := new(Persist)
	assert.Error(t, p.Load())
	assert.Error(t, p.Store())
	assert.Error(t, p.Init("pind", nil, "", nil))
}
