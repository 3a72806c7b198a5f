package toggle

import (
	"bytes"
	"testing"

	"github.com/iotlab/espctl/internal/state"
	"github.com/iotlab/espctl/log2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagsPin(t *testing.T) {
	t.Parallel()

	type Case struct {
		name   string
		config string
		args   []string
		expect uint8
	}
	cases := []Case{
		{"default", "", nil, 4},
		{"config-zero", `toggle { pin = 0 }`, nil, 0},
		{"flag-zero", "", []string{"-pin", "0"}, 0},
		{"flag-over-config", `toggle { pin = 0 }`, []string{"-pin", "5"}, 5},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			log := log2.NewTest(t, log2.LDebug)
			fs := state.NewMockFullReader(map[string]string{"espctl.hcl": c.config})
			config, err := state.ReadConfig(log, fs, state.ConfigSource{Name: "espctl.hcl"})
			require.NoError(t, err)
			var out bytes.Buffer
			require.NoError(t, Mod.ParseFlags(c.args, config, &out))
			assert.Equal(t, c.expect, config.TogglePin())
			assert.NoError(t, config.CheckTogglePin())
		})
	}
}

func TestFlagsPinInvalid(t *testing.T) {
	t.Parallel()

	config := &state.Config{}
	var out bytes.Buffer
	require.NoError(t, Mod.ParseFlags([]string{"-pin", "256"}, config, &out))
	err := config.CheckTogglePin()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "toggle.pin=256")
}
