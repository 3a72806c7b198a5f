package tele

import (
	"context"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/iotlab/espctl/log2"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	topic    string
	payload  interface{}
	retained bool
}

type fakeToken struct {
	mqtt.Token
	ok  bool
	err error
}

func (t *fakeToken) Wait() bool                     { return t.ok }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.ok }
func (t *fakeToken) Error() error                   { return t.err }

type fakeClient struct {
	mqtt.Client
	mu           sync.Mutex
	token        *fakeToken
	published    []published
	disconnected bool
}

func newFakeClient() *fakeClient { return &fakeClient{token: &fakeToken{ok: true}} }

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, published{topic, payload, retained})
	return c.token
}

func (c *fakeClient) Disconnect(quiesce uint) {
	c.mu.Lock()
	c.disconnected = true
	c.mu.Unlock()
}

func testConfig() Config {
	return Config{Enabled: true, TopicPrefix: "lab", NetworkTimeoutSec: 1}
}

func TestTopics(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "lab/online", TopicOnline("lab"))
	assert.Equal(t, "lab/ota/version", TopicVersion("lab"))
	assert.Equal(t, "lab/pin/4", TopicPin("lab", 4))
	assert.Equal(t, "lab/error", TopicError("lab"))
}

func TestTelePublish(t *testing.T) {
	t.Parallel()

	c := newFakeClient()
	tl := NewWithClient(c)
	require.NoError(t, tl.Init(context.Background(), log2.NewTest(t, log2.LDebug), testConfig()))
	tl.Version("1.0.42\n")
	tl.PinState(4, true)
	tl.PinState(4, false)
	tl.Error(errors.New("disk full"))
	tl.Error(nil)
	tl.Close()

	expect := []published{
		{"lab/ota/version", "1.0.42", true},
		{"lab/pin/4", "1", true},
		{"lab/pin/4", "0", true},
		{"lab/error", "disk full", false},
		{"lab/online", "0", true},
	}
	assert.Equal(t, expect, c.published)
	assert.True(t, c.disconnected)
	assert.Equal(t, Stat{Published: 5}, tl.Stat())
}

func TestTeleDefaultPrefix(t *testing.T) {
	t.Parallel()

	c := newFakeClient()
	tl := NewWithClient(c)
	config := testConfig()
	config.TopicPrefix = ""
	require.NoError(t, tl.Init(context.Background(), nil, config))
	tl.PinState(17, true)
	require.Len(t, c.published, 1)
	assert.Equal(t, DefaultTopicPrefix+"/pin/17", c.published[0].topic)
}

func TestTelePublishFailure(t *testing.T) {
	t.Parallel()

	c := newFakeClient()
	tl := NewWithClient(c)
	require.NoError(t, tl.Init(context.Background(), log2.NewTest(t, log2.LDebug), testConfig()))
	c.token.ok = false
	tl.Version("1")
	c.token.ok = true
	c.token.err = errors.New("not connected")
	tl.PinState(4, true)
	assert.Equal(t, Stat{Failed: 2}, tl.Stat())
	assert.Contains(t, tl.Stat().String(), "failed=2")
}

func TestTeleDisabled(t *testing.T) {
	t.Parallel()

	c := newFakeClient()
	tl := NewWithClient(c)
	config := testConfig()
	config.Enabled = false
	require.NoError(t, tl.Init(context.Background(), nil, config))
	tl.Version("1")
	tl.PinState(4, true)
	tl.Close()
	assert.Empty(t, c.published)
	assert.False(t, c.disconnected)
}

func TestTeleInitBadBroker(t *testing.T) {
	t.Parallel()

	tl := New()
	config := testConfig()
	config.MqttBroker = "not a url"
	assert.Error(t, tl.Init(context.Background(), log2.NewTest(t, log2.LDebug), config))
}

func TestNoop(t *testing.T) {
	t.Parallel()

	var tl Teler = Noop{}
	require.NoError(t, tl.Init(context.Background(), nil, Config{Enabled: true}))
	tl.Version("1")
	tl.PinState(4, true)
	tl.Error(errors.New("x"))
	tl.Close()
	assert.Equal(t, Stat{}, tl.Stat())
}
