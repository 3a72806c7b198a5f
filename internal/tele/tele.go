// Package tele announces firmware version and pin state over MQTT.
// Delivery is best effort, network problems never block callers longer than network timeout.
package tele

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/iotlab/espctl/log2"
)

const (
	DefaultNetworkTimeout = 30 * time.Second
	DefaultTopicPrefix    = "espctl"
)

type Teler interface {
	Init(ctx context.Context, log *log2.Log, config Config) error
	Version(v string)
	PinState(pin uint8, level bool)
	Error(error)
	Close()
	Stat() Stat
}

func TopicOnline(prefix string) string         { return prefix + "/online" }
func TopicVersion(prefix string) string        { return prefix + "/ota/version" }
func TopicPin(prefix string, pin uint8) string { return fmt.Sprintf("%s/pin/%d", prefix, pin) }
func TopicError(prefix string) string          { return prefix + "/error" }

type Stat struct {
	Published uint32
	Failed    uint32
}

func (s Stat) String() string { return fmt.Sprintf("published=%d failed=%d", s.Published, s.Failed) }

type Noop struct{}

func (Noop) Init(context.Context, *log2.Log, Config) error { return nil }
func (Noop) Version(string)                                {}
func (Noop) PinState(uint8, bool)                          {}
func (Noop) Error(error)                                   {}
func (Noop) Close()                                        {}
func (Noop) Stat() Stat                                    { return Stat{} }

type tele struct {
	config  Config
	log     *log2.Log
	m       mqtt.Client
	prefix  string
	timeout time.Duration
	stat    struct {
		published uint32
		failed    uint32
	}
}

func New() Teler { return &tele{} }

// NewWithClient is for tests, Init will not create MQTT client.
func NewWithClient(m mqtt.Client) Teler { return &tele{m: m} }

func (self *tele) Init(ctx context.Context, log *log2.Log, config Config) error {
	self.config = config
	self.log = log
	if self.config.LogDebug {
		self.log.SetLevel(log2.LDebug)
	}
	self.prefix = config.TopicPrefix
	if self.prefix == "" {
		self.prefix = DefaultTopicPrefix
	}
	self.timeout = DefaultNetworkTimeout
	if config.NetworkTimeoutSec > 0 {
		self.timeout = time.Duration(config.NetworkTimeoutSec) * time.Second
	}
	if !config.Enabled {
		self.m = nil
		return nil
	}
	if self.m != nil { // test path
		return nil
	}
	return self.mqttInit(ctx)
}

func (self *tele) Version(v string) {
	self.publish(TopicVersion(self.prefix), strings.TrimSpace(v), true)
}

func (self *tele) PinState(pin uint8, level bool) {
	payload := "0"
	if level {
		payload = "1"
	}
	self.publish(TopicPin(self.prefix, pin), payload, true)
}

func (self *tele) Error(e error) {
	if e == nil {
		return
	}
	self.publish(TopicError(self.prefix), e.Error(), false)
}

func (self *tele) Close() {
	if self.m == nil {
		return
	}
	self.publish(TopicOnline(self.prefix), "0", true)
	self.m.Disconnect(uint(self.timeout / time.Millisecond))
}

func (self *tele) Stat() Stat {
	return Stat{
		Published: atomic.LoadUint32(&self.stat.published),
		Failed:    atomic.LoadUint32(&self.stat.failed),
	}
}

func (self *tele) publish(topic string, payload string, retained bool) {
	if self.m == nil {
		return
	}
	t := self.m.Publish(topic, 1, retained, payload)
	if !t.WaitTimeout(self.timeout) {
		atomic.AddUint32(&self.stat.failed, 1)
		// not log.Error, it would recurse into self.Error
		self.log.Infof("tele publish topic=%s timeout", topic)
		return
	}
	if err := t.Error(); err != nil {
		atomic.AddUint32(&self.stat.failed, 1)
		self.log.Infof("tele publish topic=%s err=%v", topic, err)
		return
	}
	atomic.AddUint32(&self.stat.published, 1)
	self.log.Debugf("tele published topic=%s payload=%s", topic, payload)
}
