package tele

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"io/ioutil"
	"net/url"
	"os"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/iotlab/espctl/log2"
	"github.com/juju/errors"
)

func (self *tele) mqttInit(ctx context.Context) error {
	mqttLog := self.log.Clone(log2.LInfo)
	mqttLog.SetPrefix("mqtt: ")
	mqtt.CRITICAL = mqttLog
	mqtt.ERROR = mqttLog
	mqtt.WARN = mqttLog
	if self.config.MqttLogDebug {
		mqtt.DEBUG = mqttLog
	}

	if _, err := url.ParseRequestURI(self.config.MqttBroker); err != nil {
		return errors.Annotatef(err, "tele broker=%s", self.config.MqttBroker)
	}

	clientId := self.config.MqttClientId
	if clientId == "" {
		host, _ := os.Hostname()
		clientId = "espctl-" + host
	}

	tlsconf := new(tls.Config)
	if self.config.TlsCaFile != "" {
		tlsconf.RootCAs = x509.NewCertPool()
		cabytes, err := ioutil.ReadFile(self.config.TlsCaFile)
		if err != nil {
			return errors.Annotate(err, "tele TLS")
		}
		tlsconf.RootCAs.AppendCertsFromPEM(cabytes)
	}

	topicOnline := TopicOnline(self.prefix)
	onConnect := func(m mqtt.Client) {
		self.log.Infof("tele connected broker=%s", self.config.MqttBroker)
		m.Publish(topicOnline, 1, true, "1")
	}
	opt := mqtt.NewClientOptions().
		AddBroker(self.config.MqttBroker).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetClientID(clientId).
		SetConnectTimeout(self.timeout).
		SetKeepAlive(self.timeout).
		SetOnConnectHandler(onConnect).
		SetPassword(self.config.MqttPassword).
		SetPingTimeout(self.timeout).
		SetTLSConfig(tlsconf).
		SetUsername(self.config.MqttUsername).
		SetWill(topicOnline, "0", 1, true).
		SetWriteTimeout(self.timeout)
	self.m = mqtt.NewClient(opt)

	t := self.m.Connect()
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if !t.WaitTimeout(self.timeout) {
		self.m = nil
		return errors.Timeoutf("tele connect broker=%s", self.config.MqttBroker)
	}
	if err := t.Error(); err != nil {
		self.m = nil
		return errors.Annotatef(err, "tele connect broker=%s", self.config.MqttBroker)
	}
	return nil
}
