package tele

type Config struct {
	Enabled           bool   `hcl:"enable"`
	LogDebug          bool   `hcl:"log_debug"`
	MqttBroker        string `hcl:"mqtt_broker"`
	MqttClientId      string `hcl:"mqtt_client_id"`
	MqttLogDebug      bool   `hcl:"mqtt_log_debug"`
	MqttUsername      string `hcl:"mqtt_username"`
	MqttPassword      string `hcl:"mqtt_password"`
	NetworkTimeoutSec int    `hcl:"network_timeout_sec"`
	TlsCaFile         string `hcl:"tls_ca_file"`
	TopicPrefix       string `hcl:"topic_prefix"`
}
