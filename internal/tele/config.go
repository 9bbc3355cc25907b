package tele

type Config struct {
	Enable         bool   `hcl:"enable"`
	LogDebug       bool   `hcl:"log_debug"`
	MqttBroker     string `hcl:"mqtt_broker"`
	ClientID       string `hcl:"client_id"`
	MqttPassword   string `hcl:"mqtt_password"`
	KeepaliveSec   int    `hcl:"keepalive_sec"`
	PingTimeoutSec int    `hcl:"ping_timeout_sec"`
	// durable command/response queue directory
	QueuePath string `hcl:"queue_path"`
}

const DefaultClientID = "ks0066"

func (c Config) clientID() string {
	if c.ClientID == "" {
		return DefaultClientID
	}
	return c.ClientID
}

func TopicCommand(clientID string) string  { return clientID + "/r/c" }
func TopicResponse(clientID string) string { return clientID + "/w/r" }
func TopicError(clientID string) string    { return clientID + "/w/e" }
func TopicConnect(clientID string) string  { return clientID + "/c" }
