package tele

import (
	"context"
	"net/url"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/temoto/ks0066/helpers"
	"github.com/temoto/ks0066/log2"
)

type transportMqtt struct {
	log       *log2.Log
	onCommand func([]byte) bool
	m         mqtt.Client
	mopt      *mqtt.ClientOptions
	timeout   time.Duration
	stopCh    chan struct{}

	topicConnect  string
	topicCommand  string
	topicResponse string
	topicError    string
}

func (self *transportMqtt) Init(ctx context.Context, log *log2.Log, config Config, onCommand CommandCallback) error {
	self.log = log
	if _, err := url.ParseRequestURI(config.MqttBroker); err != nil {
		return errors.Annotatef(err, "tele mqtt_broker=%s", config.MqttBroker)
	}
	mqttLog := log.Clone(log2.LInfo)
	if config.LogDebug {
		mqttLog.SetLevel(log2.LDebug)
	}
	mqtt.ERROR = mqttLog
	mqtt.CRITICAL = mqttLog
	mqtt.WARN = mqttLog
	if config.LogDebug {
		mqtt.DEBUG = mqttLog
	}

	clientID := config.clientID()
	credFun := func() (string, string) {
		return clientID, config.MqttPassword
	}

	self.onCommand = func(payload []byte) bool {
		return onCommand(ctx, payload)
	}
	self.topicConnect = TopicConnect(clientID)
	self.topicCommand = TopicCommand(clientID)
	self.topicResponse = TopicResponse(clientID)
	self.topicError = TopicError(clientID)
	keepAlive := helpers.IntSecondDefault(config.KeepaliveSec, 60*time.Second)
	pingTimeout := helpers.IntSecondDefault(config.PingTimeoutSec, 30*time.Second)
	retryInterval := keepAlive / 2
	self.timeout = pingTimeout

	self.mopt = mqtt.NewClientOptions().
		AddBroker(config.MqttBroker).
		SetBinaryWill(self.topicConnect, []byte{0x00}, 1, true).
		SetClientID(clientID).
		SetCredentialsProvider(credFun).
		SetDefaultPublishHandler(self.messageHandler).
		SetKeepAlive(keepAlive).
		SetPingTimeout(pingTimeout).
		SetOrderMatters(false).
		SetResumeSubs(true).SetCleanSession(false).
		// spq is the durable layer
		SetStore(mqtt.NewMemoryStore()).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(retryInterval).
		SetConnectTimeout(pingTimeout).
		SetOnConnectHandler(self.onConnectHandler).
		SetConnectionLostHandler(self.connectLostHandler)
	self.m = mqtt.NewClient(self.mopt)
	self.stopCh = make(chan struct{})
	go self.connectLoop(retryInterval)
	return nil
}

// connectLoop retries first connect, later reconnects are done by paho.
func (self *transportMqtt) connectLoop(maxInterval time.Duration) {
	backoff := helpers.Backoff{Min: time.Second, Max: maxInterval, K: 2}
	for {
		token := self.m.Connect()
		token.Wait()
		err := token.Error()
		if err == nil {
			return
		}
		delay := backoff.DelayAfter(false)
		self.log.Errorf("tele mqtt connect err=%v retry in %v", err, delay)
		select {
		case <-time.After(delay):
		case <-self.stopCh:
			return
		}
	}
}

func (self *transportMqtt) Close() {
	close(self.stopCh)
	if !self.m.IsConnected() {
		return
	}
	if token := self.m.Unsubscribe(self.topicCommand); token.WaitTimeout(self.timeout) && token.Error() != nil {
		self.log.Errorf("tele mqtt unsubscribe err=%v", token.Error())
	}
	self.m.Publish(self.topicConnect, 1, true, []byte{0x00}).WaitTimeout(self.timeout)
	self.m.Disconnect(uint(self.timeout / time.Millisecond))
}

func (self *transportMqtt) publish(topic string, payload []byte) bool {
	token := self.m.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(self.timeout) {
		self.log.Errorf("tele mqtt publish topic=%s timeout", topic)
		return false
	}
	if err := token.Error(); err != nil {
		self.log.Errorf("tele mqtt publish topic=%s err=%v", topic, err)
		return false
	}
	return true
}

func (self *transportMqtt) SendResponse(payload []byte) bool {
	self.log.Debugf("tele mqtt publish response=%q", payload)
	return self.publish(self.topicResponse, payload)
}

func (self *transportMqtt) SendError(payload []byte) bool {
	return self.publish(self.topicError, payload)
}

func (self *transportMqtt) messageHandler(c mqtt.Client, msg mqtt.Message) {
	payload := msg.Payload()
	if msg.Topic() != self.topicCommand {
		self.log.Errorf("tele mqtt unexpected topic=%s payload=%q", msg.Topic(), payload)
		return
	}
	self.log.Debugf("tele mqtt command=%q", payload)
	self.onCommand(payload)
}

func (self *transportMqtt) connectLostHandler(c mqtt.Client, err error) {
	self.log.Infof("tele mqtt disconnect err=%v", err)
}

func (self *transportMqtt) onConnectHandler(c mqtt.Client) {
	self.log.Infof("tele mqtt connect")
	if token := c.Subscribe(self.topicCommand, 1, nil); token.Wait() && token.Error() != nil {
		self.log.Errorf("tele mqtt subscribe err=%v", token.Error())
	} else {
		c.Publish(self.topicConnect, 1, true, []byte{0x01})
	}
}
