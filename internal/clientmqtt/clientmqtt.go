package clientmqtt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"dmxmapper/internal/dmx"
	"dmxmapper/internal/logger"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ClientMQTT структура клиента MQTT.
// Universe frames are exchanged on <topic>/<universe>/in and <topic>/<universe>/out.
type ClientMQTT struct {
	log       logger.Logger
	cfgClient MQTTConf
	client    mqtt.Client
	opts      *mqtt.ClientOptions
	codec     codec
	topics    map[nameTopic]dmxAddr
	sinks     map[uint16]dmx.FrameSink
	states    map[uint16]*universeState
	events    chan event

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewClient конструктор.
func NewClient(log logger.Logger, cfgClient MQTTConf) (*ClientMQTT, error) {
	c, err := newCodec(cfgClient.Encoding)
	if err != nil {
		return nil, err
	}
	if cfgClient.Schema == "" {
		cfgClient.Schema = "tcp"
	}
	if cfgClient.ClientID == "" {
		cfgClient.ClientID = "dmxmapper-" + uuid.NewString()
	}

	return &ClientMQTT{
		log:       log,
		cfgClient: cfgClient,
		codec:     c,
		topics:    map[nameTopic]dmxAddr{},
		sinks:     map[uint16]dmx.FrameSink{},
		states:    map[uint16]*universeState{},
		events:    make(chan event, 64),
		stopCh:    make(chan struct{}),
	}, nil
}

// Start connects to the broker and subscribes to the registered universes.
func (c *ClientMQTT) Start(ctx context.Context) error {
	if c.log.GetLevel() == "debug" {
		l := c.log.With(logger.Fields{"module": "paho"})
		mqtt.ERROR = log.New(l.WriterLevel(logrus.ErrorLevel), "", 0)
		mqtt.CRITICAL = log.New(l.WriterLevel(logrus.ErrorLevel), "", 0)
		mqtt.WARN = log.New(l.WriterLevel(logrus.WarnLevel), "", 0)
	}

	c.opts = mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%s", c.cfgClient.Schema, c.cfgClient.Host, c.cfgClient.Port)).
		SetUsername(c.cfgClient.User).
		SetPassword(c.cfgClient.Password).
		SetOnConnectHandler(c.connectHandler).
		SetConnectionLostHandler(c.connectLostHandler).
		SetClientID(c.cfgClient.ClientID).
		SetOrderMatters(true).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(5 * time.Second).
		SetKeepAlive(30 * time.Second)

	c.client = mqtt.NewClient(c.opts)

	token := c.client.Connect()
	select {
	case <-token.Done():
		if token.Error() != nil {
			return fmt.Errorf("connect to %s:%s: %v: %w", c.cfgClient.Host, c.cfgClient.Port, token.Error(), dmx.ErrUnavailable)
		}
	case <-ctx.Done():
		return errors.New("context canceled")
	}

	c.log.With(logger.Fields{"module": "mqtt"}).Infof("Status: %v", c.client.IsConnected())
	return nil
}

// Close disconnects from the broker.
func (c *ClientMQTT) Close() error {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(500)
	}
	return nil
}

// RegisterUniverse implements dmx.Client. Universes must be registered before Start.
func (c *ClientMQTT) RegisterUniverse(universe uint16, sink dmx.FrameSink) error {
	if c.client != nil {
		return fmt.Errorf("universe %d registered after start", universe)
	}
	topic := c.inTopic(universe)
	if _, ok := c.topics[topic]; ok {
		return fmt.Errorf("universe %d is already registered", universe)
	}
	c.topics[topic] = dmxAddr(universe)
	c.sinks[universe] = sink
	c.states[universe] = &universeState{}
	return nil
}

// SendDMX implements dmx.Client. done is called from Run once the broker has answered.
func (c *ClientMQTT) SendDMX(universe uint16, data []byte, done dmx.SendCallback) {
	if c.client == nil || !c.client.IsConnectionOpen() {
		done(fmt.Errorf("mqtt client is not connected: %w", dmx.ErrUnavailable))
		return
	}

	msg, err := c.codec.Marshal(framePayload(data))
	if err != nil {
		done(fmt.Errorf("encode frame: %v: %w", err, dmx.ErrSendFailed))
		return
	}

	topic := string(c.outTopic(universe))
	token := c.client.Publish(topic, c.cfgClient.Qos, false, msg)
	go func() {
		select {
		case <-c.stopCh:
			return
		case <-token.Done():
		}
		var err error
		if token.Error() != nil {
			err = fmt.Errorf("publish %s: %v: %w", topic, token.Error(), dmx.ErrSendFailed)
		}
		c.post(event{universe: universe, done: done, err: err})
	}()
}

// Run dispatches incoming frames and send completions until Stop is called or ctx is done.
func (c *ClientMQTT) Run(ctx context.Context) error {
	if c.client == nil {
		return fmt.Errorf("mqtt client is not started: %w", dmx.ErrUnavailable)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.stopCh:
			return nil
		case ev := <-c.events:
			if ev.lost {
				return ev.err
			}
			c.dispatch(ev)
		}
	}
}

// Stop implements dmx.Client.
func (c *ClientMQTT) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}

func (c *ClientMQTT) dispatch(ev event) {
	if ev.done != nil {
		ev.done(ev.err)
		return
	}

	var data Payload
	if err := c.codec.Unmarshal(ev.payload, &data); err != nil {
		c.log.With(logger.Fields{"module": "mqtt"}).Errorf("message could not be parsed (%v): %v", ev.payload, err)
		return
	}
	sink, ok := c.sinks[ev.universe]
	if !ok {
		return
	}
	sink.OnFrame(c.states[ev.universe].apply(data))
}

func (c *ClientMQTT) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.stopCh:
	}
}

func (c *ClientMQTT) inTopic(universe uint16) nameTopic {
	return nameTopic(fmt.Sprintf("%s/%d/in", c.cfgClient.Topic, universe))
}

func (c *ClientMQTT) outTopic(universe uint16) nameTopic {
	return nameTopic(fmt.Sprintf("%s/%d/out", c.cfgClient.Topic, universe))
}

func (c *ClientMQTT) connectHandler(_ mqtt.Client) {
	c.log.With(logger.Fields{"module": "mqtt"}).Info("client connected to server")
	for topic, addr := range c.topics {
		c.sub(string(topic), uint16(addr))
	}
}

func (c *ClientMQTT) connectLostHandler(_ mqtt.Client, err error) {
	c.log.With(logger.Fields{"module": "mqtt"}).Errorf("server connect lost: %v", err)
	c.post(event{lost: true, err: fmt.Errorf("connection to broker lost: %v: %w", err, dmx.ErrUnavailable)})
}

func (c *ClientMQTT) messageHandler(universe uint16) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		c.log.With(logger.Fields{"module": "mqtt"}).Debugf("received message: %v from topic: %s", msg.Payload(), msg.Topic())
		c.post(event{universe: universe, payload: msg.Payload()})
	}
}

func (c *ClientMQTT) sub(topic string, universe uint16) {
	token := c.client.Subscribe(topic, c.cfgClient.Qos, c.messageHandler(universe))
	go func() {
		select {
		case <-c.stopCh:
			return
		case <-token.Done():
			if token.Error() != nil {
				c.log.With(logger.Fields{"module": "mqtt"}).Errorf("topic %s subscription error. %v", topic, token.Error())
				return
			}
		}
		c.log.With(logger.Fields{"module": "mqtt"}).Debugf("topic %s subscribed", topic)
	}()
}
