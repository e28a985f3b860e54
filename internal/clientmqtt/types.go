package clientmqtt

type MQTTConf struct {
	ClientID string // ClientID - уникальное имя клиента для брокеров.
	Schema   string // Schema - тип подключения.
	Host     string // Host - адрес MQTT сервера.
	Port     string // Port - порт MQTT сервера.
	User     string // User - логин для подключения к MQTT серверу.
	Password string // Password - пароль для подключения к MQTT серверу.
	Qos      byte   // Qos - качество обслуживания.
	Topic    string // Topic - prefix of the universe topics.
	Encoding string // Encoding - "json" or "cbor".
}

type nameTopic string
type dmxAddr uint16

type DMXCommand struct {
	Channel uint16 `json:"channel" cbor:"channel"` // Channel is the channel a command can talk to (0-511).
	Value   uint8  `json:"value" cbor:"value"`     // Value is the value a DMX channel can represent (0-255).
}

type Payload []DMXCommand

// event is posted by paho goroutines and handled by Run.
type event struct {
	universe uint16
	payload  []byte
	done     func(error)
	err      error
	lost     bool // connection to the broker is gone, Run must return err
}
