package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// DefaultPath is the configuration file used when none is given on the command line.
const DefaultPath = "map.json"

// ErrInvalid marks every configuration problem detected before the run loop starts.
var ErrInvalid = errors.New("invalid configuration")

// Transport kinds.
const (
	TransportArtNet = "artnet"
	TransportMQTT   = "mqtt"
)

// MQTT payload encodings.
const (
	EncodingJSON = "json"
	EncodingCBOR = "cbor"
)

// File is the configuration as written on disk. Every leaf is optional.
type File struct {
	Map       MapConf       `json:"map" toml:"map"`
	Universe  UniverseConf  `json:"universe" toml:"universe"`
	Transport TransportConf `json:"transport" toml:"transport"`
	ArtNet    ArtNetConf    `json:"artnet" toml:"artnet"`
	MQTT      MQTTConf      `json:"mqtt" toml:"mqtt"`
	Logger    LogConf       `json:"logger" toml:"logger"`
}

// MapConf holds the mapping table.
type MapConf struct {
	Channels []int `json:"channels" toml:"channels"` // Channels - source channel per output channel.
}

// UniverseConf describes the input and output universes.
type UniverseConf struct {
	ChannelCount *int `json:"channel_count" toml:"channel_count"` // ChannelCount - output frame size.
	Input        *int `json:"input" toml:"input"`                 // Input - universe frames are read from.
	Output       *int `json:"output" toml:"output"`               // Output - universe frames are sent to.
}

// TransportConf selects the lighting network client.
type TransportConf struct {
	Kind *string `json:"kind" toml:"kind"` // Kind - "artnet" or "mqtt".
}

// ArtNetConf структура конфигурации Art-Net.
type ArtNetConf struct {
	Network *string `json:"network" toml:"network"` // Network - CIDR of the interface to bind to.
	Listen  *string `json:"listen" toml:"listen"`   // Listen - UDP address for incoming ArtDMX.
	Target  *string `json:"target" toml:"target"`   // Target - UDP address outgoing ArtDMX is sent to.
}

// MQTTConf структура конфигурации MQTT.
type MQTTConf struct {
	ClientID *string `json:"clientID" toml:"clientID"` // ClientID - имя клиента.
	Host     *string `json:"server" toml:"server"`     // Host - адрес MQTT сервера.
	Port     *string `json:"port" toml:"port"`         // Port - порт MQTT сервера.
	User     *string `json:"user" toml:"user"`         // User - логин.
	Password *string `json:"password" toml:"password"` // Password - пароль.
	Qos      *byte   `json:"qos" toml:"qos"`           // Qos - качество обслуживания.
	Topic    *string `json:"topic" toml:"topic"`       // Topic - topic prefix.
	Encoding *string `json:"encoding" toml:"encoding"` // Encoding - "json" or "cbor".
}

// LogConf структура конфигурации.
type LogConf struct {
	Level  *string `json:"log-level" toml:"log-level"` // Level - уровень логирования.
	Format *string `json:"format" toml:"format"`       // Format - "text" or "json".
}

// Config is the resolved configuration. It does not change after NewConfig returns.
type Config struct {
	Channels     []int
	ChannelCount int
	Input        uint16
	Output       uint16
	Transport    string
	ArtNet       ArtNet
	MQTT         MQTT
	Logger       Log
}

// ArtNet holds the resolved Art-Net settings.
type ArtNet struct {
	Network string
	Listen  string
	Target  string
}

// MQTT holds the resolved MQTT settings.
type MQTT struct {
	ClientID string
	Host     string
	Port     string
	User     string
	Password string
	Qos      byte
	Topic    string
	Encoding string
}

// Log holds the resolved logger settings.
type Log struct {
	Level  string
	Format string
}

type envOverrides struct {
	Channels     []int   `env:"DMXMAPPER_MAP_CHANNELS" envSeparator:","`
	ChannelCount *int    `env:"DMXMAPPER_CHANNEL_COUNT"`
	Input        *int    `env:"DMXMAPPER_UNIVERSE_INPUT"`
	Output       *int    `env:"DMXMAPPER_UNIVERSE_OUTPUT"`
	Transport    *string `env:"DMXMAPPER_TRANSPORT"`
	LogLevel     *string `env:"DMXMAPPER_LOG_LEVEL"`
	MQTTServer   *string `env:"DMXMAPPER_MQTT_SERVER"`
	MQTTUser     *string `env:"DMXMAPPER_MQTT_USER"`
	MQTTPassword *string `env:"DMXMAPPER_MQTT_PASSWORD"`
}

// NewConfig reads path, applies environment overrides and defaults, and validates the result.
// A missing file is only an error when mustExist is set.
func NewConfig(path string, mustExist bool) (*Config, error) {
	f, err := ReadFile(path)
	if err != nil {
		if mustExist || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		f = &File{}
	}

	if err := f.applyEnv(); err != nil {
		return nil, err
	}
	f.Merge(Defaults())

	cfg, err := f.Resolve()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadFile decodes a configuration file without merging defaults.
// The format is picked by extension: .toml, otherwise JSON.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var f File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		var raw map[string]interface{}
		if _, err := toml.Decode(string(data), &raw); err != nil {
			return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalid, path, err)
		}
		if err := validateSchema(raw); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if _, err := toml.Decode(string(data), &f); err != nil {
			return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalid, path, err)
		}
	default:
		if err := validateSchemaBytes(data); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalid, path, err)
		}
	}
	return &f, nil
}

func (f *File) applyEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("%w: parse env: %v", ErrInvalid, err)
	}

	if o.Channels != nil {
		f.Map.Channels = o.Channels
	}
	f.Universe.ChannelCount = pick(o.ChannelCount, f.Universe.ChannelCount)
	f.Universe.Input = pick(o.Input, f.Universe.Input)
	f.Universe.Output = pick(o.Output, f.Universe.Output)
	f.Transport.Kind = pick(o.Transport, f.Transport.Kind)
	f.Logger.Level = pick(o.LogLevel, f.Logger.Level)
	f.MQTT.Host = pick(o.MQTTServer, f.MQTT.Host)
	f.MQTT.User = pick(o.MQTTUser, f.MQTT.User)
	f.MQTT.Password = pick(o.MQTTPassword, f.MQTT.Password)
	return nil
}

// Resolve validates a merged File and converts it to a Config.
func (f *File) Resolve() (*Config, error) {
	if f.Universe.ChannelCount == nil || f.Universe.Input == nil || f.Universe.Output == nil {
		return nil, fmt.Errorf("%w: universe section is incomplete", ErrInvalid)
	}

	cfg := &Config{
		Channels:     append([]int(nil), f.Map.Channels...),
		ChannelCount: *f.Universe.ChannelCount,
		Transport:    deref(f.Transport.Kind),
		ArtNet: ArtNet{
			Network: deref(f.ArtNet.Network),
			Listen:  deref(f.ArtNet.Listen),
			Target:  deref(f.ArtNet.Target),
		},
		MQTT: MQTT{
			ClientID: deref(f.MQTT.ClientID),
			Host:     deref(f.MQTT.Host),
			Port:     deref(f.MQTT.Port),
			User:     deref(f.MQTT.User),
			Password: deref(f.MQTT.Password),
			Topic:    deref(f.MQTT.Topic),
			Encoding: deref(f.MQTT.Encoding),
		},
		Logger: Log{Level: deref(f.Logger.Level), Format: deref(f.Logger.Format)},
	}
	if f.MQTT.Qos != nil {
		cfg.MQTT.Qos = *f.MQTT.Qos
	}

	input, err := universeID("input", *f.Universe.Input)
	if err != nil {
		return nil, err
	}
	output, err := universeID("output", *f.Universe.Output)
	if err != nil {
		return nil, err
	}
	cfg.Input, cfg.Output = input, output

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants the mapper and the transports rely on.
func (c *Config) Validate() error {
	if c.ChannelCount < 1 || c.ChannelCount > maxChannels {
		return fmt.Errorf("%w: universe.channel_count %d is outside 1..%d", ErrInvalid, c.ChannelCount, maxChannels)
	}
	if len(c.Channels) > c.ChannelCount {
		return fmt.Errorf("%w: map.channels has %d entries but universe.channel_count is %d (output index %d out of range)",
			ErrInvalid, len(c.Channels), c.ChannelCount, c.ChannelCount)
	}
	for i, ch := range c.Channels {
		if ch < 0 {
			return fmt.Errorf("%w: map.channels[%d] = %d is negative", ErrInvalid, i, ch)
		}
	}
	// the output frame would be received again and remapped in a loop
	if c.Input == c.Output {
		return fmt.Errorf("%w: universe.input and universe.output are both %d", ErrInvalid, c.Input)
	}
	switch c.Transport {
	case TransportArtNet, TransportMQTT:
	default:
		return fmt.Errorf("%w: unknown transport.kind %q", ErrInvalid, c.Transport)
	}
	if c.Transport == TransportMQTT {
		switch c.MQTT.Encoding {
		case EncodingJSON, EncodingCBOR:
		default:
			return fmt.Errorf("%w: unknown mqtt.encoding %q", ErrInvalid, c.MQTT.Encoding)
		}
		if c.MQTT.Qos > 2 {
			return fmt.Errorf("%w: mqtt.qos %d is outside 0..2", ErrInvalid, c.MQTT.Qos)
		}
	}
	return nil
}

func universeID(name string, v int) (uint16, error) {
	if v < 0 || v > maxUniverse {
		return 0, fmt.Errorf("%w: universe.%s %d is outside 0..%d", ErrInvalid, name, v, maxUniverse)
	}
	return uint16(v), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
