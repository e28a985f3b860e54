package config

const (
	maxChannels = 512
	// Art-Net port addresses are 15 bit.
	maxUniverse = 1<<15 - 1
)

// Defaults returns the built-in configuration every file is merged over.
func Defaults() File {
	return File{
		Map: MapConf{
			Channels: []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		},
		Universe: UniverseConf{
			ChannelCount: ptr(240),
			Input:        ptr(1),
			Output:       ptr(2),
		},
		Transport: TransportConf{
			Kind: ptr(TransportArtNet),
		},
		ArtNet: ArtNetConf{
			Network: ptr(""),
			Listen:  ptr(":6454"),
			Target:  ptr(""),
		},
		MQTT: MQTTConf{
			ClientID: ptr(""),
			Host:     ptr("localhost"),
			Port:     ptr("1883"),
			User:     ptr(""),
			Password: ptr(""),
			Qos:      ptr(byte(0)),
			Topic:    ptr("dmx"),
			Encoding: ptr(EncodingJSON),
		},
		Logger: LogConf{
			Level:  ptr("info"),
			Format: ptr("text"),
		},
	}
}

// Merge fills every leaf missing in f from defaults. Leaves already set are kept.
func (f *File) Merge(defaults File) {
	f.Map.merge(defaults.Map)
	f.Universe.merge(defaults.Universe)
	f.Transport.merge(defaults.Transport)
	f.ArtNet.merge(defaults.ArtNet)
	f.MQTT.merge(defaults.MQTT)
	f.Logger.merge(defaults.Logger)
}

func (m *MapConf) merge(d MapConf) {
	if m.Channels == nil && d.Channels != nil {
		m.Channels = append([]int(nil), d.Channels...)
	}
}

func (u *UniverseConf) merge(d UniverseConf) {
	u.ChannelCount = pick(u.ChannelCount, d.ChannelCount)
	u.Input = pick(u.Input, d.Input)
	u.Output = pick(u.Output, d.Output)
}

func (t *TransportConf) merge(d TransportConf) {
	t.Kind = pick(t.Kind, d.Kind)
}

func (a *ArtNetConf) merge(d ArtNetConf) {
	a.Network = pick(a.Network, d.Network)
	a.Listen = pick(a.Listen, d.Listen)
	a.Target = pick(a.Target, d.Target)
}

func (m *MQTTConf) merge(d MQTTConf) {
	m.ClientID = pick(m.ClientID, d.ClientID)
	m.Host = pick(m.Host, d.Host)
	m.Port = pick(m.Port, d.Port)
	m.User = pick(m.User, d.User)
	m.Password = pick(m.Password, d.Password)
	m.Qos = pick(m.Qos, d.Qos)
	m.Topic = pick(m.Topic, d.Topic)
	m.Encoding = pick(m.Encoding, d.Encoding)
}

func (l *LogConf) merge(d LogConf) {
	l.Level = pick(l.Level, d.Level)
	l.Format = pick(l.Format, d.Format)
}

// pick returns v when it is set, otherwise a copy of def.
func pick[T any](v, def *T) *T {
	if v != nil {
		return v
	}
	if def == nil {
		return nil
	}
	c := *def
	return &c
}

func ptr[T any](v T) *T {
	return &v
}
