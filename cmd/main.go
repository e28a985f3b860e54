package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"dmxmapper/internal/artnet"
	"dmxmapper/internal/clientmqtt"
	"dmxmapper/internal/config"
	"dmxmapper/internal/dmx"
	"dmxmapper/internal/logger"
	"dmxmapper/internal/mapper"
)

const version = "1.0.0"

// client is a dmx.Client with a connection lifecycle.
type client interface {
	dmx.Client
	Start(ctx context.Context) error
	Close() error
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [config file]\n", os.Args[0])
		fmt.Fprintf(flag.CommandLine.Output(), "  config file  mapping configuration, .json or .toml (default=%q)\n", config.DefaultPath)
	}
}

func main() {
	flag.Parse()
	if flag.NArg() > 1 {
		flag.Usage()
		os.Exit(2)
	}

	configFile := config.DefaultPath
	explicit := flag.NArg() == 1
	if explicit {
		configFile = flag.Arg(0)
	}

	cfg, err := config.NewConfig(configFile, explicit)
	if err != nil {
		fmt.Printf("configuration file read error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Printf("failed to create a logger: %v\n", err)
		os.Exit(1)
	}

	log.With(logger.Fields{"module": "main"}).Infof("dmxmapper %s", version)
	if !explicit {
		log.With(logger.Fields{"module": "config"}).Infof("using standard values, config file may be given as the only argument (default=%q)", config.DefaultPath)
	}
	log.With(logger.Fields{"module": "config"}).Infof("filename: %s, transport: %s", configFile, cfg.Transport)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer cancel()

	c, err := NewClient(log, cfg)
	if err != nil {
		log.With(logger.Fields{"module": cfg.Transport}).Errorf("error while creating a new client. %v", err)
		os.Exit(1)
	}

	m, err := mapper.New(log, c, ConvertConfigMapper(cfg))
	if err != nil {
		log.With(logger.Fields{"module": "mapper"}).Errorf("invalid mapping: %v", err)
		os.Exit(1)
	}
	if err := m.Start(); err != nil {
		log.With(logger.Fields{"module": "mapper"}).Error(err)
		os.Exit(1)
	}

	if err := c.Start(ctx); err != nil {
		log.With(logger.Fields{"module": cfg.Transport}).Errorf("failed to start %s client: %v", cfg.Transport, err)
		os.Exit(1)
	}

	log.With(logger.Fields{"module": "main"}).Info("run dmx client.")
	runUntilStopped(ctx, log, c, cfg.Transport)

	if stats := m.Stats(); stats.Calls > 0 {
		fmt.Print(stats)
	}

	log.Info("shutdown complete")
}

// runUntilStopped blocks in the client's run loop, then stops and closes the client.
// Stop releases callbacks still waiting to be delivered before the connection is closed.
func runUntilStopped(ctx context.Context, log *logger.Log, c client, transport string) {
	if err := c.Run(ctx); err != nil {
		log.With(logger.Fields{"module": transport}).Errorf("connection lost: %v", err)
	}
	if ctx.Err() != nil {
		log.With(logger.Fields{"module": "main"}).Info("stopped")
	}

	c.Stop()
	if err := c.Close(); err != nil {
		log.With(logger.Fields{"module": transport}).Error("failed to close client:", err.Error())
	}
}

// NewClient creates the client selected by transport.kind.
func NewClient(log *logger.Log, cfg *config.Config) (client, error) {
	if cfg.Transport == config.TransportMQTT {
		c, err := clientmqtt.NewClient(log, ConvertConfigClientMQTT(cfg.MQTT))
		if err != nil {
			return nil, err
		}
		return c, nil
	}

	c, err := artnet.NewClient(log, ConvertConfigArtNet(cfg.ArtNet))
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ConvertConfigMapper преобразует структуры.
func ConvertConfigMapper(cfg *config.Config) mapper.Settings {
	return mapper.Settings{
		Channels:     cfg.Channels,
		ChannelCount: cfg.ChannelCount,
		Input:        cfg.Input,
		Output:       cfg.Output,
	}
}

// ConvertConfigArtNet преобразует структуры.
func ConvertConfigArtNet(cfg config.ArtNet) artnet.Conf {
	return artnet.Conf{
		Network: cfg.Network,
		Listen:  cfg.Listen,
		Target:  cfg.Target,
	}
}

// ConvertConfigClientMQTT преобразует структуры.
func ConvertConfigClientMQTT(cfg config.MQTT) clientmqtt.MQTTConf {
	return clientmqtt.MQTTConf{
		ClientID: cfg.ClientID,
		Schema:   "tcp",
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		Qos:      cfg.Qos,
		Topic:    cfg.Topic,
		Encoding: cfg.Encoding,
	}
}
