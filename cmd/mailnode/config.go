package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/LukaGiorgadze/gonull"
	"github.com/edup2p/mailbox/types/key"
	"github.com/edup2p/mailbox/types/peernet"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	DefaultListen  = ":7460"
	DefaultThreads = 4
)

type Config struct {
	PrivateKey string       `mapstructure:"private_key"`
	Listen     string       `mapstructure:"listen"`
	Threads    int          `mapstructure:"threads"`
	Peers      []PeerConfig `mapstructure:"peers"`
}

type PeerConfig struct {
	Key    string   `mapstructure:"key"`
	Name   string   `mapstructure:"name"`
	Domain string   `mapstructure:"domain"`
	Addrs  []string `mapstructure:"addrs"`
	Port   uint16   `mapstructure:"port"`
}

// SetDefaults registers the default values of all settings with viper.
func SetDefaults() {
	viper.SetDefault("listen", DefaultListen)
	viper.SetDefault("threads", DefaultThreads)
	viper.SetDefault("log_level", "info")
}

// LoadConfig reads the configuration from viper into a Config struct and validates it
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.Threads <= 0 {
		return nil, fmt.Errorf("threads must be positive, got %d", cfg.Threads)
	}

	if _, err := cfg.PeerInformation(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// NodeKey parses the private key, generating and persisting a new one if none is configured.
func (c *Config) NodeKey() (key.NodePrivate, error) {
	if c.PrivateKey != "" {
		priv, err := key.UnmarshalPrivate(c.PrivateKey)
		if err != nil {
			return key.NodePrivate{}, fmt.Errorf("private_key: %w", err)
		}
		return *priv, nil
	}

	priv := key.NewNode()

	text, err := priv.MarshalText()
	if err != nil {
		return key.NodePrivate{}, err
	}
	c.PrivateKey = string(text)
	viper.Set("private_key", c.PrivateKey)

	if path := viper.ConfigFileUsed(); path != "" {
		if err := viper.WriteConfigAs(path); err != nil {
			return key.NodePrivate{}, fmt.Errorf("could not persist generated key: %w", err)
		}
		slog.Info("generated new private key", "config", path)
	} else {
		slog.Warn("generated new private key, but there is no config file to persist it in")
	}

	return priv, nil
}

// PeerInformation converts the peer list to a peernet directory.
func (c *Config) PeerInformation() ([]peernet.Information, error) {
	infos := make([]peernet.Information, 0, len(c.Peers))

	for i, p := range c.Peers {
		info, err := p.Information()
		if err != nil {
			return nil, fmt.Errorf("peers[%d]: %w", i, err)
		}
		infos = append(infos, info)
	}

	return infos, nil
}

func (p PeerConfig) Information() (peernet.Information, error) {
	if p.Key == "" {
		return peernet.Information{}, errors.New("key is required")
	}

	pub, err := key.UnmarshalPublic(p.Key)
	if err != nil {
		return peernet.Information{}, fmt.Errorf("key: %w", err)
	}

	info := peernet.Information{Key: *pub}

	if p.Name != "" {
		info.Name = gonull.NewNullable(p.Name)
	}

	if p.Domain != "" {
		info.Domain = gonull.NewNullable(p.Domain)
	}

	for _, a := range p.Addrs {
		addr, err := netip.ParseAddr(a)
		if err != nil {
			return peernet.Information{}, fmt.Errorf("addrs: %w", err)
		}
		info.Addrs = append(info.Addrs, addr)
	}

	if len(info.Addrs) == 0 && !info.Domain.Valid {
		return peernet.Information{}, errors.New("either domain or addrs is required")
	}

	if p.Port != 0 {
		info.Port = gonull.NewNullable(p.Port)
	}

	return info, nil
}

// WatchPeers pushes the peer list to svc whenever the config file changes.
func WatchPeers(svc *peernet.Service) {
	if viper.ConfigFileUsed() == "" {
		return
	}

	viper.OnConfigChange(func(e fsnotify.Event) {
		slog.Info("config changed", "file", e.Name, "op", e.Op.String())

		cfg, err := LoadConfig()
		if err != nil {
			slog.Error("ignoring changed config", "err", err)
			return
		}

		infos, err := cfg.PeerInformation()
		if err != nil {
			slog.Error("ignoring changed peers", "err", err)
			return
		}

		svc.SetPeers(infos)
	})
	viper.WatchConfig()
}
