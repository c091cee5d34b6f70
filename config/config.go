// Package config loads and validates the service configuration.
package config

import (
	"fmt"
	"net/netip"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	UDP       UDPConfig       `yaml:"udp"`
	Frame     PoolConfig      `yaml:"frame"`
	Processor PoolConfig      `yaml:"processor"`
	QuestDB   QuestDBConfig   `yaml:"questdb"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// ConnectorSize is the capacity of the ring buffers between stages.
	ConnectorSize uint32 `yaml:"connector_size"`
}

type UDPConfig struct {
	IPAddr string `yaml:"ip_addr"`
	Port   uint16 `yaml:"port"`
}

type PoolConfig struct {
	WorkerNum   int `yaml:"worker_num"`
	ChannelSize int `yaml:"channel_size"`
}

type QuestDBConfig struct {
	Enabled bool `yaml:"enabled"`

	Address string `yaml:"address"`

	PoolConfig `yaml:",inline"`
}

type TelemetryConfig struct {
	Enabled bool `yaml:"enabled"`

	ServiceName string `yaml:"service_name"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		UDP: UDPConfig{
			IPAddr: "127.0.0.1",
			Port:   20_000,
		},
		Frame: PoolConfig{
			WorkerNum:   8,
			ChannelSize: 1024,
		},
		Processor: PoolConfig{
			WorkerNum:   4,
			ChannelSize: 512,
		},
		QuestDB: QuestDBConfig{
			Enabled: true,
			Address: "localhost:9000",
			PoolConfig: PoolConfig{
				WorkerNum:   2,
				ChannelSize: 512,
			},
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			ServiceName: "ecattel",
		},

		ConnectorSize: 16_000,
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := netip.ParseAddr(c.UDP.IPAddr); err != nil {
		return fmt.Errorf("config: udp.ip_addr: %w", err)
	}

	if c.UDP.Port == 0 {
		return fmt.Errorf("config: udp.port must not be 0")
	}

	if c.ConnectorSize == 0 {
		return fmt.Errorf("config: connector_size must be positive")
	}

	for _, pool := range []struct {
		name string
		cfg  PoolConfig
	}{
		{"frame", c.Frame},
		{"processor", c.Processor},
		{"questdb", c.QuestDB.PoolConfig},
	} {
		if pool.cfg.WorkerNum <= 0 {
			return fmt.Errorf("config: %s.worker_num must be positive", pool.name)
		}
		if pool.cfg.ChannelSize <= 0 {
			return fmt.Errorf("config: %s.channel_size must be positive", pool.name)
		}
	}

	if c.QuestDB.Enabled && c.QuestDB.Address == "" {
		return fmt.Errorf("config: questdb.address must be set when questdb is enabled")
	}

	if c.Telemetry.Enabled && c.Telemetry.ServiceName == "" {
		return fmt.Errorf("config: telemetry.service_name must be set when telemetry is enabled")
	}

	return nil
}
