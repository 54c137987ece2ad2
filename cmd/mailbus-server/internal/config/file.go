package config

import (
	"os"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig is the TOML form of Config. Durations are strings
// ("2s", "500ms") and booleans are pointers so "unset" is distinguishable.
type FileConfig struct {
	Server struct {
		Host            string `toml:"host"`
		Port            int    `toml:"port"`
		ShutdownTimeout string `toml:"shutdown_timeout"`
		Transport       string `toml:"transport"`
	} `toml:"server"`
	Storage struct {
		Driver         string `toml:"driver"`
		Dir            string `toml:"dir"`
		SQLDriver      string `toml:"sql_driver"`
		DSN            string `toml:"dsn"`
		RedisURL       string `toml:"redis_url"`
		ConnectRetries int    `toml:"connect_retries"`
		ConnectDelay   string `toml:"connect_delay"`
	} `toml:"storage"`
	Routing struct {
		DedicatedDomains []string `toml:"dedicated_domains"`
		Transform        string   `toml:"transform"`
		AutoPartition    *bool    `toml:"auto_partition"`
	} `toml:"routing"`
	AMQP struct {
		URL          string `toml:"url"`
		Exchange     string `toml:"exchange"`
		ConsumerName string `toml:"consumer_name"`
		DomainFilter string `toml:"domain_filter"`
	} `toml:"amqp"`
	Toggles struct {
		StateFile string `toml:"state_file"`
	} `toml:"toggles"`
	LogLevel string `toml:"log_level"`
}

// LoadFile reads and parses a TOML config file.
func LoadFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// ApplyFile copies the values present in fc into c, skipping changed flags.
func (c *Config) ApplyFile(fc FileConfig, changed map[string]bool) error {
	s := newSetter(changed)

	s.setString("host", fc.Server.Host, &c.Server.Host)
	if fc.Server.Port > 0 && !changed["port"] {
		c.Server.Port = fc.Server.Port
	}
	if err := s.setDuration("shutdown-timeout", fc.Server.ShutdownTimeout, &c.Server.ShutdownTimeout); err != nil {
		return err
	}

	s.setString("transport", fc.Server.Transport, &c.Server.Transport)

	s.setString("storage", fc.Storage.Driver, &c.Storage.Driver)
	s.setString("storage-dir", fc.Storage.Dir, &c.Storage.Dir)
	s.setString("sql-driver", fc.Storage.SQLDriver, &c.Storage.SQLDriver)
	s.setString("dsn", fc.Storage.DSN, &c.Storage.DSN)
	s.setString("redis-url", fc.Storage.RedisURL, &c.Storage.RedisURL)
	if fc.Storage.ConnectRetries > 0 && !changed["connect-retries"] {
		c.Storage.ConnectRetries = fc.Storage.ConnectRetries
	}
	if err := s.setDuration("connect-delay", fc.Storage.ConnectDelay, &c.Storage.ConnectDelay); err != nil {
		return err
	}

	if len(fc.Routing.DedicatedDomains) > 0 && !changed["dedicated-domains"] {
		c.Routing.DedicatedDomains = fc.Routing.DedicatedDomains
	}
	s.setString("transform", fc.Routing.Transform, &c.Routing.Transform)
	if fc.Routing.AutoPartition != nil && !changed["auto-partition"] {
		c.Routing.AutoPartition = *fc.Routing.AutoPartition
	}

	s.setString("amqp-url", fc.AMQP.URL, &c.AMQP.URL)
	s.setString("exchange", fc.AMQP.Exchange, &c.AMQP.Exchange)
	s.setString("consumer-name", fc.AMQP.ConsumerName, &c.AMQP.ConsumerName)
	s.setString("domain-filter", fc.AMQP.DomainFilter, &c.AMQP.DomainFilter)

	s.setString("toggles-file", fc.Toggles.StateFile, &c.Toggles.StateFile)
	s.setString("log-level", fc.LogLevel, &c.LogLevel)
	return nil
}
