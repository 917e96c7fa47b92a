package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/caarlos0/intelbras2mqtt/alarm"
	"gopkg.in/yaml.v3"
)

const (
	protocolListener = "isecnet"
	protocolPoller   = "amt8000"
)

type Config struct {
	Protocol               string        `env:"ALARM_PROTOCOL"            envDefault:"isecnet"               yaml:"alarm_protocol"`
	Host                   string        `env:"ALARM_IP"                                                     yaml:"alarm_ip"`
	Port                   string        `env:"ALARM_PORT"                envDefault:"9009"                  yaml:"alarm_port"`
	Password               string        `env:"ALARM_PASS"                                                   yaml:"alarm_pass"`
	ZoneRange              string        `env:"ZONE_RANGE"                                                   yaml:"zone_range"`
	ZoneCount              int           `env:"ZONE_COUNT"                envDefault:"8"                     yaml:"zone_count"`
	Partitions             []string      `env:"PARTITIONS"                envDefault:"A,B,C,D"               yaml:"partitions"`
	PollingInterval        int           `env:"POLLING_INTERVAL_MINUTES"  envDefault:"5"                     yaml:"polling_interval_minutes"`
	CommandTimeout         time.Duration `env:"COMMAND_TIMEOUT"           envDefault:"8s"                    yaml:"command_timeout"`
	ReadTimeout            time.Duration `env:"READ_TIMEOUT"              envDefault:"5m"                    yaml:"read_timeout"`
	MaxPollFailures        int           `env:"MAX_POLL_FAILURES"         envDefault:"3"                     yaml:"max_poll_failures"`
	BackoffInitial         time.Duration `env:"BACKOFF_INITIAL"           envDefault:"1s"                    yaml:"backoff_initial"`
	BackoffMax             time.Duration `env:"BACKOFF_MAX"               envDefault:"1m"                    yaml:"backoff_max"`
	PanicDuration          time.Duration `env:"PANIC_DURATION"            envDefault:"30s"                   yaml:"panic_duration"`
	ClearTriggeredOnDisarm bool          `env:"CLEAR_TRIGGERED_ON_DISARM"                                    yaml:"clear_triggered_on_disarm"`
	Bus                    string        `env:"BUS"                       envDefault:"mqtt"                  yaml:"bus"`
	MQTTBroker             string        `env:"MQTT_BROKER"                                                  yaml:"mqtt_broker"`
	MQTTPort               int           `env:"MQTT_PORT"                 envDefault:"1883"                  yaml:"mqtt_port"`
	MQTTUsername           string        `env:"MQTT_USERNAME"                                                yaml:"mqtt_username"`
	MQTTPassword           string        `env:"MQTT_PASSWORD"                                                yaml:"mqtt_password"`
	MQTTClientID           string        `env:"MQTT_CLIENT_ID"            envDefault:"intelbras2mqtt"        yaml:"mqtt_client_id"`
	NATSURL                string        `env:"NATS_URL"                  envDefault:"nats://127.0.0.1:4222" yaml:"nats_url"`
	Topic                  string        `env:"BASE_TOPIC"                envDefault:"intelbras/alarm"       yaml:"base_topic"`
	Address                string        `env:"LISTEN"                    envDefault:":9091"                 yaml:"listen"`
	LogLevel               string        `env:"LOG_LEVEL"                 envDefault:"info"                  yaml:"log_level"`
	ConfigFile             string        `env:"CONFIG_FILE"                                                  yaml:"-"`
}

// loadConfig reads the environment and then overlays the options file, if
// any.
func loadConfig(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return cfg, fmt.Errorf(
			"could not parse env: %s",
			strings.TrimPrefix(strings.ReplaceAll(err.Error(), "; ", "\n"), "env: "),
		)
	}
	if cfg.ConfigFile != "" {
		bts, err := os.ReadFile(cfg.ConfigFile)
		if err != nil {
			return cfg, fmt.Errorf("could not read options file: %w", err)
		}
		if err := yaml.Unmarshal(bts, &cfg); err != nil {
			return cfg, fmt.Errorf("could not parse options file: %w", err)
		}
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.Protocol {
	case protocolListener:
	case protocolPoller:
		if c.Host == "" {
			return &alarm.ConfigError{Field: "ALARM_IP", Err: errors.New("required by the amt8000 protocol")}
		}
	default:
		return &alarm.ConfigError{Field: "ALARM_PROTOCOL", Err: fmt.Errorf("unknown protocol %q", c.Protocol)}
	}
	if err := alarm.CheckPassword(c.Password); err != nil {
		return err
	}
	if _, err := c.zones(); err != nil {
		return err
	}
	partitions, err := c.partitions()
	if err != nil {
		return err
	}
	if c.Protocol == protocolListener && len(partitions) == 0 {
		return &alarm.ConfigError{Field: "PARTITIONS", Err: errors.New("the isecnet protocol needs at least one partition")}
	}
	if c.PollingInterval < 1 {
		return &alarm.ConfigError{Field: "POLLING_INTERVAL_MINUTES", Err: fmt.Errorf("must be at least 1, got %d", c.PollingInterval)}
	}
	return nil
}

func (c Config) zones() ([]int, error) {
	return alarm.ZoneSet(c.ZoneRange, c.ZoneCount)
}

func (c Config) partitions() ([]alarm.Partition, error) {
	var result []alarm.Partition
	for _, s := range c.Partitions {
		p, err := alarm.ParsePartition(strings.TrimSpace(s))
		if err != nil {
			return nil, &alarm.ConfigError{Field: "PARTITIONS", Err: err}
		}
		result = append(result, p)
	}
	return result, nil
}

func (c Config) pollInterval() time.Duration {
	return time.Duration(c.PollingInterval) * time.Minute
}
