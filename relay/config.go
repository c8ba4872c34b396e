// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package relay

import (
	"bytes"
	e "errors"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Azure/iot-telemetry-relay/errors"
	"github.com/Azure/iot-telemetry-relay/internal/iso"
	"gopkg.in/yaml.v3"
)

type (
	// Config is the relay process configuration.
	Config struct {
		ConnectionString string `log:"redact"`
		ConsumerGroup    string

		Port   int
		Source Source

		QueueSize    int
		WriteTimeout time.Duration
		PingInterval time.Duration

		MQTT         MQTTConfig
		KafkaBrokers []string

		LogLevel slog.Level
	}

	// MQTTConfig configures the MQTT stream source.
	MQTTConfig struct {
		Host     string
		Port     int
		UseTLS   bool
		Topic    string
		Username string
		Password string `log:"redact"`
	}

	// Source selects the stream backend.
	Source string

	// fileConfig is the YAML form of the configuration. Values use the same
	// textual formats as their environment variables.
	fileConfig struct {
		IotConnectionString string   `yaml:"iotConnectionString"`
		EventHubGroup       string   `yaml:"eventHubGroup"`
		Port                string   `yaml:"port"`
		Source              string   `yaml:"source"`
		QueueSize           string   `yaml:"queueSize"`
		WriteTimeout        string   `yaml:"writeTimeout"`
		PingInterval        string   `yaml:"pingInterval"`
		KafkaBrokers        []string `yaml:"kafkaBrokers"`
		LogLevel            string   `yaml:"logLevel"`
		MQTT                struct {
			Host     string `yaml:"host"`
			Port     string `yaml:"port"`
			UseTLS   string `yaml:"useTls"`
			Topic    string `yaml:"topic"`
			Username string `yaml:"username"`
			Password string `yaml:"password"`
		} `yaml:"mqtt"`
	}
)

// The supported stream sources.
const (
	SourceEventHubs Source = "eventhubs"
	SourceMQTT      Source = "mqtt"
	SourceKafka     Source = "kafka"
)

const (
	DefaultPort     = 4000
	DefaultMQTTPort = 8883
)

// ConfigFileEnv names the environment variable pointing at an optional YAML
// configuration file. Environment variables override values from the file.
const ConfigFileEnv = "RELAY_CONFIG_FILE"

// ConfigFromEnv parses the relay configuration from well-known environment
// variables.
func ConfigFromEnv() (*Config, error) {
	return configFromEnviron(os.Environ())
}

func configFromEnviron(environ []string) (*Config, error) {
	for _, env := range environ {
		key, val, _ := strings.Cut(env, "=")
		if key != ConfigFileEnv || val == "" {
			continue
		}
		file, err := loadConfigFile(val)
		if err != nil {
			return nil, &errors.Error{
				Message:       "could not load configuration file",
				Kind:          errors.ConfigurationInvalid,
				NestedError:   err,
				PropertyName:  key,
				PropertyValue: val,
			}
		}
		environ = append(file.environ(), environ...)
		break
	}

	cfg := &Config{
		Port:         DefaultPort,
		Source:       SourceEventHubs,
		QueueSize:    DefaultQueueSize,
		WriteTimeout: DefaultWriteTimeout,
		PingInterval: DefaultPingInterval,
		MQTT: MQTTConfig{
			Port:   DefaultMQTTPort,
			UseTLS: true,
		},
		LogLevel: slog.LevelInfo,
	}

	for _, env := range environ {
		// An empty variable is treated as unset.
		key, val, _ := strings.Cut(env, "=")
		if val == "" {
			continue
		}

		var err error
		switch key {
		case "IotConnectionString":
			cfg.ConnectionString = val

		case "EventHubGroup":
			cfg.ConsumerGroup = val

		case "PORT":
			cfg.Port, err = parsePort(val)

		case "RELAY_SOURCE":
			cfg.Source = Source(strings.ToLower(val))
			switch cfg.Source {
			case SourceEventHubs, SourceMQTT, SourceKafka:
			default:
				err = &errors.Error{Message: "unknown stream source"}
			}

		case "RELAY_QUEUE_SIZE":
			cfg.QueueSize, err = strconv.Atoi(val)
			if err == nil && cfg.QueueSize <= 0 {
				err = &errors.Error{Message: "queue size must be positive"}
			}

		case "RELAY_WRITE_TIMEOUT":
			cfg.WriteTimeout, err = parseDuration(val)

		case "RELAY_PING_INTERVAL":
			cfg.PingInterval, err = parseDuration(val)

		case "RELAY_MQTT_HOST":
			cfg.MQTT.Host = val

		case "RELAY_MQTT_PORT":
			cfg.MQTT.Port, err = parsePort(val)

		case "RELAY_MQTT_USE_TLS":
			cfg.MQTT.UseTLS, err = strconv.ParseBool(val)

		case "RELAY_MQTT_TOPIC":
			cfg.MQTT.Topic = val

		case "RELAY_MQTT_USERNAME":
			cfg.MQTT.Username = val

		case "RELAY_MQTT_PASSWORD":
			cfg.MQTT.Password = val

		case "RELAY_KAFKA_BROKERS":
			for _, b := range strings.Split(val, ",") {
				if b = strings.TrimSpace(b); b != "" {
					cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
				}
			}

		case "RELAY_LOG_LEVEL":
			err = cfg.LogLevel.UnmarshalText([]byte(val))
		}

		if err != nil {
			return nil, &errors.Error{
				Message:       "could not parse " + key,
				Kind:          errors.ConfigurationInvalid,
				NestedError:   err,
				PropertyName:  key,
				PropertyValue: val,
			}
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadConfigFile(name string) (*fileConfig, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}

	var file fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !e.Is(err, io.EOF) {
		return nil, err
	}
	return &file, nil
}

// environ flattens the file into environment form so both sources share one
// parser.
func (f *fileConfig) environ() []string {
	settings := []struct{ key, val string }{
		{"IotConnectionString", f.IotConnectionString},
		{"EventHubGroup", f.EventHubGroup},
		{"PORT", f.Port},
		{"RELAY_SOURCE", f.Source},
		{"RELAY_QUEUE_SIZE", f.QueueSize},
		{"RELAY_WRITE_TIMEOUT", f.WriteTimeout},
		{"RELAY_PING_INTERVAL", f.PingInterval},
		{"RELAY_KAFKA_BROKERS", strings.Join(f.KafkaBrokers, ",")},
		{"RELAY_LOG_LEVEL", f.LogLevel},
		{"RELAY_MQTT_HOST", f.MQTT.Host},
		{"RELAY_MQTT_PORT", f.MQTT.Port},
		{"RELAY_MQTT_USE_TLS", f.MQTT.UseTLS},
		{"RELAY_MQTT_TOPIC", f.MQTT.Topic},
		{"RELAY_MQTT_USERNAME", f.MQTT.Username},
		{"RELAY_MQTT_PASSWORD", f.MQTT.Password},
	}

	var environ []string
	for _, s := range settings {
		if s.val != "" {
			environ = append(environ, s.key+"="+s.val)
		}
	}
	return environ
}

// The MQTT source reads from a broker directly; the other sources resolve
// the hub's stream endpoint first.
func (cfg *Config) validate() error {
	type setting struct{ name, value string }

	var required []setting
	if cfg.Source == SourceMQTT {
		required = []setting{{"RELAY_MQTT_HOST", cfg.MQTT.Host}}
	} else {
		required = []setting{
			{"IotConnectionString", cfg.ConnectionString},
			{"EventHubGroup", cfg.ConsumerGroup},
		}
	}

	for _, r := range required {
		if r.value == "" {
			return &errors.Error{
				Message:      "environment variable " + r.name + " is missing",
				Kind:         errors.ConfigurationInvalid,
				PropertyName: r.name,
			}
		}
	}
	return nil
}

func parsePort(val string) (int, error) {
	port, err := strconv.ParseUint(val, 10, 16)
	return int(port), err
}

func parseDuration(val string) (time.Duration, error) {
	d, err := iso.ParseDuration(val)
	if err == nil && d <= 0 {
		err = &errors.Error{Message: "duration must be positive"}
	}
	return d, err
}
