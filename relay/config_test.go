// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package relay

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Azure/iot-telemetry-relay/errors"
	"github.com/stretchr/testify/require"
)

var baseEnv = []string{
	"IotConnectionString=HostName=h.azure-devices.net;SharedAccessKeyName=s;SharedAccessKey=a2V5",
	"EventHubGroup=$Default",
}

func TestConfigDefaults(t *testing.T) {
	cfg, err := configFromEnviron(append(baseEnv, "HOME=/root"))
	require.NoError(t, err)
	require.Equal(t, &Config{
		ConnectionString: "HostName=h.azure-devices.net;SharedAccessKeyName=s;SharedAccessKey=a2V5",
		ConsumerGroup:    "$Default",
		Port:             4000,
		Source:           SourceEventHubs,
		QueueSize:        64,
		WriteTimeout:     10 * time.Second,
		PingInterval:     30 * time.Second,
		MQTT:             MQTTConfig{Port: 8883, UseTLS: true},
		LogLevel:         slog.LevelInfo,
	}, cfg)
}

func TestConfigOverrides(t *testing.T) {
	cfg, err := configFromEnviron(append(baseEnv,
		"PORT=8080",
		"RELAY_SOURCE=Kafka",
		"RELAY_QUEUE_SIZE=16",
		"RELAY_WRITE_TIMEOUT=PT2S",
		"RELAY_PING_INTERVAL=PT1M",
		"RELAY_KAFKA_BROKERS=a:9093, b:9093,",
		"RELAY_LOG_LEVEL=debug",
	))
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, SourceKafka, cfg.Source)
	require.Equal(t, 16, cfg.QueueSize)
	require.Equal(t, 2*time.Second, cfg.WriteTimeout)
	require.Equal(t, time.Minute, cfg.PingInterval)
	require.Equal(t, []string{"a:9093", "b:9093"}, cfg.KafkaBrokers)
	require.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestConfigMQTT(t *testing.T) {
	cfg, err := configFromEnviron([]string{
		"RELAY_SOURCE=mqtt",
		"RELAY_MQTT_HOST=localhost",
		"RELAY_MQTT_PORT=1883",
		"RELAY_MQTT_USE_TLS=false",
		"RELAY_MQTT_USERNAME=relay",
		"RELAY_MQTT_PASSWORD=secret",
	})
	require.NoError(t, err)
	require.Equal(t, MQTTConfig{
		Host:     "localhost",
		Port:     1883,
		Topic:    "",
		Username: "relay",
		Password: "secret",
	}, cfg.MQTT)
}

func TestConfigInvalid(t *testing.T) {
	for _, tc := range []struct {
		env      []string
		property string
	}{
		{[]string{"EventHubGroup=$Default"}, "IotConnectionString"},
		{baseEnv[:1], "EventHubGroup"},
		{append(baseEnv, "PORT=http"), "PORT"},
		{append(baseEnv, "RELAY_SOURCE=amqp"), "RELAY_SOURCE"},
		{append(baseEnv, "RELAY_QUEUE_SIZE=0"), "RELAY_QUEUE_SIZE"},
		{append(baseEnv, "RELAY_WRITE_TIMEOUT=10s"), "RELAY_WRITE_TIMEOUT"},
		{append(baseEnv, "RELAY_PING_INTERVAL=PT0S"), "RELAY_PING_INTERVAL"},
		{append(baseEnv, "RELAY_LOG_LEVEL=loud"), "RELAY_LOG_LEVEL"},
		{[]string{"RELAY_SOURCE=mqtt"}, "RELAY_MQTT_HOST"},
	} {
		_, err := configFromEnviron(tc.env)
		require.True(t, errors.IsKind(err, errors.ConfigurationInvalid), tc.property)

		var re *errors.Error
		require.ErrorAs(t, err, &re)
		require.Equal(t, tc.property, re.PropertyName)
	}
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	name := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(name, []byte(content), 0o600))
	return name
}

func TestConfigFile(t *testing.T) {
	name := writeConfigFile(t, `
iotConnectionString: "HostName=f.azure-devices.net;SharedAccessKeyName=s;SharedAccessKey=a2V5"
eventHubGroup: "relay"
port: "8080"
source: "kafka"
writeTimeout: "PT2S"
kafkaBrokers:
  - "a:9093"
  - "b:9093"
mqtt:
  host: "broker"
  useTls: "false"
`)

	cfg, err := configFromEnviron([]string{
		ConfigFileEnv + "=" + name,
		"EventHubGroup=$Default",
		"PORT=9090",
	})
	require.NoError(t, err)
	require.Equal(t, "HostName=f.azure-devices.net;SharedAccessKeyName=s;SharedAccessKey=a2V5", cfg.ConnectionString)
	require.Equal(t, "$Default", cfg.ConsumerGroup)
	require.Equal(t, 9090, cfg.Port)
	require.Equal(t, SourceKafka, cfg.Source)
	require.Equal(t, 2*time.Second, cfg.WriteTimeout)
	require.Equal(t, []string{"a:9093", "b:9093"}, cfg.KafkaBrokers)
	require.Equal(t, "broker", cfg.MQTT.Host)
	require.False(t, cfg.MQTT.UseTLS)
}

func TestConfigFileEmpty(t *testing.T) {
	name := writeConfigFile(t, "")
	cfg, err := configFromEnviron(append(baseEnv, ConfigFileEnv+"="+name))
	require.NoError(t, err)
	require.Equal(t, DefaultPort, cfg.Port)
}

func TestConfigFileInvalid(t *testing.T) {
	for _, tc := range []struct {
		name     string
		property string
	}{
		{filepath.Join(t.TempDir(), "missing.yaml"), ConfigFileEnv},
		{writeConfigFile(t, "bogus: true\n"), ConfigFileEnv},
		{writeConfigFile(t, "queueSize: \"-1\"\n"), "RELAY_QUEUE_SIZE"},
	} {
		_, err := configFromEnviron(append(baseEnv, ConfigFileEnv+"="+tc.name))

		var re *errors.Error
		require.ErrorAs(t, err, &re, tc.name)
		require.Equal(t, errors.ConfigurationInvalid, re.Kind)
		require.Equal(t, tc.property, re.PropertyName)
	}
}

func TestConfigEmptyValuesUseDefaults(t *testing.T) {
	cfg, err := configFromEnviron(append(baseEnv,
		"PORT=",
		"RELAY_SOURCE=",
		"RELAY_QUEUE_SIZE=",
		"RELAY_LOG_LEVEL=",
	))
	require.NoError(t, err)
	require.Equal(t, DefaultPort, cfg.Port)
	require.Equal(t, SourceEventHubs, cfg.Source)
	require.Equal(t, DefaultQueueSize, cfg.QueueSize)
	require.Equal(t, slog.LevelInfo, cfg.LogLevel)

	_, err = configFromEnviron([]string{
		"IotConnectionString=",
		"EventHubGroup=$Default",
	})
	require.True(t, errors.IsKind(err, errors.ConfigurationInvalid))
}

func TestWatchConfigReloads(t *testing.T) {
	name := writeConfigFile(t, "logLevel: \"info\"\n")
	changes := make(chan *Config, 4)

	cw, err := watchConfig(
		append(baseEnv, ConfigFileEnv+"="+name),
		func(cfg *Config) { changes <- cfg },
		nil,
	)
	require.NoError(t, err)
	defer cw.Close()

	require.NoError(t, os.WriteFile(name, []byte("logLevel: \"debug\"\n"), 0o600))

	select {
	case cfg := <-changes:
		require.Equal(t, slog.LevelDebug, cfg.LogLevel)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "configuration change not observed")
	}
}

func TestWatchConfigEnvironmentWins(t *testing.T) {
	name := writeConfigFile(t, "logLevel: \"info\"\n")
	changes := make(chan *Config, 4)

	cw, err := watchConfig(
		append(baseEnv, ConfigFileEnv+"="+name, "RELAY_LOG_LEVEL=warn"),
		func(cfg *Config) { changes <- cfg },
		nil,
	)
	require.NoError(t, err)
	defer cw.Close()

	require.NoError(t, os.WriteFile(name, []byte("logLevel: \"debug\"\nqueueSize: \"8\"\n"), 0o600))

	select {
	case cfg := <-changes:
		require.Equal(t, slog.LevelWarn, cfg.LogLevel)
		require.Equal(t, 8, cfg.QueueSize)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "configuration change not observed")
	}
}

func TestWatchConfigWithoutFile(t *testing.T) {
	cw, err := watchConfig(baseEnv, nil, nil)
	require.NoError(t, err)
	require.Nil(t, cw)
	require.NoError(t, cw.Close())
}
