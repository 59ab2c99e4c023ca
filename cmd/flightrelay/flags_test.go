package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/flightrelay/config"
)

func TestParseFlags_OnlyGivenFlagsOverride(t *testing.T) {
	cli, err := parseFlags([]string{"-sbs1-host", "radar", "-broker", "nats"}, &bytes.Buffer{})
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Feed.Port = 30003
	cfg.Metrics.Port = 9191
	cli.apply(cfg)

	assert.Equal(t, "radar", cfg.Feed.Host)
	assert.Equal(t, config.BrokerNATS, cfg.Broker.Kind)
	assert.Equal(t, 30003, cfg.Feed.Port, "unset flag keeps loaded value")
	assert.Equal(t, 9191, cfg.Metrics.Port)
}

func TestParseFlags_MetricsPortZero(t *testing.T) {
	cli, err := parseFlags([]string{"-metrics-port=0"}, &bytes.Buffer{})
	require.NoError(t, err)

	cfg := config.Default()
	cli.apply(cfg)
	assert.Zero(t, cfg.Metrics.Port)
}

func TestParseFlags_Debug(t *testing.T) {
	cli, err := parseFlags([]string{"-debug"}, &bytes.Buffer{})
	require.NoError(t, err)

	cfg := config.Default()
	cli.apply(cfg)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestParseFlags_Help(t *testing.T) {
	var out bytes.Buffer
	cli, err := parseFlags([]string{"-h"}, &out)
	require.NoError(t, err)
	assert.True(t, cli.ShowHelp)
	assert.Contains(t, out.String(), "SBS-1 to MQTT/NATS")
}

func TestParseFlags_Unknown(t *testing.T) {
	_, err := parseFlags([]string{"-nope"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestRun_Version(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"-version"}, &out))
	assert.Contains(t, out.String(), "flightrelay version "+Version)
}

func TestRun_ValidateRejectsBadFlag(t *testing.T) {
	err := run([]string{"-validate", "-env-file=", "-broker=kafka"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}
