package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddress)
	require.Equal(t, BackendMemory, cfg.StoreBackend)
	require.Equal(t, 3, cfg.FiscalYearFinalMonth)
	require.Equal(t, "sysadmin", cfg.AdminRole)
	require.Equal(t, "America/Vancouver", cfg.Location.String())
	require.Equal(t, 10*time.Second, cfg.ReadTimeout)
	require.False(t, cfg.EventsEnabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", " DynamoDB ")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("FISCAL_YEAR_FINAL_MONTH", "12")
	t.Setenv("TIME_ZONE", "UTC")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, BackendDynamoDB, cfg.StoreBackend)
	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	require.True(t, cfg.EventsEnabled())
	require.Equal(t, 12, cfg.FiscalYearFinalMonth)
	require.Equal(t, time.UTC, cfg.Location)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"month too large": {"FISCAL_YEAR_FINAL_MONTH": "13"},
		"month zero":      {"FISCAL_YEAR_FINAL_MONTH": "0"},
		"month not int":   {"FISCAL_YEAR_FINAL_MONTH": "march"},
		"unknown zone":    {"TIME_ZONE": "Mars/Olympus"},
		"unknown backend": {"STORE_BACKEND": "redis"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range vars {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
		})
	}
}
