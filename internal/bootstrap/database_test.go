package bootstrap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/bulkmailer/config"
)

func TestBuildConnConfig(t *testing.T) {
	cfg, err := buildConnConfig(config.DBConfig{
		Host:            "db.internal",
		Port:            6543,
		User:            "mailer",
		Password:        "p@ss:w/rd?",
		Name:            "bulk",
		SSLMode:         "disable",
		ApplicationName: "bulkmailer-runner",
		ConnectTimeout:  3 * time.Second,
	})
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Host)
	assert.Equal(t, uint16(6543), cfg.Port)
	assert.Equal(t, "mailer", cfg.User)
	assert.Equal(t, "p@ss:w/rd?", cfg.Password)
	assert.Equal(t, "bulk", cfg.Database)
	assert.Equal(t, "bulkmailer-runner", cfg.RuntimeParams["application_name"])
	assert.Equal(t, 3*time.Second, cfg.ConnectTimeout)
}

func TestBuildConnConfig_InvalidSSLMode(t *testing.T) {
	_, err := buildConnConfig(config.DBConfig{Host: "localhost", Port: 5432, SSLMode: "sometimes"})
	require.Error(t, err)
}
