package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	gormlogger "gorm.io/gorm/logger"

	"github.com/customeros/mailwarden/config"
)

func TestValidateConfig(t *testing.T) {
	assert.Error(t, validateConfig(nil))
	assert.Error(t, validateConfig(&config.MailwardenDatabaseConfig{Host: "localhost"}))
	assert.NoError(t, validateConfig(&config.MailwardenDatabaseConfig{
		Host: "localhost", Port: "5432", User: "u", Password: "p", DBName: "db", SSLMode: "disable",
	}))
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Info, logLevel("info"))
	assert.Equal(t, gormlogger.Warn, logLevel(""))
	assert.Equal(t, gormlogger.Silent, logLevel("SILENT"))
}
