package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/customeros/mailwarden/internal/logger"
	"github.com/customeros/mailwarden/internal/tracing"
)

type Config struct {
	AppConfig                *AppConfig
	Logger                   *logger.Config
	Tracing                  *tracing.JaegerConfig
	MailwardenDatabaseConfig *MailwardenDatabaseConfig
	RedisConfig              *RedisConfig
	StorageConfig            *StorageConfig
	TrainingConfig           *TrainingConfig
	LogReaderConfig          *LogReaderConfig
	BounceConfig             *BounceConfig
	SuppressionConfig        *SuppressionConfig
	MonitorConfig            *MonitorConfig
}

func InitConfig() (*Config, error) {
	config := &Config{
		AppConfig:                &AppConfig{},
		Logger:                   &logger.Config{},
		Tracing:                  &tracing.JaegerConfig{},
		MailwardenDatabaseConfig: &MailwardenDatabaseConfig{},
		RedisConfig:              &RedisConfig{},
		StorageConfig:            &StorageConfig{},
		TrainingConfig:           &TrainingConfig{},
		LogReaderConfig:          &LogReaderConfig{},
		BounceConfig:             &BounceConfig{},
		SuppressionConfig:        &SuppressionConfig{},
		MonitorConfig:            &MonitorConfig{},
	}

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		return nil, err
	}

	return config, nil
}
