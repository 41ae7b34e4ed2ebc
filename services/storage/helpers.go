package storage

import (
	"github.com/customeros/mailwarden/config"
	"github.com/customeros/mailwarden/interfaces"
	"github.com/customeros/mailwarden/services/storage/aws_client"
)

// NewStorageServiceFromConfig returns nil when no credentials are configured,
// which leaves suppression exports to the CLI and HTTP download paths.
func NewStorageServiceFromConfig(cfg *config.StorageConfig) (interfaces.StorageService, error) {
	if cfg == nil || cfg.AccessKeyID == "" {
		return nil, nil
	}

	client, err := aws_client.NewS3Client(aws_client.ClientConfig{
		Endpoint:        cfg.Endpoint,
		Region:          cfg.Region,
		AccessKeyID:     cfg.AccessKeyID,
		AccessKeySecret: cfg.AccessKeySecret,
	})
	if err != nil {
		return nil, err
	}

	return NewStorageService(client, cfg.ExportBucket), nil
}
