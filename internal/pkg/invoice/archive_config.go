package invoice

import (
	"errors"
	"fmt"
	"time"

	"github.com/cleanconnect/cleanconnect/internal/pkg/env"
)

// ArchiveConfig holds the S3 settings for invoice documents
type ArchiveConfig struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	Enabled         bool
}

// LoadArchiveConfig loads S3 configuration from environment variables
func LoadArchiveConfig() (*ArchiveConfig, error) {
	config := &ArchiveConfig{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "eu-central-1"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		Enabled:         env.GetBool("INVOICE_S3_ENABLED", false),
	}

	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("S3_ACCESS_KEY_ID is required when invoice archiving is enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("S3_SECRET_ACCESS_KEY is required when invoice archiving is enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("S3_BUCKET_NAME is required when invoice archiving is enabled")
		}
	}

	return config, nil
}

// ObjectKey returns the archive key for an invoice number.
// Format: invoices/YYYY/MM/<number>.txt
func (c *ArchiveConfig) ObjectKey(number string, issued time.Time) string {
	return fmt.Sprintf("invoices/%04d/%02d/%s.txt", issued.Year(), int(issued.Month()), number)
}
