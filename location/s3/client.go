package s3

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientConfig configures the S3 client built by NewClient.
type ClientConfig struct {
	// Region overrides the region from the environment. Defaults to us-east-1
	// when neither is set.
	Region string

	// Endpoint points the client at an S3-compatible service.
	Endpoint string

	// ForcePathStyle addresses buckets as path segments instead of host names.
	ForcePathStyle bool

	// MaxRetries sets the maximum number of attempts per request.
	MaxRetries int

	// Timeout bounds each HTTP request. Zero means no timeout.
	Timeout time.Duration
}

// NewClient loads AWS credentials with the default credential chain and
// returns an S3 client.
func NewClient(ctx context.Context, cfg ClientConfig) (*s3.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if cfg.Region != "" {
		awsCfg.Region = cfg.Region
	} else if awsCfg.Region == "" {
		awsCfg.Region = "us-east-1"
	}
	if cfg.MaxRetries > 0 {
		awsCfg.RetryMaxAttempts = cfg.MaxRetries
	}

	var s3Opts []func(*s3.Options)
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.Timeout > 0 {
		httpClient := &http.Client{Timeout: cfg.Timeout}
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.HTTPClient = httpClient
		})
	}

	return s3.NewFromConfig(awsCfg, s3Opts...), nil
}
