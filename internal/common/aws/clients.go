// internal/common/aws/clients.go
package aws

import (
	"context"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// LoadConfig resolves credentials from the default chain for region.
func LoadConfig(ctx context.Context, region string) (sdkaws.Config, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return sdkaws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	return cfg, nil
}

func NewSNSClient(ctx context.Context, region string) (*sns.Client, error) {
	cfg, err := LoadConfig(ctx, region)
	if err != nil {
		return nil, err
	}
	return sns.NewFromConfig(cfg), nil
}

func NewSESClient(ctx context.Context, region string) (*ses.Client, error) {
	cfg, err := LoadConfig(ctx, region)
	if err != nil {
		return nil, err
	}
	return ses.NewFromConfig(cfg), nil
}
