// Package secrets resolves "ssm:" prefixed configuration values from AWS
// SSM Parameter Store.
package secrets

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

const ssmScheme = "ssm:"

type ParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

type Resolver struct {
	client ParameterGetter
	prefix string
}

func NewResolver(client ParameterGetter, prefix string) *Resolver {
	return &Resolver{client: client, prefix: prefix}
}

// NewSSMResolver builds a resolver from the default AWS credential chain.
func NewSSMResolver(ctx context.Context, region, prefix string) (*Resolver, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewResolver(ssm.NewFromConfig(cfg), prefix), nil
}

// NeedsResolution reports whether any of the values references SSM.
func NeedsResolution(values []*string) bool {
	for _, v := range values {
		if strings.HasPrefix(*v, ssmScheme) {
			return true
		}
	}
	return false
}

func (r *Resolver) Resolve(ctx context.Context, value string) (string, error) {
	name, ok := strings.CutPrefix(value, ssmScheme)
	if !ok {
		return value, nil
	}
	if !strings.HasPrefix(name, "/") {
		name = r.prefix + name
	}

	out, err := r.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("get parameter %s: %w", name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("get parameter %s: empty value", name)
	}
	return aws.ToString(out.Parameter.Value), nil
}

// ResolveAll replaces every referenced value in place.
func (r *Resolver) ResolveAll(ctx context.Context, values []*string) error {
	for _, v := range values {
		resolved, err := r.Resolve(ctx, *v)
		if err != nil {
			return err
		}
		*v = resolved
	}
	return nil
}
