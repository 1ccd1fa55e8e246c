package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSSM struct {
	params    map[string]string
	decrypted bool
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.decrypted = aws.ToBool(in.WithDecryption)
	v, ok := f.params[aws.ToString(in.Name)]
	if !ok {
		return nil, errors.New("ParameterNotFound")
	}
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Value: aws.String(v)}}, nil
}

func TestResolveAll(t *testing.T) {
	fake := &fakeSSM{params: map[string]string{
		"/newsroom/prod/resend/api-key": "re_live",
		"/shared/webhook":               "whsec_abc",
	}}
	r := NewResolver(fake, "/newsroom/prod/")

	apiKey := "ssm:resend/api-key"
	webhook := "ssm:/shared/webhook"
	plain := "literal"
	values := []*string{&apiKey, &webhook, &plain}

	require.True(t, NeedsResolution(values))
	require.NoError(t, r.ResolveAll(context.Background(), values))

	assert.Equal(t, "re_live", apiKey)
	assert.Equal(t, "whsec_abc", webhook)
	assert.Equal(t, "literal", plain)
	assert.True(t, fake.decrypted)
	assert.False(t, NeedsResolution(values))
}

func TestResolve_MissingParameter(t *testing.T) {
	r := NewResolver(&fakeSSM{}, "/newsroom/")

	_, err := r.Resolve(context.Background(), "ssm:missing")
	assert.ErrorContains(t, err, "/newsroom/missing")
}
