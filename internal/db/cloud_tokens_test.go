package db

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/sqlpool/pkg/sqlpool"
)

func TestNewAWSIAMTokenProvider_Validation(t *testing.T) {
	tests := []struct {
		name                       string
		endpoint, region, username string
		wantErr                    string
	}{
		{"missing endpoint", "", "us-east-1", "iam", "endpoint"},
		{"missing region", "db:3306", "", "iam", "region"},
		{"missing user", "db:3306", "us-east-1", "", "username"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAWSIAMTokenProvider(tt.endpoint, tt.region, tt.username)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAWSIAMTokenProvider_GetToken(t *testing.T) {
	p, err := NewAWSIAMTokenProvider("mydb.cluster.eu-west-1.rds.amazonaws.com:3306", "eu-west-1", "iam_user")
	require.NoError(t, err)
	p.loadConfig = func(_ context.Context, region string) (aws.Config, error) {
		return aws.Config{
			Region:      region,
			Credentials: credentials.NewStaticCredentialsProvider("AKIDEXAMPLE", "secret", ""),
		}, nil
	}

	token, expiresOn, err := p.GetToken(context.Background())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(token, "mydb.cluster.eu-west-1.rds.amazonaws.com:3306"))
	assert.Contains(t, token, "Action=connect")
	assert.Contains(t, token, "X-Amz-Credential=AKIDEXAMPLE")
	q, err := url.ParseQuery(token[strings.Index(token, "?")+1:])
	require.NoError(t, err)
	assert.Equal(t, "iam_user", q.Get("DBUser"))
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresOn, time.Minute)
	assert.NotContains(t, p.String(), "secret")
}

func TestAWSIAMTokenProvider_ConfigError(t *testing.T) {
	p, err := NewAWSIAMTokenProvider("db:3306", "us-east-1", "iam")
	require.NoError(t, err)
	p.loadConfig = func(context.Context, string) (aws.Config, error) {
		return aws.Config{}, errors.New("no credentials")
	}

	_, _, err = p.GetToken(context.Background())
	assert.ErrorContains(t, err, "failed to load AWS config")
}

type fakeCredential struct {
	scopes []string
	err    error
}

func (f *fakeCredential) GetToken(_ context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	f.scopes = opts.Scopes
	if f.err != nil {
		return azcore.AccessToken{}, f.err
	}
	return azcore.AccessToken{Token: "aad-token", ExpiresOn: time.Now().Add(time.Hour)}, nil
}

func TestAzureProviders_RequestDatabaseScope(t *testing.T) {
	cred := &fakeCredential{}
	p := &AzureDefaultCredentialProvider{credential: cred}

	token, expiresOn, err := p.GetToken(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "aad-token", token)
	assert.True(t, expiresOn.After(time.Now()))
	assert.Equal(t, []string{AzureDatabaseScope}, cred.scopes)
}

func TestAzureProviders_TokenError(t *testing.T) {
	p := &AzureServicePrincipalProvider{tenantID: "t", clientID: "c", credential: &fakeCredential{err: errors.New("AADSTS700016")}}

	_, _, err := p.GetToken(context.Background())
	assert.ErrorContains(t, err, "azure token acquisition failed")
	assert.Equal(t, "AzureServicePrincipal(tenant=t, client=c)", p.String())
}

func TestNewAzureServicePrincipalProvider_Validation(t *testing.T) {
	_, err := NewAzureServicePrincipalProvider("tenant", "", "secret")
	assert.Error(t, err)

	p, err := NewAzureServicePrincipalProvider("00000000-0000-0000-0000-000000000000", "client", "secret")
	require.NoError(t, err)
	assert.NotContains(t, p.String(), "secret")
}

func TestDefaultTokenProvider(t *testing.T) {
	awsParams := baseParams()
	awsParams.AuthMethod = sqlpool.AuthMethodAWSIAM
	awsParams.AWSRegion = "us-east-1"
	p, err := defaultTokenProvider(awsParams)
	require.NoError(t, err)
	assert.IsType(t, &AWSIAMTokenProvider{}, p)
	assert.Contains(t, p.String(), "db.internal:3306")

	sp := baseParams()
	sp.AuthMethod = sqlpool.AuthMethodAzureEntraID
	sp.AzureTenantID = "00000000-0000-0000-0000-000000000000"
	sp.AzureClientID = "client"
	sp.AzureClientSecret = "secret"
	p, err = defaultTokenProvider(sp)
	require.NoError(t, err)
	assert.IsType(t, &AzureServicePrincipalProvider{}, p)

	_, err = defaultTokenProvider(baseParams())
	assert.ErrorIs(t, err, sqlpool.ErrUnsupportedAuthMethod)
}
