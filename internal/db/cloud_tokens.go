package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/rds/auth"
)

// TokenProvider issues the short-lived password used by token auth methods.
// String must never reveal secrets; it ends up in logs.
type TokenProvider interface {
	GetToken(ctx context.Context) (token string, expiresOn time.Time, err error)
	String() string
}

// AzureDatabaseScope is accepted by Azure Database flexible servers for both
// MySQL and PostgreSQL.
const AzureDatabaseScope = "https://ossrdbms-aad.database.windows.net/.default"

const (
	// rdsTokenLifetime is fixed by AWS and not reported back with the token.
	rdsTokenLifetime = 15 * time.Minute

	// tokenExpiryWarning flags tokens that arrive close to expiry.
	tokenExpiryWarning = 5 * time.Minute
)

// AWSIAMTokenProvider signs RDS and Aurora connect tokens with the default AWS
// credential chain.
type AWSIAMTokenProvider struct {
	endpoint, region, username string

	loadConfig func(ctx context.Context, region string) (aws.Config, error)
}

// NewAWSIAMTokenProvider validates the target. endpoint is host:port exactly
// as the client will dial it, since the signature covers it.
func NewAWSIAMTokenProvider(endpoint, region, username string) (*AWSIAMTokenProvider, error) {
	var missing []error
	if endpoint == "" {
		missing = append(missing, errors.New("endpoint (host:port)"))
	}
	if region == "" {
		missing = append(missing, errors.New("region (--aws-region or $AWS_REGION)"))
	}
	if username == "" {
		missing = append(missing, errors.New("database username"))
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("AWS IAM auth is missing %w", errors.Join(missing...))
	}

	return &AWSIAMTokenProvider{
		endpoint: endpoint,
		region:   region,
		username: username,
		loadConfig: func(ctx context.Context, region string) (aws.Config, error) {
			return config.LoadDefaultConfig(ctx, config.WithRegion(region))
		},
	}, nil
}

func (p *AWSIAMTokenProvider) GetToken(ctx context.Context) (string, time.Time, error) {
	cfg, err := p.loadConfig(ctx, p.region)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	issuedAt := time.Now()
	token, err := auth.BuildAuthToken(ctx, p.endpoint, p.region, p.username, cfg.Credentials)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign RDS token for %s: %w", p.username, err)
	}
	return token, issuedAt.Add(rdsTokenLifetime), nil
}

func (p *AWSIAMTokenProvider) String() string {
	return fmt.Sprintf("AWSIAM(%s@%s, %s)", p.username, p.endpoint, p.region)
}

// AzureServicePrincipalProvider authenticates as an app registration with a
// client secret.
type AzureServicePrincipalProvider struct {
	tenantID, clientID string
	credential         azcore.TokenCredential
}

func NewAzureServicePrincipalProvider(tenantID, clientID, clientSecret string) (*AzureServicePrincipalProvider, error) {
	if tenantID == "" || clientID == "" || clientSecret == "" {
		return nil, errors.New("azure service principal needs tenant id, client id and client secret")
	}
	cred, err := azidentity.NewClientSecretCredential(tenantID, clientID, clientSecret, nil)
	if err != nil {
		return nil, fmt.Errorf("azure client secret credential: %w", err)
	}
	return &AzureServicePrincipalProvider{tenantID: tenantID, clientID: clientID, credential: cred}, nil
}

func (p *AzureServicePrincipalProvider) GetToken(ctx context.Context) (string, time.Time, error) {
	return databaseToken(ctx, p.credential)
}

func (p *AzureServicePrincipalProvider) String() string {
	return fmt.Sprintf("AzureServicePrincipal(tenant=%s, client=%s)", p.tenantID, p.clientID)
}

// AzureDefaultCredentialProvider defers to azidentity's default chain:
// environment, workload identity, managed identity, then developer CLIs.
type AzureDefaultCredentialProvider struct {
	credential azcore.TokenCredential
}

func NewAzureDefaultCredentialProvider() (*AzureDefaultCredentialProvider, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("azure default credential: %w", err)
	}
	return &AzureDefaultCredentialProvider{credential: cred}, nil
}

func (p *AzureDefaultCredentialProvider) GetToken(ctx context.Context) (string, time.Time, error) {
	return databaseToken(ctx, p.credential)
}

func (p *AzureDefaultCredentialProvider) String() string { return "AzureDefaultCredential" }

func databaseToken(ctx context.Context, cred azcore.TokenCredential) (string, time.Time, error) {
	tok, err := cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{AzureDatabaseScope}})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("azure token acquisition failed: %w", err)
	}
	return tok.Token, tok.ExpiresOn, nil
}
