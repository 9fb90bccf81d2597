package db

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/vvka-141/sqlpool/pkg/sqlpool"
)

// TokenProviderFunc builds the TokenProvider for a parameter set.
type TokenProviderFunc func(params sqlpool.ConnectionParameters) (TokenProvider, error)

// defaultTokenProvider picks the AWS or Azure provider for token-based auth methods.
// If explicit Azure credentials (tenant, client, secret) are provided, Service
// Principal auth is used; otherwise the DefaultAzureCredential chain.
func defaultTokenProvider(params sqlpool.ConnectionParameters) (TokenProvider, error) {
	switch params.AuthMethod {
	case sqlpool.AuthMethodAWSIAM:
		endpoint := net.JoinHostPort(params.Host, strconv.Itoa(params.Port))
		return NewAWSIAMTokenProvider(endpoint, params.AWSRegion, params.Username)
	case sqlpool.AuthMethodAzureEntraID:
		if params.AzureTenantID != "" && params.AzureClientID != "" && params.AzureClientSecret != "" {
			return NewAzureServicePrincipalProvider(params.AzureTenantID, params.AzureClientID, params.AzureClientSecret)
		}
		return NewAzureDefaultCredentialProvider()
	}
	return nil, fmt.Errorf("auth method %s does not use tokens: %w", params.AuthMethod, sqlpool.ErrUnsupportedAuthMethod)
}

// credentialResolver turns cloud auth settings into concrete credentials:
// a fresh token as password, or a Cloud SQL dial function.
type credentialResolver struct {
	newProvider TokenProviderFunc
	dialer      *lazyDialer
	logger      sqlpool.Logger

	mu        sync.Mutex
	providers map[sqlpool.Fingerprint]TokenProvider
}

func newCredentialResolver(newProvider TokenProviderFunc, newDialer func(context.Context) (Dialer, error), logger sqlpool.Logger) *credentialResolver {
	return &credentialResolver{
		newProvider: newProvider,
		dialer:      &lazyDialer{newFn: newDialer},
		logger:      logger,
		providers:   make(map[sqlpool.Fingerprint]TokenProvider),
	}
}

// resolve returns params ready for Driver.Open. Tokens are fetched on every
// call since they expire after minutes; providers are cached per target.
func (r *credentialResolver) resolve(ctx context.Context, params sqlpool.ConnectionParameters) (sqlpool.ConnectionParameters, error) {
	switch params.AuthMethod {
	case sqlpool.AuthMethodAWSIAM, sqlpool.AuthMethodAzureEntraID:
		provider, err := r.provider(params)
		if err != nil {
			return params, err
		}
		token, expiresOn, err := provider.GetToken(ctx)
		if err != nil {
			return params, fmt.Errorf("failed to acquire token from %s: %w", provider, err)
		}
		if left := time.Until(expiresOn); left < tokenExpiryWarning {
			r.logger.Info("Warning: %s token expires in %v", provider, left.Round(time.Second))
		}
		r.logger.Verbose("Acquired token from %s", provider)
		return params.WithPassword(token), nil

	case sqlpool.AuthMethodGoogleIAM:
		if params.Dial != nil {
			return params, nil
		}
		dialer, err := r.dialer.get(ctx)
		if err != nil {
			return params, err
		}
		instance := params.GoogleInstance
		return params.WithDial(func(ctx context.Context, _, _ string) (net.Conn, error) {
			return dialer.Dial(ctx, instance)
		}), nil
	}
	return params, nil
}

func (r *credentialResolver) provider(params sqlpool.ConnectionParameters) (TokenProvider, error) {
	fp := params.Fingerprint()

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.providers[fp]; ok {
		return p, nil
	}
	p, err := r.newProvider(params)
	if err != nil {
		return nil, err
	}
	r.providers[fp] = p
	return p, nil
}

func (r *credentialResolver) Close() error {
	return r.dialer.Close()
}
