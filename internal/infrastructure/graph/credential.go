package graph

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/cloud"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"

	"github.com/turtacn/compliance-advisor/pkg/errors"
)

// Credentials identify the app registration used to read one tenant.
type Credentials struct {
	TenantID string
	AppID    string
	Secret   string
}

// TokenProvider acquires a bearer token for a tenant.
type TokenProvider interface {
	Token(ctx context.Context, creds Credentials, scope string) (string, error)
}

// ClientSecretTokenProvider uses the client credentials flow against Entra ID.
type ClientSecretTokenProvider struct {
	cloud cloud.Configuration
}

// NewClientSecretTokenProvider returns a provider for the named national cloud.
func NewClientSecretTokenProvider(cloudName string) *ClientSecretTokenProvider {
	cfg := cloud.AzurePublic
	if IsUSGov(cloudName) {
		cfg = cloud.AzureGovernment
	}
	return &ClientSecretTokenProvider{cloud: cfg}
}

func (p *ClientSecretTokenProvider) Token(ctx context.Context, creds Credentials, scope string) (string, error) {
	cred, err := azidentity.NewClientSecretCredential(creds.TenantID, creds.AppID, creds.Secret,
		&azidentity.ClientSecretCredentialOptions{
			ClientOptions: azcore.ClientOptions{Cloud: p.cloud},
		})
	if err != nil {
		return "", errors.Validation("invalid credentials for tenant %s: %v", creds.TenantID, err)
	}
	tok, err := cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{scope}})
	if err != nil {
		return "", classifyAuthError(creds.TenantID, err)
	}
	return tok.Token, nil
}

// classifyAuthError treats rejected credentials as permanent and everything
// else (network, throttling, outages) as transient.
func classifyAuthError(tenantID string, err error) error {
	var authErr *azidentity.AuthenticationFailedError
	if stderrors.As(err, &authErr) && authErr.RawResponse != nil {
		status := authErr.RawResponse.StatusCode
		if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
			return errors.Upstream("token request for tenant %s rejected", tenantID).
				WithCause(err).WithMetadata("status", status)
		}
	}
	return errors.TransientUpstream("token request for tenant %s failed", tenantID).WithCause(err)
}
