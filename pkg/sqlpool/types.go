package sqlpool

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// DialFunc opens the transport for a raw connection. Drivers use it instead of
// their default TCP/unix dialer when set (e.g. Cloud SQL connector).
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// ConnectionParameters identifies one logical database target.
// Values are treated as immutable once handed to the pool: use the With*
// helpers to derive modified copies.
type ConnectionParameters struct {
	Host     string
	Port     int
	Socket   string // Unix socket path, mutually exclusive with Host/Port
	Username string
	Password string
	Database string
	Charset  string
	TLS      TLSOptions

	// Options are driver-specific settings passed through verbatim
	// (e.g. "parseTime": true for MySQL, "application_name" for PostgreSQL).
	Options map[string]any

	ConnectTimeout time.Duration

	// AuthMethod indicates the authentication mechanism to use
	AuthMethod AuthMethod

	// Cloud authentication parameters, see AuthMethod.
	AWSRegion         string
	GoogleInstance    string
	AzureTenantID     string
	AzureClientID     string
	AzureClientSecret string

	// Dial overrides the transport. Not part of the fingerprint.
	Dial DialFunc
}

// TLSOptions configures transport encryption.
type TLSOptions struct {
	// Mode is driver-flavoured: "disable", "prefer", "require", "verify-ca",
	// "verify-full" (MySQL also accepts "true", "false", "skip-verify", "preferred").
	Mode       string
	CAFile     string
	CertFile   string
	KeyFile    string
	ServerName string
}

// Enabled reports whether TLS was asked for in any form.
func (t TLSOptions) Enabled() bool {
	switch strings.ToLower(t.Mode) {
	case "", "disable", "false":
		return false
	}
	return true
}

// Normalize returns a copy with a Host that looks like a socket path moved to Socket.
func (p ConnectionParameters) Normalize() ConnectionParameters {
	if p.Socket == "" && strings.HasPrefix(p.Host, "/") {
		p.Socket = p.Host
		p.Host = ""
		p.Port = 0
	}
	return p
}

// WithPassword returns a copy with the password replaced.
func (p ConnectionParameters) WithPassword(password string) ConnectionParameters {
	p.Password = password
	return p
}

// WithDial returns a copy that dials through fn.
func (p ConnectionParameters) WithDial(fn DialFunc) ConnectionParameters {
	p.Dial = fn
	return p
}

// Address returns host:port, or the socket path for unix connections.
func (p ConnectionParameters) Address() string {
	if p.Socket != "" {
		return p.Socket
	}
	return net.JoinHostPort(p.Host, fmt.Sprintf("%d", p.Port))
}

// Network returns "unix" or "tcp".
func (p ConnectionParameters) Network() string {
	if p.Socket != "" {
		return "unix"
	}
	return "tcp"
}

// Validate checks that the parameter set is internally consistent.
// It returns a multi-error if multiple validation failures occur.
func (p ConnectionParameters) Validate() error {
	var errs []error

	if p.Socket != "" && p.Host != "" {
		errs = append(errs, fmt.Errorf("socket and host are mutually exclusive: %w", ErrInvalidConfig))
	}

	if p.Socket == "" && p.Host == "" && p.AuthMethod != AuthMethodGoogleIAM {
		errs = append(errs, fmt.Errorf("host or socket is required: %w", ErrInvalidConfig))
	}

	if p.Port < 0 || p.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range: %w", p.Port, ErrInvalidConfig))
	}

	if p.ConnectTimeout < 0 {
		errs = append(errs, fmt.Errorf("connect timeout cannot be negative: %w", ErrInvalidConfig))
	}

	if !p.AuthMethod.IsValid() {
		errs = append(errs, fmt.Errorf("auth method %v: %w", p.AuthMethod, ErrUnsupportedAuthMethod))
	}

	switch p.AuthMethod {
	case AuthMethodAWSIAM:
		if p.AWSRegion == "" {
			errs = append(errs, fmt.Errorf("AWS IAM auth requires a region: %w", ErrInvalidConfig))
		}
	case AuthMethodGoogleIAM:
		if p.GoogleInstance == "" {
			errs = append(errs, fmt.Errorf("Google Cloud SQL IAM auth requires an instance (project:region:instance): %w", ErrInvalidConfig))
		}
	}

	if p.AuthMethod != AuthMethodStandard && p.AuthMethod != AuthMethodCertificate && p.Username == "" {
		errs = append(errs, fmt.Errorf("%s auth requires a username: %w", p.AuthMethod, ErrInvalidConfig))
	}

	return errors.Join(errs...)
}

// AuthMethod represents the type of authentication to use.
type AuthMethod int

const (
	AuthMethodStandard     AuthMethod = iota // Username/Password
	AuthMethodCertificate                    // mTLS
	AuthMethodAWSIAM                         // AWS IAM Database Authentication
	AuthMethodGoogleIAM                      // Google Cloud SQL IAM
	AuthMethodAzureEntraID                   // Azure Active Directory (Entra ID)
)

// String returns a human-readable string representation of the AuthMethod.
func (a AuthMethod) String() string {
	switch a {
	case AuthMethodStandard:
		return "Standard"
	case AuthMethodCertificate:
		return "Certificate"
	case AuthMethodAWSIAM:
		return "AWS IAM"
	case AuthMethodGoogleIAM:
		return "Google IAM"
	case AuthMethodAzureEntraID:
		return "Azure Entra ID"
	default:
		return fmt.Sprintf("Unknown(%d)", a)
	}
}

// IsValid returns true if the AuthMethod is a valid, defined value.
func (a AuthMethod) IsValid() bool {
	return a >= AuthMethodStandard && a <= AuthMethodAzureEntraID
}

// ParseAuthMethod maps configuration spellings to an AuthMethod.
func ParseAuthMethod(s string) (AuthMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard", "password":
		return AuthMethodStandard, nil
	case "certificate", "cert", "mtls":
		return AuthMethodCertificate, nil
	case "aws", "aws-iam", "aws_iam":
		return AuthMethodAWSIAM, nil
	case "google", "google-iam", "google_iam", "gcp":
		return AuthMethodGoogleIAM, nil
	case "azure", "azure-entra-id", "azure_entra_id", "entra":
		return AuthMethodAzureEntraID, nil
	}
	return AuthMethodStandard, fmt.Errorf("auth method %q: %w", s, ErrUnsupportedAuthMethod)
}
