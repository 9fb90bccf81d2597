package postgres

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vvka-141/sqlpool/internal/retry"
	"github.com/vvka-141/sqlpool/pkg/sqlpool"
)

// PostgreSQL error codes consulted when opening connections.
// See: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	// Class 28 - Invalid Authorization Specification
	pgCodeInvalidAuthorizationSpecification = "28000"
	pgCodeInvalidPassword                   = "28P01"

	// Class 53 - Insufficient Resources
	pgCodeTooManyConnections = "53300"

	// Class 57 - Operator Intervention
	pgCodeAdminShutdown    = "57P01"
	pgCodeCrashShutdown    = "57P02"
	pgCodeCannotConnectNow = "57P03"
)

// codeSet matches SQLSTATEs exactly, or by class when the entry ends in "*".
type codeSet struct {
	exact    map[string]struct{}
	prefixes []string
}

func parseCodeSet(codes []string) (codeSet, error) {
	set := codeSet{exact: make(map[string]struct{}, len(codes))}
	for _, raw := range codes {
		code := strings.ToUpper(strings.TrimSpace(raw))
		if prefix, ok := strings.CutSuffix(code, "*"); ok {
			if prefix == "" || len(prefix) >= 5 {
				return codeSet{}, fmt.Errorf("SQLSTATE class %q: %w", raw, sqlpool.ErrInvalidConfig)
			}
			set.prefixes = append(set.prefixes, prefix)
			continue
		}
		if len(code) != 5 {
			return codeSet{}, fmt.Errorf("SQLSTATE %q must have 5 characters: %w", raw, sqlpool.ErrInvalidConfig)
		}
		set.exact[code] = struct{}{}
	}
	return set, nil
}

func (s codeSet) match(code string) bool {
	if _, ok := s.exact[code]; ok {
		return true
	}
	for _, p := range s.prefixes {
		if strings.HasPrefix(code, p) {
			return true
		}
	}
	return false
}

// Classifier maps pgx errors onto sqlpool.ErrorKind.
type Classifier struct {
	lost      codeSet
	integrity codeSet
}

var _ sqlpool.Classifier = (*Classifier)(nil)

// NewClassifier builds a classifier from SQLSTATE sets. Empty sets fall back
// to the package defaults.
func NewClassifier(lostCodes, integrityCodes []string) (*Classifier, error) {
	if len(lostCodes) == 0 {
		lostCodes = sqlpool.DefaultPostgresConnectionLostCodes
	}
	if len(integrityCodes) == 0 {
		integrityCodes = sqlpool.DefaultPostgresIntegrityCodes
	}

	lost, err := parseCodeSet(lostCodes)
	if err != nil {
		return nil, fmt.Errorf("connection_lost_codes: %w", err)
	}
	integrity, err := parseCodeSet(integrityCodes)
	if err != nil {
		return nil, fmt.Errorf("integrity_codes: %w", err)
	}
	return &Classifier{lost: lost, integrity: integrity}, nil
}

// Classify categorises a statement error. Integrity wins when a code is in both sets.
func (c *Classifier) Classify(err error) sqlpool.ErrorKind {
	if err == nil {
		return sqlpool.KindOther
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case c.integrity.match(pgErr.Code):
			return sqlpool.KindIntegrity
		case c.lost.match(pgErr.Code):
			return sqlpool.KindConnectionLost
		}
		return sqlpool.KindOther
	}

	if isClosedConn(err) {
		return sqlpool.KindConnectionLost
	}
	return sqlpool.KindOther
}

// IsAuthFailure reports whether the server rejected the credentials.
func (c *Classifier) IsAuthFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgCodeInvalidPassword || pgErr.Code == pgCodeInvalidAuthorizationSpecification
	}
	return false
}

// IsTransientOpen reports whether an open failure may clear up on its own.
func (c *Classifier) IsTransientOpen(err error) bool {
	if err == nil || c.IsAuthFailure(err) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 - Connection Exception
		if strings.HasPrefix(pgErr.Code, "08") {
			return true
		}
		switch pgErr.Code {
		case pgCodeTooManyConnections, pgCodeAdminShutdown, pgCodeCrashShutdown, pgCodeCannotConnectNow:
			return true
		}
		return false
	}

	return retry.IsNetworkError(err) || retry.IsConnectionMessage(err)
}

func isClosedConn(err error) bool {
	if errors.Is(err, net.ErrClosed) || retry.IsNetworkError(err) {
		return true
	}
	// pgx reports use of a dead *pgx.Conn with this text only.
	return strings.Contains(err.Error(), "conn closed")
}
