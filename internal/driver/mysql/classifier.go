package mysql

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
	"strings"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/vvka-141/sqlpool/internal/retry"
	"github.com/vvka-141/sqlpool/pkg/sqlpool"
)

// Server error numbers for rejected credentials.
// See: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	erDBAccessDenied        = 1044
	erAccessDenied          = 1045
	erNotSupportedAuthMode  = 1251
	erMustChangePassword    = 1820
	erMustChangePasswordLog = 1862
	erAccessDeniedNoPass    = 1698
)

// Server error numbers worth another connect attempt.
const (
	erConCount         = 1040 // Too many connections
	erServerShutdown   = 1053
	erTooManyUserConns = 1203
)

// Classifier maps go-sql-driver/mysql errors onto sqlpool.ErrorKind.
type Classifier struct {
	lost      map[uint16]struct{}
	integrity map[uint16]struct{}
}

var _ sqlpool.Classifier = (*Classifier)(nil)

// NewClassifier builds a classifier from numeric error code sets. Empty sets
// fall back to the package defaults.
func NewClassifier(lostCodes, integrityCodes []string) (*Classifier, error) {
	if len(lostCodes) == 0 {
		lostCodes = sqlpool.DefaultMySQLConnectionLostCodes
	}
	if len(integrityCodes) == 0 {
		integrityCodes = sqlpool.DefaultMySQLIntegrityCodes
	}

	lost, err := parseCodes(lostCodes)
	if err != nil {
		return nil, fmt.Errorf("connection_lost_codes: %w", err)
	}
	integrity, err := parseCodes(integrityCodes)
	if err != nil {
		return nil, fmt.Errorf("integrity_codes: %w", err)
	}

	return &Classifier{lost: lost, integrity: integrity}, nil
}

func parseCodes(codes []string) (map[uint16]struct{}, error) {
	set := make(map[uint16]struct{}, len(codes))
	for _, c := range codes {
		n, err := strconv.ParseUint(strings.TrimSpace(c), 10, 16)
		if err != nil {
			return nil, fmt.Errorf("mysql error code %q is not a number: %w", c, sqlpool.ErrInvalidConfig)
		}
		set[uint16(n)] = struct{}{}
	}
	return set, nil
}

// Classify categorises a statement error. A code present in both sets counts
// as an integrity violation so that it is never retried.
func (c *Classifier) Classify(err error) sqlpool.ErrorKind {
	if err == nil {
		return sqlpool.KindOther
	}

	var myErr *gomysql.MySQLError
	if errors.As(err, &myErr) {
		if _, ok := c.integrity[myErr.Number]; ok {
			return sqlpool.KindIntegrity
		}
		if _, ok := c.lost[myErr.Number]; ok {
			return sqlpool.KindConnectionLost
		}
		return sqlpool.KindOther
	}

	if isBrokenConn(err) {
		return sqlpool.KindConnectionLost
	}
	return sqlpool.KindOther
}

// IsAuthFailure reports whether the server or the handshake rejected the credentials.
func (c *Classifier) IsAuthFailure(err error) bool {
	if err == nil {
		return false
	}

	var myErr *gomysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case erDBAccessDenied, erAccessDenied, erNotSupportedAuthMode,
			erMustChangePassword, erMustChangePasswordLog, erAccessDeniedNoPass:
			return true
		}
		return false
	}

	return errors.Is(err, gomysql.ErrCleartextPassword) ||
		errors.Is(err, gomysql.ErrNativePassword) ||
		errors.Is(err, gomysql.ErrOldPassword) ||
		errors.Is(err, gomysql.ErrUnknownPlugin)
}

// IsTransientOpen reports whether an open failure may clear up on its own.
func (c *Classifier) IsTransientOpen(err error) bool {
	if err == nil || c.IsAuthFailure(err) {
		return false
	}

	var myErr *gomysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case erConCount, erServerShutdown, erTooManyUserConns:
			return true
		}
		return false
	}

	return isBrokenConn(err) || retry.IsConnectionMessage(err)
}

func isBrokenConn(err error) bool {
	return errors.Is(err, gomysql.ErrInvalidConn) ||
		errors.Is(err, gomysql.ErrPktSync) ||
		errors.Is(err, gomysql.ErrPktSyncMul) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		retry.IsNetworkError(err)
}
