package sqlpool

import "time"

// Exit codes for semantic error classification.
// These follow Unix/GNU conventions:
//   - 0: Success
//   - 1: General error
//   - 2: CLI usage error (misuse of command line)
//   - 3+: Application-specific errors
const (
	ExitSuccess         = 0  // Command completed successfully
	ExitGeneralError    = 1  // Unknown or unclassified error
	ExitUsageError      = 2  // CLI usage error (missing args, invalid flags)
	ExitPanic           = 3  // Internal panic (unexpected crash)
	ExitConfigError     = 10 // Invalid configuration or parameters
	ExitConnectionError = 11 // Failed to connect, or connection lost for good
	ExitAuthError       = 12 // Credentials rejected
	ExitExecutionFailed = 13 // Statement failed
	ExitIntegrityError  = 14 // Constraint violation
	ExitPoolExhausted   = 15 // No pool capacity left
	ExitApprovalDenied  = 16 // User declined a destructive operation
)

const (
	// DefaultMaxPoolSize is the per-fingerprint connection limit.
	DefaultMaxPoolSize = 5

	// DefaultMaxRetries is the default number of open attempts, the first one included.
	DefaultMaxRetries = 3

	// DefaultBaseBackoff is the delay before the first retry; it doubles per attempt.
	DefaultBaseBackoff = 1 * time.Second

	// DefaultHealthCheckTimeout bounds the checkout round-trip.
	DefaultHealthCheckTimeout = 5 * time.Second

	// DefaultHealthCheckStatement is the no-op statement used to validate idle connections.
	DefaultHealthCheckStatement = "SELECT 1"

	// DefaultConnectTimeout is applied when the parameters carry none.
	DefaultConnectTimeout = 10 * time.Second

	// DefaultMySQLPort and DefaultPostgresPort are used when no port is given.
	DefaultMySQLPort    = 3306
	DefaultPostgresPort = 5432

	// DefaultMySQLCharset is used when no charset is given.
	DefaultMySQLCharset = "utf8mb4"

	// DefaultForceApprovalCountdown is how long --force waits before a destructive operation.
	DefaultForceApprovalCountdown = 5 * time.Second

	// ConfigFileName is the project configuration file looked up by the CLI.
	ConfigFileName = "sqlpool.yaml"
)

// DefaultMySQLConnectionLostCodes are the MySQL codes treated as a dead
// connection: lock wait timeout, server has gone away, lost connection during query.
var DefaultMySQLConnectionLostCodes = []string{"1205", "2006", "2013"}

// DefaultMySQLIntegrityCodes are the MySQL codes for constraint violations that
// the server reports as operational errors.
var DefaultMySQLIntegrityCodes = []string{"1048", "1062", "1169", "1216", "1217", "1451", "1452", "1557", "1586", "3819", "4025"}

// DefaultPostgresConnectionLostCodes are SQLSTATEs that mean the session is gone.
var DefaultPostgresConnectionLostCodes = []string{"08000", "08003", "08006", "57P01", "57P02", "55P03"}

// DefaultPostgresIntegrityCodes covers class 23 (integrity constraint violation).
// A code ending in "*" matches the whole class.
var DefaultPostgresIntegrityCodes = []string{"23*"}
