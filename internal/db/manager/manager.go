package manager

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/vvka-141/sqlpool/internal/db"
	"github.com/vvka-141/sqlpool/internal/services"
	"github.com/vvka-141/sqlpool/pkg/sqlpool"
)

// dialect holds the driver-specific SQL for database lifecycle operations.
type dialect struct {
	quote       func(name string) string
	existsQuery string
	// sessionsQuery lists other sessions attached to a database; each row's
	// first column is passed to killStatement.
	sessionsQuery string
	killStatement func(id any) string
	// terminateQuery ends every other session in one statement, when the server supports it.
	terminateQuery string
}

var dialects = map[string]dialect{
	db.DriverMySQL: {
		quote: func(name string) string {
			return "`" + strings.ReplaceAll(name, "`", "``") + "`"
		},
		existsQuery:   "SELECT SCHEMA_NAME FROM information_schema.SCHEMATA WHERE SCHEMA_NAME = ?",
		sessionsQuery: "SELECT ID FROM information_schema.PROCESSLIST WHERE DB = ? AND ID <> CONNECTION_ID()",
		killStatement: func(id any) string { return fmt.Sprintf("KILL CONNECTION %v", id) },
	},
	db.DriverPostgres: {
		quote: func(name string) string {
			return pgx.Identifier{name}.Sanitize()
		},
		existsQuery: "SELECT 1 FROM pg_database WHERE datname = $1",
		terminateQuery: `
			SELECT pg_terminate_backend(pid)
			FROM pg_stat_activity
			WHERE datname = $1 AND pid <> pg_backend_pid()
		`,
	},
}

// Manager creates and drops databases through pooled administrative
// connections. After a destructive operation it closes every pooled
// connection to the affected database.
type Manager struct {
	svc     *services.ConnectionService
	dialect dialect
	logger  sqlpool.Logger
}

// New creates a manager for the given driver ("mysql" or "postgres").
func New(svc *services.ConnectionService, driver string, logger sqlpool.Logger) (*Manager, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("database management is not supported for driver %q: %w", driver, sqlpool.ErrInvalidConfig)
	}
	return &Manager{svc: svc, dialect: d, logger: logger}, nil
}

// Exists checks if a database exists. admin is the connection used to ask.
func (m *Manager) Exists(ctx context.Context, admin sqlpool.ConnectionParameters, dbName string) (bool, error) {
	var exists bool
	err := m.withCursor(ctx, admin, func(ctx context.Context, h *services.Handle) error {
		res, err := h.Cursor().Query(ctx, m.dialect.existsQuery, dbName)
		if err != nil {
			return err
		}
		exists = len(res.Rows) > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to check database existence: %w", err)
	}
	return exists, nil
}

// Create creates a new database.
func (m *Manager) Create(ctx context.Context, admin sqlpool.ConnectionParameters, dbName string) error {
	err := m.withCursor(ctx, admin, func(ctx context.Context, h *services.Handle) error {
		_, err := h.Cursor().Execute(ctx, "CREATE DATABASE "+m.dialect.quote(dbName))
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to create database %q: %w", dbName, err)
	}
	m.logger.Info("Created database %s", dbName)
	return nil
}

// Drop terminates other sessions on dbName, drops it if it exists and
// closes the pooled connections that pointed at it.
func (m *Manager) Drop(ctx context.Context, admin sqlpool.ConnectionParameters, dbName string) error {
	err := m.withCursor(ctx, admin, func(ctx context.Context, h *services.Handle) error {
		if err := m.terminate(ctx, h, dbName); err != nil {
			return fmt.Errorf("failed to terminate connections: %w", err)
		}
		_, err := h.Cursor().Execute(ctx, "DROP DATABASE IF EXISTS "+m.dialect.quote(dbName))
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to drop database %q: %w", dbName, err)
	}
	m.logger.Info("Dropped database %s", dbName)

	return m.closePooled(ctx, admin, dbName)
}

// Recreate drops dbName if present and creates it empty.
func (m *Manager) Recreate(ctx context.Context, admin sqlpool.ConnectionParameters, dbName string) error {
	if err := m.Drop(ctx, admin, dbName); err != nil {
		return err
	}
	return m.Create(ctx, admin, dbName)
}

// TerminateConnections ends every other session attached to dbName.
func (m *Manager) TerminateConnections(ctx context.Context, admin sqlpool.ConnectionParameters, dbName string) error {
	err := m.withCursor(ctx, admin, func(ctx context.Context, h *services.Handle) error {
		return m.terminate(ctx, h, dbName)
	})
	if err != nil {
		return fmt.Errorf("failed to terminate connections to database %q: %w", dbName, err)
	}
	return nil
}

func (m *Manager) terminate(ctx context.Context, h *services.Handle, dbName string) error {
	if m.dialect.terminateQuery != "" {
		_, err := h.Cursor().Query(ctx, m.dialect.terminateQuery, dbName)
		return err
	}

	res, err := h.Cursor().Query(ctx, m.dialect.sessionsQuery, dbName)
	if err != nil {
		return err
	}
	for _, row := range res.Rows {
		if len(row) == 0 {
			continue
		}
		// A session may end on its own between listing and killing.
		if _, err := h.Cursor().Execute(ctx, m.dialect.killStatement(row[0])); err != nil {
			m.logger.Verbose("Kill session %v: %v", row[0], err)
		}
	}
	return nil
}

// closePooled closes the pool's connections to dbName, which are stale now.
func (m *Manager) closePooled(ctx context.Context, admin sqlpool.ConnectionParameters, dbName string) error {
	target := admin
	target.Database = dbName
	fp := target.Fingerprint()
	if err := m.svc.Pool().CloseAll(ctx, &fp); err != nil {
		return fmt.Errorf("failed to close pooled connections to %q: %w", dbName, err)
	}
	return nil
}

func (m *Manager) withCursor(ctx context.Context, admin sqlpool.ConnectionParameters, fn func(context.Context, *services.Handle) error) error {
	h, err := m.svc.GetConnection(ctx, admin)
	if err != nil {
		return err
	}
	defer m.svc.ReleaseConnection(h)
	return fn(ctx, h)
}
