//go:build conntest

package conntest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vvka-141/sqlpool/internal/db/manager"
	"github.com/vvka-141/sqlpool/internal/logging"
	"github.com/vvka-141/sqlpool/pkg/sqlpool"
)

func newManager(t *testing.T, s *stack) *manager.Manager {
	t.Helper()
	m, err := manager.New(s.service, s.driver.Name(), logging.NewNullLogger())
	require.NoError(t, err)
	return m
}

// withDatabase returns params pointing at a fresh database that is dropped
// when the test ends.
func withDatabase(t *testing.T, s *stack, admin sqlpool.ConnectionParameters, name string) sqlpool.ConnectionParameters {
	t.Helper()
	m := newManager(t, s)
	require.NoError(t, m.Recreate(context.Background(), admin, name))

	t.Cleanup(func() {
		if err := m.Drop(context.Background(), admin, name); err != nil {
			t.Logf("cleanup: failed to drop %s: %v", name, err)
		}
	})

	p := admin
	p.Database = name
	return p
}
