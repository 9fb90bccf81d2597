package cli

import (
	"strings"
	"testing"

	"github.com/vvka-141/sqlpool/pkg/sqlpool"
)

func TestRequireStatement(t *testing.T) {
	err := RequireStatement(execCmd, nil)
	if err == nil {
		t.Fatal("Expected error for missing statement")
	}
	if !strings.Contains(err.Error(), "<statement>") {
		t.Errorf("Expected error to name the missing argument, got: %v", err)
	}
	if code := sqlpool.ExitCodeForError(err); code != sqlpool.ExitUsageError {
		t.Errorf("Expected exit code %d (usage), got %d", sqlpool.ExitUsageError, code)
	}

	if err := RequireStatement(execCmd, []string{"SELECT ?", "1", "2"}); err != nil {
		t.Errorf("Expected bind values to be accepted, got: %v", err)
	}
}

func TestRequireDatabaseName(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"missing", nil, "missing required argument: <database>"},
		{"too many", []string{"a", "b"}, "accepts 1 arg(s), received 2"},
		{"empty", []string{""}, "database name is empty"},
		{"valid", []string{"app"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RequireDatabaseName(databaseCreateCmd, tt.args)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
			if code := sqlpool.ExitCodeForError(err); code != sqlpool.ExitUsageError {
				t.Errorf("expected usage exit code, got %d", code)
			}
		})
	}
}
