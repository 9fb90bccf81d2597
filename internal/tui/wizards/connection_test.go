package wizards

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vvka-141/sqlpool/internal/db"
	"github.com/vvka-141/sqlpool/pkg/sqlpool"
)

type mockTester struct {
	info       string
	err        error
	called     bool
	gotDriver  string
	gotParams  sqlpool.ConnectionParameters
	gotOptions sqlpool.PoolOptions
}

func (m *mockTester) TestConnection(_ context.Context, driver string, params sqlpool.ConnectionParameters, opts sqlpool.PoolOptions) (string, error) {
	m.called = true
	m.gotDriver = driver
	m.gotParams = params
	m.gotOptions = opts
	return m.info, m.err
}

func drainCmds(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if msg == nil {
		return nil
	}
	if batch, ok := msg.(tea.BatchMsg); ok {
		var msgs []tea.Msg
		for _, c := range batch {
			msgs = append(msgs, drainCmds(c)...)
		}
		return msgs
	}
	return []tea.Msg{msg}
}

func findTestResult(msgs []tea.Msg) (testResultMsg, bool) {
	for _, msg := range msgs {
		if m, ok := msg.(testResultMsg); ok {
			return m, true
		}
	}
	return testResultMsg{}, false
}

func keyMsg(k string) tea.KeyMsg {
	switch k {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "shift+tab":
		return tea.KeyMsg{Type: tea.KeyShiftTab}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
}

func update(t *testing.T, m tea.Model, msg tea.Msg) (tea.Model, tea.Cmd) {
	t.Helper()
	return m.Update(msg)
}

func press(t *testing.T, m tea.Model, keys ...string) tea.Model {
	t.Helper()
	for _, k := range keys {
		m, _ = update(t, m, keyMsg(k))
	}
	return m
}

func typeString(t *testing.T, m tea.Model, s string) tea.Model {
	t.Helper()
	for _, r := range s {
		m, _ = update(t, m, keyMsg(string(r)))
	}
	return m
}

func isQuitCmd(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func asWizard(t *testing.T, m tea.Model) ConnectionWizard {
	t.Helper()
	w, ok := m.(ConnectionWizard)
	if !ok {
		t.Fatalf("expected ConnectionWizard, got %T", m)
	}
	return w
}

// toServerForm selects the driver and auth method by their list positions.
func toServerForm(t *testing.T, m tea.Model, driverIdx, authIdx int) tea.Model {
	t.Helper()
	for i := 0; i < driverIdx; i++ {
		m = press(t, m, "down")
	}
	m = press(t, m, "enter")
	for i := 0; i < authIdx; i++ {
		m = press(t, m, "down")
	}
	m = press(t, m, "enter")
	if w := asWizard(t, m); w.step != stepServer {
		t.Fatalf("step = %d, want stepServer (%d)", w.step, stepServer)
	}
	return m
}

func fieldKeys(w ConnectionWizard) []string {
	keys := make([]string, len(w.fields))
	for i, f := range w.fields {
		keys[i] = f.key
	}
	return keys
}

// submitPasswordForm fills database and password on the standard form and
// accepts the pool defaults. The returned command runs the connection test.
func submitPasswordForm(t *testing.T, m tea.Model) (tea.Model, tea.Cmd) {
	t.Helper()
	m = press(t, m, "enter", "enter", "enter")
	m = typeString(t, m, "app")
	m = press(t, m, "enter")
	m = typeString(t, m, "secret")
	m = press(t, m, "enter")
	if w := asWizard(t, m); w.step != stepPool {
		t.Fatalf("step = %d, want stepPool (%d), validation: %q", w.step, stepPool, w.validationErr)
	}
	m = press(t, m, "enter", "enter")
	return update(t, m, keyMsg("enter"))
}

func TestConnectionWizard_InitialState(t *testing.T) {
	w := NewConnectionWizard(&mockTester{})
	if w.step != stepSelectDriver {
		t.Errorf("initial step = %d, want stepSelectDriver", w.step)
	}
	if w.driverIdx != 0 {
		t.Errorf("initial driverIdx = %d, want 0", w.driverIdx)
	}
	if w.result.Options.MaxPoolSize != sqlpool.DefaultMaxPoolSize {
		t.Errorf("MaxPoolSize = %d, want %d", w.result.Options.MaxPoolSize, sqlpool.DefaultMaxPoolSize)
	}
}

func TestConnectionWizard_NilTesterPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for nil tester")
		}
	}()
	NewConnectionWizard(nil)
}

func TestConnectionWizard_WithDriverPreselects(t *testing.T) {
	w := NewConnectionWizard(&mockTester{}, WithDriver(db.DriverPostgres))
	if driverChoices[w.driverIdx].id != db.DriverPostgres {
		t.Errorf("preselected driver = %q, want postgres", driverChoices[w.driverIdx].id)
	}
}

func TestConnectionWizard_ServerFormDefaults(t *testing.T) {
	tests := []struct {
		driverIdx int
		port      string
		user      string
	}{
		{0, "3306", "root"},
		{1, "5432", "postgres"},
	}

	for _, tt := range tests {
		w := asWizard(t, toServerForm(t, NewConnectionWizard(&mockTester{}), tt.driverIdx, 0))

		if got := w.value(fieldHost); got != "localhost" {
			t.Errorf("host = %q, want localhost", got)
		}
		if got := w.value(fieldPort); got != tt.port {
			t.Errorf("port = %q, want %q", got, tt.port)
		}
		if got := w.value(fieldUsername); got != tt.user {
			t.Errorf("username = %q, want %q", got, tt.user)
		}
		if len(w.fields) != 5 {
			t.Errorf("password form has %d fields, want 5", len(w.fields))
		}
	}
}

func TestConnectionWizard_FieldsFollowAuthMethod(t *testing.T) {
	tests := []struct {
		authIdx int
		want    []string
	}{
		{0, []string{fieldHost, fieldPort, fieldUsername, fieldDatabase, fieldPassword}},
		{1, []string{fieldHost, fieldPort, fieldUsername, fieldDatabase, fieldCAFile, fieldCertFile, fieldKeyFile}},
		{2, []string{fieldHost, fieldPort, fieldUsername, fieldDatabase, fieldRegion}},
		{3, []string{fieldInstance, fieldUsername, fieldDatabase}},
		{4, []string{fieldHost, fieldPort, fieldUsername, fieldDatabase}},
	}

	for _, tt := range tests {
		w := asWizard(t, toServerForm(t, NewConnectionWizard(&mockTester{}), 0, tt.authIdx))
		got := strings.Join(fieldKeys(w), ",")
		if want := strings.Join(tt.want, ","); got != want {
			t.Errorf("%s fields = %s, want %s", authChoices[tt.authIdx].name, got, want)
		}
	}
}

func TestConnectionWizard_PasswordFlowTestsThroughPool(t *testing.T) {
	tester := &mockTester{info: "8.4.2"}
	m := toServerForm(t, NewConnectionWizard(tester, WithPoolOptions(sqlpool.PoolOptions{MaxPoolSize: 12})), 0, 0)

	m, cmd := submitPasswordForm(t, m)
	w := asWizard(t, m)
	if w.step != stepTestConnection || !w.testing {
		t.Fatalf("step = %d testing = %v, want a running test", w.step, w.testing)
	}

	res, ok := findTestResult(drainCmds(cmd))
	if !ok {
		t.Fatal("test command produced no testResultMsg")
	}
	if !tester.called {
		t.Fatal("tester was not called")
	}
	if tester.gotDriver != db.DriverMySQL {
		t.Errorf("driver = %q, want mysql", tester.gotDriver)
	}
	p := tester.gotParams
	if p.Host != "localhost" || p.Port != 3306 || p.Username != "root" || p.Database != "app" || p.Password != "secret" {
		t.Errorf("params = %+v", p)
	}
	if p.TLS.Mode != "prefer" {
		t.Errorf("TLS mode = %q, want prefer", p.TLS.Mode)
	}
	if tester.gotOptions.MaxPoolSize != 12 {
		t.Errorf("MaxPoolSize = %d, want 12", tester.gotOptions.MaxPoolSize)
	}
	if tester.gotOptions.MaxRetries != sqlpool.DefaultMaxRetries {
		t.Errorf("MaxRetries = %d, want default %d", tester.gotOptions.MaxRetries, sqlpool.DefaultMaxRetries)
	}

	m, _ = update(t, m, res)
	w = asWizard(t, m)
	if !w.testDone || w.testErr != nil {
		t.Fatalf("testDone = %v testErr = %v", w.testDone, w.testErr)
	}
	if !strings.Contains(w.View(), "8.4.2") {
		t.Error("view should show the server info")
	}

	m, cmd = update(t, m, keyMsg("enter"))
	w = asWizard(t, m)
	if w.step != stepDone || !w.Result().Tested {
		t.Errorf("step = %d tested = %v, want done and tested", w.step, w.Result().Tested)
	}
	if !isQuitCmd(cmd) {
		t.Error("expected tea.Quit after confirming")
	}
}

func TestConnectionWizard_KeysIgnoredWhileTesting(t *testing.T) {
	m := toServerForm(t, NewConnectionWizard(&mockTester{}), 0, 0)
	m, _ = submitPasswordForm(t, m)

	m, cmd := update(t, m, keyMsg("enter"))
	if cmd != nil {
		t.Error("enter during a running test should do nothing")
	}
	if w := asWizard(t, m); w.step != stepTestConnection {
		t.Errorf("step = %d, want stepTestConnection", w.step)
	}
}

func TestConnectionWizard_TestFailure(t *testing.T) {
	failed := testResultMsg{err: errors.New("connection refused")}

	t.Run("enter edits", func(t *testing.T) {
		m := toServerForm(t, NewConnectionWizard(&mockTester{}), 1, 0)
		m, _ = submitPasswordForm(t, m)
		m, _ = update(t, m, failed)
		if !strings.Contains(asWizard(t, m).View(), "connection refused") {
			t.Error("view should show the failure")
		}

		m, cmd := update(t, m, keyMsg("enter"))
		if w := asWizard(t, m); w.step != stepServer {
			t.Errorf("step = %d, want stepServer", w.step)
		}
		if isQuitCmd(cmd) {
			t.Error("should not quit after a failure")
		}
	})

	t.Run("s saves untested", func(t *testing.T) {
		m := toServerForm(t, NewConnectionWizard(&mockTester{}), 1, 0)
		m, _ = submitPasswordForm(t, m)
		m, _ = update(t, m, failed)

		m, cmd := update(t, m, keyMsg("s"))
		res := asWizard(t, m).Result()
		if res.Cancelled || res.Tested {
			t.Errorf("result = %+v, want saved untested", res)
		}
		if res.Driver != db.DriverPostgres || res.Params.Port != 5432 {
			t.Errorf("driver = %q port = %d", res.Driver, res.Params.Port)
		}
		if !isQuitCmd(cmd) {
			t.Error("expected tea.Quit")
		}
	})
}

func TestConnectionWizard_ServerValidation(t *testing.T) {
	t.Run("bad port", func(t *testing.T) {
		m := toServerForm(t, NewConnectionWizard(&mockTester{}), 0, 0)
		m = press(t, m, "tab")
		m = typeString(t, m, "x")
		m = press(t, m, "enter", "enter", "enter", "enter")

		w := asWizard(t, m)
		if w.step != stepServer {
			t.Fatalf("step = %d, want stepServer", w.step)
		}
		if !strings.Contains(w.validationErr, "port") {
			t.Errorf("validationErr = %q, want a port error", w.validationErr)
		}
	})

	t.Run("aws needs region", func(t *testing.T) {
		m := toServerForm(t, NewConnectionWizard(&mockTester{}), 0, 2)
		m = typeString(t, m, "db.example.com")
		m = press(t, m, "enter", "enter", "enter", "enter", "enter")

		w := asWizard(t, m)
		if w.validationErr != "region is required" {
			t.Errorf("validationErr = %q, want %q", w.validationErr, "region is required")
		}

		m = typeString(t, m, "e")
		if w := asWizard(t, m); w.validationErr != "" {
			t.Errorf("typing should clear the error, got %q", w.validationErr)
		}
	})

	t.Run("certificate needs files", func(t *testing.T) {
		m := toServerForm(t, NewConnectionWizard(&mockTester{}), 1, 1)
		m = press(t, m, "enter", "enter", "enter", "enter", "enter", "enter", "enter")

		w := asWizard(t, m)
		if !strings.Contains(w.validationErr, "client key are required") {
			t.Errorf("validationErr = %q", w.validationErr)
		}
	})
}

func TestConnectionWizard_CertificateParams(t *testing.T) {
	m := toServerForm(t, NewConnectionWizard(&mockTester{}), 1, 1)
	m = press(t, m, "enter", "enter", "enter")
	m = typeString(t, m, "app")
	m = press(t, m, "enter")
	m = typeString(t, m, "ca.pem")
	m = press(t, m, "enter")
	m = typeString(t, m, "client.crt")
	m = press(t, m, "enter")
	m = typeString(t, m, "client.key")
	m = press(t, m, "enter")

	w := asWizard(t, m)
	if w.step != stepPool {
		t.Fatalf("step = %d, want stepPool, validation: %q", w.step, w.validationErr)
	}
	p := w.result.Params
	if p.AuthMethod != sqlpool.AuthMethodCertificate {
		t.Errorf("AuthMethod = %v", p.AuthMethod)
	}
	want := sqlpool.TLSOptions{Mode: "verify-ca", CAFile: "ca.pem", CertFile: "client.crt", KeyFile: "client.key"}
	if p.TLS != want {
		t.Errorf("TLS = %+v, want %+v", p.TLS, want)
	}
}

func TestConnectionWizard_GoogleParams(t *testing.T) {
	m := toServerForm(t, NewConnectionWizard(&mockTester{}), 1, 3)
	m = typeString(t, m, "proj:europe-west1:main")
	m = press(t, m, "enter")
	m = typeString(t, m, "svc@proj.iam")
	m = press(t, m, "enter")
	m = typeString(t, m, "app")
	m = press(t, m, "enter")

	w := asWizard(t, m)
	if w.step != stepPool {
		t.Fatalf("step = %d, want stepPool, validation: %q", w.step, w.validationErr)
	}
	p := w.result.Params
	if p.Host != "" || p.GoogleInstance != "proj:europe-west1:main" || p.Username != "svc@proj.iam" {
		t.Errorf("params = %+v", p)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestConnectionWizard_PoolValidation(t *testing.T) {
	m := toServerForm(t, NewConnectionWizard(&mockTester{}), 0, 0)
	m = press(t, m, "enter", "enter", "enter", "enter", "enter")
	if w := asWizard(t, m); w.step != stepPool {
		t.Fatalf("step = %d, want stepPool", w.step)
	}

	m = typeString(t, m, "x")
	m = press(t, m, "enter", "enter", "enter")
	w := asWizard(t, m)
	if w.step != stepPool {
		t.Fatalf("step = %d, want to stay on stepPool", w.step)
	}
	if !strings.Contains(w.validationErr, "max pool size") {
		t.Errorf("validationErr = %q", w.validationErr)
	}
}

func TestConnectionWizard_PoolFormShowsOptions(t *testing.T) {
	opts := sqlpool.PoolOptions{MaxPoolSize: 7, MaxRetries: 4, BaseBackoff: 250 * time.Millisecond}
	m := toServerForm(t, NewConnectionWizard(&mockTester{}, WithPoolOptions(opts)), 0, 0)
	m = press(t, m, "enter", "enter", "enter", "enter", "enter")

	w := asWizard(t, m)
	if got := w.value(fieldMaxPoolSize); got != "7" {
		t.Errorf("max pool size = %q, want 7", got)
	}
	if got := w.value(fieldMaxRetries); got != "4" {
		t.Errorf("max retries = %q, want 4", got)
	}
	if got := w.value(fieldBaseBackoff); got != "250ms" {
		t.Errorf("base backoff = %q, want 250ms", got)
	}
}

func TestConnectionWizard_EscWalksBack(t *testing.T) {
	m := toServerForm(t, NewConnectionWizard(&mockTester{}), 0, 0)
	m = press(t, m, "enter", "enter", "enter", "enter", "enter")
	steps := []wizardStep{stepServer, stepSelectAuth, stepSelectDriver}

	for _, want := range steps {
		m = press(t, m, "esc")
		if w := asWizard(t, m); w.step != want {
			t.Fatalf("after esc step = %d, want %d", w.step, want)
		}
	}

	m, cmd := update(t, m, keyMsg("esc"))
	if !asWizard(t, m).Result().Cancelled {
		t.Error("esc on the first step should cancel")
	}
	if !isQuitCmd(cmd) {
		t.Error("expected tea.Quit")
	}
}

func TestConnectionWizard_CtrlCCancelsFromForm(t *testing.T) {
	m := toServerForm(t, NewConnectionWizard(&mockTester{}), 0, 0)

	m, cmd := update(t, m, keyMsg("ctrl+c"))
	if !asWizard(t, m).Result().Cancelled {
		t.Error("ctrl+c should cancel")
	}
	if !isQuitCmd(cmd) {
		t.Error("expected tea.Quit")
	}
}

func TestConnectionWizard_QTypesIntoForm(t *testing.T) {
	m := toServerForm(t, NewConnectionWizard(&mockTester{}), 0, 0)
	m = press(t, m, "enter", "enter", "enter")
	m, cmd := update(t, m, keyMsg("q"))

	w := asWizard(t, m)
	if w.Result().Cancelled || isQuitCmd(cmd) {
		t.Fatal("q inside a form should not quit")
	}
	if got := w.value(fieldDatabase); got != "q" {
		t.Errorf("database = %q, want q", got)
	}
}

func TestConnectionWizard_NavigationBounds(t *testing.T) {
	m := press(t, NewConnectionWizard(&mockTester{}), "up", "up")
	if w := asWizard(t, m); w.driverIdx != 0 {
		t.Errorf("driverIdx = %d, want 0", w.driverIdx)
	}
	m = press(t, m, "down", "down", "down")
	if w := asWizard(t, m); w.driverIdx != len(driverChoices)-1 {
		t.Errorf("driverIdx = %d, want %d", w.driverIdx, len(driverChoices)-1)
	}

	m = toServerForm(t, NewConnectionWizard(&mockTester{}), 0, 0)
	m = press(t, m, "shift+tab")
	if w := asWizard(t, m); w.focus != 0 {
		t.Errorf("focus = %d, want 0", w.focus)
	}
	m = press(t, m, "tab", "tab", "tab", "tab", "tab", "tab")
	if w := asWizard(t, m); w.focus != 4 {
		t.Errorf("focus = %d, want 4", w.focus)
	}
}

func TestConnectionWizard_View(t *testing.T) {
	m := tea.Model(NewConnectionWizard(&mockTester{}))
	view := asWizard(t, m).View()
	for _, want := range []string{"sqlpool - Connection Setup", "MySQL", "PostgreSQL"} {
		if !strings.Contains(view, want) {
			t.Errorf("driver view missing %q", want)
		}
	}

	m = press(t, m, "down", "enter")
	if view := asWizard(t, m).View(); !strings.Contains(view, "Azure Entra ID") {
		t.Error("auth view should list Azure Entra ID")
	}

	m = press(t, m, "enter")
	if view := asWizard(t, m).View(); !strings.Contains(view, "PostgreSQL - Username and Password") {
		t.Errorf("form view subtitle missing:\n%s", view)
	}
}
