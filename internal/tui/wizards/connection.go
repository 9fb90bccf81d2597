package wizards

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vvka-141/sqlpool/internal/db"
	"github.com/vvka-141/sqlpool/internal/tui"
	"github.com/vvka-141/sqlpool/pkg/sqlpool"
)

// testTimeout bounds one connection test, retries included.
const testTimeout = 30 * time.Second

// ConnectionTester checks a connection out of a pool built from the collected
// settings and reports what answered.
type ConnectionTester interface {
	TestConnection(ctx context.Context, driver string, params sqlpool.ConnectionParameters, opts sqlpool.PoolOptions) (info string, err error)
}

// ConnectionResult is what the wizard collected.
type ConnectionResult struct {
	Cancelled bool
	Tested    bool
	Driver    string
	Params    sqlpool.ConnectionParameters
	Options   sqlpool.PoolOptions
}

// WizardOption configures a ConnectionWizard.
type WizardOption func(*ConnectionWizard)

// WithDriver preselects a driver ("mysql" or "postgres").
func WithDriver(name string) WizardOption {
	return func(w *ConnectionWizard) {
		for i, d := range driverChoices {
			if d.id == name {
				w.driverIdx = i
			}
		}
	}
}

// WithPoolOptions seeds the pool settings form.
func WithPoolOptions(o sqlpool.PoolOptions) WizardOption {
	return func(w *ConnectionWizard) {
		w.result.Options = o.WithDefaults()
	}
}

type choice struct {
	id          string
	name        string
	description string
}

var driverChoices = []choice{
	{id: db.DriverMySQL, name: "MySQL", description: "MySQL or MariaDB, default port 3306"},
	{id: db.DriverPostgres, name: "PostgreSQL", description: "PostgreSQL, default port 5432"},
}

type authChoice struct {
	method      sqlpool.AuthMethod
	name        string
	description string
}

var authChoices = []authChoice{
	{sqlpool.AuthMethodStandard, "Username and Password", "Password sent at login, TLS when the server offers it"},
	{sqlpool.AuthMethodCertificate, "Client Certificate", "Mutual TLS with a CA, certificate and key on disk"},
	{sqlpool.AuthMethodAWSIAM, "AWS RDS IAM", "Short-lived tokens from the AWS credential chain"},
	{sqlpool.AuthMethodGoogleIAM, "Google Cloud SQL IAM", "Cloud SQL connector with automatic IAM login"},
	{sqlpool.AuthMethodAzureEntraID, "Azure Entra ID", "Tokens from az login, managed identity or environment"},
}

// Form field keys.
const (
	fieldHost        = "host"
	fieldPort        = "port"
	fieldUsername    = "username"
	fieldDatabase    = "database"
	fieldPassword    = "password"
	fieldCAFile      = "ca"
	fieldCertFile    = "cert"
	fieldKeyFile     = "key"
	fieldRegion      = "region"
	fieldInstance    = "instance"
	fieldMaxPoolSize = "max-pool-size"
	fieldMaxRetries  = "max-retries"
	fieldBaseBackoff = "base-backoff"
)

type field struct {
	key   string
	label string
	input textinput.Model
}

func newField(key, label, value, placeholder string) field {
	in := textinput.New()
	in.SetValue(value)
	in.Placeholder = placeholder
	in.CharLimit = 256
	in.Width = 48
	return field{key: key, label: label, input: in}
}

type wizardStep int

const (
	stepSelectDriver wizardStep = iota
	stepSelectAuth
	stepServer
	stepPool
	stepTestConnection
	stepDone
)

// ConnectionWizard collects a driver, connection parameters and pool settings,
// then proves them by checking a connection out of a real pool.
type ConnectionWizard struct {
	step      wizardStep
	driverIdx int
	authIdx   int

	fields        []field
	focus         int
	validationErr string

	spinner  spinner.Model
	testing  bool
	testDone bool
	testErr  error
	testInfo string

	result ConnectionResult
	keys   tui.KeyMap
	tester ConnectionTester
}

// NewConnectionWizard creates a wizard that tests through tester.
func NewConnectionWizard(tester ConnectionTester, opts ...WizardOption) ConnectionWizard {
	if tester == nil {
		panic("NewConnectionWizard: tester cannot be nil")
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(tui.ColorPrimary)

	w := ConnectionWizard{
		step:    stepSelectDriver,
		spinner: s,
		keys:    tui.DefaultKeyMap(),
		tester:  tester,
		result:  ConnectionResult{Options: sqlpool.DefaultPoolOptions()},
	}
	for _, opt := range opts {
		opt(&w)
	}
	return w
}

// Init implements tea.Model.
func (w ConnectionWizard) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (w ConnectionWizard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return w.cancel()
		}
		switch w.step {
		case stepSelectDriver:
			return w.updateDriverSelection(msg)
		case stepSelectAuth:
			return w.updateAuthSelection(msg)
		case stepServer, stepPool:
			return w.updateForm(msg)
		case stepTestConnection:
			return w.updateTestConnection(msg)
		}

	case testResultMsg:
		w.testing = false
		w.testDone = true
		w.testErr = msg.err
		w.testInfo = msg.info
		return w, nil

	case spinner.TickMsg:
		if w.testing {
			var cmd tea.Cmd
			w.spinner, cmd = w.spinner.Update(msg)
			return w, cmd
		}

	default:
		// cursor blink and focus messages
		if (w.step == stepServer || w.step == stepPool) && w.focus < len(w.fields) {
			var cmd tea.Cmd
			w.fields[w.focus].input, cmd = w.fields[w.focus].input.Update(msg)
			return w, cmd
		}
	}
	return w, nil
}

func (w ConnectionWizard) cancel() (tea.Model, tea.Cmd) {
	w.result.Cancelled = true
	return w, tea.Quit
}

func (w ConnectionWizard) updateDriverSelection(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, w.keys.Up):
		if w.driverIdx > 0 {
			w.driverIdx--
		}
	case key.Matches(msg, w.keys.Down):
		if w.driverIdx < len(driverChoices)-1 {
			w.driverIdx++
		}
	case key.Matches(msg, w.keys.Select):
		w.result.Driver = driverChoices[w.driverIdx].id
		w.step = stepSelectAuth
	case key.Matches(msg, w.keys.Back), key.Matches(msg, w.keys.Quit):
		return w.cancel()
	}
	return w, nil
}

func (w ConnectionWizard) updateAuthSelection(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, w.keys.Up):
		if w.authIdx > 0 {
			w.authIdx--
		}
	case key.Matches(msg, w.keys.Down):
		if w.authIdx < len(authChoices)-1 {
			w.authIdx++
		}
	case key.Matches(msg, w.keys.Select):
		w.step = stepServer
		cmd := w.setFields(w.serverFields())
		return w, cmd
	case key.Matches(msg, w.keys.Back):
		w.step = stepSelectDriver
	case key.Matches(msg, w.keys.Quit):
		return w.cancel()
	}
	return w, nil
}

func (w *ConnectionWizard) setFields(fields []field) tea.Cmd {
	w.fields = fields
	w.focus = 0
	w.validationErr = ""
	return w.fields[0].input.Focus()
}

func (w *ConnectionWizard) moveFocus(delta int) tea.Cmd {
	next := w.focus + delta
	if next < 0 || next >= len(w.fields) {
		return nil
	}
	w.fields[w.focus].input.Blur()
	w.focus = next
	return w.fields[w.focus].input.Focus()
}

func (w ConnectionWizard) method() sqlpool.AuthMethod {
	return authChoices[w.authIdx].method
}

func (w ConnectionWizard) serverFields() []field {
	port, user := 3306, "root"
	if w.result.Driver == db.DriverPostgres {
		port, user = 5432, "postgres"
	}

	if w.method() == sqlpool.AuthMethodGoogleIAM {
		return []field{
			newField(fieldInstance, "Instance:", "", "project:region:instance"),
			newField(fieldUsername, "Username:", "", "sa-name@project.iam"),
			newField(fieldDatabase, "Database:", "", "app"),
		}
	}

	host := ""
	if w.method() == sqlpool.AuthMethodStandard || w.method() == sqlpool.AuthMethodCertificate {
		host = "localhost"
	}
	fields := []field{
		newField(fieldHost, "Host:", host, "db.example.com"),
		newField(fieldPort, "Port:", strconv.Itoa(port), ""),
		newField(fieldUsername, "Username:", user, ""),
		newField(fieldDatabase, "Database:", "", "app"),
	}

	switch w.method() {
	case sqlpool.AuthMethodStandard:
		pw := newField(fieldPassword, "Password:", "", "used for the test, never saved")
		pw.input.EchoMode = textinput.EchoPassword
		pw.input.EchoCharacter = '•'
		fields = append(fields, pw)
	case sqlpool.AuthMethodCertificate:
		fields = append(fields,
			newField(fieldCAFile, "CA certificate:", "", "ca.pem"),
			newField(fieldCertFile, "Client certificate:", "", "client.crt"),
			newField(fieldKeyFile, "Client key:", "", "client.key"),
		)
	case sqlpool.AuthMethodAWSIAM:
		fields = append(fields, newField(fieldRegion, "Region:", "", "us-east-1"))
	}
	return fields
}

func (w ConnectionWizard) poolFields() []field {
	o := w.result.Options
	return []field{
		newField(fieldMaxPoolSize, "Max pool size:", strconv.Itoa(o.MaxPoolSize), ""),
		newField(fieldMaxRetries, "Connect attempts:", strconv.Itoa(o.MaxRetries), ""),
		newField(fieldBaseBackoff, "Base backoff:", o.BaseBackoff.String(), "500ms"),
	}
}

// value returns the trimmed input of key, or "" when the form has no such field.
func (w ConnectionWizard) value(k string) string {
	for _, f := range w.fields {
		if f.key == k {
			if k == fieldPassword {
				return f.input.Value()
			}
			return strings.TrimSpace(f.input.Value())
		}
	}
	return ""
}

func (w ConnectionWizard) has(k string) bool {
	for _, f := range w.fields {
		if f.key == k {
			return true
		}
	}
	return false
}

func (w ConnectionWizard) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, w.keys.Tab), msg.String() == "down":
		cmd := w.moveFocus(1)
		return w, cmd
	case key.Matches(msg, w.keys.ShiftTab), msg.String() == "up":
		cmd := w.moveFocus(-1)
		return w, cmd
	case key.Matches(msg, w.keys.Select):
		if w.focus < len(w.fields)-1 {
			cmd := w.moveFocus(1)
			return w, cmd
		}
		return w.submitForm()
	case key.Matches(msg, w.keys.Back):
		if w.step == stepPool {
			w.step = stepServer
			cmd := w.setFields(w.serverFields())
			return w, cmd
		}
		w.fields = nil
		w.step = stepSelectAuth
		return w, nil
	default:
		w.validationErr = ""
		var cmd tea.Cmd
		w.fields[w.focus].input, cmd = w.fields[w.focus].input.Update(msg)
		return w, cmd
	}
}

func (w ConnectionWizard) submitForm() (tea.Model, tea.Cmd) {
	if w.step == stepServer {
		params, err := w.serverParams()
		if err != nil {
			w.validationErr = err.Error()
			return w, nil
		}
		w.result.Params = params
		w.step = stepPool
		cmd := w.setFields(w.poolFields())
		return w, cmd
	}

	opts, err := w.poolOptions()
	if err != nil {
		w.validationErr = err.Error()
		return w, nil
	}
	w.result.Options = opts
	return w.startTest()
}

func (w ConnectionWizard) serverParams() (sqlpool.ConnectionParameters, error) {
	p := sqlpool.ConnectionParameters{
		AuthMethod:     w.method(),
		Host:           w.value(fieldHost),
		Username:       w.value(fieldUsername),
		Database:       w.value(fieldDatabase),
		Password:       w.value(fieldPassword),
		AWSRegion:      w.value(fieldRegion),
		GoogleInstance: w.value(fieldInstance),
	}

	if w.has(fieldPort) {
		port, err := strconv.Atoi(w.value(fieldPort))
		if err != nil || port < 1 || port > 65535 {
			return p, fmt.Errorf("port must be a number between 1 and 65535")
		}
		p.Port = port
	}

	switch p.AuthMethod {
	case sqlpool.AuthMethodStandard:
		p.TLS.Mode = "prefer"
	case sqlpool.AuthMethodCertificate:
		p.TLS = sqlpool.TLSOptions{
			Mode:     "verify-ca",
			CAFile:   w.value(fieldCAFile),
			CertFile: w.value(fieldCertFile),
			KeyFile:  w.value(fieldKeyFile),
		}
		if p.TLS.CAFile == "" || p.TLS.CertFile == "" || p.TLS.KeyFile == "" {
			return p, fmt.Errorf("CA certificate, client certificate and client key are required")
		}
	case sqlpool.AuthMethodAWSIAM, sqlpool.AuthMethodAzureEntraID:
		p.TLS.Mode = "require"
	}

	switch {
	case p.AuthMethod == sqlpool.AuthMethodGoogleIAM && p.GoogleInstance == "":
		return p, fmt.Errorf("instance connection name is required")
	case p.AuthMethod != sqlpool.AuthMethodGoogleIAM && p.Host == "":
		return p, fmt.Errorf("host is required")
	case p.AuthMethod == sqlpool.AuthMethodAWSIAM && p.AWSRegion == "":
		return p, fmt.Errorf("region is required")
	case p.AuthMethod != sqlpool.AuthMethodStandard && p.AuthMethod != sqlpool.AuthMethodCertificate && p.Username == "":
		return p, fmt.Errorf("username is required")
	}
	return p, nil
}

func (w ConnectionWizard) poolOptions() (sqlpool.PoolOptions, error) {
	o := w.result.Options

	size, err := strconv.Atoi(w.value(fieldMaxPoolSize))
	if err != nil || size < 1 {
		return o, fmt.Errorf("max pool size must be a positive number")
	}
	retries, err := strconv.Atoi(w.value(fieldMaxRetries))
	if err != nil || retries < 1 {
		return o, fmt.Errorf("connect attempts must be a positive number")
	}
	backoff, err := time.ParseDuration(w.value(fieldBaseBackoff))
	if err != nil || backoff < 0 {
		return o, fmt.Errorf("base backoff must be a duration such as 500ms")
	}

	o.MaxPoolSize = size
	o.MaxRetries = retries
	o.BaseBackoff = backoff
	return o, nil
}

type testResultMsg struct {
	info string
	err  error
}

func (w ConnectionWizard) startTest() (tea.Model, tea.Cmd) {
	w.step = stepTestConnection
	w.testing = true
	w.testDone = false
	w.testErr = nil
	w.testInfo = ""
	return w, tea.Batch(w.spinner.Tick, w.testConnection())
}

func (w ConnectionWizard) testConnection() tea.Cmd {
	tester := w.tester
	driver, params, opts := w.result.Driver, w.result.Params, w.result.Options
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
		defer cancel()
		info, err := tester.TestConnection(ctx, driver, params, opts)
		return testResultMsg{info: info, err: err}
	}
}

func (w ConnectionWizard) updateTestConnection(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if !w.testDone {
		return w, nil
	}

	switch {
	case key.Matches(msg, w.keys.Select):
		if w.testErr == nil {
			w.result.Tested = true
			w.step = stepDone
			return w, tea.Quit
		}
		w.step = stepServer
		cmd := w.setFields(w.serverFields())
		return w, cmd
	case msg.String() == "s" && w.testErr != nil:
		w.step = stepDone
		return w, tea.Quit
	case key.Matches(msg, w.keys.Back):
		w.step = stepPool
		cmd := w.setFields(w.poolFields())
		return w, cmd
	}
	return w, nil
}

// View implements tea.Model.
func (w ConnectionWizard) View() string {
	var b strings.Builder
	b.WriteString(tui.TitleStyle.Render("sqlpool - Connection Setup"))
	b.WriteString("\n\n")

	switch w.step {
	case stepSelectDriver:
		b.WriteString(viewChoices("Which database server?", driverChoices, w.driverIdx, "q quit"))
	case stepSelectAuth:
		names := make([]choice, len(authChoices))
		for i, a := range authChoices {
			names[i] = choice{name: a.name, description: a.description}
		}
		subtitle := fmt.Sprintf("%s - Authentication", driverChoices[w.driverIdx].name)
		b.WriteString(viewChoices(subtitle, names, w.authIdx, "esc back"))
	case stepServer:
		b.WriteString(w.viewForm(fmt.Sprintf("%s - %s", driverChoices[w.driverIdx].name, authChoices[w.authIdx].name)))
	case stepPool:
		b.WriteString(w.viewForm("Pool Settings"))
	case stepTestConnection:
		b.WriteString(w.viewTestConnection())
	}
	return b.String()
}

func viewChoices(subtitle string, choices []choice, selected int, extraHelp string) string {
	var b strings.Builder
	b.WriteString(tui.LabelStyle.Render(subtitle))
	b.WriteString("\n\n")

	for i, c := range choices {
		line := tui.MutedStyle.Render("  ○ " + c.name)
		if i == selected {
			line = tui.TitleStyle.Render("● " + c.name)
		}
		b.WriteString(line)
		b.WriteString("\n")
		b.WriteString(tui.MutedStyle.Render("    " + c.description))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(tui.MutedStyle.Render("↑/↓ navigate • enter select • " + extraHelp))
	return b.String()
}

func (w ConnectionWizard) viewForm(subtitle string) string {
	var b strings.Builder
	b.WriteString(tui.LabelStyle.Render(subtitle))
	b.WriteString("\n\n")

	focused := tui.BoxStyle.BorderForeground(tui.ColorPrimary)
	for i, f := range w.fields {
		box := tui.BoxStyle
		if i == w.focus {
			box = focused
		}
		b.WriteString(tui.LabelStyle.Render(f.label))
		b.WriteString("\n")
		b.WriteString(box.Render(f.input.View()))
		b.WriteString("\n")
	}

	if w.validationErr != "" {
		b.WriteString("\n")
		b.WriteString(tui.Failure("%s", w.validationErr))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(tui.MutedStyle.Render("tab/↓ next • shift+tab/↑ prev • enter submit • esc back"))
	return b.String()
}

func (w ConnectionWizard) viewTestConnection() string {
	var b strings.Builder
	p := w.result.Params
	target := p.Address()
	if p.AuthMethod == sqlpool.AuthMethodGoogleIAM {
		target = p.GoogleInstance
	}

	b.WriteString(tui.LabelStyle.Render("Testing Connection"))
	b.WriteString("\n\n")
	b.WriteString(tui.KeyValues(
		[2]string{"Target", target + "/" + p.Database},
		[2]string{"Pool", fmt.Sprintf("%d connections, %d attempts", w.result.Options.MaxPoolSize, w.result.Options.MaxRetries)},
	))
	b.WriteString("\n\n")

	switch {
	case w.testing:
		b.WriteString(w.spinner.View())
		b.WriteString(" Checking out a connection...")
	case w.testDone && w.testErr == nil:
		b.WriteString(tui.Success("Connected"))
		b.WriteString("\n")
		b.WriteString(tui.MutedStyle.Render(w.testInfo))
		b.WriteString("\n\n")
		b.WriteString(tui.MutedStyle.Render("enter save • esc back"))
	case w.testDone:
		b.WriteString(tui.Failure("Connection failed"))
		b.WriteString("\n")
		b.WriteString(tui.MutedStyle.Render(w.testErr.Error()))
		b.WriteString("\n\n")
		b.WriteString(tui.MutedStyle.Render("enter edit • s save anyway • esc back"))
	}
	return b.String()
}

// Result returns what the wizard collected.
func (w ConnectionWizard) Result() ConnectionResult {
	return w.result
}

// RunConnectionWizard runs the wizard full-screen and returns its result.
func RunConnectionWizard(tester ConnectionTester, opts ...WizardOption) (ConnectionResult, error) {
	p := tea.NewProgram(NewConnectionWizard(tester, opts...), tea.WithAltScreen())

	model, err := p.Run()
	if err != nil {
		return ConnectionResult{Cancelled: true}, err
	}
	return model.(ConnectionWizard).Result(), nil
}
