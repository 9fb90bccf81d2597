package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vvka-141/sqlpool/internal/tui"
	"github.com/vvka-141/sqlpool/pkg/sqlpool"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var execFlags connectionFlags

var (
	execQuery  bool
	execBatch  string
	execOutput string
)

var execCmd = &cobra.Command{
	Use:   "exec <statement> [args...]",
	Short: "Run one statement through the pool",
	Long: `Run a statement on a pooled connection.

Positional arguments after the statement are bound to its placeholders
(? for MySQL, $1.. for PostgreSQL). If the connection is lost mid-statement
it is replaced and the statement retried once.

Statements starting with SELECT, SHOW, WITH, EXPLAIN, DESCRIBE or VALUES
return rows; use --query to force row output for anything else.

With --batch the statement is executed once per argument set read from a
YAML file holding a list of lists:

  - [1, "alice"]
  - [2, "bob"]

Examples:
  sqlpool exec "SELECT id, name FROM users WHERE id = ?" 42
  sqlpool exec "INSERT INTO users (id, name) VALUES (?, ?)" --batch users.yaml
  sqlpool exec "SELECT now()" --driver postgres -o json`,
	Args: RequireStatement,
	RunE: runExec,
}

func init() {
	execFlags.register(execCmd)
	execCmd.Flags().BoolVarP(&execQuery, "query", "q", false, "Return rows regardless of the statement keyword")
	execCmd.Flags().StringVar(&execBatch, "batch", "", "YAML file of argument sets for ExecuteMany")
	execCmd.Flags().StringVarP(&execOutput, "output", "o", "table", "Output format: table or json")
	_ = execCmd.RegisterFlagCompletionFunc("batch", completeBatchFiles)
	rootCmd.AddCommand(execCmd)
}

func runExec(cmd *cobra.Command, args []string) error {
	if execOutput != "table" && execOutput != "json" {
		return fmt.Errorf("--output must be table or json, got %q: %w", execOutput, sqlpool.ErrUsage)
	}
	stmt := args[0]
	stmtArgs := make([]any, 0, len(args)-1)
	for _, a := range args[1:] {
		stmtArgs = append(stmtArgs, a)
	}

	var argSets [][]any
	if execBatch != "" {
		if len(stmtArgs) > 0 {
			return fmt.Errorf("--batch cannot be combined with positional arguments: %w", sqlpool.ErrUsage)
		}
		var err error
		argSets, err = loadArgSets(execBatch)
		if err != nil {
			return err
		}
	}

	stack, err := openStack(cmd, &execFlags)
	if err != nil {
		return err
	}
	defer stack.Close(context.Background())

	ctx := commandContext(cmd)
	h, err := stack.service.GetConnection(ctx, stack.conn.Params)
	if err != nil {
		return err
	}
	defer stack.service.ReleaseConnection(h)

	var (
		res  sqlpool.Result
		rows = execQuery || returnsRows(stmt)
	)
	switch {
	case argSets != nil:
		rows = false
		res, err = h.Cursor().ExecuteMany(ctx, stmt, argSets)
	case rows:
		res, err = h.Cursor().Query(ctx, stmt, stmtArgs...)
	default:
		res, err = h.Cursor().Execute(ctx, stmt, stmtArgs...)
	}
	if err != nil {
		return err
	}

	return writeResult(cmd.OutOrStdout(), res, rows, execOutput)
}

// returnsRows guesses from the leading keyword whether stmt produces rows.
func returnsRows(stmt string) bool {
	fields := strings.Fields(strings.TrimLeft(stmt, "( \t\r\n"))
	if len(fields) == 0 {
		return false
	}
	switch strings.ToUpper(fields[0]) {
	case "SELECT", "SHOW", "WITH", "EXPLAIN", "DESCRIBE", "DESC", "VALUES", "TABLE":
		return true
	}
	return strings.Contains(strings.ToUpper(stmt), " RETURNING ")
}

// loadArgSets reads a YAML list of argument lists.
func loadArgSets(path string) ([][]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file '%s': %w", path, err)
	}
	var sets [][]any
	if err := yaml.Unmarshal(data, &sets); err != nil {
		return nil, fmt.Errorf("failed to parse batch file '%s': %v: %w\n\nTip: the file must hold a YAML list of lists", path, err, sqlpool.ErrInvalidConfig)
	}
	if len(sets) == 0 {
		return nil, fmt.Errorf("batch file '%s' holds no argument sets: %w", path, sqlpool.ErrInvalidConfig)
	}
	return sets, nil
}

// execOutputJSON is the -o json shape of a result.
type execOutputJSON struct {
	Columns      []string `json:"columns,omitempty"`
	Rows         [][]any  `json:"rows,omitempty"`
	RowsAffected int64    `json:"rows_affected"`
	LastInsertID int64    `json:"last_insert_id,omitempty"`
}

func writeResult(w io.Writer, res sqlpool.Result, rows bool, format string) error {
	if format == "json" {
		out := execOutputJSON{RowsAffected: res.RowsAffected, LastInsertID: res.LastInsertID}
		if rows {
			out.Columns = res.Columns
			out.Rows = res.Rows
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	if rows {
		cells := make([][]string, 0, len(res.Rows))
		for _, r := range res.Rows {
			line := make([]string, len(r))
			for i, v := range r {
				line[i] = formatValue(v)
			}
			cells = append(cells, line)
		}
		fmt.Fprintln(w, tui.Table(res.Columns, cells))
		fmt.Fprintln(w, tui.MutedStyle.Render(fmt.Sprintf("(%d row(s))", len(res.Rows))))
		return nil
	}

	msg := fmt.Sprintf("%d row(s) affected", res.RowsAffected)
	if res.LastInsertID != 0 {
		msg += fmt.Sprintf(", last insert id %d", res.LastInsertID)
	}
	fmt.Fprintln(w, tui.Success("%s", msg))
	return nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	}
	return fmt.Sprint(v)
}
