package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vvka-141/sqlpool/internal/tui"
	"github.com/vvka-141/sqlpool/pkg/sqlpool"
)

// exhaustedPause is how long a bench worker waits after ErrPoolExhausted.
const exhaustedPause = 2 * time.Millisecond

var benchFlags connectionFlags

var (
	benchWorkers     int
	benchIterations  int
	benchStatement   string
	benchMetricsAddr string
	benchLinger      time.Duration
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Hammer the pool from concurrent workers",
	Long: `Run a statement from many goroutines at once, each checking a connection out,
executing and checking it back in.

Workers that find the pool exhausted count the event and try again. At the
end the totals and the per-fingerprint pool state are printed. With
--metrics-addr (or metrics.addr in sqlpool.yaml) the Prometheus metrics are
served on /metrics while the benchmark runs; --linger keeps them up afterwards.

Examples:
  sqlpool bench --connection "mysql://app@localhost/app" --workers 32 --max-pool-size 8
  sqlpool bench --metrics-addr :9187 --linger 1m`,
	Args: cobra.NoArgs,
	RunE: runBench,
}

func init() {
	benchFlags.register(benchCmd)
	benchCmd.Flags().IntVarP(&benchWorkers, "workers", "w", 8, "Concurrent workers")
	benchCmd.Flags().IntVarP(&benchIterations, "iterations", "n", 100, "Statements per worker")
	benchCmd.Flags().StringVar(&benchStatement, "statement", "", "Statement to run (default: the health check statement)")
	benchCmd.Flags().StringVar(&benchMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	benchCmd.Flags().DurationVar(&benchLinger, "linger", 0, "Keep serving metrics this long after the run")
	rootCmd.AddCommand(benchCmd)
}

// benchResult holds the totals of one run.
type benchResult struct {
	ops       atomic.Int64
	failures  atomic.Int64
	exhausted atomic.Int64
	elapsed   time.Duration
}

func runBench(cmd *cobra.Command, args []string) error {
	if benchWorkers < 1 || benchIterations < 1 {
		return fmt.Errorf("--workers and --iterations must be at least 1: %w", sqlpool.ErrUsage)
	}

	stack, err := openStack(cmd, &benchFlags)
	if err != nil {
		return err
	}
	defer stack.Close(context.Background())

	ctx := commandContext(cmd)

	addr := benchMetricsAddr
	if addr == "" && stack.conn.ProjectCfg != nil {
		addr = stack.conn.ProjectCfg.Metrics.Addr
	}
	if addr != "" {
		stop, err := serveMetrics(cmd, stack, addr)
		if err != nil {
			return err
		}
		defer stop()
	}

	stmt := benchStatement
	if stmt == "" {
		stmt = stack.conn.Options.HealthCheckStatement
	}

	res, err := benchmark(ctx, stack, stmt, benchWorkers, benchIterations)
	if err != nil {
		return err
	}
	printBenchResult(cmd, stack, res)

	if addr != "" && benchLinger > 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), tui.MutedStyle.Render(fmt.Sprintf("Serving metrics for another %s", benchLinger)))
		select {
		case <-time.After(benchLinger):
		case <-ctx.Done():
		}
	}
	return nil
}

// benchmark runs iterations statements on each of workers goroutines.
// Connection failures abort the run; statement failures are counted.
func benchmark(ctx context.Context, stack *poolStack, stmt string, workers, iterations int) (*benchResult, error) {
	res := &benchResult{}
	params := stack.conn.Params
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := 0; i < iterations; {
				if err := ctx.Err(); err != nil {
					return err
				}

				h, err := stack.service.GetConnection(ctx, params)
				if errors.Is(err, sqlpool.ErrPoolExhausted) {
					res.exhausted.Add(1)
					time.Sleep(exhaustedPause)
					continue
				}
				if err != nil {
					return err
				}

				_, err = h.Cursor().Execute(ctx, stmt)
				stack.service.ReleaseConnection(h)
				if err != nil {
					res.failures.Add(1)
					stack.logger.Verbose("Statement failed: %v", err)
				}
				res.ops.Add(1)
				i++
			}
			return nil
		})
	}

	err := g.Wait()
	res.elapsed = time.Since(start)
	return res, err
}

func printBenchResult(cmd *cobra.Command, stack *poolStack, res *benchResult) {
	out := cmd.OutOrStdout()
	ops := res.ops.Load()
	rate := float64(ops) / res.elapsed.Seconds()

	fmt.Fprintln(out, tui.TitleStyle.Render("Benchmark"))
	fmt.Fprintln(out, tui.KeyValues(
		[2]string{"Statements", strconv.FormatInt(ops, 10)},
		[2]string{"Failures", strconv.FormatInt(res.failures.Load(), 10)},
		[2]string{"Exhausted", strconv.FormatInt(res.exhausted.Load(), 10)},
		[2]string{"Elapsed", res.elapsed.Round(time.Millisecond).String()},
		[2]string{"Rate", fmt.Sprintf("%.0f/s", rate)},
	))
	fmt.Fprintln(out)

	stats := stack.pool.AllStats()
	rows := make([][]string, 0, len(stats))
	for _, st := range stats {
		rows = append(rows, []string{
			st.Fingerprint.Short(),
			strconv.Itoa(st.Open),
			strconv.Itoa(st.Idle),
			strconv.Itoa(st.InUse),
			strconv.Itoa(st.Max),
		})
	}
	fmt.Fprintln(out, tui.Table([]string{"POOL", "OPEN", "IDLE", "IN USE", "MAX"}, rows))
}

// serveMetrics exposes the collector on addr/metrics until stop is called.
func serveMetrics(cmd *cobra.Command, stack *poolStack, addr string) (stop func(), err error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s for metrics: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", stack.collector.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			stack.logger.Error("Metrics server stopped: %v", err)
		}
	}()
	fmt.Fprintln(cmd.ErrOrStderr(), tui.MutedStyle.Render(fmt.Sprintf("Serving metrics on http://%s/metrics", ln.Addr())))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
