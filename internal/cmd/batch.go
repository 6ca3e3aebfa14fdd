package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/shlex"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/digitalliving/life-engine-cli/internal/api"
	"github.com/digitalliving/life-engine-cli/internal/iocontext"
)

// DefaultConcurrency is the number of batch calls in flight at once.
const DefaultConcurrency = 5

// batchCall is one parsed line of a batch file.
type batchCall struct {
	Line     int
	Resource string
	Verb     string
	Args     *api.Args
}

// batchResult is the outcome of one call.
type batchResult struct {
	Line     int    `json:"line"`
	Resource string `json:"resource"`
	Verb     string `json:"verb"`
	Status   int    `json:"status,omitempty"`
	Data     any    `json:"data,omitempty"`
	Error    string `json:"error,omitempty"`
}

func newBatchCmd() *cobra.Command {
	var (
		file        string
		concurrency int64
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run many calls from a file",
		Long: strings.TrimSpace(`
Read one call per line and run them concurrently.

Each line has the form "resource verb key=value ...". Words follow shell
quoting, so values may use single or double quotes and backslash escapes.
Blank lines and lines starting with # are
skipped. Every line is parsed before any request is sent; calls then run
independently, so one failure does not stop the others.
`),
		Example: strings.TrimSpace(`
  le batch -f calls.txt
  printf 'me get\ncalendar get DLId=42\n' | le batch -c 2 -o json
`),
		Args: cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			if concurrency <= 0 {
				return fmt.Errorf("--concurrency must be positive")
			}

			var in io.Reader = iocontext.GetIO(cmd.Context()).In
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", file, err)
				}
				defer func() { _ = f.Close() }()
				in = f
			}
			calls, err := parseBatch(in)
			if err != nil {
				return err
			}
			if len(calls) == 0 {
				return &api.InvalidUsageError{Reason: "batch input contains no calls"}
			}

			s, err := newClientFactory().open()
			if err != nil {
				return err
			}

			errOut := io.Discard
			if !flags.Quiet {
				errOut = iocontext.GetIO(cmd.Context()).ErrOut
			}
			results := runBatch(cmd.Context(), calls, concurrency, errOut, func(ctx context.Context, c batchCall) (*api.Response, error) {
				res, err := s.client.Resource(c.Resource)
				if err != nil {
					return nil, err
				}
				return res.Call(ctx, c.Verb, c.Args)
			})

			if err := printBatchResults(cmd, results); err != nil {
				return err
			}
			failed := 0
			for _, r := range results {
				if r.Error != "" {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d calls failed", failed, len(results))
			}
			return nil
		}),
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Read calls from file (default: stdin)")
	cmd.Flags().Int64VarP(&concurrency, "concurrency", "c", DefaultConcurrency, "Maximum calls in flight")
	flagAlias(cmd.Flags(), "concurrency", "conc")

	return cmd
}

// parseBatch reads every call from r. A bad line fails the whole batch.
func parseBatch(r io.Reader) ([]batchCall, error) {
	var calls []batchCall
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		words, err := shlex.Split(text)
		if err != nil {
			return nil, &api.InvalidUsageError{Reason: fmt.Sprintf("line %d: %v", line, err)}
		}
		if len(words) < 2 {
			return nil, &api.InvalidUsageError{Reason: fmt.Sprintf("line %d: expected \"resource verb [key=value ...]\"", line)}
		}
		verb, err := api.NormalizeVerb(words[1])
		if err != nil {
			return nil, &api.InvalidUsageError{Reason: fmt.Sprintf("line %d: unsupported verb %q", line, words[1])}
		}
		args, err := parseKeyValues(words[2:])
		if err != nil {
			return nil, &api.InvalidUsageError{Reason: fmt.Sprintf("line %d: %v", line, err)}
		}
		calls = append(calls, batchCall{Line: line, Resource: words[0], Verb: verb, Args: args})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading batch input: %w", err)
	}
	return calls, nil
}

// runBatch executes calls concurrently with bounded parallelism and returns
// the results in input order.
func runBatch(
	ctx context.Context,
	calls []batchCall,
	concurrency int64,
	errOut io.Writer,
	operation func(ctx context.Context, c batchCall) (*api.Response, error),
) []batchResult {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if errOut == nil {
		errOut = io.Discard
	}

	sem := semaphore.NewWeighted(concurrency)
	var mu sync.Mutex
	results := make([]batchResult, 0, len(calls))
	total := len(calls)
	var done int64

	g, ctx := errgroup.WithContext(ctx)

	for _, c := range calls {
		g.Go(func() error {
			result := batchResult{Line: c.Line, Resource: c.Resource, Verb: c.Verb}

			if err := sem.Acquire(ctx, 1); err != nil {
				result.Error = err.Error()
			} else {
				resp, err := operation(ctx, c)
				sem.Release(1)
				if err != nil {
					result.Error = err.Error()
					result.Status = api.StatusOf(err)
					if resp != nil {
						result.Data = resp.Data
					}
				} else {
					result.Status = resp.Status
					result.Data = resp.Data
				}
			}

			current := atomic.AddInt64(&done, 1)
			mu.Lock()
			results = append(results, result)
			_, _ = fmt.Fprintf(errOut, "\rProcessed %d/%d", current, total)
			mu.Unlock()

			// individual failures never cancel the group
			return nil
		})
	}

	_ = g.Wait()

	if total > 0 {
		_, _ = fmt.Fprintln(errOut)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Line < results[j].Line })
	return results
}

func printBatchResults(cmd *cobra.Command, results []batchResult) error {
	if isStructuredCmd(cmd) {
		return printOutput(cmd, results)
	}

	rows := make([]map[string]any, 0, len(results))
	for _, r := range results {
		outcome := "ok"
		if r.Error != "" {
			outcome = r.Error
		}
		status := any("-")
		if r.Status != 0 {
			status = r.Status
		}
		rows = append(rows, map[string]any{
			"line":     r.Line,
			"resource": r.Resource,
			"verb":     r.Verb,
			"status":   status,
			"result":   outcome,
		})
	}
	return printOutput(cmd, rows)
}
