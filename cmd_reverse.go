package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/LiEnby/eCDP-Serial-Code/internal/archive"
	"github.com/LiEnby/eCDP-Serial-Code/internal/ecdp"
)

type reverseFlags struct {
	mac, code   string
	max         int64
	table       int
	workers     int
	out         string
	zipPassword string
	bench       time.Duration
	progress    bool
}

func (a *app) reverseCmd() *cobra.Command {
	var fl reverseFlags
	cmd := &cobra.Command{
		Use:   "reverse",
		Short: "Find store and management numbers that produce a password",
		Example: `  ecdp reverse --mac 01438BADE227 --code PFNPVY
  ecdp reverse --mac 01438BADE227 --code PFNPVY --max 0 --out matches.zip --zip-password secret
  ecdp reverse --mac 01438BADE227 --code PFNPVY --bench 5s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := ecdp.Options{
				Max:     a.cfg.Solver.MaxResults,
				Table:   fl.table,
				Workers: a.cfg.Solver.Workers,
			}
			if cmd.Flags().Changed("max") {
				opts.Max = fl.max
			}
			if cmd.Flags().Changed("workers") {
				opts.Workers = fl.workers
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if fl.bench > 0 {
				return a.bench(ctx, cmd.OutOrStdout(), fl, opts)
			}
			return a.reverse(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), fl, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&fl.mac, "mac", "", "MAC address of the DS, 12 hex characters without separators")
	f.StringVar(&fl.code, "code", "", "password to reverse")
	f.Int64Var(&fl.max, "max", 1, "stop after this many matches, 0 for all (default from config)")
	f.IntVar(&fl.table, "table", 0, "only search shuffle table 1-7, 0 for all")
	f.IntVar(&fl.workers, "workers", 0, "tables searched in parallel, 0 for one per CPU (default from config)")
	f.StringVar(&fl.out, "out", "", "also write matches to this zip archive")
	f.StringVar(&fl.zipPassword, "zip-password", "", "encrypt the archive with this password")
	f.DurationVar(&fl.bench, "bench", 0, "benchmark mode: search repeatedly for duration and exit (e.g. 5s, 1m)")
	f.BoolVar(&fl.progress, "progress", true, "print a progress line while searching")
	_ = cmd.MarkFlagRequired("mac")
	_ = cmd.MarkFlagRequired("code")
	return cmd
}

func printMatch(w io.Writer, m ecdp.Match) {
	fmt.Fprintf(w, "Store: %s | Management: %s | Table: %d\n", m.Store, m.Management, m.Table+1)
}

func (a *app) reverse(ctx context.Context, stdout, stderr io.Writer, fl reverseFlags, opts ecdp.Options) error {
	if _, err := ecdp.NormalizeIdentifier(fl.mac); err != nil {
		return err
	}
	if _, _, err := ecdp.ParseCode(fl.code); err != nil {
		return err
	}
	solver := ecdp.NewSolver(opts)

	var sink ecdp.Sink = ecdp.SinkFunc(func(m ecdp.Match) error {
		printMatch(stdout, m)
		return nil
	})
	var aw *archive.Writer
	if fl.out != "" {
		method, err := archive.ParseEncryption(a.cfg.Archive.Encryption)
		if err != nil {
			return err
		}
		if aw, err = archive.Create(fl.out, fl.zipPassword, method); err != nil {
			return err
		}
		sink = ecdp.SinkFunc(func(m ecdp.Match) error {
			printMatch(stdout, m)
			return aw.Emit(m)
		})
	}

	a.logger.Info("Searching",
		zap.String("mac", fl.mac),
		zap.String("code", fl.code),
		zap.Int64("max", opts.Max),
		zap.Int("table", opts.Table),
		zap.Int("workers", solver.Options().Workers))

	start := time.Now()
	done := make(chan struct{})
	var wg sync.WaitGroup
	if fl.progress {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
				}
				c := solver.Checked()
				e := time.Since(start).Seconds()
				if e > 0.5 {
					fmt.Fprintf(stderr, "\r  Checked: %dM | Speed: %.1fM/s | Elapsed: %.1fs        ",
						c/1_000_000, float64(c)/e/1_000_000, e)
				}
			}
		}()
	}

	res, err := solver.Reverse(ctx, fl.mac, fl.code, sink)
	close(done)
	wg.Wait()

	if aw != nil {
		if cerr := aw.Close(archive.NewSummary(fl.mac, fl.code, opts.Max, res)); cerr != nil && err == nil {
			err = cerr
		}
	}
	interrupted := errors.Is(err, context.Canceled)
	if err != nil && !interrupted {
		return err
	}

	elapsed := res.Elapsed.Round(time.Millisecond)
	if interrupted {
		fmt.Fprintln(stdout, "\nInterrupted.")
	}
	if res.Found > 0 {
		fmt.Fprintf(stdout, "\nFound: %d | Checked: %d | Time: %s\n", res.Found, res.Stats.Checked, elapsed)
	} else {
		fmt.Fprintf(stdout, "\nNo match found. Checked: %d | Time: %s\n", res.Stats.Checked, elapsed)
	}
	a.logger.Debug("Search stats",
		zap.Int64("pruned", res.Stats.Pruned),
		zap.Int64("rejected", res.Stats.Rejected),
		zap.Bool("interrupted", interrupted))
	if aw != nil {
		fmt.Fprintf(stdout, "Archive: %s (%d matches)\n", fl.out, aw.Count())
	}
	return nil
}

// bench repeats full searches until the duration elapses and reports the
// checksum test rate.
func (a *app) bench(ctx context.Context, stdout io.Writer, fl reverseFlags, opts ecdp.Options) error {
	opts.Max = 0
	ctx, cancel := context.WithTimeout(ctx, fl.bench)
	defer cancel()

	var checked, searches int64
	start := time.Now()
	for ctx.Err() == nil {
		solver := ecdp.NewSolver(opts)
		res, err := solver.Reverse(ctx, fl.mac, fl.code, nil)
		checked += res.Stats.Checked
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return err
		}
		searches++
	}

	e := time.Since(start).Seconds()
	if e < 1e-9 {
		e = 1e-9
	}
	fmt.Fprintf(stdout, "Benchmark: %s | Searches: %d | Checked: %d | Speed: %.1fM/s\n",
		fl.bench.String(), searches, checked, float64(checked)/e/1_000_000)
	return nil
}
