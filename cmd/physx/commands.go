package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/physx-runtime/metrics"
	"github.com/wippyai/physx-runtime/runtime"
	"github.com/wippyai/physx-runtime/server"
)

func newProbeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "report whether the accelerated build can run on this host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := a.newEngine(cmd.Context(), a.newFetcher())
			if err != nil {
				return err
			}
			defer eng.Close(cmd.Context())

			supported := eng.AcceleratedSupported()
			resolved := "interpreted"
			if supported {
				resolved = "accelerated"
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "accelerated supported: %v\n", supported)
			fmt.Fprintf(out, "auto resolves to:      %s\n", resolved)
			return nil
		},
	}
}

func newFetchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch [mode...]",
		Short: "download module builds and print their digests",
		RunE: func(cmd *cobra.Command, args []string) error {
			modes, err := parseModes(args)
			if err != nil {
				return err
			}
			fetcher := a.newFetcher()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MODE\tBYTES\tSHA256\tURL")
			for _, mode := range modes {
				data, err := fetcher.Fetch(cmd.Context(), mode)
				if err != nil {
					return err
				}
				src, _ := fetcher.Sources().For(mode)
				sum := sha256.Sum256(data)
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", mode, len(data), hex.EncodeToString(sum[:]), src.URL)
			}
			return w.Flush()
		},
	}
}

func newInitCmd(a *app) *cobra.Command {
	var (
		interactive bool
		timeout     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "initialize the runtime once, print its status and tear it down",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			eng, err := a.newEngine(ctx, a.newFetcher())
			if err != nil {
				return err
			}
			defer eng.Close(context.Background())

			opts, err := a.runtimeOptions()
			if err != nil {
				return err
			}
			rt := runtime.New(eng, opts...)

			if interactive && term.IsTerminal(int(os.Stdout.Fd())) {
				err = runInteractive(ctx, rt)
			} else {
				err = initAndReport(ctx, rt, cmd)
			}
			return multierr.Append(err, rt.Destroy(context.Background()))
		},
	}
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "show a progress view when stdout is a terminal")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "maximum time to wait for initialization")
	return cmd
}

func initAndReport(ctx context.Context, rt *runtime.Runtime, cmd *cobra.Command) error {
	if err := rt.Initialize(ctx); err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(rt.Status())
}

func newServeCmd(a *app) *cobra.Command {
	var (
		addr     string
		eager    bool
		prefetch bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the admin HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if addr == "" {
				addr = a.cfg.Server.Addr
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			col, err := metrics.New(reg)
			if err != nil {
				return err
			}

			fetcher := a.newFetcher()
			eng, err := a.newEngine(ctx, fetcher)
			if err != nil {
				return err
			}
			defer eng.Close(context.Background())
			col.SetAcceleratedSupported(eng.AcceleratedSupported())

			opts, err := a.runtimeOptions()
			if err != nil {
				return err
			}
			opts = append(opts, runtime.WithListener(col), runtime.WithObserver(col))
			rt := runtime.New(eng, opts...)

			if prefetch {
				mode, _ := a.cfg.RuntimeMode()
				if resolved, ok := concreteMode(mode, eng.AcceleratedSupported()); ok {
					if err := fetcher.Prefetch(ctx, resolved); err != nil {
						a.log.Warn("prefetch failed", zap.Error(err))
					}
				}
			}
			if eager {
				go func() {
					if err := rt.Initialize(ctx); err != nil {
						a.log.Warn("background initialization failed", zap.Error(err))
					}
				}()
			}

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			h := server.NewMux(rt, server.Options{
				Logger:         a.log.Named("http"),
				Gatherer:       reg,
				Metrics:        col,
				AllowedOrigins: a.cfg.Server.AllowedOrigins,
			})
			serveErr := server.Run(ctx, ln, h, a.log.Named("http"))

			destroyCtx, cancel := context.WithTimeout(context.Background(), server.ShutdownTimeout)
			defer cancel()
			return multierr.Append(serveErr, rt.Destroy(destroyCtx))
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().BoolVar(&eager, "eager", true, "initialize the runtime at startup")
	cmd.Flags().BoolVar(&prefetch, "prefetch", false, "download the module build before serving")
	return cmd
}
