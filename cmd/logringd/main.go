// Command logringd hosts named event rings and serves them over gRPC.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/neehar-mavuduru/logring/dump"
	"github.com/neehar-mavuduru/logring/internal/appconfig"
	"github.com/neehar-mavuduru/logring/internal/applog"
	"github.com/neehar-mavuduru/logring/logring"
	"github.com/neehar-mavuduru/logring/rpc"
	"github.com/neehar-mavuduru/logring/samlog"
	"github.com/neehar-mavuduru/logring/uploader"
)

const gracefulTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "/etc/logring/logringd.yaml", "Path to the YAML configuration file")
	pprofAddr := flag.String("pprof", "", "Serve net/http/pprof on this address (disabled when empty)")
	statsInterval := flag.Duration("stats-interval", time.Minute, "Interval between ring statistics log lines (0 disables)")
	flag.Parse()

	cfg, err := appconfig.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logringd: %v\n", err)
		os.Exit(1)
	}

	log, closeLog, err := applog.New(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logringd: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	if err := run(cfg, log, *pprofAddr, *statsInterval); err != nil {
		log.Error("logringd failed", "error", err)
		closeLog()
		os.Exit(1)
	}
}

func run(cfg *appconfig.Config, log *slog.Logger, pprofAddr string, statsInterval time.Duration) error {
	manager, err := samlog.NewManager(cfg.Samlog, samlog.WithSlog(log))
	if err != nil {
		return err
	}
	defer func() {
		total, dropped, filtered, bytes := manager.Totals()
		if err := manager.Close(); err != nil {
			log.Error("closing rings", "error", err)
		}
		log.Info("rings closed", "total_logs", total, "dropped_logs", dropped, "filtered_logs", filtered, "bytes", bytes)
	}()

	for _, name := range cfg.Rings {
		l, err := manager.Get(name)
		if err != nil {
			return fmt.Errorf("ring %q: %w", name, err)
		}
		l.Printf(logring.TagWLBT, samlog.LevelNotice, "logringd: ring %s ready (%d bytes)\n", l.Name(), cfg.Samlog.RingSize)
	}
	log.Info("rings initialized", "rings", manager.Names(), "ring_size", cfg.Samlog.RingSize)

	var up *uploader.Uploader
	if cfg.Upload != nil {
		up, err = uploader.NewUploader(*cfg.Upload, log)
		if err != nil {
			return fmt.Errorf("uploader: %w", err)
		}
		up.Start()
		log.Info("dump upload enabled", "bucket", cfg.Upload.Bucket, "prefix", cfg.Upload.ObjectPrefix)
	}

	var dumper *dump.Writer
	if cfg.Dump.Dir != "" {
		dcfg := dump.Config{Dir: cfg.Dump.Dir, PreallocateSize: cfg.Dump.PreallocateSize}
		if up != nil {
			dcfg.UploadChannel = up.UploadChannel()
		}
		dumper, err = dump.NewWriter(dcfg, log)
		if err != nil {
			if up != nil {
				up.Stop()
			}
			return fmt.Errorf("dump: %w", err)
		}
	}

	lis, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		if up != nil {
			up.Stop()
		}
		return fmt.Errorf("failed to listen on %s: %w", cfg.Listen, err)
	}

	grpcServer := grpc.NewServer()
	rpc.RegisterLogRingServer(grpcServer, rpc.NewServer(manager, dumper, log))

	if pprofAddr != "" {
		go func() {
			log.Info("starting pprof server", "addr", pprofAddr)
			if err := http.ListenAndServe(pprofAddr, nil); err != nil {
				log.Warn("pprof server error", "error", err)
			}
		}()
	}

	bgCtx, stopBackground := context.WithCancel(context.Background())
	var bg sync.WaitGroup
	if dumper != nil && cfg.Dump.Interval > 0 {
		bg.Add(1)
		go func() {
			defer bg.Done()
			dumper.Run(bgCtx, manager, cfg.Dump.Interval)
		}()
	}
	if statsInterval > 0 {
		bg.Add(1)
		go func() {
			defer bg.Done()
			reportStats(bgCtx, log, manager, up, statsInterval)
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("serving", "addr", lis.Addr().String())
		serveErr <- grpcServer.Serve(lis)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		log.Info("shutting down", "signal", sig.String())
	case err := <-serveErr:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			runErr = fmt.Errorf("serve: %w", err)
		}
	}

	stopServer(grpcServer, log)
	stopBackground()
	bg.Wait()

	if dumper != nil && cfg.Dump.OnExit {
		ctx, cancel := context.WithTimeout(context.Background(), gracefulTimeout)
		paths, err := dumper.DumpAll(ctx, manager)
		cancel()
		if err != nil {
			log.Error("exit dump incomplete", "error", err)
		}
		log.Info("exit dump written", "files", len(paths))
	}

	if up != nil {
		if err := up.Stop(); err != nil {
			log.Error("stopping uploader", "error", err)
		}
		st := up.Stats()
		log.Info("uploader stopped", "files", st.TotalFiles, "bytes", st.TotalBytes, "failed", st.Failed)
	}
	return runErr
}

// stopServer drains RPCs, then forces the remaining follow streams closed.
func stopServer(s *grpc.Server, log *slog.Logger) {
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(gracefulTimeout):
		log.Warn("graceful stop timed out, closing open streams")
		s.Stop()
		<-done
	}
}

func reportStats(ctx context.Context, log *slog.Logger, m *samlog.Manager, up *uploader.Uploader, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for name, st := range m.StatsSnapshot() {
			log.Info("ring stats",
				"ring", name,
				"records", st.Records,
				"logged_bytes", st.LoggedBytes,
				"wraps", st.Wraps,
				"oos", st.OOS,
				"total_logs", st.TotalLogs,
				"dropped_logs", st.DroppedLogs,
				"filtered_logs", st.FilteredLogs,
				"sessions", st.Sessions,
			)
		}
		if up != nil {
			st := up.Stats()
			log.Info("upload stats", "files", st.TotalFiles, "bytes", st.TotalBytes, "failed", st.Failed)
		}
	}
}
