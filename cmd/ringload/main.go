// Command ringload drives concurrent producers and follow readers against
// in-process rings and reports throughput, drops and resyncs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/neehar-mavuduru/logring/internal/applog"
	"github.com/neehar-mavuduru/logring/logring"
	"github.com/neehar-mavuduru/logring/samlog"
)

var bytesRead atomic.Int64

func main() {
	var (
		duration    = flag.Duration("duration", 30*time.Second, "Test duration")
		ringKB      = flag.Int("ring-kb", 1024, "Ring size in KB (power of two)")
		rings       = flag.String("rings", "wlbt,mxman,mif", "Comma separated ring names")
		rps         = flag.Int("rps", 20000, "Records per second per ring")
		threads     = flag.Int("threads", 8, "Producer goroutines per ring")
		readers     = flag.Int("readers", 1, "Follow readers per ring")
		msgSize     = flag.Int("msg-size", 120, "Text payload size in bytes")
		binaryRatio = flag.Float64("binary-ratio", 0.1, "Fraction of records written as binary blobs")
		level       = flag.String("log-level", "info", "Log level")
	)
	flag.Parse()

	log, closeLog, err := applog.New(applog.Config{Level: *level, Output: "stdout"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ringload: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	config := samlog.DefaultConfig()
	config.RingSize = *ringKB * 1024
	manager, err := samlog.NewManager(config, samlog.WithSlog(log))
	if err != nil {
		log.Error("failed to create manager", "error", err)
		os.Exit(1)
	}
	defer manager.Close()

	names := strings.Split(*rings, ",")
	for _, name := range names {
		if _, err := manager.Get(name); err != nil {
			log.Error("failed to create ring", "ring", name, "error", err)
			os.Exit(1)
		}
	}

	log.Info("starting ring load test",
		"duration", *duration,
		"ring_kb", *ringKB,
		"rings", names,
		"rps", *rps,
		"threads", *threads,
		"readers", *readers,
		"msg_size", *msgSize,
	)

	payload := strings.Repeat("x", *msgSize) + "\n"
	blob := make([]byte, logring.MaxBlobSize)
	for i := range blob {
		blob[i] = byte(rand.Intn(256))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	var readerWg sync.WaitGroup
	readCtx, stopReaders := context.WithCancel(context.Background())
	for _, name := range names {
		l, _ := manager.Lookup(name)
		for i := 0; i < *readers; i++ {
			readerWg.Add(1)
			go func() {
				defer readerWg.Done()
				follow(readCtx, log, l)
			}()
		}
	}

	var statsWg sync.WaitGroup
	statsWg.Add(1)
	go func() {
		defer statsWg.Done()
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				printStats(log, manager)
			case <-ctx.Done():
				return
			}
		}
	}()

	start := time.Now()
	var workerWg sync.WaitGroup
	if *rps > 0 && *threads > 0 {
		interval := time.Duration(float64(time.Second) / (float64(*rps) / float64(*threads)))
		for _, name := range names {
			l, _ := manager.Lookup(name)
			for i := 0; i < *threads; i++ {
				workerWg.Add(1)
				go func(seed int64) {
					defer workerWg.Done()
					worker(ctx, l, payload, blob, *binaryRatio, interval, seed)
				}(int64(i))
			}
		}
	}

	workerWg.Wait()
	statsWg.Wait()
	stopReaders()
	readerWg.Wait()

	log.Info("=== final statistics ===")
	printStats(log, manager)
	log.Info("test completed", "elapsed", time.Since(start), "bytes_read", bytesRead.Load())
}

func worker(ctx context.Context, l *samlog.Logger, payload string, blob []byte, binaryRatio float64, interval time.Duration, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for seq := 0; ; seq++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if rng.Float64() < binaryRatio {
			l.PrintBin(logring.TagBinary, samlog.LevelDebug, blob[:1+rng.Intn(len(blob))])
			continue
		}
		l.Printf(logring.TagWLBT, samlog.LevelInfo, "seq=%d %s", seq, payload)
	}
}

func follow(ctx context.Context, log *slog.Logger, l *samlog.Logger) {
	s, err := l.OpenSession(samlog.SessionOptions{})
	if err != nil {
		log.Error("failed to open session", "ring", l.Name(), "error", err)
		return
	}
	defer s.Close()

	buf := make([]byte, 32*1024)
	for {
		n, err := s.ReadContext(ctx, buf)
		bytesRead.Add(int64(n))
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
				log.Warn("reader stopped", "ring", l.Name(), "error", err)
			}
			return
		}
	}
}

func printStats(log *slog.Logger, m *samlog.Manager) {
	for _, name := range m.Names() {
		l, ok := m.Lookup(name)
		if !ok {
			continue
		}
		st := l.Stats()
		dropRate := 0.0
		if st.TotalLogs > 0 {
			dropRate = float64(st.DroppedLogs) / float64(st.TotalLogs) * 100.0
		}
		log.Info("ring",
			"name", name,
			"logs", st.TotalLogs,
			"dropped", st.DroppedLogs,
			"drop_rate_pct", fmt.Sprintf("%.4f", dropRate),
			"bytes", st.BytesWritten,
			"records", st.Records,
			"wraps", st.Wraps,
			"oos", st.OOS,
		)
	}
}
