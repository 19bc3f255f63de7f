// Command logringctl talks to a running logringd.
//
//	logringctl [-addr host:port] tail [-f] [-snapshot] [-truncate] <ring>
//	logringctl [-addr host:port] dump <ring>
//	logringctl [-addr host:port] inject <ring> <message...>
//	logringctl [-addr host:port] stats
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/neehar-mavuduru/logring/rpc"
)

const defaultTimeout = 10 * time.Second

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [-addr host:port] <tail|dump|inject|stats> [args]\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	addr := flag.String("addr", "127.0.0.1:7420", "logringd address")
	timeout := flag.Duration("timeout", defaultTimeout, "Timeout for unary calls")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	client, err := rpc.Dial(*addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logringctl: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := flag.Args()
	switch args[0] {
	case "tail":
		err = runTail(ctx, client, args[1:])
	case "dump":
		err = runDump(ctx, client, *timeout, args[1:])
	case "inject":
		err = runInject(ctx, client, *timeout, args[1:])
	case "stats":
		err = runStats(ctx, client, *timeout, os.Stdout)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "logringctl %s: %v\n", args[0], err)
		os.Exit(1)
	}
}

func runTail(ctx context.Context, client *rpc.Client, args []string) error {
	fs := flag.NewFlagSet("tail", flag.ExitOnError)
	follow := fs.Bool("f", false, "Keep streaming new records")
	snapshot := fs.Bool("snapshot", false, "Read a frozen copy of the ring")
	truncate := fs.Bool("truncate", false, "Discard the ring contents before reading")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("expected exactly one ring name")
	}

	_, err := client.Tail(ctx, rpc.TailOptions{
		Ring:     fs.Arg(0),
		Follow:   *follow,
		Snapshot: *snapshot,
		Truncate: *truncate,
	}, os.Stdout)
	if status.Code(err) == codes.Canceled {
		return nil
	}
	return err
}

func runDump(ctx context.Context, client *rpc.Client, timeout time.Duration, args []string) error {
	if len(args) != 1 {
		return errors.New("expected exactly one ring name")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	path, err := client.Dump(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func runInject(ctx context.Context, client *rpc.Client, timeout time.Duration, args []string) error {
	if len(args) < 2 {
		return errors.New("expected a ring name and a message")
	}
	msg := strings.Join(args[1:], " ")
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := client.Inject(ctx, args[0], msg)
	return err
}

func runStats(ctx context.Context, client *rpc.Client, timeout time.Duration, w io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rings, err := client.Stats(ctx)
	if err != nil {
		return err
	}
	printStats(w, rings)
	return nil
}

var statColumns = []string{"records", "logged_bytes", "free_bytes", "wraps", "oos", "total_logs", "dropped_logs", "filtered_logs", "sessions"}

func printStats(w io.Writer, rings map[string]any) {
	names := make([]string, 0, len(rings))
	for name := range rings {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(w, "%-16s", "ring")
	for _, col := range statColumns {
		fmt.Fprintf(w, " %14s", col)
	}
	fmt.Fprintln(w)

	for _, name := range names {
		fields, _ := rings[name].(map[string]any)
		fmt.Fprintf(w, "%-16s", name)
		for _, col := range statColumns {
			v, _ := fields[col].(float64)
			fmt.Fprintf(w, " %14d", int64(v))
		}
		fmt.Fprintln(w)
	}
}
