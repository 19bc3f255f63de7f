package rpc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/neehar-mavuduru/logring/dump"
	"github.com/neehar-mavuduru/logring/logring"
	"github.com/neehar-mavuduru/logring/samlog"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type fixture struct {
	manager *samlog.Manager
	client  *Client
}

func startServer(t *testing.T, withDumps bool) *fixture {
	t.Helper()

	cfg := samlog.DefaultConfig()
	cfg.RingSize = 4096
	cfg.SpareSize = 512
	cfg.DoubleBufferSize = 1024
	cfg.PrependHeader = false
	m, err := samlog.NewManager(cfg, samlog.WithSlog(quiet))
	require.NoError(t, err)

	var dumper *dump.Writer
	if withDumps {
		dumper, err = dump.NewWriter(dump.Config{Dir: t.TempDir()}, quiet)
		require.NoError(t, err)
	}

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterLogRingServer(srv, NewServer(m, dumper, quiet))
	go srv.Serve(lis)

	client, err := Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
		srv.Stop()
		m.Close()
	})
	return &fixture{manager: m, client: client}
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestServer_InjectAndTail(t *testing.T) {
	f := startServer(t, false)
	ctx := testContext(t)

	n, err := f.client.Inject(ctx, "wlbt", "hello\n")
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)

	l, ok := f.manager.Lookup("wlbt")
	require.True(t, ok)
	l.Print(logring.TagMIF, samlog.LevelInfo, "world\n")

	var out bytes.Buffer
	total, err := f.client.Tail(ctx, TailOptions{Ring: "wlbt"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "hello\nworld\n", out.String())
	assert.Equal(t, int64(12), total)
}

func TestServer_TailLargeRingInChunks(t *testing.T) {
	f := startServer(t, false)
	ctx := testContext(t)

	l, err := f.manager.Get("big")
	require.NoError(t, err)
	var want strings.Builder
	for i := 0; i < 50; i++ {
		line := strings.Repeat("q", 40) + "\n"
		l.Print(logring.TagMIF, samlog.LevelInfo, line)
		want.WriteString(line)
	}

	var out bytes.Buffer
	_, err = f.client.Tail(ctx, TailOptions{Ring: "big"}, &out)
	require.NoError(t, err)
	assert.Equal(t, want.String(), out.String())
}

func TestServer_TailFollow(t *testing.T) {
	f := startServer(t, false)
	l, err := f.manager.Get("live")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pr, pw := io.Pipe()
	errc := make(chan error, 1)
	go func() {
		_, err := f.client.Tail(ctx, TailOptions{Ring: "live", Follow: true}, pw)
		pw.CloseWithError(err)
		errc <- err
	}()

	go func() {
		time.Sleep(20 * time.Millisecond)
		l.Print(logring.TagMIF, samlog.LevelInfo, "streamed\n")
	}()

	buf := make([]byte, len("streamed\n"))
	_, err = io.ReadFull(pr, buf)
	require.NoError(t, err)
	assert.Equal(t, "streamed\n", string(buf))

	cancel()
	select {
	case err := <-errc:
		assert.Equal(t, codes.Canceled, status.Code(err))
	case <-time.After(5 * time.Second):
		t.Fatal("follow did not stop on cancel")
	}
}

func TestServer_TailErrors(t *testing.T) {
	f := startServer(t, false)
	ctx := testContext(t)

	_, err := f.client.Tail(ctx, TailOptions{Ring: "missing"}, io.Discard)
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = f.client.Tail(ctx, TailOptions{}, io.Discard)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestServer_InjectErrors(t *testing.T) {
	f := startServer(t, false)
	ctx := testContext(t)

	_, err := f.client.Inject(ctx, "", "x")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = f.client.Inject(ctx, "wlbt", strings.Repeat("z", 600))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestServer_Dump(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		f := startServer(t, false)
		_, err := f.client.Dump(testContext(t), "wlbt")
		assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	})

	t.Run("writes snapshot", func(t *testing.T) {
		f := startServer(t, true)
		ctx := testContext(t)

		_, err := f.client.Inject(ctx, "wlbt", "dump me\n")
		require.NoError(t, err)

		path, err := f.client.Dump(ctx, "wlbt")
		require.NoError(t, err)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "dump me\n", string(data))

		_, err = f.client.Dump(ctx, "nope")
		assert.Equal(t, codes.NotFound, status.Code(err))
	})
}

func TestServer_Stats(t *testing.T) {
	f := startServer(t, false)
	ctx := testContext(t)

	_, err := f.client.Inject(ctx, "a", "one\n")
	require.NoError(t, err)
	_, err = f.client.Inject(ctx, "b", "two\n")
	require.NoError(t, err)
	_, err = f.client.Inject(ctx, "b", "three\n")
	require.NoError(t, err)

	rings, err := f.client.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, rings, 2)

	b, ok := rings["b"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(2), b["records"])
	assert.Equal(t, float64(4096), b["size"])
	assert.Equal(t, float64(2), b["total_logs"])
}

func TestToStatus(t *testing.T) {
	assert.NoError(t, toStatus(nil))
	assert.Equal(t, codes.Unavailable, status.Code(toStatus(samlog.ErrClosed)))
	assert.Equal(t, codes.ResourceExhausted, status.Code(toStatus(fmt.Errorf("tail: %w", samlog.ErrStalled))))
	assert.Equal(t, codes.Canceled, status.Code(toStatus(context.Canceled)))
	assert.Equal(t, codes.DeadlineExceeded, status.Code(toStatus(context.DeadlineExceeded)))
	assert.Equal(t, codes.Internal, status.Code(toStatus(io.ErrUnexpectedEOF)))

	already := status.Error(codes.NotFound, "x")
	assert.Equal(t, already, toStatus(already))
}
