package uploader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory ObjectStore.
type memStore struct {
	mu         sync.Mutex
	objects    map[string][]byte
	failWrites int // fail this many Write calls first
	composes   int
	closed     bool
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (s *memStore) Write(_ context.Context, object string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites > 0 {
		s.failWrites--
		return errors.New("injected write failure")
	}
	s.objects[object] = bytes.Clone(data)
	return nil
}

func (s *memStore) Compose(_ context.Context, object string, sources []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(sources) > 32 {
		return fmt.Errorf("too many sources: %d", len(sources))
	}
	var out []byte
	for _, src := range sources {
		data, ok := s.objects[src]
		if !ok {
			return fmt.Errorf("missing source %s", src)
		}
		out = append(out, data...)
	}
	s.objects[object] = out
	s.composes++
	return nil
}

func (s *memStore) Size(_ context.Context, object string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[object]
	if !ok {
		return 0, fmt.Errorf("not found: %s", object)
	}
	return int64(len(data)), nil
}

func (s *memStore) Delete(_ context.Context, object string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[object]; !ok {
		return fmt.Errorf("not found: %s", object)
	}
	delete(s.objects, object)
	return nil
}

func (s *memStore) Close() error {
	s.closed = true
	return nil
}

func (s *memStore) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for name := range s.objects {
		out = append(out, name)
	}
	return out
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func testConfig() GCSUploadConfig {
	cfg := DefaultGCSUploadConfig("dumps")
	cfg.ObjectPrefix = "wlbt/"
	cfg.ChunkSize = 4
	cfg.RetryDelay = time.Millisecond
	return cfg
}

func writeDump(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wlbt_2024-03-01_12-30-00.000000.log")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestGCSUploadConfig_Validate(t *testing.T) {
	cfg := GCSUploadConfig{Bucket: "b"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8*1024*1024, cfg.ChunkSize)
	assert.Equal(t, 32, cfg.MaxChunksPerCompose)
	assert.Equal(t, 5*time.Second, cfg.RetryDelay)
	assert.Equal(t, 100, cfg.ChannelBufferSize)

	assert.Error(t, (&GCSUploadConfig{}).Validate())
	assert.Error(t, (&GCSUploadConfig{Bucket: "b", MaxChunksPerCompose: 64}).Validate())
	assert.Error(t, (&GCSUploadConfig{Bucket: "b", MaxRetries: -1}).Validate())
}

func TestUploader_ObjectName(t *testing.T) {
	store := newMemStore()
	u, err := NewUploaderWithStore(testConfig(), store, quiet)
	require.NoError(t, err)
	assert.Equal(t, "wlbt/ring_1.log", u.ObjectName("/var/dumps/ring_1.log"))

	cfg := testConfig()
	cfg.ObjectPrefix = ""
	u, err = NewUploaderWithStore(cfg, store, quiet)
	require.NoError(t, err)
	assert.Equal(t, "ring_1.log", u.ObjectName("ring_1.log"))
}

func TestUploader_UploadComposesChunks(t *testing.T) {
	store := newMemStore()
	u, err := NewUploaderWithStore(testConfig(), store, quiet)
	require.NoError(t, err)

	content := "line one\nline two\n"
	path := writeDump(t, content)

	size, err := u.Upload(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), size)

	object := u.ObjectName(path)
	assert.Equal(t, []string{object}, store.names(), "temporary chunks are removed")
	assert.Equal(t, content, string(store.objects[object]))

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "local file removed after upload")
}

func TestUploader_MultiLevelCompose(t *testing.T) {
	store := newMemStore()
	cfg := testConfig()
	cfg.ChunkSize = 1
	cfg.MaxChunksPerCompose = 2
	u, err := NewUploaderWithStore(cfg, store, quiet)
	require.NoError(t, err)

	content := "abcdefghijk"
	path := writeDump(t, content)

	_, err = u.Upload(context.Background(), path)
	require.NoError(t, err)

	object := u.ObjectName(path)
	assert.Equal(t, content, string(store.objects[object]))
	assert.Equal(t, []string{object}, store.names())
	assert.Greater(t, store.composes, 1)
}

func TestUploader_EmptyFile(t *testing.T) {
	store := newMemStore()
	u, err := NewUploaderWithStore(testConfig(), store, quiet)
	require.NoError(t, err)

	path := writeDump(t, "")
	size, err := u.Upload(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, int64(0), size)
	assert.Equal(t, []string{u.ObjectName(path)}, store.names())
}

func TestUploader_RetryThenSucceed(t *testing.T) {
	store := newMemStore()
	store.failWrites = 1
	cfg := testConfig()
	cfg.ChunkSize = 1024
	cfg.MaxRetries = 2
	u, err := NewUploaderWithStore(cfg, store, quiet)
	require.NoError(t, err)

	path := writeDump(t, "payload\n")
	require.NoError(t, u.UploadWithRetry(context.Background(), path))
	assert.Equal(t, "payload\n", string(store.objects[u.ObjectName(path)]))
	assert.Equal(t, int64(8), u.Stats().TotalBytes)
}

func TestUploader_RetryExhausted(t *testing.T) {
	store := newMemStore()
	store.failWrites = 100
	cfg := testConfig()
	cfg.ChunkSize = 1024
	cfg.MaxRetries = 2
	u, err := NewUploaderWithStore(cfg, store, quiet)
	require.NoError(t, err)

	path := writeDump(t, "payload\n")
	err = u.UploadWithRetry(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 97, store.failWrites)

	_, statErr := os.Stat(path)
	assert.NoError(t, statErr, "local file kept after failure")
}

func TestUploader_RetryCancelled(t *testing.T) {
	store := newMemStore()
	store.failWrites = 100
	cfg := testConfig()
	cfg.ChunkSize = 1024
	cfg.RetryDelay = time.Hour
	u, err := NewUploaderWithStore(cfg, store, quiet)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = u.UploadWithRetry(ctx, writeDump(t, "x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUploader_Worker(t *testing.T) {
	store := newMemStore()
	u, err := NewUploaderWithStore(testConfig(), store, quiet)
	require.NoError(t, err)
	u.Start()

	good := writeDump(t, "good\n")
	u.UploadChannel() <- good
	u.UploadChannel() <- ""
	u.UploadChannel() <- filepath.Join(t.TempDir(), "missing.log")

	require.NoError(t, u.Stop())
	assert.True(t, store.closed)

	st := u.Stats()
	assert.Equal(t, int64(2), st.TotalFiles)
	assert.Equal(t, int64(1), st.Successful)
	assert.Equal(t, int64(1), st.Failed)
	assert.Equal(t, int64(5), st.TotalBytes)
	assert.False(t, st.LastUploadTime.IsZero())

	names := strings.Join(store.names(), ",")
	assert.Contains(t, names, filepath.Base(good))
}
