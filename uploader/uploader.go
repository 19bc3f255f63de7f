// Package uploader ships completed dump files to Google Cloud Storage.
package uploader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Uploader handles uploading completed dump files to GCS
type Uploader struct {
	config     GCSUploadConfig
	store      ObjectStore
	chunkMgr   *ChunkManager
	log        *slog.Logger
	uploadChan chan string
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc

	statsMu     sync.RWMutex
	uploadStats Stats

	now func() time.Time
}

// Stats tracks upload statistics
type Stats struct {
	TotalFiles     int64
	Successful     int64
	Failed         int64
	TotalBytes     int64
	TotalDuration  time.Duration
	LastUploadTime time.Time
}

// NewUploader creates a GCS uploader service
func NewUploader(config GCSUploadConfig, log *slog.Logger) (*Uploader, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	store, err := newGCSStore(context.Background(), config)
	if err != nil {
		return nil, err
	}
	return newUploader(config, store, log), nil
}

// NewUploaderWithStore creates an uploader writing to store instead of GCS.
func NewUploaderWithStore(config GCSUploadConfig, store ObjectStore, log *slog.Logger) (*Uploader, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return newUploader(config, store, log), nil
}

func newUploader(config GCSUploadConfig, store ObjectStore, log *slog.Logger) *Uploader {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Uploader{
		config:     config,
		store:      store,
		chunkMgr:   NewChunkManager(store, config.MaxChunksPerCompose, log),
		log:        log,
		uploadChan: make(chan string, config.ChannelBufferSize),
		ctx:        ctx,
		cancel:     cancel,
		now:        time.Now,
	}
}

// Start starts the upload worker
func (u *Uploader) Start() {
	u.wg.Add(1)
	go u.uploadWorker()
}

// Stop drains queued files, then stops the worker and closes the store.
// Nothing may be sent on the upload channel afterwards.
func (u *Uploader) Stop() error {
	close(u.uploadChan)
	u.wg.Wait()
	u.cancel()
	return u.store.Close()
}

// UploadChannel returns the channel to send file paths for upload
func (u *Uploader) UploadChannel() chan<- string {
	return u.uploadChan
}

// Stats returns current upload statistics
func (u *Uploader) Stats() Stats {
	u.statsMu.RLock()
	defer u.statsMu.RUnlock()
	return u.uploadStats
}

func (u *Uploader) uploadWorker() {
	defer u.wg.Done()

	for filePath := range u.uploadChan {
		if filePath == "" {
			continue
		}

		err := u.UploadWithRetry(u.ctx, filePath)

		u.statsMu.Lock()
		u.uploadStats.TotalFiles++
		if err != nil {
			u.uploadStats.Failed++
		} else {
			u.uploadStats.Successful++
			u.uploadStats.LastUploadTime = u.now()
		}
		u.statsMu.Unlock()

		if err != nil {
			u.log.Error("upload failed", "path", filePath, "retries", u.config.MaxRetries, "error", err)
		}
	}
}

// UploadWithRetry uploads filePath, retrying failed attempts after
// RetryDelay.
func (u *Uploader) UploadWithRetry(ctx context.Context, filePath string) error {
	var lastErr error
	for attempt := 0; attempt <= u.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("upload of %s abandoned: %w", filePath, ctx.Err())
			case <-time.After(u.config.RetryDelay):
			}
		}

		start := time.Now()
		size, err := u.Upload(ctx, filePath)
		if err == nil {
			u.statsMu.Lock()
			u.uploadStats.TotalBytes += size
			u.uploadStats.TotalDuration += time.Since(start)
			u.statsMu.Unlock()
			return nil
		}

		lastErr = err
		if attempt < u.config.MaxRetries {
			u.log.Warn("upload attempt failed, retrying",
				"attempt", attempt+1, "of", u.config.MaxRetries+1, "path", filePath, "error", err)
		}
	}
	return fmt.Errorf("upload failed after %d attempts: %w", u.config.MaxRetries+1, lastErr)
}

// Upload sends one file as chunks composed into a single object and removes
// the local copy on success. It returns the uploaded size.
func (u *Uploader) Upload(ctx context.Context, filePath string) (int64, error) {
	buf, err := os.ReadFile(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to read file: %w", err)
	}

	object := u.ObjectName(filePath)
	if err := u.uploadParallel(ctx, object, buf); err != nil {
		return 0, fmt.Errorf("parallel upload failed: %w", err)
	}

	if err := os.Remove(filePath); err != nil {
		u.log.Warn("failed to delete local file after upload", "path", filePath, "error", err)
	}
	return int64(len(buf)), nil
}

// ObjectName maps a local dump path to its object name
func (u *Uploader) ObjectName(filePath string) string {
	return u.config.ObjectPrefix + filepath.Base(filePath)
}

// uploadParallel uploads chunks in parallel and composes them into object
func (u *Uploader) uploadParallel(ctx context.Context, object string, buf []byte) error {
	if len(buf) == 0 {
		return u.store.Write(ctx, object, buf)
	}

	chunkSize := u.config.ChunkSize
	numChunks := (len(buf) + chunkSize - 1) / chunkSize
	tempPrefix := fmt.Sprintf("%s.tmp.%d", object, u.now().UnixNano())

	chunkObjects := make([]string, numChunks)
	errs := make([]error, numChunks)
	var wg sync.WaitGroup

	for i := range numChunks {
		chunkObjects[i] = fmt.Sprintf("%s.chunk.%d", tempPrefix, i)
		data := buf[i*chunkSize : min((i+1)*chunkSize, len(buf))]

		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = u.store.Write(ctx, chunkObjects[i], data)
		}()
	}
	wg.Wait()
	defer u.chunkMgr.cleanup(ctx, chunkObjects)

	for i, err := range errs {
		if err != nil {
			return fmt.Errorf("chunk %d failed: %w", i, err)
		}
	}

	if err := u.chunkMgr.Compose(ctx, object, chunkObjects); err != nil {
		return fmt.Errorf("compose error: %w", err)
	}

	size, err := u.store.Size(ctx, object)
	if err != nil {
		return fmt.Errorf("failed to get object attributes: %w", err)
	}
	if size != int64(len(buf)) {
		_ = u.store.Delete(ctx, object)
		return fmt.Errorf("size mismatch: expected %d bytes, got %d bytes", len(buf), size)
	}
	return nil
}
