package uploader

import (
	"fmt"
	"time"
)

// GCSUploadConfig holds configuration for the GCS uploader
type GCSUploadConfig struct {
	Bucket       string `yaml:"bucket"`        // GCS bucket name (required)
	ObjectPrefix string `yaml:"object_prefix"` // Object prefix (e.g., "dumps/wlbt/")

	// Endpoint overrides the storage endpoint and disables authentication,
	// for emulators.
	Endpoint string `yaml:"endpoint"`
	UseGRPC  bool   `yaml:"use_grpc"`

	ChunkSize           int           `yaml:"chunk_size"`             // Chunk size for parallel upload (default: 8MB)
	MaxChunksPerCompose int           `yaml:"max_chunks_per_compose"` // Maximum chunks per compose (default: 32)
	MaxRetries          int           `yaml:"max_retries"`            // Max retry attempts (default: 3)
	RetryDelay          time.Duration `yaml:"retry_delay"`            // Delay between retries (default: 5s)
	GRPCPoolSize        int           `yaml:"grpc_pool_size"`         // gRPC connection pool size (default: 4)
	ChannelBufferSize   int           `yaml:"channel_buffer_size"`    // Upload channel buffer size (default: 100)
}

// DefaultGCSUploadConfig returns a GCS upload configuration with defaults
func DefaultGCSUploadConfig(bucket string) GCSUploadConfig {
	return GCSUploadConfig{
		Bucket:              bucket,
		ChunkSize:           8 * 1024 * 1024, // 8MB
		MaxChunksPerCompose: 32,              // GCS limit
		MaxRetries:          3,
		RetryDelay:          5 * time.Second,
		GRPCPoolSize:        4,
		ChannelBufferSize:   100,
	}
}

// Validate checks if the GCS upload configuration is valid and applies defaults
func (g *GCSUploadConfig) Validate() error {
	if g.Bucket == "" {
		return fmt.Errorf("bucket name is required")
	}

	if g.ChunkSize <= 0 {
		g.ChunkSize = 8 * 1024 * 1024
	}

	if g.MaxChunksPerCompose <= 0 {
		g.MaxChunksPerCompose = 32
	}
	if g.MaxChunksPerCompose < 2 || g.MaxChunksPerCompose > 32 {
		return fmt.Errorf("max chunks per compose must be in [2, 32], got %d", g.MaxChunksPerCompose)
	}

	if g.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}

	if g.RetryDelay <= 0 {
		g.RetryDelay = 5 * time.Second
	}

	if g.GRPCPoolSize <= 0 {
		g.GRPCPoolSize = 4
	}

	if g.ChannelBufferSize <= 0 {
		g.ChannelBufferSize = 100
	}

	return nil
}
