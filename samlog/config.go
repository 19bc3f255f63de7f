package samlog

import (
	"fmt"

	"github.com/neehar-mavuduru/logring/logring"
)

// Kernel-style severity levels carried in every record.
const (
	LevelEmerg uint8 = iota
	LevelAlert
	LevelCrit
	LevelErr
	LevelWarning
	LevelNotice
	LevelInfo
	LevelDebug
)

// DefaultDropKey is the DropLevels entry applied to tags without their own.
const DefaultDropKey = "default"

// Config holds the configuration for one samlog ring
type Config struct {
	Enable bool `yaml:"enable"`

	// Ring configuration
	RingSize  int `yaml:"ring_size"`  // Ring size in bytes, power of two (default: 1MB)
	SpareSize int `yaml:"spare_size"` // Staging area, bounds the longest record (default: 2KB)

	// DropLevels maps a tag name, or "default", to the highest level still
	// recorded for it. -1 silences the tag.
	DropLevels map[string]int `yaml:"drop_levels"`

	PrependHeader bool `yaml:"prepend_header"`

	// Reader configuration
	MaxRecordsPerRead int `yaml:"max_records_per_read"` // 0 = unlimited
	DoubleBufferSize  int `yaml:"double_buffer_size"`   // Per-session cache (default: 16KB)
	BinaryDecodeLen   int `yaml:"binary_decode_len"`    // Bytes hex dumped per binary record (default: 64)
}

// DefaultConfig returns a configuration with baseline defaults
func DefaultConfig() Config {
	return Config{
		Enable:            true,
		RingSize:          1024 * 1024, // 1MB
		SpareSize:         2048,
		DropLevels:        map[string]int{DefaultDropKey: int(LevelDebug)},
		PrependHeader:     true,
		MaxRecordsPerRead: 0,
		DoubleBufferSize:  16 * 1024,
		BinaryDecodeLen:   logring.DefaultBinaryDecodeLen,
	}
}

// minDoubleBufferSize is the smallest session cache that still holds any
// single rendered record.
func (c *Config) minDoubleBufferSize() int {
	return c.SpareSize + 2*c.BinaryDecodeLen + 256
}

// Validate checks if the configuration is valid and applies defaults where needed
func (c *Config) Validate() error {
	if c.RingSize <= 0 {
		c.RingSize = 1024 * 1024
	}
	if c.RingSize&(c.RingSize-1) != 0 {
		return fmt.Errorf("ring size must be a power of two, got %d", c.RingSize)
	}

	if c.SpareSize <= 0 {
		c.SpareSize = 2048
	}
	if c.SpareSize <= logring.DescriptorSize || c.SpareSize >= c.RingSize {
		return fmt.Errorf("spare size %d must be in (%d, %d)", c.SpareSize, logring.DescriptorSize, c.RingSize)
	}

	if c.MaxRecordsPerRead < 0 {
		return fmt.Errorf("max records per read cannot be negative, got %d", c.MaxRecordsPerRead)
	}

	if c.BinaryDecodeLen <= 0 {
		c.BinaryDecodeLen = logring.DefaultBinaryDecodeLen
	}
	if c.BinaryDecodeLen > logring.MaxBlobSize {
		c.BinaryDecodeLen = logring.MaxBlobSize
	}

	if c.DoubleBufferSize <= 0 {
		c.DoubleBufferSize = max(16*1024, c.minDoubleBufferSize())
	}
	if need := c.minDoubleBufferSize(); c.DoubleBufferSize < need {
		return fmt.Errorf("double buffer size %d too small, need at least %d", c.DoubleBufferSize, need)
	}

	for name, level := range c.DropLevels {
		if name != DefaultDropKey {
			if _, ok := logring.TagByName(name); !ok {
				return fmt.Errorf("drop level for unknown tag %q", name)
			}
		}
		if level < -1 || level > int(LevelDebug) {
			return fmt.Errorf("drop level for %q out of range: %d", name, level)
		}
	}

	return nil
}

// dropTable resolves DropLevels into a per-tag lookup.
func (c *Config) dropTable() [256]int8 {
	def := int8(LevelDebug)
	if v, ok := c.DropLevels[DefaultDropKey]; ok {
		def = int8(v)
	}
	var t [256]int8
	for i := range t {
		t[i] = def
	}
	for name, level := range c.DropLevels {
		if tag, ok := logring.TagByName(name); ok {
			t[tag] = int8(level)
		}
	}
	return t
}
