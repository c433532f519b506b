package recorder

import (
	"time"

	"github.com/yanun0323/errors"

	"tradecore/pkg/exception"
)

const (
	defaultSegmentMaxBytes int64 = 1 << 30
	defaultQueueSize             = 4096
	defaultBufferSize            = 256 * 1024
	defaultMaxPayloadSize        = 1 << 20
	defaultFilePrefix            = "events"
	segmentSuffix                = ".evt"
)

var defaultSegmentMaxDuration = 5 * time.Minute

// Config controls writer behavior.
type Config struct {
	Dir                string        `json:"dir"`
	SegmentMaxBytes    int64         `json:"segmentMaxBytes"`
	SegmentMaxDuration time.Duration `json:"segmentMaxDuration"`
	QueueSize          int           `json:"queueSize"`
	BufferSize         int           `json:"bufferSize"`
	MaxPayloadSize     int           `json:"maxPayloadSize"`
	FilePrefix         string        `json:"filePrefix"`
	FlushInterval      time.Duration `json:"flushInterval"`
	SyncInterval       time.Duration `json:"syncInterval"`
}

// DefaultConfig returns a baseline configuration for dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:                dir,
		SegmentMaxBytes:    defaultSegmentMaxBytes,
		SegmentMaxDuration: defaultSegmentMaxDuration,
		QueueSize:          defaultQueueSize,
		BufferSize:         defaultBufferSize,
		MaxPayloadSize:     defaultMaxPayloadSize,
		FilePrefix:         defaultFilePrefix,
		FlushInterval:      time.Second,
	}
}

func (c Config) withDefaults() Config {
	if c.SegmentMaxBytes == 0 {
		c.SegmentMaxBytes = defaultSegmentMaxBytes
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.BufferSize == 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.MaxPayloadSize == 0 {
		c.MaxPayloadSize = defaultMaxPayloadSize
	}
	if c.FilePrefix == "" {
		c.FilePrefix = defaultFilePrefix
	}
	return c
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	switch {
	case c.Dir == "":
		return errors.Wrap(exception.ErrConfigInvalid, "recorder dir is empty")
	case c.SegmentMaxBytes <= 0:
		return errors.Wrap(exception.ErrConfigInvalid, "recorder segmentMaxBytes must be > 0")
	case c.QueueSize <= 0:
		return errors.Wrap(exception.ErrConfigInvalid, "recorder queueSize must be > 0")
	case c.BufferSize <= 0:
		return errors.Wrap(exception.ErrConfigInvalid, "recorder bufferSize must be > 0")
	case c.MaxPayloadSize <= 0:
		return errors.Wrap(exception.ErrConfigInvalid, "recorder maxPayloadSize must be > 0")
	case c.FilePrefix == "":
		return errors.Wrap(exception.ErrConfigInvalid, "recorder filePrefix is empty")
	case c.FlushInterval < 0 || c.SyncInterval < 0:
		return errors.Wrap(exception.ErrConfigInvalid, "recorder intervals must be >= 0")
	}
	return nil
}
