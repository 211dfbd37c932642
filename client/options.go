package client

import (
	"time"

	"go.uber.org/zap"

	"idrpc/codec"
)

const (
	defaultDialTimeout    = 10 * time.Second
	defaultReadBufferSize = 4096
)

// Option configures a Client.
type Option func(*options)

type options struct {
	codec          codec.Codec
	logger         *zap.Logger
	dialTimeout    time.Duration
	readBufferSize int
}

func defaultOptions() *options {
	return &options{
		codec:          &codec.JSONCodec{},
		logger:         zap.NewNop(),
		dialTimeout:    defaultDialTimeout,
		readBufferSize: defaultReadBufferSize,
	}
}

// WithCodec sets the payload serializer. Both peers must use the same one.
func WithCodec(c codec.Codec) Option {
	return func(o *options) { o.codec = c }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithDialTimeout bounds Dial when the context has no earlier deadline.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) { o.dialTimeout = d }
}

// WithReadBufferSize sets the initial size of the receive buffer.
func WithReadBufferSize(n int) Option {
	return func(o *options) { o.readBufferSize = n }
}
