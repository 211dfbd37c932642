package server

import (
	"time"

	"go.uber.org/zap"

	"idrpc/catalog"
	"idrpc/codec"
)

const (
	defaultCatalogTTL     = 10 * time.Second
	defaultReadBufferSize = 4096
)

// Option configures a Server.
type Option func(*options)

type options struct {
	codec          codec.Codec
	logger         *zap.Logger
	catalog        catalog.Publisher
	catalogTTL     time.Duration
	readBufferSize int
}

func defaultOptions() *options {
	return &options{
		codec:          &codec.JSONCodec{},
		logger:         zap.NewNop(),
		catalogTTL:     defaultCatalogTTL,
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

// WithCatalog publishes the dispatch table's schema when the server starts
// serving and withdraws it on Shutdown.
func WithCatalog(p catalog.Publisher) Option {
	return func(o *options) { o.catalog = p }
}

// WithCatalogTTL sets how long published entries outlive a crashed server.
// It is rounded down to whole seconds, with a minimum of one.
func WithCatalogTTL(d time.Duration) Option {
	return func(o *options) { o.catalogTTL = d }
}

// WithReadBufferSize sets the initial size of each connection's receive buffer.
func WithReadBufferSize(n int) Option {
	return func(o *options) { o.readBufferSize = n }
}

func (o *options) ttlSeconds() int64 {
	if s := int64(o.catalogTTL / time.Second); s > 0 {
		return s
	}
	return 1
}
