// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package congo

// Options configures a Server or Client's reader loop and limits. Trace
// hooks are not configured here: following damianoneill-net/v2's trace
// idiom, they travel on the context.Context passed to Listen/ListenAll/
// Connect (see WithTrace/ContextTrace in trace.go) so a single Server or
// Client can be driven by callers that want different observability per
// call.
type Options struct {
	// ReadChunkSize sizes the scratch buffer each reader goroutine reads
	// into. Zero selects the 1 KiB default suggested by the wire spec.
	ReadChunkSize int

	// MaxBodyLen caps the accepted body length; zero means unlimited.
	MaxBodyLen uint64
}

var defaultOptions = Options{
	ReadChunkSize: 1024,
	MaxBodyLen:    0,
}

// Option configures Options; see WithReadChunkSize and WithMaxBodyLen.
type Option func(*Options)

// WithReadChunkSize sets the per-read scratch buffer size used while
// decoding the incoming stream.
func WithReadChunkSize(n int) Option {
	return func(o *Options) { o.ReadChunkSize = n }
}

// WithMaxBodyLen caps accepted body length; a frame declaring a longer body
// is rejected with ErrTooLong and the connection is torn down.
func WithMaxBodyLen(n uint64) Option {
	return func(o *Options) { o.MaxBodyLen = n }
}

func resolveOptions(opts ...Option) Options {
	o := defaultOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
