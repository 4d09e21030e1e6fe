package heap

// config holds per-heap construction settings.
type config struct {
	debugFill bool
}

// Option configures a heap at construction.
type Option func(*config)

// WithDebugFill stamps diagnostic 32-bit patterns over user chunks on
// construction, allocation, split, free, merge, and move. The patterns make
// heap events legible in a post-mortem dump; they are not part of the heap
// contract and cost one fill per mutation.
func WithDebugFill() Option {
	return func(c *config) { c.debugFill = true }
}

func buildConfig(opts []Option) config {
	var c config
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
