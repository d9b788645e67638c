package promise

// loopOptions holds configuration applied when constructing a [Loop].
// Grounded on the teacher's loopOptions/LoopOption functional-options
// pattern (options.go), trimmed to the knobs this package's Loop actually
// has (no fast-path mode, no metrics — there is no poller or dual
// execution path to tune).
type loopOptions struct {
	logger Logger
}

// LoopOption configures a [Loop] at construction time.
type LoopOption interface {
	applyLoop(*loopOptions)
}

type loopOptionFunc func(*loopOptions)

func (f loopOptionFunc) applyLoop(o *loopOptions) { f(o) }

// WithLogger sets the structured [Logger] used for the loop's own
// diagnostics (panics recovered from scheduled tasks). Defaults to a no-op
// logger.
func WithLogger(logger Logger) LoopOption {
	return loopOptionFunc(func(o *loopOptions) {
		o.logger = logger
	})
}

func resolveLoopOptions(opts []LoopOption) loopOptions {
	var cfg loopOptions
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyLoop(&cfg)
	}
	return cfg
}
