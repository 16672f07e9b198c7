package xcenter

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

const (
	DefaultRequestTimeout       = 30 * time.Second
	DefaultNotifyTimeout        = 5 * time.Second
	DefaultBroadcastConcurrency = 16
	DefaultObserverWorkers      = 4
	DefaultObserverBuffer       = 1024
)

// Config controls center behavior.
type Config struct {
	// DefaultTimeout applies to requests sent with timeout <= 0 (default: 30s).
	DefaultTimeout time.Duration
	// NotifyTimeout bounds how long Register/Unregister wait for peer
	// lifecycle hooks (default: 5s).
	NotifyTimeout time.Duration
	// BroadcastConcurrency caps concurrent broadcast deliveries (default: 16, <0 = unbounded).
	BroadcastConcurrency int
	// ObserverWorkers is the number of async observer dispatch goroutines (default: 4).
	ObserverWorkers int
	// ObserverBuffer is the observer event queue capacity (default: 1024).
	ObserverBuffer int
}

// DefaultConfig returns a Config with production-safe defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout:       DefaultRequestTimeout,
		NotifyTimeout:        DefaultNotifyTimeout,
		BroadcastConcurrency: DefaultBroadcastConcurrency,
		ObserverWorkers:      DefaultObserverWorkers,
		ObserverBuffer:       DefaultObserverBuffer,
	}
}

// ConfigFromMap safely converts a generic config blob into Config with defaults.
func ConfigFromMap(cfg map[string]any) Config {
	getInt := func(k string, d int) int {
		switch v := cfg[k].(type) {
		case int:
			return v
		case int32:
			return int(v)
		case int64:
			return int(v)
		case float64:
			return int(v)
		default:
			return d
		}
	}

	getDur := func(k string, d time.Duration) time.Duration {
		switch v := cfg[k].(type) {
		case time.Duration:
			return v
		case string:
			if p, err := time.ParseDuration(v); err == nil {
				return p
			}
		case float64:
			return time.Duration(v)
		}
		return d
	}

	def := DefaultConfig()
	return Config{
		DefaultTimeout:       getDur("default_timeout", def.DefaultTimeout),
		NotifyTimeout:        getDur("notify_timeout", def.NotifyTimeout),
		BroadcastConcurrency: getInt("broadcast_concurrency", def.BroadcastConcurrency),
		ObserverWorkers:      getInt("observer_workers", def.ObserverWorkers),
		ObserverBuffer:       getInt("observer_buffer", def.ObserverBuffer),
	}
}

// withDefaults fills zero or invalid fields.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = def.DefaultTimeout
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = def.NotifyTimeout
	}
	if c.BroadcastConcurrency == 0 {
		c.BroadcastConcurrency = def.BroadcastConcurrency
	}
	if c.ObserverWorkers < 1 {
		c.ObserverWorkers = def.ObserverWorkers
	}
	if c.ObserverBuffer < 1 {
		c.ObserverBuffer = def.ObserverBuffer
	}
	return c
}

// CenterBuilder constructs Center instances (Builder pattern).
type CenterBuilder struct {
	cfg Config

	codecName string
	codecInst Codec

	middlewares []Middleware
	observers   []Observer
	logger      *xlog.Logger
	clock       xclock.Clock
	idGen       func() string
}

// NewCenterBuilder returns a new builder with sensible defaults.
func NewCenterBuilder() *CenterBuilder {
	return &CenterBuilder{
		cfg:       DefaultConfig(),
		codecName: "json",
	}
}

// WithConfig replaces the whole configuration; zero fields fall back to defaults.
func (cb *CenterBuilder) WithConfig(cfg Config) *CenterBuilder {
	cb.cfg = cfg
	return cb
}

// WithConfigMap applies a generic config blob (see ConfigFromMap).
func (cb *CenterBuilder) WithConfigMap(cfg map[string]any) *CenterBuilder {
	cb.cfg = ConfigFromMap(cfg)
	return cb
}

// WithDefaultTimeout sets the timeout for requests sent without one.
func (cb *CenterBuilder) WithDefaultTimeout(d time.Duration) *CenterBuilder {
	if d > 0 {
		cb.cfg.DefaultTimeout = d
	}
	return cb
}

func (cb *CenterBuilder) WithNotifyTimeout(d time.Duration) *CenterBuilder {
	if d > 0 {
		cb.cfg.NotifyTimeout = d
	}
	return cb
}

func (cb *CenterBuilder) WithBroadcastConcurrency(n int) *CenterBuilder {
	cb.cfg.BroadcastConcurrency = n
	return cb
}

// WithObserverPool configures the async observer pool.
func (cb *CenterBuilder) WithObserverPool(workers, bufferSize int) *CenterBuilder {
	cb.cfg.ObserverWorkers = workers
	cb.cfg.ObserverBuffer = bufferSize
	return cb
}

func (cb *CenterBuilder) WithCodec(name string) *CenterBuilder {
	cb.codecName = name
	return cb
}

// WithCodecInstance accepts a ready Codec instance.
func (cb *CenterBuilder) WithCodecInstance(c Codec) *CenterBuilder {
	cb.codecInst = c
	return cb
}

func (cb *CenterBuilder) WithMiddleware(mw ...Middleware) *CenterBuilder {
	if len(mw) == 0 {
		return cb
	}
	cb.middlewares = append(cb.middlewares, mw...)
	return cb
}

func (cb *CenterBuilder) WithObserver(obs ...Observer) *CenterBuilder {
	for _, o := range obs {
		if o != nil {
			cb.observers = append(cb.observers, o)
		}
	}
	return cb
}

func (cb *CenterBuilder) WithLogger(l *xlog.Logger) *CenterBuilder {
	cb.logger = l
	return cb
}

func (cb *CenterBuilder) WithClock(c xclock.Clock) *CenterBuilder {
	cb.clock = c
	return cb
}

// WithIDGenerator overrides message and correlation id generation
// (default: random UUIDs).
func (cb *CenterBuilder) WithIDGenerator(gen func() string) *CenterBuilder {
	cb.idGen = gen
	return cb
}

func (cb *CenterBuilder) Build() (*Center, error) {
	var cd Codec
	var err error
	if cb.codecInst != nil {
		cd = cb.codecInst
	} else {
		cd, err = NewCodec(cb.codecName)
		if err != nil {
			return nil, err
		}
	}

	clk := cb.clock
	if clk == nil {
		clk = xclock.Default()
	}
	lg := cb.logger
	if lg == nil {
		// Adapter pattern to platform logging.
		lg = xlog.Default()
	}
	idGen := cb.idGen
	if idGen == nil {
		idGen = uuid.NewString
	}
	cfg := cb.cfg.withDefaults()

	c := &Center{
		codec:        cd,
		clock:        clk,
		logger:       lg,
		middlewares:  cb.middlewares,
		cfg:          cfg,
		newID:        idGen,
		registry:     newRegistry(),
		correlator:   newCorrelator(),
		observerPool: NewObserverPool(context.Background(), cfg.ObserverWorkers, cfg.ObserverBuffer),
		metrics:      &centerMetrics{},
	}

	// Attach logging observer first for dependable telemetry unless already supplied externally.
	hasLoggingObserver := false
	for _, o := range cb.observers {
		if _, ok := o.(LoggingObserver); ok {
			hasLoggingObserver = true
			break
		}
	}
	if !hasLoggingObserver && lg != nil {
		c.AddObserver(LoggingObserver{Logger: lg})
	}

	for _, o := range cb.observers {
		c.AddObserver(o)
	}

	return c, nil
}

// New constructs a Center via Builder and returns a close func for convenience.
func New(init func(b *CenterBuilder)) (*Center, func() error, error) {
	b := NewCenterBuilder()
	if init != nil {
		init(b)
	}
	c, err := b.Build()
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() error { return c.Close(context.Background()) }
	return c, closeFn, nil
}
