package runtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-host/engine"
	"github.com/wippyai/wasm-host/host"
	"github.com/wippyai/wasm-host/resource"
	"github.com/wippyai/wasm-host/wasi"
)

// Option configures a Builder.
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
	resources  *resource.Map
	logger     *zap.Logger
	settings   []host.KeyValue
	envCfg     wasi.Config
	engineCfg  engine.Config
}

func defaultOptions() options {
	return options{
		engineCfg: engine.DefaultConfig(),
		envCfg:    wasi.DefaultConfig(),
	}
}

// WithEngineConfig replaces the default engine configuration.
func WithEngineConfig(cfg engine.Config) Option {
	return func(o *options) { o.engineCfg = cfg }
}

// WithEnvironmentConfig replaces the inherited environment configuration.
func WithEnvironmentConfig(cfg wasi.Config) Option {
	return func(o *options) { o.envCfg = cfg }
}

// WithConfig appends entries to the raw configuration list every
// capability sees as BuildContext.Settings.
func WithConfig(kv ...host.KeyValue) Option {
	return func(o *options) { o.settings = append(o.settings, kv...) }
}

// WithResourceMap injects the shared registry at construction. Every
// capability linked afterwards receives a clone before it links.
func WithResourceMap(m *resource.Map) Option {
	return func(o *options) { o.resources = m }
}

// WithMetrics registers host call metrics on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithLogger sets the logger used by the builder and passed to capabilities.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// LinkOption configures a single LinkCapability call.
type LinkOption func(*linkOptions)

type linkOptions struct {
	options  []host.KeyValue
	override bool
}

// AllowOverride lets the capability replace one already linked under the
// same config. The replaced state is closed.
func AllowOverride() LinkOption {
	return func(o *linkOptions) { o.override = true }
}

// WithOptions passes capability-specific options to Build.
func WithOptions(kv ...host.KeyValue) LinkOption {
	return func(o *linkOptions) { o.options = append(o.options, kv...) }
}
