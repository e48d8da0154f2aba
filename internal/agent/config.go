package agent

import (
	"time"

	"github.com/finsight-ai/finsight/internal/workflow"
	"github.com/finsight-ai/finsight/pkg/schema"
)

// hookNames lists the customizable hook points templates expose.
var hookNames = map[string]bool{
	"plan_preprocess":  true,
	"result_formatter": true,
}

// Config is the caller-supplied per-request configuration. Zero values
// (nil for EnableMemory) defer to the template's defaults.
type Config struct {
	MaxIterations  int
	EnableMemory   *bool
	NodeTimeout    time.Duration
	MemoryWindow   int
	Debug          bool
	CustomHandlers map[string]workflow.HookFunc
}

// Bool is a convenience for populating EnableMemory.
func Bool(v bool) *bool { return &v }

// Validate rejects structurally invalid configuration before any node runs.
func (c Config) Validate() error {
	if c.MaxIterations < 0 {
		return schema.NewErrorf(schema.ErrCodeConfig, "max_iterations must not be negative, got %d", c.MaxIterations)
	}
	if c.NodeTimeout < 0 {
		return schema.NewError(schema.ErrCodeConfig, "node_timeout must not be negative")
	}
	if c.MemoryWindow < 0 {
		return schema.NewError(schema.ErrCodeConfig, "memory_window must not be negative")
	}
	for name, fn := range c.CustomHandlers {
		if !hookNames[name] {
			return schema.NewErrorf(schema.ErrCodeConfig, "unknown custom handler %q", name)
		}
		if fn == nil {
			return schema.NewErrorf(schema.ErrCodeConfig, "custom handler %q is nil", name)
		}
	}
	return nil
}

// resolved is the effective configuration after merging template defaults
// under the caller's overrides.
type resolved struct {
	MaxIterations int
	EnableMemory  bool
	NodeTimeout   time.Duration
	MemoryWindow  int
}

func resolve(defaults workflow.Defaults, c Config) resolved {
	r := resolved{
		MaxIterations: defaults.MaxIterations,
		EnableMemory:  defaults.EnableMemory,
		NodeTimeout:   defaults.NodeTimeout,
		MemoryWindow:  defaults.MemoryWindow,
	}
	if c.MaxIterations > 0 {
		r.MaxIterations = c.MaxIterations
	}
	if c.EnableMemory != nil {
		r.EnableMemory = *c.EnableMemory
	}
	if c.NodeTimeout > 0 {
		r.NodeTimeout = c.NodeTimeout
	}
	if c.MemoryWindow > 0 {
		r.MemoryWindow = c.MemoryWindow
	}
	if r.MaxIterations <= 0 {
		r.MaxIterations = 3
	}
	if r.MemoryWindow <= 0 {
		r.MemoryWindow = 10
	}
	return r
}
