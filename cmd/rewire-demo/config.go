// Completion: 100% - config loading complete
package main

import (
	"fmt"
	"os"

	"github.com/xyproto/env/v2"
	"gopkg.in/yaml.v3"

	"github.com/xyproto/rewire/alloc"
	"github.com/xyproto/rewire/freespace"
	"github.com/xyproto/rewire/group"
	"github.com/xyproto/rewire/internal/engine"
)

// unknownValueError formats an "unknown X" error, appending a "did you
// mean" hint when a close match exists among the valid choices.
func unknownValueError(kind, got string, choices []string) error {
	if hints := engine.Suggest(got, choices, 1); len(hints) > 0 {
		return fmt.Errorf("unknown %s %q, did you mean %q?", kind, got, hints[0])
	}
	return fmt.Errorf("unknown %s %q (want one of %v)", kind, got, choices)
}

// Config is the on-disk shape of a LayoutStrategy, loaded from YAML and
// overridable by environment variables (REWIRE_*) for scripted runs.
type Config struct {
	Allocator   string `yaml:"allocator"`
	Order       string `yaml:"order"`
	Seed        string `yaml:"seed"`
	Grouping    string `yaml:"grouping"`
	Trampolines string `yaml:"trampolines"`
	Arch        string `yaml:"arch"`
	LayoutBase  uint64 `yaml:"layout_base"`
	Verbose     bool   `yaml:"verbose"`
}

// LoadConfig reads path as YAML, then lets REWIRE_* environment variables
// override individual fields, matching this repo's layered-config habit of
// file defaults plus environment escape hatches for CI runs.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		Allocator:   "compact",
		Order:       "sorted",
		Grouping:    "block",
		Trampolines: "always",
		Arch:        "x86_64",
		LayoutBase:  0x800000,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.Allocator = env.Str("REWIRE_ALLOCATOR", cfg.Allocator)
	cfg.Order = env.Str("REWIRE_ORDER", cfg.Order)
	cfg.Seed = env.Str("REWIRE_SEED", cfg.Seed)
	cfg.Grouping = env.Str("REWIRE_GROUPING", cfg.Grouping)
	cfg.Trampolines = env.Str("REWIRE_TRAMPOLINES", cfg.Trampolines)
	cfg.Arch = env.Str("REWIRE_ARCH", cfg.Arch)
	if env.Has("REWIRE_VERBOSE") {
		cfg.Verbose = env.Bool("REWIRE_VERBOSE")
	}

	return cfg, nil
}

func (c Config) allocatorKind() (alloc.Kind, error) {
	switch c.Allocator {
	case "compact":
		return alloc.Compact, nil
	case "parallel":
		return alloc.Parallel, nil
	default:
		return 0, unknownValueError("allocator", c.Allocator, []string{"compact", "parallel"})
	}
}

func (c Config) orderKind() (alloc.OrderKind, error) {
	switch c.Order {
	case "sorted":
		return alloc.Sorted, nil
	case "random":
		return alloc.Random, nil
	default:
		return 0, unknownValueError("order", c.Order, []string{"sorted", "random"})
	}
}

func (c Config) groupingStrategy() (group.Strategy, error) {
	switch c.Grouping {
	case "block":
		return group.Block, nil
	case "loop":
		return group.Loop, nil
	case "function":
		return group.Function, nil
	default:
		return 0, unknownValueError("grouping", c.Grouping, []string{"block", "loop", "function"})
	}
}

func (c Config) trampolineStrategy() (freespace.TrampolineStrategy, error) {
	switch c.Trampolines {
	case "always":
		return freespace.AlwaysTrampoline, nil
	case "whole-function":
		return freespace.WholeFunctionTrampoline, nil
	default:
		return 0, unknownValueError("trampoline strategy", c.Trampolines, []string{"always", "whole-function"})
	}
}
