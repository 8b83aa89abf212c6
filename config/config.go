// File: config/config.go
// Author: momentics <momentics@gmail.com>
//
// Config is the engine's typed, TOML-loaded options tree, generalizing
// control.ConfigStore's hot-reload/listener shape (§9) from an untyped
// map[string]any to the engine's actual option fields (§4.3, §6's "Engine
// configuration" table).

package config

import (
	"fmt"
	"sync"

	"github.com/BurntSushi/toml"
)

// FrameLimits mirrors engine.FrameLimitOptions for TOML decoding.
type FrameLimits struct {
	MaxProcMs    uint32 `toml:"max_proc_ms"`
	MaxCtxProcMs uint32 `toml:"max_ctx_proc_ms"`
	MinOnProcMs  uint32 `toml:"min_on_proc_ms"`
}

// FlowControl mirrors engine.FlowControlOptions for TOML decoding.
type FlowControl struct {
	MaxDealPkgNum uint32 `toml:"max_deal_pkg_num"`
	MaxNum        uint32 `toml:"max_num"`
	MinNum        uint32 `toml:"min_num"`
	IncDelta      uint32 `toml:"inc_delta"`
	DecDelta      uint32 `toml:"dec_delta"`
	JudgeRangeMs  uint32 `toml:"judge_range_ms"`
}

// Transport is one [[transport]] table entry.
type Transport struct {
	ID      uint32 `toml:"id"`
	Kind    string `toml:"kind"` // "loopback" | "tcp"
	Addr    string `toml:"addr"` // dial/listen address for kind=="tcp"
	Default bool   `toml:"default"`
}

// Logging configures the process-wide zerolog sink.
type Logging struct {
	Level      string `toml:"level"`       // "debug"|"info"|"warn"|"error"
	Pretty     bool   `toml:"pretty"`      // console-writer formatting instead of JSON
	SampleEach uint32 `toml:"sample_each"` // log every Nth message at debug level, 0 disables sampling
}

// Config is the full engine configuration tree (§6).
type Config struct {
	Frame      FrameLimits  `toml:"frame"`
	FlowCtrl   FlowControl  `toml:"flow_ctrl"`
	MaxTickMs  uint32       `toml:"max_tick_ms"`
	MaxCoroNum int          `toml:"max_coro_num"`
	PinCPU     int          `toml:"pin_cpu"` // negative disables affinity pinning
	Transports []Transport  `toml:"transport"`
	Log        Logging      `toml:"log"`
	SendBufLimit int        `toml:"send_buf_limit"`
}

// Default returns a Config with conservative defaults: an adaptive ingress
// budget that starts at 64 frames per tick and moves within [1, 256], and
// no CPU pinning.
func Default() Config {
	return Config{
		Frame:      FrameLimits{MaxProcMs: 50, MaxCtxProcMs: 20, MinOnProcMs: 5},
		FlowCtrl:   FlowControl{MaxDealPkgNum: 64, MaxNum: 256, MinNum: 1, IncDelta: 4, DecDelta: 16, JudgeRangeMs: 2},
		MaxTickMs:  1000,
		PinCPU:     -1,
		SendBufLimit: 1 << 16,
		Log:        Logging{Level: "info"},
	}
}

// Store is a thread-safe, hot-reloadable Config holder with change
// listeners, generalizing control.ConfigStore's shape (§9) to a typed tree.
type Store struct {
	mu        sync.RWMutex
	cfg       Config
	listeners []func(Config)
}

// NewStore creates a Store seeded with cfg.
func NewStore(cfg Config) *Store {
	return &Store{cfg: cfg}
}

// Load decodes a TOML file into a fresh Store, seeding it with Default()'s
// values for any field the file omits.
func Load(path string) (*Store, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return NewStore(cfg), nil
}

// Snapshot returns a copy of the current configuration.
func (s *Store) Snapshot() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Reload decodes path over the current configuration and notifies every
// registered listener with the new snapshot.
func (s *Store) Reload(path string) error {
	s.mu.Lock()
	cfg := s.cfg
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("config: reload %s: %w", path, err)
	}
	s.cfg = cfg
	listeners := append([]func(Config){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(cfg)
	}
	return nil
}

// OnChange registers a listener invoked with the new Config after every
// successful Reload.
func (s *Store) OnChange(fn func(Config)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}
