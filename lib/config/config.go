package config

import (
	"time"

	"github.com/pkg/errors"
	"gopkg.in/ini.v1"

	"github.com/minatodb/minatodb/lib/common"
)

// EngineConfig collects the knobs of the storage engine. Values come from an
// ini file, any key left out keeps its default.
//
// [storage]
// data_file          = minato.db
// pool_size          = 32
// pool_instances     = 1
// use_virtual_storage = false
//
// [transaction]
// cycle_detection_interval_ms = 50
//
// [log]
// level = warn
type EngineConfig struct {
	DataFile          string `ini:"data_file"`
	PoolSize          uint32 `ini:"pool_size"`
	PoolInstances     uint32 `ini:"pool_instances"`
	UseVirtualStorage bool   `ini:"use_virtual_storage"`

	CycleDetectionIntervalMs int64 `ini:"cycle_detection_interval_ms"`

	LogLevel string `ini:"level"`
}

func NewDefaultConfig() *EngineConfig {
	return &EngineConfig{
		DataFile:                 "minato.db",
		PoolSize:                 32,
		PoolInstances:            1,
		UseVirtualStorage:        false,
		CycleDetectionIntervalMs: 50,
		LogLevel:                 "warn",
	}
}

// LoadConfig reads the ini file at path over the defaults.
func LoadConfig(path string) (*EngineConfig, error) {
	cfg := NewDefaultConfig()

	file, err := ini.Load(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot load engine config %s", path)
	}

	if err := file.Section("storage").MapTo(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid [storage] section")
	}
	if err := file.Section("transaction").MapTo(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid [transaction] section")
	}
	if err := file.Section("log").MapTo(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid [log] section")
	}

	if cfg.PoolSize == 0 {
		return nil, errors.New("pool_size must be greater than zero")
	}
	if cfg.PoolInstances == 0 {
		cfg.PoolInstances = 1
	}

	return cfg, nil
}

// Apply pushes the loaded values into the package level globals the engine
// components read.
func (cfg *EngineConfig) Apply() {
	common.CycleDetectionInterval = time.Duration(cfg.CycleDetectionIntervalMs) * time.Millisecond
	common.InitLogger(cfg.LogLevel)
}
