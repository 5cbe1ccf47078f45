// Package jvmconfig loads tinyjvm's run-time configuration — classpath
// root, heap size, and GC trace verbosity — from flags, environment
// variables, and an optional config file, via spf13/viper. cmd/tinyjvm
// binds its cobra flags into the same viper instance so a flag, an
// env var (TINYJVM_HEAP_BYTES, say), and a config file key all resolve
// through one precedence order (flag > env > file > default).
package jvmconfig

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config is the resolved set of run-time knobs every other package reads
// from, rather than querying viper directly.
type Config struct {
	// Classpath is the directory classloader.NewLoader reads name-mangled
	// .class files from.
	Classpath string `mapstructure:"classpath"`

	// HeapBytes is the accounting-arena capacity passed to gc.NewHeap.
	HeapBytes uint64 `mapstructure:"heap_bytes"`

	// GCVerbose turns on pkg/jlog's collection-cycle trace lines.
	GCVerbose bool `mapstructure:"gc_verbose"`
}

const (
	defaultHeapBytes = 64 << 20 // 64 MiB of accounting capacity
	envPrefix        = "TINYJVM"
)

// New builds a viper instance seeded with tinyjvm's defaults, environment
// binding, and (if present) a tinyjvm.yaml/.json/.toml found on configPaths.
// Callers bind cobra flags into it with v.BindPFlag before calling Load.
func New(configPaths ...string) *viper.Viper {
	v := viper.New()
	v.SetDefault("classpath", ".")
	v.SetDefault("heap_bytes", defaultHeapBytes)
	v.SetDefault("gc_verbose", false)

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	v.SetConfigName("tinyjvm")
	for _, p := range configPaths {
		v.AddConfigPath(p)
	}
	return v
}

// Load reads v's config file (if one was found on its search path — a
// missing file is not an error, it just means flags/env/defaults apply)
// and unmarshals the resolved values into a Config.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("jvmconfig: reading config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("jvmconfig: unmarshal: %w", err)
	}
	if cfg.Classpath == "" {
		cfg.Classpath = "."
	}
	if cfg.HeapBytes == 0 {
		cfg.HeapBytes = defaultHeapBytes
	}
	return cfg, nil
}
