package core

import "github.com/xyproto/env/v2"

// Environment variable names consulted by LoadAllocatorConfig. Unset
// variables fall back to DefaultJitAllocatorConfig's values.
const (
	envGranularity     = "JITASM_GRANULARITY"
	envInitialPoolSize = "JITASM_INITIAL_POOL_SIZE"
	envPoolSizeCap     = "JITASM_POOL_SIZE_CAP"
)

// LoadAllocatorConfig builds a JitAllocatorConfig from environment
// variables, falling back to DefaultJitAllocatorConfig for anything unset
// or invalid. It puts github.com/xyproto/env/v2, a dependency the teacher
// lists in its go.mod but never imports, to work on the JIT allocator's
// tunables.
func LoadAllocatorConfig() JitAllocatorConfig {
	def := DefaultJitAllocatorConfig()
	cfg := JitAllocatorConfig{
		Granularity:     env.Int(envGranularity, def.Granularity),
		InitialPoolSize: env.Int(envInitialPoolSize, def.InitialPoolSize),
		PoolSizeCap:     env.Int(envPoolSizeCap, def.PoolSizeCap),
	}
	if cfg.Granularity < 64 || !isPowerOfTwo(cfg.Granularity) {
		cfg.Granularity = def.Granularity
	}
	if cfg.InitialPoolSize <= 0 {
		cfg.InitialPoolSize = def.InitialPoolSize
	}
	if cfg.PoolSizeCap < cfg.InitialPoolSize {
		cfg.PoolSizeCap = def.PoolSizeCap
	}
	return cfg
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
