package cost

// Config describes the processor: instruction timing, method cache
// geometry and penalties.
type Config struct {
	// Timing overrides entries of the default timing table by mnemonic.
	Timing map[string]int `yaml:"timing"`
	// Natives holds the cycles spent in native methods, on top of the invoke.
	Natives map[string]int `yaml:"natives"`

	// Policy is one of always-hit, always-miss, lru, fifo or varblock.
	Policy     string `yaml:"policy"`
	CacheWords int    `yaml:"cacheWords"`
	Blocks     int    `yaml:"blocks"`

	// A cache miss costs Latency + words * CyclesPerWord, a hit HitCycles.
	Latency       int `yaml:"latency"`
	CyclesPerWord int `yaml:"cyclesPerWord"`
	HitCycles     int `yaml:"hitCycles"`

	// Alignment charges AlignmentPenalty for taken branches to targets that
	// are not 8-byte aligned.
	Alignment        bool `yaml:"alignment"`
	AlignmentPenalty int  `yaml:"alignmentPenalty"`

	// UnsafeFallback prices instructions without bounded execution time at
	// FallbackCycles instead of failing. The result is no longer sound.
	UnsafeFallback bool `yaml:"unsafeFallback"`
}

// FallbackCycles is the estimate used by the unsafe fallback.
const FallbackCycles = 2000

func DefaultConfig() Config {
	return Config{
		Natives: map[string]int{
			"Native.rd":        4,
			"Native.wr":        4,
			"Native.rdMem":     8,
			"Native.wrMem":     8,
			"Native.rdIntMem":  4,
			"Native.wrIntMem":  4,
			"Native.getStatic": 12,
			"Native.putStatic": 13,
			"Native.getSP":     1,
			"Native.toInt":     1,
			"Native.condMove":  4,
			"Native.memCopy":   40,
		},
		Policy:           "fifo",
		CacheWords:       1024,
		Blocks:           16,
		Latency:          10,
		CyclesPerWord:    2,
		HitCycles:        0,
		AlignmentPenalty: 1,
	}
}
