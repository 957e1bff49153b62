package cost

import (
	"fmt"

	"github.com/jopdesign/wcet/analysis/defs"
	"github.com/jopdesign/wcet/program"
	"github.com/jopdesign/wcet/utils"
)

// Policy models the method cache.
type Policy interface {
	Name() string
	// Fits fails when a method of the given size can never be cached.
	Fits(words int) error
	// Approx chooses the approximation for a scope whose reachable methods
	// have the given sizes.
	Approx(sizes []int) defs.CacheApprox
	// ReturnHits tells whether returning from a callee always hits. Leaf
	// callees load no further methods.
	ReturnHits(leafCallee bool) bool
}

// NewPolicy validates the cache geometry of c and builds its policy.
func NewPolicy(c Config) (Policy, error) {
	switch c.Policy {
	case "always-hit":
		return alwaysHit{}, nil
	case "always-miss":
		return alwaysMiss{}, nil
	case "lru", "fifo", "varblock":
	default:
		return nil, &defs.Error{
			Kind: defs.CacheConfigurationError,
			Site: program.NoSite,
			Err:  fmt.Errorf("unknown cache policy %q", c.Policy),
		}
	}

	if c.Blocks <= 0 || c.CacheWords <= 0 || c.CacheWords%c.Blocks != 0 {
		return nil, &defs.Error{
			Kind: defs.CacheConfigurationError,
			Site: program.NoSite,
			Err:  fmt.Errorf("bad cache size / block count: %d / %d", c.CacheWords, c.Blocks),
		}
	}
	geom := geometry{words: c.CacheWords, blocks: c.Blocks}
	if c.Policy == "varblock" {
		return varBlock{geom}, nil
	}
	return fixedBlock{geom, c.Policy == "lru"}, nil
}

type alwaysHit struct{}

func (alwaysHit) Name() string                  { return "always-hit" }
func (alwaysHit) Fits(int) error                { return nil }
func (alwaysHit) Approx([]int) defs.CacheApprox { return defs.AlwaysHit }
func (alwaysHit) ReturnHits(bool) bool          { return true }

type alwaysMiss struct{}

func (alwaysMiss) Name() string                  { return "always-miss" }
func (alwaysMiss) Fits(int) error                { return nil }
func (alwaysMiss) Approx([]int) defs.CacheApprox { return defs.AlwaysMiss }
func (alwaysMiss) ReturnHits(bool) bool          { return false }

type geometry struct {
	words, blocks int
}

func (g geometry) blockSize() int { return g.words / g.blocks }

// fixedBlock caches one method per block.
type fixedBlock struct {
	geometry
	lru bool
}

func (c fixedBlock) Name() string {
	if c.lru {
		return fmt.Sprintf("lru-%dx%d", c.blocks, c.blockSize())
	}
	return fmt.Sprintf("fifo-%dx%d", c.blocks, c.blockSize())
}

func (c fixedBlock) Fits(words int) error {
	if words > c.blockSize() {
		return fmt.Errorf("%d words exceed the block size %d", words, c.blockSize())
	}
	return nil
}

func (c fixedBlock) Approx(sizes []int) defs.CacheApprox {
	if len(sizes) <= c.blocks {
		return defs.AllFit
	}
	return defs.AlwaysMiss
}

// ReturnHits under LRU: loading a leaf callee evicts the least recently
// used block, which is not the caller's as long as there are two blocks.
func (c fixedBlock) ReturnHits(leaf bool) bool {
	return c.lru && leaf && c.blocks >= 2
}

// varBlock is a FIFO cache where methods occupy as many consecutive blocks
// as they need.
type varBlock struct {
	geometry
}

func (c varBlock) Name() string { return fmt.Sprintf("varblock-%dx%d", c.blocks, c.blockSize()) }

func (c varBlock) Fits(words int) error {
	if words > c.words {
		return fmt.Errorf("%d words exceed the cache size %d", words, c.words)
	}
	return nil
}

func (c varBlock) Approx(sizes []int) defs.CacheApprox {
	total := 0
	for _, w := range sizes {
		total += utils.CeilDiv(w, c.blockSize())
	}
	if total <= c.blocks {
		return defs.AllFit
	}
	return defs.AlwaysMiss
}

func (varBlock) ReturnHits(bool) bool { return false }
