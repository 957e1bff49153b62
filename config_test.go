package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jopdesign/wcet/analysis/cost"
)

func TestConfig(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		c, err := LoadConfig("")
		if err != nil {
			t.Fatal(err)
		}
		if c.Processor.Policy != cost.DefaultConfig().Policy {
			t.Errorf("Expected the default policy, got %q", c.Processor.Policy)
		}
		if c.Dataflow.CallStringLength != c.IPET.CallStringLength {
			t.Errorf("Call string lengths disagree: %d vs %d", c.Dataflow.CallStringLength, c.IPET.CallStringLength)
		}
	})

	t.Run("Overrides", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "wcet.yaml")
		data := `
processor:
  policy: lru
  blocks: 8
  timing:
    idiv: 40
dataflow:
  callString: 2
  initialHeap:
    Main.limit: [0, 6]
cfg:
  splitNodes: true
`
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
		c, err := LoadConfig(path)
		if err != nil {
			t.Fatal(err)
		}
		if c.Processor.Policy != "lru" || c.Processor.Blocks != 8 {
			t.Errorf("Unexpected cache configuration %+v", c.Processor)
		}
		if c.Processor.CacheWords != cost.DefaultConfig().CacheWords {
			t.Errorf("Unset keys should keep their defaults, got %d words", c.Processor.CacheWords)
		}
		if c.Processor.Timing["idiv"] != 40 {
			t.Errorf("Expected the idiv override, got %v", c.Processor.Timing)
		}
		if c.Dataflow.CallStringLength != 2 || c.Dataflow.InitialHeap["Main.limit"] != [2]int{0, 6} {
			t.Errorf("Unexpected dataflow options %+v", c.Dataflow)
		}
		if !c.CFG.SplitNodes {
			t.Error("Expected split nodes")
		}
	})

	t.Run("Malformed", func(t *testing.T) {
		c := DefaultConfig()
		if err := c.decode([]byte("processor: [")); err == nil {
			t.Error("Expected a decoding error")
		}

		path := filepath.Join(t.TempDir(), "broken.yaml")
		if err := os.WriteFile(path, []byte("processor: ["), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadConfig(path); err == nil {
			t.Error("Expected LoadConfig to report the decoding error")
		}
	})
}
