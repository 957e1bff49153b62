package absint

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jopdesign/wcet/analysis/cfg"
	"github.com/jopdesign/wcet/program"
	"github.com/jopdesign/wcet/utils"

	"github.com/mitchellh/hashstructure/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrStale is returned when loading a result computed for another program.
var ErrStale = errors.New("stored result belongs to a different program")

type storedResult struct {
	Hash     string                       `msgpack:"hash"`
	Bounds   map[string]map[string]int    `msgpack:"bounds"`
	Branches map[string]map[string][]bool `msgpack:"branches"`
}

// Save writes the result to w, tagged with the program hash.
func (r *Result) Save(w io.Writer) error {
	hash, err := program.Hash(r.prog)
	if err != nil {
		return err
	}
	stored := storedResult{
		Hash:     hash,
		Bounds:   map[string]map[string]int{},
		Branches: map[string]map[string][]bool{},
	}
	for site, bs := range r.bounds {
		stored.Bounds[site.String()] = bs
	}
	for site, fs := range r.branches {
		m := map[string][]bool{}
		for cs, f := range fs {
			m[cs] = []bool{f[0], f[1]}
		}
		stored.Branches[site.String()] = m
	}
	return msgpack.NewEncoder(w).Encode(&stored)
}

// Load reads a result saved for prog.
func Load(rd io.Reader, prog program.Program) (*Result, error) {
	var stored storedResult
	if err := msgpack.NewDecoder(rd).Decode(&stored); err != nil {
		return nil, fmt.Errorf("failed to decode loop bounds: %w", err)
	}
	hash, err := program.Hash(prog)
	if err != nil {
		return nil, err
	}
	if hash != stored.Hash {
		return nil, ErrStale
	}

	res := newResult(prog)
	for key, bs := range stored.Bounds {
		site, err := program.ParseSite(key)
		if err != nil {
			return nil, err
		}
		for cs, b := range bs {
			res.setBound(site, cs, b)
		}
	}
	for key, fs := range stored.Branches {
		site, err := program.ParseSite(key)
		if err != nil {
			return nil, err
		}
		for cs, f := range fs {
			if len(f) != 2 {
				return nil, fmt.Errorf("malformed branch outcome for %s", key)
			}
			res.setBranch(site, cs, [2]bool{f[0], f[1]})
		}
	}
	res.Metrics = &Metrics{Outcome: OutcomeCached}
	return res, nil
}

// fingerprint hashes everything besides the program that shapes a result:
// the options, except where results are stored, and the native summaries.
func fingerprint(opts Options, natives Natives) (uint64, error) {
	opts.ResultCacheDir = ""
	keys := make([]string, 0, len(natives))
	for ref, eff := range natives {
		keys = append(keys, fmt.Sprintf("%s:%t:%t", ref, eff.Result != nil, eff.ClobbersHeap))
	}
	sort.Strings(keys)
	return hashstructure.Hash(struct {
		Options Options
		Natives []string
	}{opts, keys}, hashstructure.FormatV2, nil)
}

// resultFile names the stored result of an analysis configuration.
func resultFile(dir, hash string, opts Options, natives Natives, roots []program.MethodRef) (string, error) {
	fp, err := fingerprint(opts, natives)
	if err != nil {
		return "", err
	}
	names := make([]string, len(roots))
	for i, r := range roots {
		names[i] = strings.NewReplacer("/", "_", "$", "_").Replace(string(r))
	}
	id := fmt.Sprintf("loopbounds-cs%d-%016x-%s", opts.CallStringLength, fp, strings.Join(names, "+"))
	return filepath.Join(dir, id+"-"+hash+".msgpack"), nil
}

// AnalyzeCached behaves like Analyze but reuses results stored in
// opts.ResultCacheDir by an earlier run on the same program.
func AnalyzeCached(cfgs *cfg.Cache, opts Options, natives Natives, roots ...program.MethodRef) (*Result, error) {
	if opts.ResultCacheDir == "" {
		return Analyze(cfgs, opts, natives, roots...)
	}
	hash, err := program.Hash(cfgs.Program())
	if err != nil {
		return nil, err
	}
	path, err := resultFile(opts.ResultCacheDir, hash, opts, natives, roots)
	if err != nil {
		return nil, err
	}

	if f, err := os.Open(path); err == nil {
		res, lerr := Load(f, cfgs.Program())
		f.Close()
		if lerr == nil {
			utils.VerbosePrint("Loaded loop bounds from %s\n", path)
			return res, nil
		}
		utils.Warn("Ignoring stored loop bounds %s: %v", path, lerr)
	}

	res, err := Analyze(cfgs, opts, natives, roots...)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.ResultCacheDir, 0o755); err != nil {
		utils.Warn("Cannot store loop bounds: %v", err)
		return res, nil
	}
	f, err := os.Create(path)
	if err != nil {
		utils.Warn("Cannot store loop bounds: %v", err)
		return res, nil
	}
	defer f.Close()
	if err := res.Save(f); err != nil {
		utils.Warn("Cannot store loop bounds: %v", err)
	}
	return res, nil
}
