package program

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type (
	// File is the on-disk description of a program.
	File struct {
		Methods  []MethodFile        `yaml:"methods"`
		Dispatch map[string][]string `yaml:"dispatch"`
		Sites    map[string][]string `yaml:"sites"`
		Aliases  map[string]string   `yaml:"aliases"`
	}

	// MethodFile describes one method. Loops maps source lines of loop
	// headers to annotated bounds.
	MethodFile struct {
		Name     string      `yaml:"name"`
		Args     int         `yaml:"args"`
		Returns  bool        `yaml:"returns"`
		Native   bool        `yaml:"native"`
		Abstract bool        `yaml:"abstract"`
		Loops    map[int]int `yaml:"loops"`
		Handlers [][3]int    `yaml:"handlers"`
		Code     string      `yaml:"code"`
	}
)

// LoadFile reads a program description from disk.
func LoadFile(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(data)
}

// Load decodes a YAML program description and links it.
func Load(data []byte) (*Memory, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding program: %w", err)
	}

	p := NewMemory()
	for _, mf := range f.Methods {
		if mf.Name == "" {
			return nil, fmt.Errorf("method without a name")
		}
		m, err := Assemble(MethodRef(mf.Name), mf.Args, mf.Returns, mf.Code)
		if err != nil {
			return nil, err
		}
		m.Native, m.Abstract = mf.Native, mf.Abstract
		for line, bound := range mf.Loops {
			m.LoopBounds[line] = bound
		}
		for _, h := range mf.Handlers {
			m.Handlers = append(m.Handlers, Handler{h[0], h[1], h[2]})
		}
		p.Add(m)
	}

	for ref, impls := range f.Dispatch {
		for _, impl := range impls {
			p.Implement(MethodRef(ref), MethodRef(impl))
		}
	}
	for s, impls := range f.Sites {
		site, err := ParseSite(s)
		if err != nil {
			return nil, err
		}
		refs := make([]MethodRef, len(impls))
		for i, impl := range impls {
			refs[i] = MethodRef(impl)
		}
		p.DispatchAt(site, refs...)
	}
	for s, loc := range f.Aliases {
		site, err := ParseSite(s)
		if err != nil {
			return nil, err
		}
		p.Alias(site, loc)
	}

	return p, p.Link()
}

// ParseSite parses the "method@index" notation produced by Site.String.
func ParseSite(s string) (Site, error) {
	i := strings.LastIndexByte(s, '@')
	if i < 0 {
		return NoSite, fmt.Errorf("malformed site %q", s)
	}
	idx, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return NoSite, fmt.Errorf("malformed site %q: %w", s, err)
	}
	return Site{MethodRef(s[:i]), idx}, nil
}
