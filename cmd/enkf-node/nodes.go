package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"enkfcore/internal/node/field"
	"enkfcore/internal/node/genkw"
	"enkfcore/internal/node/summary"
	"enkfcore/pkg/nodeapi"
)

// nodesFile is the ensemble node definition document:
//
//	fields:
//	  - key: PORO
//	    dims: [10, 10, 3]
//	    inactive: [[0, 0, 0]]
//	    transform: exp
//	    truncate: [0, 1]
//	gen_kw:
//	  - key: MULTFLT
//	    keywords:
//	      - {name: F1, prior: "UNIFORM 0 1"}
//	summary:
//	  - {key: WOPR, required: true}
type nodesFile struct {
	Fields  []fieldSpec   `yaml:"fields"`
	GenKW   []genKWSpec   `yaml:"gen_kw"`
	Summary []summarySpec `yaml:"summary"`
}

type fieldSpec struct {
	Key       string    `yaml:"key"`
	Dims      []int     `yaml:"dims"`
	Inactive  [][]int   `yaml:"inactive"`
	Transform string    `yaml:"transform"`
	Truncate  []float64 `yaml:"truncate"`
}

type genKWSpec struct {
	Key      string        `yaml:"key"`
	Keywords []keywordSpec `yaml:"keywords"`
}

type keywordSpec struct {
	Name  string `yaml:"name"`
	Prior string `yaml:"prior"`
}

type summarySpec struct {
	Key      string `yaml:"key"`
	Required bool   `yaml:"required"`
}

func loadNodes(path string) ([]nodeapi.Config, error) {
	if path == "" {
		return nil, fmt.Errorf("--nodes is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return parseNodes(f)
}

func parseNodes(r io.Reader) ([]nodeapi.Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var doc nodesFile
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse nodes: %w", err)
	}
	var cfgs []nodeapi.Config
	for _, spec := range doc.Fields {
		cfg, err := spec.build()
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", spec.Key, err)
		}
		cfgs = append(cfgs, cfg)
	}
	for _, spec := range doc.GenKW {
		kws := make([]genkw.Keyword, 0, len(spec.Keywords))
		for _, kw := range spec.Keywords {
			prior, err := genkw.ParsePrior(kw.Prior)
			if err != nil {
				return nil, fmt.Errorf("gen_kw %s: keyword %s: %w", spec.Key, kw.Name, err)
			}
			kws = append(kws, genkw.Keyword{Name: kw.Name, Prior: prior})
		}
		cfg, err := genkw.NewConfig(spec.Key, kws)
		if err != nil {
			return nil, fmt.Errorf("gen_kw %s: %w", spec.Key, err)
		}
		cfgs = append(cfgs, cfg)
	}
	for _, spec := range doc.Summary {
		cfg, err := summary.NewConfig(spec.Key, summary.WithRequired(spec.Required))
		if err != nil {
			return nil, fmt.Errorf("summary %s: %w", spec.Key, err)
		}
		cfgs = append(cfgs, cfg)
	}
	seen := make(map[string]bool, len(cfgs))
	for _, cfg := range cfgs {
		if seen[cfg.Key()] {
			return nil, fmt.Errorf("duplicate node key %s", cfg.Key())
		}
		seen[cfg.Key()] = true
	}
	if len(cfgs) == 0 {
		return nil, fmt.Errorf("no nodes defined")
	}
	return cfgs, nil
}

func (s fieldSpec) build() (*field.Config, error) {
	if len(s.Dims) != 3 {
		return nil, fmt.Errorf("dims must be [nx, ny, nz], got %v", s.Dims)
	}
	nx, ny, nz := s.Dims[0], s.Dims[1], s.Dims[2]
	size, ok := field.CellCount(nx, ny, nz)
	if !ok {
		return nil, fmt.Errorf("dims %v: each must be positive with at most %d cells in total", s.Dims, field.MaxCells)
	}
	var active []bool
	if len(s.Inactive) > 0 {
		active = make([]bool, size)
		for i := range active {
			active[i] = true
		}
		for _, c := range s.Inactive {
			if len(c) != 3 || c[0] < 0 || c[1] < 0 || c[2] < 0 || c[0] >= nx || c[1] >= ny || c[2] >= nz {
				return nil, fmt.Errorf("inactive cell %v outside grid", c)
			}
			active[c[0]+nx*(c[1]+ny*c[2])] = false
		}
	}
	var opts []field.Option
	if s.Transform != "" {
		opts = append(opts, field.WithTransform(s.Transform))
	}
	switch len(s.Truncate) {
	case 0:
	case 2:
		opts = append(opts, field.WithTruncation(s.Truncate[0], s.Truncate[1]))
	default:
		return nil, fmt.Errorf("truncate must be [lo, hi], got %v", s.Truncate)
	}
	return field.NewConfig(s.Key, nx, ny, nz, active, opts...)
}

func findNode(cfgs []nodeapi.Config, key string) (nodeapi.Config, error) {
	for _, cfg := range cfgs {
		if cfg.Key() == key {
			return cfg, nil
		}
	}
	return nil, fmt.Errorf("node %s not defined", key)
}
