package main

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	filoc "github.com/jeromerg/filoc"
	"github.com/jeromerg/filoc/api"
)

// sourceBlock is one `source "name" { ... }` block.
type sourceBlock struct {
	Name         string `hcl:"name,label"`
	Locpath      string `hcl:"locpath"`
	Codec        string `hcl:"codec,optional"`
	Multi        bool   `hcl:"multi,optional"`
	Writable     bool   `hcl:"writable,optional"`
	CacheLocpath string `hcl:"cache_locpath,optional"`
}

// joinBlock tunes the composite join. All fields optional.
type joinBlock struct {
	Prefix    string `hcl:"prefix,optional"`
	Separator string `hcl:"separator,optional"`
	Parallel  bool   `hcl:"parallel,optional"`
}

type fileConfig struct {
	Sources []sourceBlock `hcl:"source,block"`
	Join    *joinBlock    `hcl:"join,block"`
}

// workspace is the configured set of trees. A single source is driven
// directly, several sources through the composite join.
type workspace struct {
	names   []string
	sources map[string]*filoc.Filoc
	single  *filoc.Filoc
	comp    *filoc.Composite
}

func loadConfig(path string) (*fileConfig, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse %s: %w", path, diags)
	}
	var cfg fileConfig
	if diags := gohcl.DecodeBody(file.Body, nil, &cfg); diags.HasErrors() {
		return nil, fmt.Errorf("decode %s: %w", path, diags)
	}
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("%s declares no source block", path)
	}
	return &cfg, nil
}

func openWorkspace() (*workspace, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	ws := &workspace{sources: map[string]*filoc.Filoc{}}
	for _, src := range cfg.Sources {
		if _, dup := ws.sources[src.Name]; dup {
			return nil, fmt.Errorf("duplicate source %q", src.Name)
		}
		opts := []filoc.Option{
			filoc.WithMulti(src.Multi),
			filoc.WithWritable(src.Writable),
		}
		if src.Codec != "" {
			opts = append(opts, filoc.WithCodecName(src.Codec))
		}
		if src.CacheLocpath != "" {
			opts = append(opts, filoc.WithCache(src.CacheLocpath))
		}
		if verbose {
			opts = append(opts, filoc.WithEventSink(api.LogSink{Logger: log.Default()}))
		}
		f, err := filoc.New(src.Locpath, opts...)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", src.Name, err)
		}
		ws.sources[src.Name] = f
		ws.names = append(ws.names, src.Name)
	}
	sort.Strings(ws.names)

	if len(ws.sources) == 1 {
		ws.single = ws.sources[ws.names[0]]
		return ws, nil
	}
	var copts []filoc.CompositeOption
	if j := cfg.Join; j != nil {
		if j.Prefix != "" {
			copts = append(copts, filoc.WithJoinPrefix(j.Prefix))
		}
		if j.Separator != "" {
			copts = append(copts, filoc.WithJoinSeparator(j.Separator))
		}
		if j.Parallel {
			copts = append(copts, filoc.WithJoinParallel(true))
		}
	}
	comp, err := filoc.NewComposite(ws.sources, copts...)
	if err != nil {
		return nil, err
	}
	ws.comp = comp
	return ws, nil
}

func (ws *workspace) readAll(ctx context.Context, constraints api.Binding) ([]*api.Record, error) {
	if ws.single != nil {
		return ws.single.ReadAll(ctx, constraints)
	}
	return ws.comp.ReadAll(ctx, constraints)
}

func (ws *workspace) writeAll(ctx context.Context, rows []*api.Record) error {
	if ws.single != nil {
		return ws.single.WriteAll(ctx, rows)
	}
	return ws.comp.WriteAll(ctx, rows)
}

// source resolves a --source flag; with one configured source the flag
// may stay empty.
func (ws *workspace) source(name string) (*filoc.Filoc, error) {
	if name == "" {
		if len(ws.names) == 1 {
			return ws.sources[ws.names[0]], nil
		}
		return nil, fmt.Errorf("several sources configured (%v), pick one with --source", ws.names)
	}
	f, ok := ws.sources[name]
	if !ok {
		return nil, fmt.Errorf("unknown source %q (configured: %v)", name, ws.names)
	}
	return f, nil
}
