// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package languages provides the grammars and queries available to layer
// trees.
//
// A Registry maps language names, aliases and file extensions to
// grammars, and compiles each grammar's queries into a
// layer.LanguageConfiguration on first use. Queries ship embedded in the
// binary; a query directory can override or extend them per language.
package languages

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"unsafe"

	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/AleutianLayers/services/layers/engine"
	"github.com/AleutianAI/AleutianLayers/services/layers/layer"
)

//go:embed queries
var embeddedQueries embed.FS

// ErrUnknownLanguage indicates a name, alias or extension with no grammar.
var ErrUnknownLanguage = errors.New("languages: unknown language")

// Grammar describes one registrable language.
type Grammar struct {
	// Name is the canonical language name, e.g. "go".
	Name string

	// Aliases are alternative names injections may use, e.g. "golang".
	Aliases []string

	// Extensions are file extensions including the dot, e.g. ".go".
	Extensions []string

	// Language returns the grammar's runtime handle.
	Language func() unsafe.Pointer

	// QueryName is the embedded query directory. Defaults to Name.
	QueryName string
}

// Option configures a Registry.
type Option func(*Registry)

// WithQueryDir adds an override directory laid out as
// <dir>/<language>/<kind>.scm. Files found there replace or extend the
// embedded queries.
func WithQueryDir(dir string) Option {
	return func(r *Registry) {
		r.queryDir = dir
	}
}

// WithLogger sets the logger for configuration failures.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Registry resolves language names to compiled configurations.
//
// Description:
//
//	Configurations are compiled lazily and at most once per language at a
//	time; concurrent requests for the same language share one compile.
//	Reload recompiles a language; the configuration it replaces stays
//	valid until the Registry is closed, since live layers may still
//	reference it.
//
// Thread Safety:
//
//	Registry is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	grammars map[string]Grammar
	aliases  map[string]string
	byExt    map[string]string
	configs  map[string]*layer.LanguageConfiguration
	retired  []*layer.LanguageConfiguration
	flight   singleflight.Group

	queryDir string
	logger   *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		grammars: make(map[string]Grammar),
		aliases:  make(map[string]string),
		byExt:    make(map[string]string),
		configs:  make(map[string]*layer.LanguageConfiguration),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds g, replacing any grammar with the same name, alias or
// extension.
func (r *Registry) Register(g Grammar) {
	name := layer.NormalizeName(g.Name)
	if name == "" || g.Language == nil {
		return
	}
	if g.QueryName == "" {
		g.QueryName = name
	}
	g.Name = name

	r.mu.Lock()
	defer r.mu.Unlock()

	r.grammars[name] = g
	for _, alias := range g.Aliases {
		r.aliases[layer.NormalizeName(alias)] = name
	}
	for _, ext := range g.Extensions {
		r.byExt[strings.ToLower(ext)] = name
	}
}

// Resolve maps a name or alias to its canonical language name.
func (r *Registry) Resolve(name string) (string, bool) {
	name = layer.NormalizeName(name)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.grammars[name]; ok {
		return name, true
	}
	canonical, ok := r.aliases[name]
	return canonical, ok
}

// ForPath returns the language registered for path's extension.
func (r *Registry) ForPath(p string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(p))

	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.byExt[ext]
	return name, ok
}

// Languages returns the registered language names, sorted.
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.grammars))
	for name := range r.grammars {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Configuration returns the compiled configuration for name.
//
// Inputs:
//
//	name - A language name or alias.
//
// Outputs:
//
//	*layer.LanguageConfiguration - Owned by the registry; do not close it.
//	error                        - ErrUnknownLanguage, or a query compile
//	                               error (see engine.QueryCompileError).
func (r *Registry) Configuration(name string) (*layer.LanguageConfiguration, error) {
	canonical, ok := r.Resolve(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLanguage, name)
	}

	r.mu.RLock()
	cfg, cached := r.configs[canonical]
	r.mu.RUnlock()
	if cached {
		return cfg, nil
	}

	result, err, _ := r.flight.Do(canonical, func() (interface{}, error) {
		r.mu.RLock()
		cfg, cached := r.configs[canonical]
		r.mu.RUnlock()
		if cached {
			return cfg, nil
		}

		cfg, err := r.compile(canonical)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.configs[canonical] = cfg
		r.mu.Unlock()
		return cfg, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*layer.LanguageConfiguration), nil
}

// Reload recompiles name's queries, so later lookups see edited query
// files.
func (r *Registry) Reload(name string) (*layer.LanguageConfiguration, error) {
	canonical, ok := r.Resolve(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLanguage, name)
	}

	cfg, err := r.compile(canonical)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if old, ok := r.configs[canonical]; ok {
		r.retired = append(r.retired, old)
	}
	r.configs[canonical] = cfg
	r.mu.Unlock()
	return cfg, nil
}

// Provider adapts the registry for layer trees. Unknown languages and
// compile failures resolve to false; failures are logged.
func (r *Registry) Provider() layer.LanguageProvider {
	return func(name string) (*layer.LanguageConfiguration, bool) {
		cfg, err := r.Configuration(name)
		if err != nil {
			if !errors.Is(err, ErrUnknownLanguage) {
				r.logger.Warn("language configuration unavailable",
					slog.String("language", name),
					slog.String("error", err.Error()))
			}
			return nil, false
		}
		return cfg, true
	}
}

// QueryDir returns the override directory, or "" if none.
func (r *Registry) QueryDir() string {
	return r.queryDir
}

// Close releases every configuration the registry compiled.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, cfg := range r.configs {
		cfg.Close()
		delete(r.configs, name)
	}
	for _, cfg := range r.retired {
		cfg.Close()
	}
	r.retired = nil
}

func (r *Registry) compile(name string) (*layer.LanguageConfiguration, error) {
	r.mu.RLock()
	g, ok := r.grammars[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLanguage, name)
	}

	sources, err := r.querySources(g.QueryName)
	if err != nil {
		return nil, err
	}
	return layer.NewLanguageConfiguration(engine.NewLanguage(name, g.Language()), sources)
}

// querySources gathers the embedded queries for dir, then applies overrides.
func (r *Registry) querySources(dir string) (map[layer.QueryKind]string, error) {
	sources := make(map[layer.QueryKind]string)

	embedded, err := fs.Sub(embeddedQueries, path.Join("queries", dir))
	if err != nil {
		return nil, err
	}
	if err := readQueries(embedded, sources); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	if r.queryDir == "" {
		return sources, nil
	}
	override := filepath.Join(r.queryDir, dir)
	if err := readQueries(os.DirFS(override), sources); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading queries from %s: %w", override, err)
	}
	return sources, nil
}

// readQueries loads every *.scm file at the root of fsys, keyed by kind.
func readQueries(fsys fs.FS, into map[layer.QueryKind]string) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".scm" {
			continue
		}
		data, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return err
		}
		into[KindForFile(entry.Name())] = string(data)
	}
	return nil
}

// KindForFile maps a query file name such as "highlights.scm" to its kind.
func KindForFile(name string) layer.QueryKind {
	switch base := strings.TrimSuffix(path.Base(name), ".scm"); base {
	case string(layer.Highlights):
		return layer.Highlights
	case string(layer.Injections):
		return layer.Injections
	case string(layer.Locals):
		return layer.Locals
	default:
		return layer.Custom(base)
	}
}
