// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/AleutianAI/AleutianLayers/pkg/validation"
	"github.com/AleutianAI/AleutianLayers/services/layers/document"
	"github.com/AleutianAI/AleutianLayers/services/layers/languages"
	"github.com/AleutianAI/AleutianLayers/services/layers/layer"
)

// errNoLanguage means neither --language nor the file extension named a
// registered language.
var errNoLanguage = errors.New("no language for file")

// languageFor picks the root language for path.
func (a *app) languageFor(path, override string) (string, error) {
	if override != "" {
		override, err := validation.SanitizeName(override)
		if err != nil {
			return "", err
		}
		name, ok := a.registry.Resolve(override)
		if !ok {
			return "", fmt.Errorf("%w: %q", languages.ErrUnknownLanguage, override)
		}
		return name, nil
	}
	name, ok := a.registry.ForPath(path)
	if !ok {
		return "", fmt.Errorf("%w: %s (use --language)", errNoLanguage, path)
	}
	return name, nil
}

// layerOptions turns the layers config into layer options.
func (a *app) layerOptions() []layer.Option {
	return []layer.Option{
		layer.WithLanguageProvider(a.registry.Provider()),
		layer.WithMaxDepth(a.cfg.Layers.MaxDepth),
		layer.WithParseTimeout(a.cfg.Layers.ParseTimeout),
		layer.WithMatchLimit(a.cfg.Layers.MatchLimit),
	}
}

// newDocument creates an empty document for language.
func (a *app) newDocument(language string, opts ...document.Option) (*document.Document, error) {
	cfg, err := a.registry.Configuration(language)
	if err != nil {
		return nil, err
	}
	opts = append([]document.Option{
		document.WithLogger(a.logger.Slog()),
		document.WithLayerOptions(a.layerOptions()...),
	}, opts...)
	return document.New(cfg, opts...)
}

// openDocument reads path and parses it.
func (a *app) openDocument(ctx context.Context, path, override string) (*document.Document, error) {
	language, err := a.languageFor(path, override)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	doc, err := a.newDocument(language)
	if err != nil {
		return nil, err
	}
	if _, err := doc.ReplaceContent(ctx, string(data)); err != nil {
		doc.Close()
		return nil, err
	}
	a.logger.Slog().Debug("document opened",
		slog.String("path", path),
		slog.String("language", language),
		slog.String("document_id", doc.ID().String()),
		slog.Int("layers", len(doc.Layers())))
	return doc, nil
}
