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
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianLayers/pkg/ux"
	"github.com/AleutianAI/AleutianLayers/pkg/validation"
	"github.com/AleutianAI/AleutianLayers/services/layers/document"
)

func newWatchCmd(a *app, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch FILE",
		Short: "Keep FILE parsed and report what each change invalidates",
		Long: `watch opens FILE and reparses it incrementally whenever it changes on
disk, printing the invalidated byte ranges and the resulting layers. When a
query directory is configured, edits to its .scm files reload that language
and rebuild the affected layers. Reparses are debounced and rate limited
by the watch section of the config.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := a.openDocument(cmd.Context(), args[0], flags.language)
			if err != nil {
				return err
			}
			defer doc.Close()

			s := &watchSession{
				app:     a,
				doc:     doc,
				path:    args[0],
				printer: a.printer,
				logger:  a.logger.Slog(),
			}
			s.printLayers()
			return s.run(cmd.Context())
		},
	}
}

// watchSession drives one document from filesystem events.
type watchSession struct {
	app     *app
	doc     *document.Document
	path    string
	printer *ux.Printer
	logger  *slog.Logger
}

// run blocks until ctx ends or the watcher fails.
func (s *watchSession) run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	target, err := filepath.Abs(s.path)
	if err != nil {
		return err
	}
	// Editors often replace files by rename, so watch the directory.
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(target), err)
	}

	queryDir := s.app.registry.QueryDir()
	if queryDir != "" {
		if queryDir, err = filepath.Abs(queryDir); err != nil {
			return err
		}
		if err := addTree(watcher, queryDir); err != nil {
			s.logger.Warn("query directory not watched",
				slog.String("dir", queryDir),
				slog.String("error", err.Error()))
		}
	}

	cfg := s.app.cfg.Watch
	limiter := rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst)
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	fileDirty := false
	dirtyLanguages := map[string]bool{}

	s.printer.Info(fmt.Sprintf("watching %s", s.path))
	for {
		select {
		case <-ctx.Done():
			return nil

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("watch error", slog.String("error", err.Error()))

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name, _ := filepath.Abs(ev.Name)
			switch {
			case name == target && ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename):
				fileDirty = true
			case queryDir != "" && strings.HasPrefix(name, queryDir+string(filepath.Separator)):
				if ev.Has(fsnotify.Create) {
					if info, err := os.Stat(name); err == nil && info.IsDir() {
						if err := addTree(watcher, name); err != nil {
							s.logger.Warn("query directory not watched",
								slog.String("dir", name),
								slog.String("error", err.Error()))
						}
						continue
					}
				}
				lang, ok := languageForQueryFile(queryDir, name)
				if !ok {
					continue
				}
				dirtyLanguages[lang] = true
			default:
				continue
			}
			timer.Reset(cfg.Debounce)

		case <-timer.C:
			if err := limiter.Wait(ctx); err != nil {
				return nil
			}
			for _, lang := range sortedLanguages(dirtyLanguages) {
				s.reloadLanguage(ctx, lang)
			}
			clear(dirtyLanguages)
			if fileDirty {
				fileDirty = false
				if err := s.syncFile(ctx); err != nil && !errors.Is(err, os.ErrNotExist) {
					s.printer.Error(err.Error())
				}
			}
		}
	}
}

// syncFile applies the difference between the file and the document.
func (s *watchSession) syncFile(ctx context.Context) error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	region, replacement, changed := diffText(s.doc.Text(), string(data))
	if !changed {
		return nil
	}

	start := time.Now()
	invalidated, err := s.doc.ApplyChange(ctx, region, replacement)
	if err != nil {
		return err
	}
	s.printer.Row(
		"change",
		region.String(),
		fmt.Sprintf("+%d", len(replacement)),
		"invalidated="+formatSet(invalidated),
		time.Since(start).Round(time.Microsecond).String(),
	)
	s.printLayers()
	return nil
}

// reloadLanguage recompiles lang's queries and rebuilds its layers. A
// query that fails to compile keeps the previous configuration.
func (s *watchSession) reloadLanguage(ctx context.Context, lang string) {
	if _, err := s.app.registry.Reload(lang); err != nil {
		s.printer.Error(fmt.Sprintf("reload %s: %v", lang, err))
		s.logger.Warn("query reload failed",
			slog.String("language", lang),
			slog.String("error", err.Error()))
		return
	}
	invalidated, err := s.doc.LanguageConfigurationChanged(ctx, lang)
	if err != nil {
		s.printer.Error(fmt.Sprintf("rebuild %s: %v", lang, err))
		return
	}
	s.printer.Row("reload", lang, "invalidated="+formatSet(invalidated))
	s.printLayers()
}

func (s *watchSession) printLayers() {
	for _, info := range s.doc.Layers() {
		s.printer.Row(layerRow(info)...)
	}
}

// languageForQueryFile maps <dir>/<language>/<kind>.scm to language.
func languageForQueryFile(dir, path string) (string, bool) {
	if filepath.Ext(path) != ".scm" {
		return "", false
	}
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return "", false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 2 || validation.ValidateLanguageName(parts[0]) != nil {
		return "", false
	}
	return parts[0], true
}

// addTree watches dir and its subdirectories.
func addTree(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(p)
		}
		return nil
	})
}

func sortedLanguages(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
