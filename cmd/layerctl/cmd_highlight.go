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
	"fmt"
	"log/slog"
	"runtime"
	"strconv"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianLayers/pkg/ux"
	"github.com/AleutianAI/AleutianLayers/services/layers/layer"
	"github.com/AleutianAI/AleutianLayers/services/layers/ranges"
	"github.com/AleutianAI/AleutianLayers/services/layers/telemetry"
)

// highlightResult is one file's outcome.
type highlightResult struct {
	path       string
	text       string
	highlights []layer.NamedRange
	err        error
}

func newHighlightCmd(a *app, flags *globalFlags) *cobra.Command {
	var (
		spans    bool
		jobs     int
		startArg uint
		endArg   uint
	)

	cmd := &cobra.Command{
		Use:   "highlight FILE...",
		Short: "Print the highlighted text of each file, injected languages included",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			region := ranges.All()
			if cmd.Flags().Changed("start") || cmd.Flags().Changed("end") {
				if endArg == 0 {
					endArg = ranges.MaxOffset
				}
				region = ranges.NewSet(ranges.NewByteRange(startArg, endArg))
			}

			results := make([]highlightResult, len(args))
			g, ctx := errgroup.WithContext(cmd.Context())
			if jobs <= 0 {
				jobs = runtime.NumCPU()
			}
			g.SetLimit(jobs)

			for i, path := range args {
				g.Go(func() error {
					ctx, span := telemetry.StartSpan(ctx, "layerctl", "highlight",
						trace.WithAttributes(attribute.String("path", path)))
					defer span.End()

					res := highlightResult{path: path}
					doc, err := a.openDocument(ctx, path, flags.language)
					if err != nil {
						res.err = err
						telemetry.RecordError(span, err)
						results[i] = res
						return nil
					}
					defer doc.Close()

					res.text = doc.Text()
					res.highlights, res.err = doc.Highlights(region, nil)
					telemetry.RecordError(span, res.err)
					results[i] = res
					// A cancelled run stops the remaining files.
					return ctx.Err()
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			return printHighlights(a, results, spans)
		},
	}

	cmd.Flags().BoolVar(&spans, "spans", false, "list highlight spans instead of painting the text")
	cmd.Flags().IntVarP(&jobs, "jobs", "j", 0, "files parsed in parallel (default: number of CPUs)")
	cmd.Flags().UintVar(&startArg, "start", 0, "first byte of the region to highlight")
	cmd.Flags().UintVar(&endArg, "end", 0, "end byte of the region to highlight (default: end of file)")
	return cmd
}

// printHighlights prints results in argument order.
func printHighlights(a *app, results []highlightResult, spans bool) error {
	p := a.printer
	var total, failed int
	for _, res := range results {
		if res.err != nil {
			failed++
			p.Error(fmt.Sprintf("%s: %v", res.path, res.err))
			a.logger.Slog().Warn("highlight failed",
				slog.String("path", res.path),
				slog.String("error", res.err.Error()))
			continue
		}
		total += len(res.highlights)

		if spans || p.Mode() == ux.ModeMachine {
			p.Title(res.path)
			for _, h := range res.highlights {
				fields := []string{h.Range.Bytes.String(), h.Name, h.Language, strconv.Itoa(h.Depth)}
				if p.Mode() == ux.ModeMachine {
					fields = append([]string{res.path}, fields...)
				}
				p.Row(fields...)
			}
			continue
		}

		painted := make([]ux.Span, len(res.highlights))
		for i, h := range res.highlights {
			painted[i] = ux.Span{Start: h.Range.Bytes.Start, End: h.Range.Bytes.End, Name: h.Name}
		}
		p.Box(res.path, p.RenderHighlights(res.text, painted))
	}

	p.Summary(len(results), total, failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(results))
	}
	return nil
}
