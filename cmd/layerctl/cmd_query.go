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
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianLayers/pkg/validation"
	"github.com/AleutianAI/AleutianLayers/services/layers/languages"
	"github.com/AleutianAI/AleutianLayers/services/layers/layer"
	"github.com/AleutianAI/AleutianLayers/services/layers/ranges"
)

func newQueryCmd(a *app, flags *globalFlags) *cobra.Command {
	var (
		kind   string
		strict bool
	)

	cmd := &cobra.Command{
		Use:   "query FILE",
		Short: "Run a query kind across every layer and print the captures",
		Long: `query runs one query kind, such as highlights, locals or tags, over
every layer of FILE. Layers whose language has no query of that kind are
skipped unless --strict is set. Kinds other than the built-in ones come from
<query_dir>/<language>/<kind>.scm.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validation.ValidateQueryKind(strings.TrimSuffix(kind, ".scm")); err != nil {
				return err
			}
			doc, err := a.openDocument(cmd.Context(), args[0], flags.language)
			if err != nil {
				return err
			}
			defer doc.Close()

			snap, err := doc.Snapshot()
			if err != nil {
				return err
			}
			defer snap.Close()

			qk := languages.KindForFile(kind)
			execute := snap.ExecuteQueryPartial
			if strict {
				execute = snap.ExecuteQuery
			}
			cursor, err := execute(qk, ranges.All())
			if err != nil {
				return err
			}
			defer cursor.Close()

			text := doc.Text()
			p := a.printer
			p.Title(fmt.Sprintf("%s: %s", args[0], qk))
			count := 0
			for m := range cursor.All() {
				count++
				captures := append([]layer.QueryCapture(nil), m.Captures...)
				sort.SliceStable(captures, func(i, j int) bool {
					return captures[i].Range.Bytes.Start < captures[j].Range.Bytes.Start
				})
				for _, c := range captures {
					p.Row(
						c.Range.Bytes.String(),
						"@"+c.Name,
						m.Language,
						strconv.Itoa(m.Depth),
						"pattern="+strconv.FormatUint(uint64(m.PatternIndex), 10),
						excerpt(text, c.Range.Bytes),
					)
				}
			}
			p.Info(fmt.Sprintf("%d matches", count))
			return nil
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", string(layer.Highlights), "query kind to run")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail when a layer in the file has no query of this kind")
	return cmd
}

// excerpt returns the text of r on one line, shortened to 40 bytes.
func excerpt(text string, r ranges.ByteRange) string {
	end := min(r.End, uint(len(text)))
	if r.Start >= end {
		return `""`
	}
	s := text[r.Start:end]
	if len(s) > 40 {
		s = s[:37] + "..."
	}
	return strconv.Quote(strings.ReplaceAll(s, "\n", " "))
}
