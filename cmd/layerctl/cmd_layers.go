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
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianLayers/services/layers/layer"
	"github.com/AleutianAI/AleutianLayers/services/layers/ranges"
)

func newLayersCmd(a *app, flags *globalFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "layers FILE",
		Short: "Show the layer tree of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := a.openDocument(cmd.Context(), args[0], flags.language)
			if err != nil {
				return err
			}
			defer doc.Close()

			infos := doc.Layers()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}

			p := a.printer
			p.Title(fmt.Sprintf("%s (%s)", args[0], doc.Language()))
			for _, info := range infos {
				p.Row(layerRow(info)...)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the layers as JSON")
	return cmd
}

// layerRow formats one layer: indented name, depth, ranges, missing.
func layerRow(info layer.LayerInfo) []string {
	spans := "all"
	if len(info.Ranges) > 0 {
		parts := make([]string, len(info.Ranges))
		for i, r := range info.Ranges {
			parts[i] = r.String()
		}
		spans = strings.Join(parts, ",")
	}
	row := []string{
		strings.Repeat("  ", info.Depth) + info.Language,
		strconv.Itoa(info.Depth),
		spans,
	}
	if !info.HasTree {
		row = append(row, "unparsed")
	}
	if len(info.Missing) > 0 {
		row = append(row, "missing="+strings.Join(info.Missing, ","))
	}
	return row
}

// formatSet renders s as comma-separated ranges, or "none".
func formatSet(s ranges.Set) string {
	if s.IsEmpty() {
		return "none"
	}
	parts := make([]string, 0, len(s.Ranges()))
	for _, r := range s.Ranges() {
		parts = append(parts, r.String())
	}
	return strings.Join(parts, ",")
}
