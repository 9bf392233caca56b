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
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianLayers/services/layers/layer"
	"github.com/AleutianAI/AleutianLayers/services/layers/ranges"
)

func newInjectionsCmd(a *app, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "injections FILE",
		Short: "List the embedded-language regions found in a file",
		Long: `injections prints every injected layer with the byte ranges it
parses, and every injection whose language has no registered grammar.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := a.openDocument(cmd.Context(), args[0], flags.language)
			if err != nil {
				return err
			}
			defer doc.Close()

			text := doc.Text()
			p := a.printer
			p.Title(args[0])

			var found, missing int
			for _, info := range doc.Layers() {
				if len(info.Missing) > 0 {
					missing += len(info.Missing)
					p.Warning(fmt.Sprintf("%s layer injects unregistered languages: %s",
						info.Language, strings.Join(info.Missing, ", ")))
				}
				if info.Depth == 0 {
					continue
				}
				for _, r := range info.Ranges {
					found++
					p.Row(injectionRow(info, r, text)...)
				}
			}
			p.Info(fmt.Sprintf("%d injected ranges, %d unresolved languages", found, missing))
			return nil
		},
	}
}

func injectionRow(info layer.LayerInfo, r ranges.ByteRange, text string) []string {
	return []string{
		r.String(),
		info.Language,
		strconv.Itoa(info.Depth),
		excerpt(text, r),
	}
}
