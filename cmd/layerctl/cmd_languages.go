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
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

func newLanguagesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "List registered languages and their query kinds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := a.printer
			p.Title("Languages")
			for _, name := range a.registry.Languages() {
				cfg, err := a.registry.Configuration(name)
				if err != nil {
					p.Error(name + ": " + err.Error())
					continue
				}
				kinds := make([]string, 0, len(cfg.Queries))
				for kind := range cfg.Queries {
					kinds = append(kinds, string(kind))
				}
				sort.Strings(kinds)
				p.Row(name, strings.Join(kinds, ","))
			}
			return nil
		},
	}
}
