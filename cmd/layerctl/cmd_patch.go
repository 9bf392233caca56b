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
	"os"
	"strconv"

	"github.com/sourcegraph/go-diff/diff"
	"github.com/spf13/cobra"
)

func newPatchCmd(a *app, flags *globalFlags) *cobra.Command {
	var write bool

	cmd := &cobra.Command{
		Use:   "patch FILE DIFF",
		Short: "Apply a unified diff incrementally and report what each hunk invalidates",
		Long: `patch opens FILE, applies the hunks of the unified diff DIFF one at a
time as incremental edits, and prints the bytes each edit invalidated across
all layers. With --write the patched text is saved back to FILE.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, patchPath := args[0], args[1]

			data, err := os.ReadFile(patchPath)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", patchPath, err)
			}
			fd, err := diff.ParseFileDiff(data)
			if err != nil {
				return fmt.Errorf("failed to parse %s: %w", patchPath, err)
			}

			doc, err := a.openDocument(cmd.Context(), path, flags.language)
			if err != nil {
				return err
			}
			defer doc.Close()

			results, applyErr := applyFileDiff(cmd.Context(), doc, fd)

			p := a.printer
			p.Title(fmt.Sprintf("%s: %d hunks", path, len(fd.Hunks)))
			for _, r := range results {
				p.Row(
					"hunk="+strconv.Itoa(r.Hunk),
					r.Region.String(),
					"+"+strconv.Itoa(len(r.Replacement)),
					"invalidated="+formatSet(r.Invalidated),
				)
			}
			for _, info := range doc.Layers() {
				p.Row(layerRow(info)...)
			}
			if applyErr != nil {
				return applyErr
			}

			if write {
				info, err := os.Stat(path)
				if err != nil {
					return err
				}
				if err := os.WriteFile(path, []byte(doc.Text()), info.Mode().Perm()); err != nil {
					return fmt.Errorf("failed to write %s: %w", path, err)
				}
				p.Success("wrote " + path)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&write, "write", "w", false, "write the patched text back to FILE")
	return cmd
}
