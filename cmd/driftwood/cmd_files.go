// Copyright (C) 2025 Driftwood AI (dev@driftwood.sh)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/driftwood-ai/driftwood/pkg/ux"
)

// runListFiles prints the documents the server has indexed.
func runListFiles(cmd *cobra.Command, args []string) {
	client, ctx, cancel := managementClient()
	defer cancel()

	files, err := client.ListFiles(ctx)
	if err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}

	if len(files) == 0 {
		ux.Muted("No documents uploaded. Add one with: driftwood files upload <path>")
		return
	}

	ux.Title("Indexed Documents")
	for _, f := range files {
		ux.FileStatus(f.Name, ux.IconDoc, humanSize(f.Size))
	}
}

// runUploadFiles uploads one or more local documents for indexing. A failed
// upload stops the batch so the user sees which file broke it.
func runUploadFiles(cmd *cobra.Command, args []string) {
	client, ctx, cancel := managementClient()
	defer cancel()

	for _, path := range args {
		var name string
		err := ux.WithSpinner(fmt.Sprintf("Uploading %s", path), func() error {
			var err error
			name, err = client.UploadFile(ctx, path)
			return err
		})
		if err != nil {
			ux.Error(err.Error())
			os.Exit(1)
		}
		ux.Success(fmt.Sprintf("Uploaded %s", name))
	}
}

// runDeleteFile removes an uploaded document and its indexed content.
func runDeleteFile(cmd *cobra.Command, args []string) {
	client, ctx, cancel := managementClient()
	defer cancel()

	if err := client.DeleteFile(ctx, args[0]); err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}
	ux.Success(fmt.Sprintf("Deleted %s", args[0]))
}

// humanSize formats a byte count for listing output.
func humanSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
