package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func NewStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <session>",
		Short: "Show the progress of an upload session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := newClient().Status(context.Background(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Session:  %s\n", status.SessionID)
			fmt.Fprintf(out, "File:     %s (%s)\n", status.Filename, humanize.IBytes(uint64(status.TotalSize)))
			fmt.Fprintf(out, "Status:   %s\n", status.Status)
			fmt.Fprintf(out, "Progress: %d/%d chunks (%.2f%%)\n", status.UploadedChunks, status.TotalChunks, status.Progress)
			if len(status.MissingChunks) > 0 {
				fmt.Fprintf(out, "Missing:  %s\n", formatIndices(status.MissingChunks, 20))
			}
			if status.StoragePath != nil {
				fmt.Fprintf(out, "Stored:   %s\n", *status.StoragePath)
			}
			if status.ErrorMessage != nil {
				fmt.Fprintf(out, "Error:    %s\n", *status.ErrorMessage)
			}
			if expires, err := time.Parse(time.RFC3339, status.ExpiresAt); err == nil {
				fmt.Fprintf(out, "Expires:  %s (%s)\n", status.ExpiresAt, humanize.Time(expires))
			}
			return nil
		},
	}

	addServerFlags(cmd)
	return cmd
}

func formatIndices(indices []int, limit int) string {
	parts := make([]string, 0, min(len(indices), limit))
	for i, index := range indices {
		if i == limit {
			parts = append(parts, fmt.Sprintf("... (%d more)", len(indices)-limit))
			break
		}
		parts = append(parts, fmt.Sprint(index))
	}
	return strings.Join(parts, ", ")
}
