package client

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mwantia/fluxupload/pkg/client"
	"github.com/spf13/cobra"
)

func NewUploadCommand() *cobra.Command {
	var opts client.UploadOptions
	var quiet bool

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a file to a FluxUpload server",
		Long: `Upload a file in chunks, sending several chunks in parallel.

Pass --resume with the session id printed by an earlier attempt to send
only the chunks the server is still missing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			if !quiet {
				opts.Progress = cmd.ErrOrStderr()
			}

			c := newClient()
			result, err := c.UploadFile(ctx, args[0], opts)
			if result != nil && result.SessionID != "" && err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Resume with: fluxupload upload %s --resume %s\n", args[0], result.SessionID)
			}
			if err != nil {
				return err
			}

			info, statErr := os.Stat(args[0])
			size := "?"
			if statErr == nil {
				size = humanize.IBytes(uint64(info.Size()))
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Session:  %s\n", result.SessionID)
			fmt.Fprintf(out, "Stored:   %s\n", result.StoragePath)
			fmt.Fprintf(out, "Size:     %s\n", size)
			fmt.Fprintf(out, "Chunks:   %d sent, %d already present\n", result.Sent, result.Skipped)
			fmt.Fprintf(out, "Elapsed:  %s\n", result.Elapsed.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.SessionID, "resume", "", "session id of an interrupted upload")
	cmd.Flags().Int64Var(&opts.ChunkSize, "chunk-size", 0, "chunk size in bytes (server default when 0)")
	cmd.Flags().StringVar(&opts.MimeType, "mime-type", "", "content type recorded with the session")
	cmd.Flags().StringVar(&opts.HashAlgorithm, "hash", "", "hash the file locally before uploading (md5, sha1, sha256, sha512, blake2b-256)")
	cmd.Flags().IntVarP(&opts.Concurrency, "concurrency", "j", 4, "number of chunks uploaded in parallel")
	cmd.Flags().IntVar(&opts.MaxRetries, "retries", 5, "retries per chunk on transient failures")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "disable the progress bar")
	addServerFlags(cmd)

	return cmd
}
