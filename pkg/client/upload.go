package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mwantia/fluxupload/pkg/db/models"
	"github.com/mwantia/fluxupload/pkg/upload"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
)

type UploadOptions struct {
	SessionID     string
	ChunkSize     int64
	MimeType      string
	HashAlgorithm string
	// Hash skips local hashing when set
	Hash string

	Concurrency    int
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Progress renders a progress bar when non-nil
	Progress io.Writer
}

func (o *UploadOptions) defaults() {
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 250 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 10 * time.Second
	}
}

type UploadResult struct {
	SessionID   string
	Resumed     bool
	Sent        int
	Skipped     int
	StoragePath string
	Status      string
	Elapsed     time.Duration
}

// UploadFile sends path in chunks and returns once the service reports a
// terminal state. Chunks already held by a resumed session are skipped.
func (c *Client) UploadFile(ctx context.Context, path string, opts UploadOptions) (*UploadResult, error) {
	opts.defaults()
	start := time.Now()

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	digest := opts.Hash
	if digest == "" && opts.HashAlgorithm != "" {
		digest, err = upload.HashReader(opts.HashAlgorithm, io.NewSectionReader(file, 0, info.Size()))
		if err != nil {
			return nil, fmt.Errorf("failed to hash %s: %w", path, err)
		}
	}

	var init *InitResponse
	err = c.retry(ctx, opts, func() error {
		var ierr error
		init, ierr = c.Init(ctx, InitRequest{
			Filename:  filepath.Base(path),
			TotalSize: info.Size(),
			ChunkSize: opts.ChunkSize,
			MimeType:  opts.MimeType,
			Hash:      digest,
			SessionID: opts.SessionID,
		})
		return ierr
	})
	if err != nil {
		return nil, err
	}

	result := &UploadResult{
		SessionID: init.SessionID,
		Resumed:   init.Resumed,
		Skipped:   init.TotalChunks - len(init.MissingChunks),
	}

	bar := newProgress(opts.Progress, info, init)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	var mu sync.Mutex
	for _, index := range init.MissingChunks {
		g.Go(func() error {
			offset := int64(index) * init.ChunkSize
			size := min(init.ChunkSize, info.Size()-offset)

			data := make([]byte, size)
			if _, err := file.ReadAt(data, offset); err != nil && !errors.Is(err, io.EOF) {
				return fmt.Errorf("failed to read chunk %d: %w", index, err)
			}

			var resp *ChunkResponse
			err := c.retry(gctx, opts, func() error {
				var cerr error
				resp, cerr = c.UploadChunk(gctx, init.SessionID, index, data)
				return cerr
			})
			if err != nil {
				return fmt.Errorf("chunk %d: %w", index, err)
			}

			mu.Lock()
			result.Sent++
			if resp.IsComplete && resp.StoragePath != "" {
				result.StoragePath = resp.StoragePath
			}
			mu.Unlock()

			if bar != nil {
				_ = bar.Add64(size)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, err
	}
	if bar != nil {
		_ = bar.Finish()
	}

	status, err := c.Status(ctx, init.SessionID)
	if err != nil {
		return result, err
	}
	state, err := models.ParseSessionStatus(status.Status)
	if err != nil {
		return result, fmt.Errorf("session %s: %w", init.SessionID, err)
	}
	result.Status = state.String()
	result.Elapsed = time.Since(start)
	if status.StoragePath != nil {
		result.StoragePath = *status.StoragePath
	}

	switch state {
	case models.StatusCompleted:
		return result, nil
	case models.StatusFailed:
		msg := "upload failed"
		if status.ErrorMessage != nil {
			msg = *status.ErrorMessage
		}
		return result, fmt.Errorf("session %s failed: %s", init.SessionID, msg)
	default:
		return result, fmt.Errorf("session %s is %s with %d of %d chunks",
			init.SessionID, status.Status, status.UploadedChunks, status.TotalChunks)
	}
}

func newProgress(w io.Writer, info os.FileInfo, init *InitResponse) *progressbar.ProgressBar {
	if w == nil {
		return nil
	}

	desc := fmt.Sprintf("%s (%s)", info.Name(), humanize.IBytes(uint64(info.Size())))
	bar := progressbar.NewOptions64(info.Size(),
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
	)

	done := int64(init.TotalChunks-len(init.MissingChunks)) * init.ChunkSize
	if done > 0 {
		_ = bar.Add64(min(done, info.Size()))
	}
	return bar
}

func (c *Client) retry(ctx context.Context, opts UploadOptions, fn func() error) error {
	backoff := opts.InitialBackoff
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || attempt >= opts.MaxRetries || !retryable(err) {
			return err
		}

		// +/- 20% jitter
		wait := backoff + time.Duration((rand.Float64()*0.4-0.2)*float64(backoff))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		backoff = min(backoff*2, opts.MaxBackoff)
	}
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	// transport failure
	return true
}
