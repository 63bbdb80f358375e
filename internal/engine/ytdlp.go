// Package engine adapts the external yt-dlp binary as the media transfer
// backend. yt-dlp natively speaks both progressive HTTP and HLS, so a
// resolved direct link of either kind downloads through the same path.
package engine

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/lrstanley/go-ytdlp"

	"github.com/katvier/naia/internal/provider"
	"github.com/katvier/naia/pkg/logger"
)

const progressInterval = time.Millisecond * 500

// YtDlpEngine shells out to yt-dlp for each transfer. Safe for concurrent
// use; every download runs its own process.
type YtDlpEngine struct {
	// id distinguishes this engine instance in log output when multiple
	// engines exist (tests, mainly).
	id uuid.UUID

	logger logger.Logger
}

func New() *YtDlpEngine {
	return &YtDlpEngine{
		id:     uuid.New(),
		logger: logger.Get("Engine"),
	}
}

// Download transfers the linked media to outputPath, forwarding the headers
// the provider demands and reporting progress as a percentage. The transfer
// aborts when the context is cancelled.
func (engine *YtDlpEngine) Download(ctx context.Context, link *provider.DirectLink, outputPath string, onProgress func(percent float64)) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("unable to create output directory: %w", err)
	}

	command := ytdlp.New().
		Output(outputPath).
		ProgressFunc(progressInterval, func(update ytdlp.ProgressUpdate) {
			if onProgress == nil || update.TotalBytes == 0 {
				return
			}

			onProgress(float64(update.DownloadedBytes) / float64(update.TotalBytes) * 100)
		})

	for key, values := range headersToForward(link.Headers) {
		for _, value := range values {
			command = command.AddHeaders(fmt.Sprintf("%s:%s", key, value))
		}
	}

	engine.logger.Emit(logger.DEBUG, "[%s] Starting yt-dlp transfer of %s link to %s\n", engine.id, link.Provider, outputPath)
	if _, err := command.Run(ctx, link.URL); err != nil {
		return fmt.Errorf("yt-dlp transfer failed: %w", err)
	}

	return nil
}

// headersToForward returns the subset of provider headers worth passing to
// yt-dlp. A nil header set forwards nothing.
func headersToForward(headers http.Header) http.Header {
	if headers == nil {
		return nil
	}

	forwarded := make(http.Header, len(headers))
	for _, key := range []string{"Referer", "Origin", "User-Agent", "Accept-Language"} {
		if value := headers.Get(key); value != "" {
			forwarded.Set(key, value)
		}
	}

	return forwarded
}
