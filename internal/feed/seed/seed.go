// Package seed loads a JSON fixture {topic: [document, ...]} into a feed
// store through its Writer port.
package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"fleetguard/internal/feed"
	"fleetguard/pkg/platform/sentinel"
)

// Result counts what a load did.
type Result struct {
	Created int
	Skipped int
}

// LoadFile opens path and calls Load.
func LoadFile(ctx context.Context, w feed.Writer, path string, logger *slog.Logger) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return Load(ctx, w, f, logger)
}

// Load writes every document in topic order. A document whose id already
// exists is skipped so restarts are idempotent. Each body's "id" field, when
// present, becomes the document id.
func Load(ctx context.Context, w feed.Writer, r io.Reader, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var raw map[feed.Topic][]json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return Result{}, fmt.Errorf("decode seed: %w", err)
	}
	for topic := range raw {
		if !topic.Valid() {
			return Result{}, fmt.Errorf("seed topic %q: %w", topic, sentinel.ErrUnknownTopic)
		}
	}

	var res Result
	for _, topic := range feed.Topics {
		for _, body := range raw[topic] {
			var head struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(body, &head); err != nil {
				return res, fmt.Errorf("seed %s document: %w", topic, err)
			}
			_, err := w.Create(ctx, topic, feed.Document{ID: head.ID, Data: body})
			switch {
			case err == nil:
				res.Created++
			case errors.Is(err, sentinel.ErrConflict):
				res.Skipped++
			default:
				return res, fmt.Errorf("seed %s/%s: %w", topic, head.ID, err)
			}
		}
	}
	logger.InfoContext(ctx, "seed loaded",
		"created", res.Created,
		"skipped", res.Skipped,
	)
	return res, nil
}
