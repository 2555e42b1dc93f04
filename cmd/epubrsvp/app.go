package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/yuanying/epubrsvp/internal/library"
	"github.com/yuanying/epubrsvp/internal/position"
	"github.com/yuanying/epubrsvp/internal/search"
	"github.com/yuanying/epubrsvp/internal/settings"
	"github.com/yuanying/epubrsvp/internal/store"
)

// app is the opened library and its collaborators.
type app struct {
	kv        store.KV
	index     *search.Index
	library   *library.Library
	positions *position.Store
	settings  *settings.Store
	logger    *slog.Logger
}

// openApp reads the global options of cmd and opens the library.
func openApp(cmd *cobra.Command, args []string) (*app, error) {
	opts, err := readCLIOptions(cmd, args)
	if err != nil {
		return nil, err
	}
	return newApp(cmd.Context(), opts)
}

func newApp(ctx context.Context, opts cliOptions) (*app, error) {
	logger := opts.Logger
	indexDir := ""
	if opts.Store != store.BackendMemory {
		if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		indexDir = opts.DataDir
	}

	kv, err := store.Open(opts.Store, opts.DataDir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", opts.Store, err)
	}
	index, err := search.Open(indexDir, logger)
	if err != nil {
		kv.Close()
		return nil, fmt.Errorf("failed to open search index: %w", err)
	}

	positions := position.New(kv, logger)
	lib, err := library.Open(ctx, kv, library.Options{
		Positions: positions,
		Index:     index,
		Logger:    logger,
	})
	if err != nil {
		index.Close()
		kv.Close()
		return nil, err
	}

	return &app{
		kv:        kv,
		index:     index,
		library:   lib,
		positions: positions,
		settings:  settings.New(kv, logger),
		logger:    logger,
	}, nil
}

// ensureIndexed re-indexes every book when the search index is empty, as
// after a mapping change.
func (a *app) ensureIndexed(ctx context.Context) error {
	entries := a.library.Entries()
	if len(entries) == 0 {
		return nil
	}
	n, err := a.index.DocumentCount()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	a.logger.Info("rebuilding search index", "books", len(entries))
	for _, e := range entries {
		p, err := a.library.Book(ctx, e.ID)
		if err != nil {
			a.logger.Warn("skipping book during reindex", "book_id", e.ID, "error", err)
			continue
		}
		if err := a.index.IndexBook(ctx, e.ID, e.Title, p); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) Close() error {
	return errors.Join(a.index.Close(), a.kv.Close())
}
