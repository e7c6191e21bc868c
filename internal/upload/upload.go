// Package upload pushes session CSV logs recorded on the capture machine to a
// PoseCoach server, remembering what was already sent.
package upload

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/meltforce/posecoach/internal/sessionlog"
)

// sessionNamespace derives stable session IDs from log paths, so a log that
// grows between runs keeps feeding the same server-side session.
var sessionNamespace = uuid.MustParse("6f1c9a4e-3d2b-5e8f-9a71-c4b0d5e6f728")

// SessionID returns the session ID used for the log at relPath.
func SessionID(relPath string) uuid.UUID {
	return uuid.NewSHA1(sessionNamespace, []byte(filepath.ToSlash(relPath)))
}

// Stats tracks upload progress.
type Stats struct {
	FilesTotal    int
	FilesUploaded int
	FilesSkipped  int
	FilesErrored  int

	RowsSent     int
	RowsInserted int64
}

// Uploader walks a directory of session logs and POSTs new or changed ones
// to the server.
type Uploader struct {
	client *Client
	state  *StateDB
	root   string
	dryRun bool
	log    *slog.Logger
	stats  Stats
}

// New creates a new Uploader. client may be nil in dry-run mode.
func New(client *Client, state *StateDB, root string, dryRun bool, log *slog.Logger) *Uploader {
	return &Uploader{
		client: client,
		state:  state,
		root:   root,
		dryRun: dryRun,
		log:    log,
	}
}

// Run uploads every *.csv under the root in lexical order. Per-file failures
// are logged and counted; only a failed walk or a cancelled context aborts.
func (u *Uploader) Run(ctx context.Context) (*Stats, error) {
	var files []string
	err := filepath.WalkDir(u.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".csv") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return &u.stats, fmt.Errorf("walking %s: %w", u.root, err)
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return &u.stats, err
		}
		u.stats.FilesTotal++
		if err := u.processFile(ctx, f); err != nil {
			if ctx.Err() != nil {
				return &u.stats, ctx.Err()
			}
			u.log.Warn("upload failed", "file", f, "error", err)
			u.stats.FilesErrored++
		}
	}
	return &u.stats, nil
}

func (u *Uploader) processFile(ctx context.Context, path string) error {
	relPath, err := filepath.Rel(u.root, path)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}
	hash, err := HashFile(path)
	if err != nil {
		return fmt.Errorf("hash: %w", err)
	}

	uploaded, err := u.state.IsUploaded(ctx, relPath, info.Size(), hash)
	if err != nil {
		return fmt.Errorf("state check: %w", err)
	}
	if uploaded {
		u.stats.FilesSkipped++
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	_, records, err := sessionlog.Read(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	if len(records) == 0 {
		u.stats.FilesSkipped++
		return nil
	}

	id := SessionID(relPath)
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	if u.dryRun {
		u.log.Info("would upload", "file", relPath, "session", id, "rows", len(records))
		u.stats.RowsSent += len(records)
		return nil
	}

	result, err := u.client.SendSession(ctx, data, id, name)
	if err != nil {
		return err
	}
	u.stats.FilesUploaded++
	u.stats.RowsSent += len(records)
	u.stats.RowsInserted += result.RowsInserted

	if err := u.state.MarkUploaded(ctx, relPath, info.Size(), hash, id); err != nil {
		u.log.Warn("failed to mark uploaded", "file", relPath, "error", err)
	}
	u.log.Info("uploaded", "file", relPath, "session", id, "rows", len(records), "inserted", result.RowsInserted)
	return nil
}
