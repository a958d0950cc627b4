package index

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/TheBushidoCollective/han-sub006/internal/logging"
	"github.com/TheBushidoCollective/han-sub006/internal/sessions"
)

// maxLineBytes bounds a single JSONL line. Lines beyond this are treated
// as malformed and skipped.
const maxLineBytes = 8 << 20

// Result summarizes one indexing pass over a single session log file.
type Result struct {
	SessionID       string
	Path            string
	MessagesIndexed int
	TotalMessages   int
	IsNewSession    bool
	SkippedLines    int
}

// Indexer reads appended session log bytes and applies them to the store.
type Indexer struct {
	store  *sessions.Store
	root   string
	logger *slog.Logger
}

// NewIndexer constructs an indexer rooted at the watch directory.
func NewIndexer(store *sessions.Store, root string, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Indexer{
		store:  store,
		root:   root,
		logger: logging.NewComponentLogger(logger, "indexer"),
	}
}

// IndexFile reads the bytes of path past its stored high-water mark and
// applies the new messages to the store. Paths whose name does not carry a
// session id are ignored with a nil result. Only fully newline-terminated
// lines are consumed, so a partially written tail line is left for the next
// pass.
func (ix *Indexer) IndexFile(ctx context.Context, path string) (*Result, error) {
	sessionID, ok := SessionIDFromPath(path)
	if !ok {
		return nil, nil
	}

	mark, err := ix.store.GetMark(ctx, path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat session log: %w", err)
	}

	offset := mark.Offset
	if info.Size() < offset {
		ix.logger.Warn("session log truncated, reindexing from start",
			logging.String(logging.FieldSessionID, sessionID),
			logging.String(logging.FieldPath, path),
			logging.Int64("old_offset", offset),
			logging.Int64("size", info.Size()))
		offset = 0
		mark.Lines = 0
	}
	if info.Size() == offset {
		return &Result{SessionID: sessionID, Path: path, TotalMessages: mark.Lines}, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open session log: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek session log: %w", err)
	}

	var (
		reader    = bufio.NewReaderSize(file, 64<<10)
		consumed  = offset
		messages  int
		skipped   int
		lastStamp time.Time
	)
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		line, err := reader.ReadBytes('\n')
		if err != nil {
			// An unterminated tail is still being written; leave it
			// for the next pass.
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read session log: %w", err)
		}
		consumed += int64(len(line))
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			continue
		}
		if len(trimmed) > maxLineBytes {
			skipped++
			continue
		}
		stamp, ok := parseMessage(trimmed)
		if !ok {
			skipped++
			ix.logger.Warn("skipping malformed session log line",
				logging.String(logging.FieldSessionID, sessionID),
				logging.String(logging.FieldPath, path),
				logging.Int64("offset", consumed))
			continue
		}
		messages++
		if stamp.After(lastStamp) {
			lastStamp = stamp
		}
	}

	if consumed == offset {
		return &Result{SessionID: sessionID, Path: path, TotalMessages: mark.Lines, SkippedLines: skipped}, nil
	}

	slug := ProjectSlugFromPath(ix.root, path)
	isNew, total, err := ix.store.ApplyIndex(ctx, sessions.IndexUpdate{
		SessionID:      sessionID,
		ProjectSlug:    slug,
		ProjectPath:    DecodeProjectSlug(slug),
		TranscriptPath: path,
		Path:           path,
		Offset:         consumed,
		Lines:          mark.Lines + messages,
		Messages:       messages,
		ActivityAt:     lastStamp,
	})
	if err != nil {
		return nil, err
	}

	ix.logger.Info("indexed session log",
		logging.String(logging.FieldSessionID, sessionID),
		logging.Int("messages", messages),
		logging.Int("total", total),
		logging.Bool("new_session", isNew))

	return &Result{
		SessionID:       sessionID,
		Path:            path,
		MessagesIndexed: messages,
		TotalMessages:   total,
		IsNewSession:    isNew,
		SkippedLines:    skipped,
	}, nil
}

// ScanRoot walks the watch root and indexes every session log found. It is
// the reconciliation path: filesystem events may be missed, a full scan may
// not. Per-file errors are logged and do not abort the walk.
func (ix *Indexer) ScanRoot(ctx context.Context) ([]*Result, error) {
	var results []*Result
	err := filepath.WalkDir(ix.root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			return nil
		}
		result, indexErr := ix.IndexFile(ctx, path)
		if indexErr != nil {
			ix.logger.Warn("failed to index session log",
				logging.String(logging.FieldPath, path),
				logging.Error(indexErr))
			return nil
		}
		if result != nil {
			results = append(results, result)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return results, nil
		}
		return results, err
	}
	return results, nil
}

// parseMessage validates one JSONL line and extracts its timestamp when
// present.
func parseMessage(line []byte) (time.Time, bool) {
	var payload struct {
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(line, &payload); err != nil {
		return time.Time{}, false
	}
	if payload.Timestamp != "" {
		if stamp, err := time.Parse(time.RFC3339Nano, payload.Timestamp); err == nil {
			return stamp, true
		}
		if stamp, err := time.Parse(time.RFC3339, payload.Timestamp); err == nil {
			return stamp, true
		}
	}
	return time.Time{}, true
}

// SessionIDFromPath extracts the session id from a log file name. Names of
// the form "{uuid}.jsonl" and "{uuid}_messages.jsonl" carry one; anything
// else does not.
func SessionIDFromPath(path string) (string, bool) {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, ".jsonl")
	if name == filepath.Base(path) {
		return "", false
	}
	name = strings.TrimSuffix(name, "_messages")
	if _, err := uuid.Parse(name); err != nil {
		return "", false
	}
	return name, true
}

// ProjectSlugFromPath returns the first path element of path below root,
// which is the encoded project directory name. Returns "" for paths
// directly under the root or outside it.
func ProjectSlugFromPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[0]
}

// DecodeProjectSlug converts an encoded project directory name back to an
// absolute path. The encoding replaces path separators with dashes, which
// makes decoding best-effort: dashes inside directory names decode as
// separators too.
func DecodeProjectSlug(slug string) string {
	if !strings.HasPrefix(slug, "-") {
		return ""
	}
	return strings.ReplaceAll(slug, "-", string(os.PathSeparator))
}
