package index_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/TheBushidoCollective/han-sub006/internal/index"
	"github.com/TheBushidoCollective/han-sub006/internal/testsupport"
)

const sessionID = "44444444-4444-4444-4444-444444444444"

func writeLog(t *testing.T, root, slug, name, content string) string {
	t.Helper()
	dir := filepath.Join(root, slug)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func appendLog(t *testing.T, path, content string) {
	t.Helper()
	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	defer file.Close()
	if _, err := file.WriteString(content); err != nil {
		t.Fatalf("append: %v", err)
	}
}

func TestIndexFileCountsMessagesAndAdvancesMark(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	indexer := index.NewIndexer(store, cfg.Paths.WatchRoot, nil)
	ctx := context.Background()

	path := writeLog(t, cfg.Paths.WatchRoot, "-home-dev-proj", sessionID+".jsonl",
		`{"type":"user","timestamp":"2026-08-28T10:00:00Z"}`+"\n"+
			`{"type":"assistant","timestamp":"2026-08-28T10:00:05Z"}`+"\n")

	result, err := indexer.IndexFile(ctx, path)
	if err != nil {
		t.Fatalf("IndexFile: %v", err)
	}
	if result == nil {
		t.Fatal("result is nil for a session log")
	}
	if result.SessionID != sessionID {
		t.Fatalf("session id = %s, want %s", result.SessionID, sessionID)
	}
	if result.MessagesIndexed != 2 || result.TotalMessages != 2 || !result.IsNewSession {
		t.Fatalf("result = %+v, want 2 new messages in a new session", result)
	}

	session, err := store.GetSession(ctx, sessionID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if session.ProjectSlug != "-home-dev-proj" {
		t.Fatalf("project slug = %q", session.ProjectSlug)
	}
	if session.ProjectPath != "/home/dev/proj" {
		t.Fatalf("project path = %q", session.ProjectPath)
	}
}

func TestIndexFileIsIdempotentOnUnchangedFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	indexer := index.NewIndexer(store, cfg.Paths.WatchRoot, nil)
	ctx := context.Background()

	path := writeLog(t, cfg.Paths.WatchRoot, "-p", sessionID+".jsonl", `{"a":1}`+"\n")

	if _, err := indexer.IndexFile(ctx, path); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	result, err := indexer.IndexFile(ctx, path)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if result.MessagesIndexed != 0 {
		t.Fatalf("reindexed %d messages from unchanged file, want 0", result.MessagesIndexed)
	}
	if result.TotalMessages != 1 {
		t.Fatalf("total = %d, want 1", result.TotalMessages)
	}
}

func TestIndexFileLeavesPartialLineForNextPass(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	indexer := index.NewIndexer(store, cfg.Paths.WatchRoot, nil)
	ctx := context.Background()

	path := writeLog(t, cfg.Paths.WatchRoot, "-p", sessionID+".jsonl",
		`{"a":1}`+"\n"+`{"a":2`)

	result, err := indexer.IndexFile(ctx, path)
	if err != nil {
		t.Fatalf("IndexFile: %v", err)
	}
	if result.MessagesIndexed != 1 {
		t.Fatalf("indexed %d messages, want 1 (partial tail not consumed)", result.MessagesIndexed)
	}

	appendLog(t, path, "}\n")
	result, err = indexer.IndexFile(ctx, path)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if result.MessagesIndexed != 1 || result.TotalMessages != 2 {
		t.Fatalf("result = %+v, want the completed line indexed", result)
	}
}

func TestIndexFileSkipsMalformedLines(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	indexer := index.NewIndexer(store, cfg.Paths.WatchRoot, nil)
	ctx := context.Background()

	path := writeLog(t, cfg.Paths.WatchRoot, "-p", sessionID+".jsonl",
		`{"a":1}`+"\n"+"not json at all\n"+`{"a":2}`+"\n")

	result, err := indexer.IndexFile(ctx, path)
	if err != nil {
		t.Fatalf("IndexFile: %v", err)
	}
	if result.MessagesIndexed != 2 {
		t.Fatalf("indexed %d messages, want 2 around the malformed line", result.MessagesIndexed)
	}
	if result.SkippedLines != 1 {
		t.Fatalf("skipped = %d, want 1", result.SkippedLines)
	}

	// The malformed line's bytes are consumed: nothing left to index.
	again, err := indexer.IndexFile(ctx, path)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if again.MessagesIndexed != 0 {
		t.Fatalf("reindexed %d messages, want 0", again.MessagesIndexed)
	}
}

func TestIndexFileReindexesAfterTruncation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	indexer := index.NewIndexer(store, cfg.Paths.WatchRoot, nil)
	ctx := context.Background()

	path := writeLog(t, cfg.Paths.WatchRoot, "-p", sessionID+".jsonl",
		`{"a":1}`+"\n"+`{"a":2}`+"\n")
	if _, err := indexer.IndexFile(ctx, path); err != nil {
		t.Fatalf("first pass: %v", err)
	}

	if err := os.WriteFile(path, []byte(`{"a":9}`+"\n"), 0o644); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	result, err := indexer.IndexFile(ctx, path)
	if err != nil {
		t.Fatalf("after truncation: %v", err)
	}
	if result.MessagesIndexed != 1 {
		t.Fatalf("indexed %d messages after truncation, want 1", result.MessagesIndexed)
	}
}

func TestIndexFileIgnoresNonSessionFiles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	indexer := index.NewIndexer(store, cfg.Paths.WatchRoot, nil)

	path := writeLog(t, cfg.Paths.WatchRoot, "-p", "notes.jsonl", `{"a":1}`+"\n")
	result, err := indexer.IndexFile(context.Background(), path)
	if err != nil {
		t.Fatalf("IndexFile: %v", err)
	}
	if result != nil {
		t.Fatalf("result = %+v, want nil for non-session file", result)
	}
}

func TestScanRootIndexesEverySessionLog(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	indexer := index.NewIndexer(store, cfg.Paths.WatchRoot, nil)
	ctx := context.Background()

	writeLog(t, cfg.Paths.WatchRoot, "-p1", "55555555-5555-5555-5555-555555555555.jsonl", `{"a":1}`+"\n")
	writeLog(t, cfg.Paths.WatchRoot, "-p2", "66666666-6666-6666-6666-666666666666_messages.jsonl", `{"a":1}`+"\n")
	writeLog(t, cfg.Paths.WatchRoot, "-p2", "README.jsonl", `{"a":1}`+"\n")

	results, err := indexer.ScanRoot(ctx)
	if err != nil {
		t.Fatalf("ScanRoot: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2 session logs", len(results))
	}

	count, err := store.CountSessions(ctx)
	if err != nil {
		t.Fatalf("CountSessions: %v", err)
	}
	if count != 2 {
		t.Fatalf("sessions = %d, want 2", count)
	}
}

func TestSessionIDFromPath(t *testing.T) {
	cases := []struct {
		path string
		id   string
		ok   bool
	}{
		{"/r/p/44444444-4444-4444-4444-444444444444.jsonl", sessionID, true},
		{"/r/p/44444444-4444-4444-4444-444444444444_messages.jsonl", sessionID, true},
		{"/r/p/notes.jsonl", "", false},
		{"/r/p/44444444-4444-4444-4444-444444444444.txt", "", false},
		{"/r/p/not-a-uuid.jsonl", "", false},
	}
	for _, tc := range cases {
		id, ok := index.SessionIDFromPath(tc.path)
		if ok != tc.ok || id != tc.id {
			t.Errorf("SessionIDFromPath(%s) = (%q, %v), want (%q, %v)", tc.path, id, ok, tc.id, tc.ok)
		}
	}
}

func TestDecodeProjectSlug(t *testing.T) {
	if got := index.DecodeProjectSlug("-home-dev-proj"); got != "/home/dev/proj" {
		t.Fatalf("decoded = %q", got)
	}
	if got := index.DecodeProjectSlug("plain"); got != "" {
		t.Fatalf("decoded = %q, want empty for unencoded name", got)
	}
}
