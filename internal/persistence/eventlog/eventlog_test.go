package eventlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
)

func readEntries(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	defer dec.Close()

	var out []map[string]any
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		out = append(out, m)
	}
	return out
}

func TestLogRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)
	l.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	if err := l.WriteHarvest(HarvestEntry{PlayerID: "P1", ObjectID: "tree_1", Success: true, Resource: "Wood", Amount: 5}); err != nil {
		t.Fatalf("WriteHarvest: %v", err)
	}
	if err := l.WriteHarvest(HarvestEntry{PlayerID: "P2", ObjectID: "tree_1", Code: "E_CONFLICT"}); err != nil {
		t.Fatalf("WriteHarvest: %v", err)
	}
	if err := l.WriteRespawn(RespawnEntry{ObjectID: "tree_1"}); err != nil {
		t.Fatalf("WriteRespawn: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	entries := readEntries(t, filepath.Join(dir, "events", "events-2026-03-01.jsonl.zst"))
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	if entries[0]["kind"] != "harvest" || entries[0]["player_id"] != "P1" || entries[0]["success"] != true {
		t.Fatalf("first entry = %v", entries[0])
	}
	if entries[1]["code"] != "E_CONFLICT" {
		t.Fatalf("second entry = %v", entries[1])
	}
	if entries[2]["kind"] != "respawn" || entries[2]["object_id"] != "tree_1" {
		t.Fatalf("third entry = %v", entries[2])
	}
	if entries[0]["ts"] == float64(0) {
		t.Fatalf("timestamp not stamped")
	}
}

func TestLogRotatesDaily(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)

	day := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	l.now = func() time.Time { return day }
	if err := l.WriteRespawn(RespawnEntry{ObjectID: "a"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	day = day.Add(2 * time.Minute)
	if err := l.WriteRespawn(RespawnEntry{ObjectID: "b"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	for _, want := range []string{"events-2026-03-01.jsonl.zst", "events-2026-03-02.jsonl.zst"} {
		if _, err := os.Stat(filepath.Join(dir, "events", want)); err != nil {
			t.Fatalf("missing %s: %v", want, err)
		}
	}
}
