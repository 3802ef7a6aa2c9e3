// Package eventlog appends gameplay events as zstd-compressed JSONL.
// One file per UTC day; every line carries a kind tag so one log holds
// harvests and respawns together in order.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

type Log struct {
	dir string

	mu     sync.Mutex
	curDay string
	f      *os.File
	enc    *zstd.Encoder
	buf    *bufio.Writer
	now    func() time.Time
}

func New(dataDir string) *Log {
	return &Log{
		dir: filepath.Join(dataDir, "events"),
		now: time.Now,
	}
}

// HarvestEntry is one harvest attempt, successful or rejected.
type HarvestEntry struct {
	Kind     string `json:"kind"`
	TS       int64  `json:"ts"`
	PlayerID string `json:"player_id"`
	ObjectID string `json:"object_id"`
	Success  bool   `json:"success"`
	Code     string `json:"code,omitempty"`
	Resource string `json:"resource,omitempty"`
	Amount   int    `json:"amount,omitempty"`
}

// RespawnEntry records an object returning to the world.
type RespawnEntry struct {
	Kind     string `json:"kind"`
	TS       int64  `json:"ts"`
	ObjectID string `json:"object_id"`
}

func (l *Log) WriteHarvest(e HarvestEntry) error {
	e.Kind = "harvest"
	if e.TS == 0 {
		e.TS = l.now().Unix()
	}
	return l.write(e)
}

func (l *Log) WriteRespawn(e RespawnEntry) error {
	e.Kind = "respawn"
	if e.TS == 0 {
		e.TS = l.now().Unix()
	}
	return l.write(e)
}

func (l *Log) write(v any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	day := l.now().UTC().Format("2006-01-02")
	if day != l.curDay {
		if err := l.rotateLocked(day); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := l.buf.Write(b); err != nil {
		return err
	}
	if err := l.buf.WriteByte('\n'); err != nil {
		return err
	}
	return l.buf.Flush()
}

func (l *Log) rotateLocked(day string) error {
	if err := l.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(l.dir, fmt.Sprintf("events-%s.jsonl.zst", day))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	l.f = f
	l.enc = enc
	l.buf = bufio.NewWriterSize(enc, 64*1024)
	l.curDay = day
	return nil
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked()
}

func (l *Log) closeLocked() error {
	var errEnc error
	if l.buf != nil {
		_ = l.buf.Flush()
	}
	if l.enc != nil {
		errEnc = l.enc.Close()
		l.enc = nil
	}
	if l.f != nil {
		_ = l.f.Close()
		l.f = nil
	}
	l.buf = nil
	return errEnc
}
