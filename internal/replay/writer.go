// Package replay records what a server run did: a snappy JSONL log of game
// events, a zstd stream of every packet sent, and the debug save blob.
package replay

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"whiteshoe/server/internal/game"
	"whiteshoe/server/internal/logging"
	"whiteshoe/server/internal/protocol"
)

var runIDCleaner = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

const (
	frameInterval = 200 * time.Millisecond
	// frameHeaderSize is captured-at nanos, player id and payload length.
	frameHeaderSize = 8 + 4 + 4

	eventsFile   = "events.jsonl.sz"
	framesFile   = "frames.bin.zst"
	manifestFile = "manifest.json"
	headerFile   = "header.json"
)

type frameBlob struct {
	capturedAt time.Time
	playerID   int
	payload    []byte
}

// EventRecord is one line of the event log.
type EventRecord struct {
	CapturedAt  time.Time `json:"captured_at"`
	GameID      int64     `json:"game_id"`
	PlayerID    int       `json:"player_id"`
	Status      string    `json:"status"`
	Responsible int       `json:"responsible,omitempty"`
	Damage      string    `json:"damage,omitempty"`
	Name        string    `json:"name,omitempty"`
}

// Writer streams a run's events and outbound packets to disk. It satisfies
// game.Observer and the server's packet recorder.
type Writer struct {
	mu          sync.Mutex
	dir         string
	now         func() time.Time
	log         *logging.Logger
	eventFile   *os.File
	eventStream *snappy.Writer
	frameFile   *os.File
	frameStream *zstd.Encoder
	pending     []frameBlob
	lastFlush   time.Time
	header      Header
	events      int64
	frames      int64
	err         error
	closed      bool
}

// Manifest describes the run directory layout so tooling can locate files.
type Manifest struct {
	Version         int    `json:"version"`
	RunID           string `json:"run_id"`
	CreatedAt       string `json:"created_at"`
	FrameIntervalMs int    `json:"frame_interval_ms"`
	EventsPath      string `json:"events_path"`
	FramesPath      string `json:"frames_path"`
}

// NewWriter creates a run directory under root and opens the compressed
// sinks.
func NewWriter(root, runID string, clock func() time.Time, logger *logging.Logger) (*Writer, Manifest, error) {
	if root == "" {
		return nil, Manifest{}, fmt.Errorf("events directory must be provided")
	}
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = logging.L()
	}

	cleaned := runIDCleaner.ReplaceAllString(runID, "")
	if cleaned == "" {
		cleaned = "run"
	}
	created := clock().UTC()
	path := filepath.Join(root, fmt.Sprintf("%s-%s", cleaned, created.Format("20060102T150405Z")))
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, Manifest{}, err
	}

	eventFile, err := os.Create(filepath.Join(path, eventsFile))
	if err != nil {
		return nil, Manifest{}, err
	}
	eventStream := snappy.NewBufferedWriter(eventFile)

	frameFile, err := os.Create(filepath.Join(path, framesFile))
	if err != nil {
		eventFile.Close()
		return nil, Manifest{}, err
	}
	frameStream, err := zstd.NewWriter(frameFile)
	if err != nil {
		eventStream.Close()
		eventFile.Close()
		frameFile.Close()
		return nil, Manifest{}, err
	}

	manifest := Manifest{
		Version:         1,
		RunID:           runID,
		CreatedAt:       created.Format(time.RFC3339Nano),
		FrameIntervalMs: int(frameInterval / time.Millisecond),
		EventsPath:      eventsFile,
		FramesPath:      framesFile,
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err == nil {
		err = os.WriteFile(filepath.Join(path, manifestFile), data, 0o644)
	}
	if err != nil {
		frameStream.Close()
		frameFile.Close()
		eventStream.Close()
		eventFile.Close()
		return nil, Manifest{}, err
	}

	return &Writer{
		dir:         path,
		now:         clock,
		log:         logger.With(logging.String("run_id", runID)),
		eventFile:   eventFile,
		eventStream: eventStream,
		frameFile:   frameFile,
		frameStream: frameStream,
		header:      Header{SchemaVersion: HeaderSchemaVersion, RunID: runID, FilePointer: manifestFile},
	}, manifest, nil
}

// Directory exposes the run directory.
func (w *Writer) Directory() string {
	if w == nil {
		return ""
	}
	return w.dir
}

// SetHeader records the run parameters written to header.json on Close.
func (w *Writer) SetHeader(seed, vision, generator, mode string, options map[string]string) {
	if w == nil {
		return
	}
	w.mu.Lock()
	w.header.Seed = seed
	w.header.Vision = vision
	w.header.Generator = generator
	w.header.Mode = mode
	w.header.Options = Options(options).Clone()
	w.mu.Unlock()
}

// GameEvent appends one event line. A write failure is logged once and
// reported by Err; later events are dropped.
func (w *Writer) GameEvent(e game.Event) {
	if w == nil {
		return
	}
	record := EventRecord{
		CapturedAt:  e.At.UTC(),
		GameID:      e.GameID,
		PlayerID:    e.PlayerID,
		Status:      e.Status.String(),
		Responsible: e.Responsible,
		Name:        e.Name,
	}
	if e.Status == protocol.StatusDamaged || e.Status == protocol.StatusDeath || e.Status == protocol.StatusKilled {
		record.Damage = e.DamageType.String()
	}
	line, err := json.Marshal(record)
	if err != nil {
		w.fail(err)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil || w.closed {
		return
	}
	if _, err := w.eventStream.Write(append(line, '\n')); err != nil {
		w.failLocked(err)
		return
	}
	if err := w.eventStream.Flush(); err != nil {
		w.failLocked(err)
		return
	}
	w.events++
}

// RecordPacket stages an outbound packet; staged packets reach the zstd
// stream at most every frame interval.
func (w *Writer) RecordPacket(at time.Time, playerID int, p *protocol.Packet) {
	if w == nil || p == nil {
		return
	}
	payload := protocol.Marshal(p)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil || w.closed {
		return
	}
	w.pending = append(w.pending, frameBlob{capturedAt: at.UTC(), playerID: playerID, payload: payload})
	now := w.now().UTC()
	if w.lastFlush.IsZero() {
		w.lastFlush = now
		return
	}
	if now.Sub(w.lastFlush) >= frameInterval {
		if err := w.flushLocked(); err != nil {
			w.failLocked(err)
			return
		}
		w.lastFlush = now
	}
}

// Flush forces staged packets out regardless of cadence.
func (w *Writer) Flush() error {
	if w == nil {
		return fmt.Errorf("writer not initialised")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.flushLocked(); err != nil {
		return err
	}
	w.lastFlush = w.now().UTC()
	return nil
}

// Counts reports how many events and packets reached the logs.
func (w *Writer) Counts() (events, frames int64) {
	if w == nil {
		return 0, 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.events, w.frames
}

// Err returns the first write failure, if any.
func (w *Writer) Err() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Close writes the header, flushes every buffer and releases the files.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	//1.- Attempt every step and surface the first failure.
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	keep(WriteHeader(filepath.Join(w.dir, headerFile), w.header))
	keep(w.flushLocked())
	keep(w.eventStream.Flush())
	keep(w.eventStream.Close())
	keep(w.eventFile.Close())
	keep(w.frameStream.Close())
	keep(w.frameFile.Close())
	return firstErr
}

func (w *Writer) fail(err error) {
	w.mu.Lock()
	w.failLocked(err)
	w.mu.Unlock()
}

func (w *Writer) failLocked(err error) {
	if w.err != nil {
		return
	}
	w.err = err
	w.log.Error("run log write failed, recording stopped", logging.Error(err))
}

// flushLocked writes staged packets as length-prefixed records; callers hold
// the mutex.
func (w *Writer) flushLocked() error {
	for _, frame := range w.pending {
		header := make([]byte, frameHeaderSize)
		binary.LittleEndian.PutUint64(header[0:8], uint64(frame.capturedAt.UnixNano()))
		binary.LittleEndian.PutUint32(header[8:12], uint32(int32(frame.playerID)))
		binary.LittleEndian.PutUint32(header[12:16], uint32(len(frame.payload)))
		if _, err := w.frameStream.Write(header); err != nil {
			return err
		}
		if _, err := w.frameStream.Write(frame.payload); err != nil {
			return err
		}
		w.frames++
	}
	w.pending = w.pending[:0]
	return nil
}
