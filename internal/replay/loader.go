package replay

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"whiteshoe/server/internal/protocol"
)

// FrameRecord is one outbound packet read back from the frame log.
type FrameRecord struct {
	CapturedAt time.Time
	PlayerID   int
	Packet     *protocol.Packet
}

// TimelineEntry is either an event or a frame, ordered by capture time.
type TimelineEntry struct {
	CapturedAt time.Time
	Event      *EventRecord
	Frame      *FrameRecord
}

// Bundle is a run directory read back into memory.
type Bundle struct {
	Manifest Manifest
	Header   *Header
	Events   []EventRecord
	Frames   []FrameRecord
}

// Load reads a run directory, or the manifest.json inside one.
func Load(path string) (*Bundle, error) {
	if path == "" {
		return nil, fmt.Errorf("run path must be provided")
	}
	manifestPath := path
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		manifestPath = filepath.Join(path, manifestFile)
	}
	dir := filepath.Dir(manifestPath)

	//1.- The manifest names every other file.
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, err
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, err
	}
	if manifest.Version != 1 {
		return nil, fmt.Errorf("unsupported manifest version %d", manifest.Version)
	}

	bundle := &Bundle{Manifest: manifest}
	//2.- The header only exists once the writer closed cleanly.
	if header, err := ReadHeader(filepath.Join(dir, headerFile)); err == nil {
		bundle.Header = &header
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	if bundle.Events, err = readEvents(filepath.Join(dir, manifest.EventsPath)); err != nil {
		return nil, fmt.Errorf("events: %w", err)
	}
	if bundle.Frames, err = readFrames(filepath.Join(dir, manifest.FramesPath)); err != nil {
		return nil, fmt.Errorf("frames: %w", err)
	}
	return bundle, nil
}

// Timeline merges events and frames in capture order. Events sort before
// frames captured at the same instant.
func (b *Bundle) Timeline() []TimelineEntry {
	if b == nil {
		return nil
	}
	out := make([]TimelineEntry, 0, len(b.Events)+len(b.Frames))
	for i := range b.Events {
		out = append(out, TimelineEntry{CapturedAt: b.Events[i].CapturedAt, Event: &b.Events[i]})
	}
	for i := range b.Frames {
		out = append(out, TimelineEntry{CapturedAt: b.Frames[i].CapturedAt, Frame: &b.Frames[i]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CapturedAt.Equal(out[j].CapturedAt) {
			return out[i].Event != nil && out[j].Event == nil
		}
		return out[i].CapturedAt.Before(out[j].CapturedAt)
	})
	return out
}

func readEvents(path string) ([]EventRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(snappy.NewReader(file))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var events []EventRecord
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var record EventRecord
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			return nil, err
		}
		events = append(events, record)
	}
	return events, scanner.Err()
}

func readFrames(path string) ([]FrameRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder, err := zstd.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()

	var frames []FrameRecord
	header := make([]byte, frameHeaderSize)
	for {
		if _, err := io.ReadFull(decoder, header); err != nil {
			if errors.Is(err, io.EOF) {
				return frames, nil
			}
			return nil, err
		}
		size := binary.LittleEndian.Uint32(header[12:16])
		if size > protocol.MaxFrameSize {
			return nil, fmt.Errorf("frame of %d bytes exceeds limit", size)
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(decoder, payload); err != nil {
			return nil, err
		}
		p, err := protocol.Unmarshal(payload)
		if err != nil {
			return nil, err
		}
		frames = append(frames, FrameRecord{
			CapturedAt: time.Unix(0, int64(binary.LittleEndian.Uint64(header[0:8]))).UTC(),
			PlayerID:   int(int32(binary.LittleEndian.Uint32(header[8:12]))),
			Packet:     p,
		})
	}
}
