package replay

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"whiteshoe/server/internal/game"
)

// SaveVersion is bumped whenever the save layout changes incompatibly.
const SaveVersion = 1

// ErrNoSave is returned when loading before anything was saved.
var ErrNoSave = errors.New("no debug save found")

// SaveFile is the msgpack body of a debug save.
type SaveFile struct {
	Version int             `msgpack:"version"`
	SavedAt time.Time       `msgpack:"saved_at"`
	Games   []game.Snapshot `msgpack:"games"`
}

// EncodeSave writes a zstd-compressed msgpack save.
func EncodeSave(w io.Writer, save SaveFile) error {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return err
	}
	if err := msgpack.NewEncoder(enc).Encode(&save); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// DecodeSave reads a save written by EncodeSave.
func DecodeSave(r io.Reader) (SaveFile, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return SaveFile{}, err
	}
	defer dec.Close()
	var save SaveFile
	if err := msgpack.NewDecoder(dec).Decode(&save); err != nil {
		return SaveFile{}, err
	}
	if save.Version != SaveVersion {
		return SaveFile{}, fmt.Errorf("unsupported save version %d", save.Version)
	}
	return save, nil
}

// SaveStore keeps the debug save in one file, replaced atomically.
type SaveStore struct {
	path string
	now  func() time.Time
}

// NewSaveStore returns a store writing to path.
func NewSaveStore(path string, clock func() time.Time) *SaveStore {
	if clock == nil {
		clock = time.Now
	}
	return &SaveStore{path: path, now: clock}
}

// Path returns the save location.
func (s *SaveStore) Path() string { return s.path }

// Save replaces the save file with the given games.
func (s *SaveStore) Save(games []game.Snapshot) error {
	var buf bytes.Buffer
	if err := EncodeSave(&buf, SaveFile{Version: SaveVersion, SavedAt: s.now().UTC(), Games: games}); err != nil {
		return fmt.Errorf("encode save: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	//1.- Write beside the target and rename so a crash never leaves half a save.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load reads the games back.
func (s *SaveStore) Load() ([]game.Snapshot, error) {
	file, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w at %s", ErrNoSave, s.path)
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()
	save, err := DecodeSave(file)
	if err != nil {
		return nil, fmt.Errorf("decode save: %w", err)
	}
	return save.Games, nil
}
