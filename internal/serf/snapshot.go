package serf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/roach88/vere/internal/ir"
)

// snapshot file locations relative to the pier directory
const (
	chkDir       = ".urb/chk"
	rocDir       = ".urb/roc"
	snapshotFile = "snapshot.json"
)

func encodeSnapshot(s *state) ([]byte, error) {
	return ir.MarshalCanonical(ir.Map{
		"eve": ir.Int(int64(s.eve)),
		"mug": ir.Int(int64(s.mug)),
		"ns":  s.ns,
	})
}

func decodeSnapshot(data []byte) (*state, error) {
	v, err := ir.DecodeValue(data)
	if err != nil {
		return nil, err
	}
	m, ok := v.(ir.Map)
	if !ok {
		return nil, fmt.Errorf("snapshot: expected object, got %T", v)
	}
	eve, ok := m.Number("eve")
	if !ok || eve < 0 {
		return nil, errors.New("snapshot: missing eve")
	}
	mug, ok := m.Number("mug")
	if !ok {
		return nil, errors.New("snapshot: missing mug")
	}
	ns, ok := m["ns"].(ir.Map)
	if !ok {
		return nil, errors.New("snapshot: missing ns")
	}
	return &state{eve: uint64(eve), mug: uint32(mug), ns: ns}, nil
}

// writeFile replaces path atomically.
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// save writes the rolling snapshot.
func save(dir string, s *state) error {
	data, err := encodeSnapshot(s)
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}
	if err := writeFile(filepath.Join(dir, chkDir, snapshotFile), data); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}

// cram writes a portable snapshot named by its event.
func cram(dir string, s *state) error {
	data, err := encodeSnapshot(s)
	if err != nil {
		return fmt.Errorf("cram: %w", err)
	}
	if err := writeFile(CramPath(dir, s.eve), data); err != nil {
		return fmt.Errorf("cram: %w", err)
	}
	return nil
}

// load reads the rolling snapshot, or returns an empty state if none.
func load(dir string) (*state, error) {
	data, err := os.ReadFile(filepath.Join(dir, chkDir, snapshotFile))
	if errors.Is(err, os.ErrNotExist) {
		return newState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	s, err := decodeSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return s, nil
}

// CramPath returns where Cram writes the snapshot of eve.
func CramPath(dir string, eve uint64) string {
	return filepath.Join(dir, rocDir, strconv.FormatUint(eve, 10)+".json")
}
