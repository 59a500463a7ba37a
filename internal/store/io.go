package store

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"cipherlink/internal/util/memzero"
)

// readSealed reads and decrypts name into out. A missing file is not an
// error and leaves out untouched; found reports whether it existed.
func (s *FileStore) readSealed(name string, out any) (found bool, err error) {
	b, err := readFile(filepath.Join(s.dir, name))
	if err != nil || b == nil {
		return false, err
	}
	raw, err := unseal(s.key, name, b)
	if err != nil {
		return false, err
	}
	defer memzero.Zero(raw)
	if err := json.Unmarshal(raw, out); err != nil {
		return false, errors.Wrapf(err, "store: decode %s", name)
	}
	return true, nil
}

// writeSealed encrypts v and atomically replaces name.
func (s *FileStore) writeSealed(name string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "store: encode %s", name)
	}
	defer memzero.Zero(raw)
	b, err := seal(s.key, name, raw)
	if err != nil {
		return err
	}
	return writeFile(filepath.Join(s.dir, name), b, 0o600)
}

// readFile reads the file at path into b; a missing file is not an error.
func readFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return b, nil
}

// writeFile writes bytes via a temp file, then atomically replaces the target.
func writeFile(path string, b []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	f, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return errors.WithStack(err)
	}
	tmp := f.Name()

	// Best-effort cleanup if anything fails before rename.
	defer func() { _ = os.Remove(tmp) }()

	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return errors.WithStack(err)
	}
	if err := f.Chmod(mode); err != nil {
		_ = f.Close()
		return errors.WithStack(err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return errors.WithStack(err)
	}
	if err := f.Close(); err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(os.Rename(tmp, path))
}
