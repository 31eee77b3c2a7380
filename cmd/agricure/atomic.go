package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/agricure/oofstack/pkg/errors"
)

// writeFileAtomic writes through a temp file in the target directory and
// renames it over path. On any failure path is left as it was.
func writeFileAtomic(path string, write func(io.Writer) error) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	if err = write(f); err != nil {
		return err
	}
	if err = f.Sync(); err != nil {
		return errors.Wrap(err, "sync temp file")
	}
	if err = f.Close(); err != nil {
		return errors.Wrap(err, "close temp file")
	}
	// CreateTemp は 0600 で作るので通常のファイル権限に戻す
	if err = os.Chmod(tmp, 0o644); err != nil {
		return errors.Wrap(err, "chmod temp file")
	}
	return errors.Wrapf(os.Rename(tmp, path), "rename to %s", path)
}
