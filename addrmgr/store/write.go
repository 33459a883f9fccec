// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2018 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package store

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"

	"github.com/driftfold/fullnode/addrmgr"
	"github.com/driftfold/fullnode/internal/errs"
)

// WriteV2 encodes snap and writes it to path using the atomic-rename
// protocol spec.md §4.5 requires: serialize to memory, write a sibling
// temp file in the destination directory, fsync it, then rename over the
// final path (falling back to a copy-and-remove on a cross-device
// rename). The destination directory is created with mode 0o700 if
// missing; the file itself is written 0o600. A partially written file
// never appears under the final name.
func WriteV2(path string, snap *addrmgr.Snapshot) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errs.Wrap(err, "address store: create directory")
	}

	body := EncodeV2(snap)

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return errs.Wrap(err, "address store: create temp file")
	}
	tmpName := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if err := tmp.Chmod(0o600); err != nil {
		return errs.Wrap(err, "address store: chmod temp file")
	}
	if _, err := tmp.Write(body); err != nil {
		return errs.Wrap(err, "address store: write temp file")
	}
	if err := tmp.Sync(); err != nil {
		return errs.Wrap(err, "address store: fsync temp file")
	}
	if err := tmp.Close(); err != nil {
		return errs.Wrap(err, "address store: close temp file")
	}

	if err := os.Rename(tmpName, path); err != nil {
		if !isCrossDevice(err) {
			return errs.Wrap(err, "address store: rename temp file")
		}
		if err := copyAndRemove(tmpName, path); err != nil {
			return errs.Wrap(err, "address store: cross-device replace")
		}
	}
	cleanup = false
	return nil
}

func copyAndRemove(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, data, 0o600); err != nil {
		return err
	}
	return os.Remove(src)
}

// isCrossDevice reports whether err is the "rename across filesystems"
// failure mode (EXDEV), the only case the write protocol falls back from
// rename to copy-then-remove for.
func isCrossDevice(err error) bool {
	return errors.Is(err, syscall.EXDEV)
}
