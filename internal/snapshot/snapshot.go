// Package snapshot reads and writes the JSON file that holds the persisted
// key/value map.
//
// The file is a single JSON object with one string member per key. Every
// save rewrites it wholesale through a temporary file in the same directory
// followed by fsync and rename, so a crash mid-write leaves the previous
// snapshot intact.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// defaultMode は新規作成するファイルのパーミッション
const defaultMode os.FileMode = 0o644

// ErrMalformed は既存ファイルが JSON オブジェクトとして読めないことを表す
var ErrMalformed = errors.New("malformed snapshot")

// File はスナップショットファイル
type File struct {
	path string
}

// New は path を扱う File を返す
func New(path string) *File {
	return &File{path: path}
}

// Path はファイルパスを返す
func (f *File) Path() string {
	return f.path
}

// Ensure はファイルが無ければ空オブジェクトで作成する
// 作成した場合は true を返す
func (f *File) Ensure() (bool, error) {
	if _, err := os.Stat(f.path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("stat %s: %w", f.path, err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return false, fmt.Errorf("create snapshot dir: %w", err)
	}
	if err := f.Save(map[string]string{}); err != nil {
		return false, err
	}
	return true, nil
}

// Load はファイルを読み込みマップを返す
// 空ファイルは空マップとして扱う
func (f *File) Load() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}

	entries := make(map[string]string)
	if len(bytes.TrimSpace(data)) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, f.path, err)
	}
	return entries, nil
}

// Save は entries をファイル全体として書き出す
func (f *File) Save(entries map[string]string) (err error) {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir, base := filepath.Split(f.path)
	if dir == "" {
		dir = "."
	}

	tmp, err := os.CreateTemp(dir, base+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err = tmp.Chmod(f.mode()); err != nil {
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err = os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace %s: %w", f.path, err)
	}
	return nil
}

// mode は置き換え後のファイルに付けるパーミッション
// 既存ファイルがあればそのモードを引き継ぐ
func (f *File) mode() os.FileMode {
	if info, err := os.Stat(f.path); err == nil {
		return info.Mode().Perm()
	}
	return defaultMode
}
