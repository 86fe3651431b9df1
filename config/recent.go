package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

const maxRecent = 20

type RecentFile struct {
	Path string `json:"path"`
	Time int64  `json:"time"`
}

type RecentFiles []RecentFile

// Recent is the history of played files, oldest first.
type Recent struct {
	path  string
	Files RecentFiles `json:"recent_files"`
}

// RecentPath is the default history location in the user config directory.
func RecentPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "midi-player", "recent.json"), nil
}

// LoadRecent reads the history stored at path. A missing or empty file yields
// an empty history.
func LoadRecent(path string) (*Recent, error) {
	r := &Recent{path: path, Files: RecentFiles{}}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return r, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return r, nil
	}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Recent) Save() error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(r.path)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return errors.Join(err, f.Close())
	}
	return f.Close()
}

// Add moves path to the most recent position.
func (r *Recent) Add(path string) {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	r.Delete(path)
	r.Files = append(r.Files, RecentFile{Path: path, Time: time.Now().Unix()})
	if len(r.Files) > maxRecent {
		r.Files = slices.Clone(r.Files[len(r.Files)-maxRecent:])
	}
}

func (r *Recent) Delete(path string) {
	r.Files = slices.DeleteFunc(r.Files, func(f RecentFile) bool {
		return f.Path == path
	})
}

// Latest returns the history, most recent first.
func (r *Recent) Latest() RecentFiles {
	s := slices.Clone(r.Files)
	slices.Reverse(s)
	return s
}

// Prune drops the files that no longer exist.
func (r *Recent) Prune() {
	r.Files = slices.DeleteFunc(r.Files, func(f RecentFile) bool {
		_, err := os.Stat(f.Path)
		return err != nil
	})
}

// Prefix is the longest common path prefix of the files, or "" for fewer
// than two files.
func (rfs RecentFiles) Prefix() string {
	if len(rfs) <= 1 {
		return ""
	}
	prefix := rfs[0].Path
	for _, rf := range rfs {
		for !strings.HasPrefix(rf.Path, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	return prefix
}
