package srccopy

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
)

// entry records one mirrored file as of its last sync.
type entry struct {
	Hash  string `json:"hash"`
	Size  int64  `json:"size,omitempty"`
	MTime int64  `json:"mtime,omitempty"` // unix nanoseconds
	Link  bool   `json:"link,omitempty"`
}

// state is what the last sync of a project left in the mirror.
type state struct {
	Token string            `json:"token"`
	Files map[string]*entry `json:"files"`
}

// loadState reads a state file. A missing file is an empty state.
func loadState(path string) (*state, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &state{}, nil
	}
	if err != nil {
		return nil, err
	}
	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	for f, e := range st.Files {
		if e == nil {
			delete(st.Files, f)
		}
	}
	return &st, nil
}

func (st *state) save(path string) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
