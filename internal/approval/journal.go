package approval

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Journal persists pending approvals so a restarted host can account for
// codes that were outstanding when it stopped.
type Journal interface {
	Save(a Approval) error
	Remove(code string) error
	List() ([]Approval, error)
}

// validCode matches the characters an approval code may contain.
var validCode = regexp.MustCompile(`^[a-z0-9]+$`)

// validateCode rejects codes that could cause path traversal.
func validateCode(code string) error {
	if code == "" {
		return fmt.Errorf("code must not be empty")
	}
	if !validCode.MatchString(code) {
		return fmt.Errorf("code contains invalid characters: only lowercase alphanumerics are allowed")
	}
	return nil
}

// FileJournal stores one JSON file per pending code.
type FileJournal struct {
	dir string
	mu  sync.Mutex
}

// NewFileJournal creates a FileJournal backed by the given directory.
func NewFileJournal(dir string) (*FileJournal, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("cannot create approval journal directory: %w", err)
	}
	return &FileJournal{dir: dir}, nil
}

// DefaultDir returns the default journal directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "pynchy-approvals")
	}
	return filepath.Join(home, ".pynchy", "approvals")
}

// Save writes the approval, replacing any previous state for its code.
func (j *FileJournal) Save(a Approval) error {
	if err := validateCode(a.Code); err != nil {
		return fmt.Errorf("invalid approval code: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	return j.writeAtomic(j.path(a.Code), a)
}

// Remove deletes the code's file. Removing an absent code is not an error.
func (j *FileJournal) Remove(code string) error {
	if err := validateCode(code); err != nil {
		return fmt.Errorf("invalid approval code: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if err := os.Remove(j.path(code)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// List returns every journaled approval, oldest first. Unreadable files
// are skipped.
func (j *FileJournal) List() ([]Approval, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var approvals []Approval
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		a, err := j.read(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			continue
		}
		approvals = append(approvals, *a)
	}
	sort.Slice(approvals, func(i, k int) bool {
		return approvals[i].CreatedAt.Before(approvals[k].CreatedAt)
	})
	return approvals, nil
}

func (j *FileJournal) path(code string) string {
	return filepath.Join(j.dir, code+".json")
}

func (j *FileJournal) read(code string) (*Approval, error) {
	data, err := os.ReadFile(j.path(code))
	if err != nil {
		return nil, err
	}

	var a Approval
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (j *FileJournal) writeAtomic(path string, a Approval) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
