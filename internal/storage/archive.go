// Package storage keeps finished speaking tests as JSON files.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"ielts-speaking/internal/speaking"
)

const filePrefix = "speaking_"

// ErrNotFound is returned by LoadResult for an unknown test ID.
var ErrNotFound = errors.New("result not found")

// Archive stores results under a directory.
type Archive struct {
	dir string
}

// NewArchive returns an Archive rooted at dir. The directory is created on
// the first save.
func NewArchive(dir string) *Archive {
	return &Archive{dir: dir}
}

// NewResult builds a TestResult from a finished session snapshot.
func NewResult(s speaking.Session) *TestResult {
	r := &TestResult{
		TestID:    s.ID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	for _, t := range s.History {
		if t.Answer != "" {
			r.Conversation = append(r.Conversation, t)
		}
	}
	if s.Evaluation != nil {
		r.Report = s.Evaluation.Report
		r.Error = s.Evaluation.Error
	}
	return r
}

// SaveResult writes result as indented JSON and assigns a TestID when it has
// none.
func (a *Archive) SaveResult(result *TestResult) error {
	if result.TestID == "" {
		result.TestID = uuid.NewString()
	}
	if _, err := uuid.Parse(result.TestID); err != nil {
		return fmt.Errorf("invalid test id %q: %w", result.TestID, err)
	}
	if result.Timestamp == "" {
		result.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", a.dir, err)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	path := a.path(result.TestID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// LoadResult reads one archived result.
func (a *Archive) LoadResult(testID string) (*TestResult, error) {
	if _, err := uuid.Parse(testID); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, testID)
	}
	data, err := os.ReadFile(a.path(testID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, testID)
	}
	if err != nil {
		return nil, fmt.Errorf("read result %s: %w", testID, err)
	}

	var result TestResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode result %s: %w", testID, err)
	}
	return &result, nil
}

// ListResults returns the archived test IDs, newest first.
func (a *Archive) ListResults() ([]Summary, error) {
	entries, err := os.ReadDir(a.dir)
	if errors.Is(err, os.ErrNotExist) {
		return []Summary{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", a.dir, err)
	}

	results := []Summary{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || filepath.Ext(name) != ".json" {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), ".json")
		r, err := a.LoadResult(id)
		if err != nil {
			continue
		}
		s := Summary{TestID: r.TestID, Timestamp: r.Timestamp}
		if r.Report != nil {
			s.OverallScore = r.Report.OverallScore
		}
		results = append(results, s)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Timestamp > results[j].Timestamp })
	return results, nil
}

func (a *Archive) path(testID string) string {
	return filepath.Join(a.dir, filePrefix+testID+".json")
}
