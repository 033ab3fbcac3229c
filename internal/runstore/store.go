package runstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/dgnsrekt/countdown_suite/internal/suite"
	"github.com/google/uuid"
)

var uuidRe = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

var (
	ErrNotFound  = errors.New("not found")
	ErrInvalidID = errors.New("invalid id")
)

// ArtifactMeta describes a stored failure screenshot.
type ArtifactMeta struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	Check     string    `json:"check"`
	Format    string    `json:"format"`
	SizeBytes int       `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// RunSummary is the list view of a stored report.
type RunSummary struct {
	ID         string      `json:"id"`
	State      suite.State `json:"state"`
	Passed     bool        `json:"passed"`
	Passing    int         `json:"passing"`
	Failing    int         `json:"failing"`
	TargetURL  string      `json:"target_url"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
}

// Store keeps run reports and failure screenshots on disk:
//
//	<dir>/runs/<run_id>.json
//	<dir>/artifacts/<artifact_id>.png
//	<dir>/artifacts/<artifact_id>.json
type Store struct {
	dir string
	mu  sync.RWMutex
}

// NewStore creates a Store and ensures its directories exist.
func NewStore(dir string) (*Store, error) {
	for _, sub := range []string{"runs", "artifacts"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("run store: mkdir %s: %w", sub, err)
		}
	}
	return &Store{dir: dir}, nil
}

func validateID(id string) error {
	if !uuidRe.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

func (s *Store) runPath(id string) string {
	return filepath.Join(s.dir, "runs", id+".json")
}

func (s *Store) artifactPath(id, ext string) string {
	return filepath.Join(s.dir, "artifacts", id+"."+ext)
}

// SaveRun writes a report, replacing any earlier copy with the same ID.
func (s *Store) SaveRun(rep *suite.Report) error {
	if err := validateID(rep.ID); err != nil {
		return err
	}
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("run store: marshal report: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeFileAtomic(s.runPath(rep.ID), data); err != nil {
		return fmt.Errorf("run store: write report: %w", err)
	}
	return nil
}

// GetRun reads a report by ID.
func (s *Store) GetRun(id string) (*suite.Report, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readRun(s.runPath(id))
}

func (s *Store) readRun(path string) (*suite.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("run %s: %w", filepath.Base(path), ErrNotFound)
		}
		return nil, fmt.Errorf("run store: read report: %w", err)
	}
	var rep suite.Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("run store: unmarshal report: %w", err)
	}
	return &rep, nil
}

// ListRuns returns summaries of all stored runs, newest first. Unreadable
// files are skipped.
func (s *Store) ListRuns() ([]RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches, err := filepath.Glob(filepath.Join(s.dir, "runs", "*.json"))
	if err != nil {
		return nil, fmt.Errorf("run store: glob: %w", err)
	}

	out := make([]RunSummary, 0, len(matches))
	for _, path := range matches {
		rep, err := s.readRun(path)
		if err != nil {
			slog.Debug("run store skipping unreadable report", "path", path, "error", err)
			continue
		}
		passing, failing := rep.Counts()
		out = append(out, RunSummary{
			ID:         rep.ID,
			State:      rep.State,
			Passed:     rep.Passed,
			Passing:    passing,
			Failing:    failing,
			TargetURL:  rep.TargetURL,
			StartedAt:  rep.StartedAt,
			FinishedAt: rep.FinishedAt,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, nil
}

// DeleteRun removes a report and every screenshot it references.
func (s *Store) DeleteRun(id string) error {
	rep, err := s.GetRun(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, res := range rep.Results {
		if res.ArtifactID == "" {
			continue
		}
		if err := validateID(res.ArtifactID); err != nil {
			slog.Warn("skipping artifact cleanup", "run_id", id, "error", err)
			continue
		}
		for _, ext := range []string{"png", "json"} {
			if err := os.Remove(s.artifactPath(res.ArtifactID, ext)); err != nil {
				slog.Debug("artifact cleanup failed", "artifact_id", res.ArtifactID, "ext", ext, "error", err)
			}
		}
	}
	if err := os.Remove(s.runPath(id)); err != nil {
		return fmt.Errorf("run store: delete report: %w", err)
	}
	return nil
}

// SaveScreenshot stores a PNG captured after a failed check.
func (s *Store) SaveScreenshot(runID, checkName string, png []byte) (string, error) {
	meta := ArtifactMeta{
		ID:        uuid.New().String(),
		RunID:     runID,
		Check:     checkName,
		Format:    "png",
		SizeBytes: len(png),
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("run store: marshal artifact meta: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	imgPath := s.artifactPath(meta.ID, meta.Format)
	if err := os.WriteFile(imgPath, png, 0o644); err != nil {
		return "", fmt.Errorf("run store: write screenshot: %w", err)
	}
	if err := os.WriteFile(s.artifactPath(meta.ID, "json"), data, 0o644); err != nil {
		_ = os.Remove(imgPath)
		return "", fmt.Errorf("run store: write artifact meta: %w", err)
	}
	return meta.ID, nil
}

// GetArtifact reads screenshot metadata by ID.
func (s *Store) GetArtifact(id string) (ArtifactMeta, error) {
	if err := validateID(id); err != nil {
		return ArtifactMeta{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.artifactPath(id, "json"))
	if err != nil {
		if os.IsNotExist(err) {
			return ArtifactMeta{}, fmt.Errorf("artifact %s: %w", id, ErrNotFound)
		}
		return ArtifactMeta{}, fmt.Errorf("run store: read artifact meta: %w", err)
	}
	var meta ArtifactMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return ArtifactMeta{}, fmt.Errorf("run store: unmarshal artifact meta: %w", err)
	}
	return meta, nil
}

// ReadArtifact returns the screenshot bytes and metadata.
func (s *Store) ReadArtifact(id string) ([]byte, ArtifactMeta, error) {
	meta, err := s.GetArtifact(id)
	if err != nil {
		return nil, ArtifactMeta{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.artifactPath(id, meta.Format))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ArtifactMeta{}, fmt.Errorf("artifact image %s: %w", id, ErrNotFound)
		}
		return nil, ArtifactMeta{}, fmt.Errorf("run store: read screenshot: %w", err)
	}
	return data, meta, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
