package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kelsos/mediagen/internal/models"
)

const timestampLayout = "20060102_150405"

// Store resolves output paths under a base directory and writes artifacts
// and their sidecars.
type Store struct {
	dir string
	now func() time.Time
}

func New(dir string) *Store {
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	return &Store{dir: dir, now: time.Now}
}

// Dir returns the base output directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path resolves the output file. An empty name becomes
// "<prefix>_<YYYYmmdd_HHMMSS><ext>"; an absolute name is used as given; a
// relative name must stay inside the output directory.
func (s *Store) Path(name, prefix, ext string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return filepath.Join(s.dir, fmt.Sprintf("%s_%s%s", prefix, s.now().Format(timestampLayout), ext)), nil
	}
	if filepath.IsAbs(name) {
		return filepath.Clean(name), nil
	}
	cleaned, err := sanitizeName(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, filepath.FromSlash(cleaned)), nil
}

func sanitizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	cleaned := filepath.ToSlash(filepath.Clean(name))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid output name %q", name)
	}
	return cleaned, nil
}

// WriteBytes writes data to path, creating parent directories.
func (s *Store) WriteBytes(path string, data []byte) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return int64(len(data)), nil
}

// WriteText saves a model answer with a short header naming its source.
func (s *Store) WriteText(path, source, text string) (int64, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", source)
	fmt.Fprintf(&b, "Generated: %s\n", s.now().Format(time.RFC3339))
	b.WriteString(strings.Repeat("=", 60))
	b.WriteString("\n\n")
	b.WriteString(text)
	b.WriteString("\n")
	return s.WriteBytes(path, []byte(b.String()))
}

// SidecarPath is the metadata file that accompanies path.
func SidecarPath(path string) string {
	return path + ".json"
}

// WriteSidecar records the artifact's metadata next to it.
func (s *Store) WriteSidecar(kind string, artifact models.Artifact, task *models.Task) (string, error) {
	if artifact.Path == "" {
		return "", errors.New("artifact has no path")
	}

	sidecar := models.Sidecar{
		RunID:          uuid.NewString(),
		Kind:           kind,
		Prompt:         artifact.Prompt,
		Model:          artifact.Model,
		TaskID:         artifact.TaskID,
		SourceURL:      artifact.SourceURL,
		File:           filepath.Base(artifact.Path),
		Bytes:          artifact.Size,
		ElapsedSeconds: artifact.Elapsed.Seconds(),
		Task:           task,
		CreatedAt:      s.now().UTC(),
	}

	jsonData, err := json.MarshalIndent(sidecar, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal sidecar: %w", err)
	}

	path := SidecarPath(artifact.Path)
	if err := os.WriteFile(path, jsonData, 0o644); err != nil {
		return "", fmt.Errorf("failed to write sidecar: %w", err)
	}
	return path, nil
}

// ReadSidecar loads a sidecar written by WriteSidecar.
func ReadSidecar(path string) (*models.Sidecar, error) {
	fileData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sidecar: %w", err)
	}

	var sidecar models.Sidecar
	if err := json.Unmarshal(fileData, &sidecar); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sidecar: %w", err)
	}
	return &sidecar, nil
}
