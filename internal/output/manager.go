package output

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/maauso/visxp-prep/internal/storage"
)

var (
	// ErrTransferNotConfigured is returned by Transfer when no object store
	// or bucket folder is configured.
	ErrTransferNotConfigured = errors.New("output transfer is not configured")

	// ErrUnknownKind is returned for a Kind outside the closed enumeration.
	ErrUnknownKind = errors.New("unknown output kind")

	// ErrEmptySourceID is returned when a source id would resolve to the
	// output root or above it.
	ErrEmptySourceID = errors.New("empty source id")

	// ErrDataDirs is returned when the input and output roots cannot be prepared.
	ErrDataDirs = errors.New("input and output directories unavailable")
)

// Manager creates, transfers and deletes output directories.
type Manager struct {
	layout  Layout
	store   storage.ObjectStore
	folder  string
	archive bool
	logger  *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTransfer enables Transfer to store under folder. With archive set,
// a single tar.gz is uploaded instead of every file.
func WithTransfer(store storage.ObjectStore, folder string, archive bool) ManagerOption {
	return func(m *Manager) {
		m.store = store
		m.folder = folder
		m.archive = archive
	}
}

// NewManager creates a Manager rooted at layout.BaseDir.
func NewManager(layout Layout, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{layout: layout, logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Layout returns the directory layout.
func (m *Manager) Layout() Layout {
	return m.layout
}

// ValidateDataDirs checks that the parent of inputDir exists and creates
// inputDir and outputDir.
func ValidateDataDirs(inputDir, outputDir string) error {
	parent := filepath.Dir(filepath.Clean(inputDir))
	if _, err := os.Stat(parent); err != nil {
		return fmt.Errorf("%w: %s does not exist: %w", ErrDataDirs, parent, err)
	}
	for _, dir := range []string{inputDir, outputDir} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("%w: %w", ErrDataDirs, err)
		}
	}
	return nil
}

// CreateDirs creates the subdirectory of every kind for sourceID and
// returns them by kind. Existing directories are left as they are.
func (m *Manager) CreateDirs(sourceID string, kinds []Kind) (map[Kind]string, error) {
	if !validSourceID(sourceID) {
		return nil, fmt.Errorf("%w: %q", ErrEmptySourceID, sourceID)
	}
	dirs := make(map[Kind]string, len(kinds))
	for _, k := range kinds {
		if !k.IsValid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownKind, string(k))
		}
		dir := m.layout.Dir(sourceID, k)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create %s directory: %w", k, err)
		}
		dirs[k] = dir
	}
	return dirs, nil
}

// Transfer uploads the output of sourceID and returns the object URIs.
// Keys are folder/sourceID/<archive> in archive mode and
// folder/sourceID/<kind>/<file> otherwise.
func (m *Manager) Transfer(ctx context.Context, sourceID string, kinds []Kind) ([]string, error) {
	if m.store == nil || m.folder == "" {
		return nil, ErrTransferNotConfigured
	}
	for _, k := range kinds {
		if !k.IsValid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownKind, string(k))
		}
	}

	srcDir := m.layout.SourceDir(sourceID)
	m.logger.Info("transferring output",
		slog.String("source_id", sourceID),
		slog.String("dir", srcDir),
		slog.Bool("archive", m.archive),
	)

	if m.archive {
		tarPath := m.layout.ArchivePath(sourceID)
		if err := WriteArchive(tarPath, srcDir, kinds); err != nil {
			return nil, err
		}
		uri, err := m.uploadFile(ctx, tarPath, storage.JoinKey(m.folder, sourceID, m.layout.ArchiveName(sourceID)))
		if err != nil {
			return nil, err
		}
		return []string{uri}, nil
	}

	var uris []string
	for _, k := range kinds {
		dir := m.layout.Dir(sourceID, k)
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) && path == dir {
					return filepath.SkipDir
				}
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			rel, err := filepath.Rel(srcDir, path)
			if err != nil {
				return err
			}
			uri, err := m.uploadFile(ctx, path, storage.JoinKey(m.folder, sourceID, filepath.ToSlash(rel)))
			if err != nil {
				return err
			}
			uris = append(uris, uri)
			return nil
		})
		if err != nil {
			return uris, err
		}
	}
	return uris, nil
}

func (m *Manager) uploadFile(ctx context.Context, path, key string) (string, error) {
	f, err := os.Open(path) // #nosec G304 - path is inside our output directory
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	uri, err := m.store.Upload(ctx, key, f)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", path, err)
	}
	m.logger.Debug("uploaded output", slog.String("uri", uri))
	return uri, nil
}

// DeleteLocalOutput removes the output directory of sourceID. It refuses
// an empty source id, the output root, the filesystem root, "." and any
// directory without a provenance subdirectory. Refusals and failures are logged and reported as false.
func (m *Manager) DeleteLocalOutput(sourceID string) bool {
	dir := m.layout.SourceDir(sourceID)
	log := m.logger.With(slog.String("dir", dir))
	log.Info("deleting output folder")

	if !validSourceID(sourceID) || dir == string(os.PathSeparator) || dir == "." || dir == filepath.Clean(m.layout.BaseDir) {
		log.Warn("rejected deletion of output folder")
		return false
	}
	if !isOutputDir(dir) {
		log.Warn("refusing to delete a directory without provenance output")
		return false
	}
	if err := os.RemoveAll(dir); err != nil {
		log.Error("failed to delete output folder", slog.String("error", err.Error()))
		return false
	}
	log.Info("cleaned up output folder")
	return true
}

func validSourceID(id string) bool {
	return id != "" && id != "." && id != ".."
}

func isOutputDir(dir string) bool {
	st, err := os.Stat(filepath.Join(dir, KindProvenance.Subdir()))
	return err == nil && st.IsDir()
}

// DeleteInputFile removes path and then prunes the now empty directories
// between it and inputDir. Only the file removal decides the result.
func (m *Manager) DeleteInputFile(path, inputDir string) bool {
	log := m.logger.With(slog.String("path", path))

	if err := os.Remove(path); err != nil {
		log.Error("could not delete input file", slog.String("error", err.Error()))
		return false
	}
	log.Info("deleted input file")

	root := filepath.Clean(inputDir)
	dir := filepath.Dir(filepath.Clean(path))
	for dir != root && strings.HasPrefix(dir, root+string(os.PathSeparator)) {
		if err := os.Remove(dir); err != nil {
			if !isNotEmpty(err) {
				log.Warn("could not remove empty input directory",
					slog.String("dir", dir),
					slog.String("error", err.Error()),
				)
			}
			return true
		}
		dir = filepath.Dir(dir)
	}
	return true
}

func isNotEmpty(err error) bool {
	var pe *fs.PathError
	if !errors.As(err, &pe) {
		return false
	}
	return errors.Is(pe.Err, fs.ErrExist) || strings.Contains(pe.Err.Error(), "not empty")
}
