package output

import (
	"path/filepath"

	"github.com/maauso/visxp-prep/internal/provenance"
)

// ArchivePrefix prefixes the name of the uploaded archive.
const ArchivePrefix = "visxp_prep"

// Layout maps a source id and kind to directories under BaseDir.
type Layout struct {
	BaseDir string
}

// SourceDir returns BaseDir/sourceID.
func (l Layout) SourceDir(sourceID string) string {
	return filepath.Join(l.BaseDir, sourceID)
}

// Dir returns the directory holding kind output of sourceID.
func (l Layout) Dir(sourceID string, kind Kind) string {
	return filepath.Join(l.SourceDir(sourceID), kind.Subdir())
}

// ProvenanceFile returns the path of the provenance record of sourceID.
func (l Layout) ProvenanceFile(sourceID string) string {
	return filepath.Join(l.Dir(sourceID, KindProvenance), provenance.FileName)
}

// ArchiveName returns visxp_prep__{sourceID}.tar.gz.
func (l Layout) ArchiveName(sourceID string) string {
	return ArchivePrefix + "__" + sourceID + ".tar.gz"
}

// ArchivePath returns the local path the archive is built at.
func (l Layout) ArchivePath(sourceID string) string {
	return filepath.Join(l.SourceDir(sourceID), l.ArchiveName(sourceID))
}
