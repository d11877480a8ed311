// Package output owns the per-source output directory: its layout, the
// lifecycle from creation to cleanup, transfer to object storage and the
// guarded deletion of local output and input files.
package output

// Kind is a category of pipeline output. Each kind has its own subdirectory.
type Kind string

const (
	KindKeyframes         Kind = "keyframes"
	KindMetadata          Kind = "metadata"
	KindProvenance        Kind = "provenance"
	KindSpectrograms      Kind = "spectrograms"
	KindAudio             Kind = "audio"
	KindSpectrogramImages Kind = "spectrogram_images"
)

// kindDirs is the single kind to subdirectory table.
var kindDirs = map[Kind]string{
	KindKeyframes:         "keyframes",
	KindMetadata:          "metadata",
	KindProvenance:        "provenance",
	KindSpectrograms:      "spectrograms",
	KindAudio:             "audio",
	KindSpectrogramImages: "spectrogram_images",
}

// AllKinds lists every kind in archive order.
func AllKinds() []Kind {
	return []Kind{
		KindKeyframes,
		KindSpectrograms,
		KindProvenance,
		KindMetadata,
		KindSpectrogramImages,
		KindAudio,
	}
}

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	_, ok := kindDirs[k]
	return ok
}

// Subdir returns the subdirectory name of k, or "" for an unknown kind.
func (k Kind) Subdir() string {
	return kindDirs[k]
}

// EnabledKinds returns the kinds a run produces given its toggles.
// Metadata and provenance are always produced.
func EnabledKinds(keyframes, spectrograms, images, audioClips bool) []Kind {
	kinds := []Kind{KindMetadata, KindProvenance}
	if keyframes {
		kinds = append(kinds, KindKeyframes)
	}
	if spectrograms {
		kinds = append(kinds, KindSpectrograms)
		if images {
			kinds = append(kinds, KindSpectrogramImages)
		}
		if audioClips {
			kinds = append(kinds, KindAudio)
		}
	}
	return kinds
}
