package output

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/visxp-prep/internal/storage"
)

type memStore struct {
	objects map[string][]byte
	err     error
}

func (s *memStore) Upload(_ context.Context, key string, data io.Reader) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	if s.objects == nil {
		s.objects = map[string][]byte{}
	}
	s.objects[key] = b
	return "s3://bucket/" + key, nil
}

func (s *memStore) Download(context.Context, string, string, string) error {
	return storage.ErrObjectNotFound
}

func populate(t *testing.T, m *Manager, sourceID string) {
	t.Helper()
	dirs, err := m.CreateDirs(sourceID, AllKinds())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dirs[KindKeyframes], "5000.jpg"), []byte("jpg"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dirs[KindSpectrograms], "5000_16000.npz"), []byte("npz"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dirs[KindProvenance], "provenance.json"), []byte("{}"), 0600))
}

func TestKinds(t *testing.T) {
	for _, k := range AllKinds() {
		assert.True(t, k.IsValid())
		assert.NotEmpty(t, k.Subdir())
	}
	assert.False(t, Kind("spectograms").IsValid())
	assert.Empty(t, Kind("spectograms").Subdir())

	assert.ElementsMatch(t,
		[]Kind{KindMetadata, KindProvenance, KindKeyframes, KindSpectrograms, KindSpectrogramImages},
		EnabledKinds(true, true, true, false))
	assert.ElementsMatch(t,
		[]Kind{KindMetadata, KindProvenance},
		EnabledKinds(false, false, true, true))
}

func TestLayout(t *testing.T) {
	l := Layout{BaseDir: "/data/output-files"}

	assert.Equal(t, "/data/output-files/clip", l.SourceDir("clip"))
	assert.Equal(t, "/data/output-files/clip/spectrogram_images", l.Dir("clip", KindSpectrogramImages))
	assert.Equal(t, "/data/output-files/clip/provenance/provenance.json", l.ProvenanceFile("clip"))
	assert.Equal(t, "visxp_prep__clip.tar.gz", l.ArchiveName("clip"))
}

func TestLifecycle(t *testing.T) {
	t.Run("full run", func(t *testing.T) {
		l := NewLifecycle()
		for _, s := range []State{StateDirsCreated, StatePopulated, StateTransferred, StateCleaned, StateDone} {
			require.NoError(t, l.TransitionTo(s))
		}
		assert.True(t, l.IsTerminal())
		assert.Equal(t, []State{
			StateUninitialized, StateDirsCreated, StatePopulated, StateTransferred, StateCleaned, StateDone,
		}, l.History())
	})

	t.Run("transfer failure is terminal", func(t *testing.T) {
		l := NewLifecycle()
		require.NoError(t, l.TransitionTo(StateDirsCreated))
		require.NoError(t, l.TransitionTo(StatePopulated))
		require.NoError(t, l.TransitionTo(StateTransferFailed))

		assert.True(t, l.IsTerminal())
		assert.ErrorIs(t, l.TransitionTo(StateCleaned), ErrInvalidTransition)
	})

	t.Run("invalid transitions", func(t *testing.T) {
		tests := []struct {
			from []State
			to   State
		}{
			{nil, StatePopulated},
			{nil, StateDone},
			{[]State{StateDirsCreated}, StateTransferred},
			{[]State{StateDirsCreated, StatePopulated, StateCleanSkipped}, StateTransferred},
		}
		for _, tt := range tests {
			l := NewLifecycle()
			for _, s := range tt.from {
				require.NoError(t, l.TransitionTo(s))
			}
			if err := l.TransitionTo(tt.to); !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("%v -> %s: expected ErrInvalidTransition, got %v", tt.from, tt.to, err)
			}
		}
	})
}

func TestValidateDataDirs(t *testing.T) {
	base := t.TempDir()

	require.NoError(t, ValidateDataDirs(filepath.Join(base, "input-files"), filepath.Join(base, "output-files")))
	assert.DirExists(t, filepath.Join(base, "input-files"))
	assert.DirExists(t, filepath.Join(base, "output-files"))

	err := ValidateDataDirs(filepath.Join(base, "missing", "input-files"), filepath.Join(base, "out"))
	assert.ErrorIs(t, err, ErrDataDirs)
}

func TestManager_CreateDirs(t *testing.T) {
	m := NewManager(Layout{BaseDir: t.TempDir()}, nil)

	first, err := m.CreateDirs("clip", AllKinds())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(first[KindMetadata], "keep.txt"), []byte("x"), 0600))

	second, err := m.CreateDirs("clip", AllKinds())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.FileExists(t, filepath.Join(second[KindMetadata], "keep.txt"))

	_, err = m.CreateDirs("clip", []Kind{"bogus"})
	assert.ErrorIs(t, err, ErrUnknownKind)

	for _, id := range []string{"", ".", ".."} {
		_, err = m.CreateDirs(id, AllKinds())
		assert.ErrorIs(t, err, ErrEmptySourceID, "source id %q", id)
	}
	assert.NoDirExists(t, filepath.Join(m.Layout().BaseDir, KindProvenance.Subdir()))
}

func TestManager_DeleteLocalOutput(t *testing.T) {
	t.Run("deletes output with provenance", func(t *testing.T) {
		m := NewManager(Layout{BaseDir: t.TempDir()}, nil)
		populate(t, m, "clip")

		assert.True(t, m.DeleteLocalOutput("clip"))
		assert.NoDirExists(t, m.Layout().SourceDir("clip"))
	})

	t.Run("refuses directory without provenance", func(t *testing.T) {
		m := NewManager(Layout{BaseDir: t.TempDir()}, nil)
		_, err := m.CreateDirs("clip", []Kind{KindKeyframes})
		require.NoError(t, err)

		assert.False(t, m.DeleteLocalOutput("clip"))
		assert.DirExists(t, m.Layout().SourceDir("clip"))
	})

	t.Run("refuses the output root", func(t *testing.T) {
		base := t.TempDir()
		m := NewManager(Layout{BaseDir: base}, nil)
		populate(t, m, "other")
		require.NoError(t, os.MkdirAll(filepath.Join(base, KindProvenance.Subdir()), 0750))

		assert.False(t, m.DeleteLocalOutput(""))
		assert.False(t, m.DeleteLocalOutput("."))
		assert.False(t, m.DeleteLocalOutput("other/.."))
		assert.DirExists(t, m.Layout().SourceDir("other"))
	})

	t.Run("refuses root and current directory", func(t *testing.T) {
		assert.False(t, NewManager(Layout{BaseDir: "/"}, nil).DeleteLocalOutput(""))
		assert.False(t, NewManager(Layout{BaseDir: "."}, nil).DeleteLocalOutput(""))
	})
}

func TestManager_DeleteInputFile(t *testing.T) {
	inputDir := t.TempDir()
	chunked := filepath.Join(inputDir, "03", "d2", "8a")
	require.NoError(t, os.MkdirAll(chunked, 0750))
	other := filepath.Join(inputDir, "03", "other.mp4")
	require.NoError(t, os.WriteFile(other, []byte("x"), 0600))
	input := filepath.Join(chunked, "clip.mp4")
	require.NoError(t, os.WriteFile(input, []byte("x"), 0600))

	m := NewManager(Layout{BaseDir: t.TempDir()}, nil)

	assert.True(t, m.DeleteInputFile(input, inputDir))
	assert.NoFileExists(t, input)
	assert.NoDirExists(t, filepath.Join(inputDir, "03", "d2"))
	// non-empty parents and the input root stay
	assert.FileExists(t, other)
	assert.DirExists(t, inputDir)

	assert.False(t, m.DeleteInputFile(input, inputDir))
}

func TestManager_Transfer(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		m := NewManager(Layout{BaseDir: t.TempDir()}, nil)
		_, err := m.Transfer(context.Background(), "clip", AllKinds())
		assert.ErrorIs(t, err, ErrTransferNotConfigured)

		m = NewManager(Layout{BaseDir: t.TempDir()}, nil, WithTransfer(&memStore{}, "", true))
		_, err = m.Transfer(context.Background(), "clip", AllKinds())
		assert.ErrorIs(t, err, ErrTransferNotConfigured)
	})

	t.Run("archive", func(t *testing.T) {
		store := &memStore{}
		m := NewManager(Layout{BaseDir: t.TempDir()}, nil, WithTransfer(store, "assets", true))
		populate(t, m, "clip")

		uris, err := m.Transfer(context.Background(), "clip", AllKinds())
		require.NoError(t, err)
		assert.Equal(t, []string{"s3://bucket/assets/clip/visxp_prep__clip.tar.gz"}, uris)

		names := tarNames(t, store.objects["assets/clip/visxp_prep__clip.tar.gz"])
		assert.Contains(t, names, "keyframes/5000.jpg")
		assert.Contains(t, names, "spectrograms/5000_16000.npz")
		assert.Contains(t, names, "provenance/provenance.json")
		assert.Contains(t, names, "audio/")
	})

	t.Run("files", func(t *testing.T) {
		store := &memStore{}
		m := NewManager(Layout{BaseDir: t.TempDir()}, nil, WithTransfer(store, "assets", false))
		populate(t, m, "clip")

		uris, err := m.Transfer(context.Background(), "clip", []Kind{KindKeyframes, KindProvenance})
		require.NoError(t, err)
		assert.Len(t, uris, 2)

		keys := make([]string, 0, len(store.objects))
		for k := range store.objects {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		assert.Equal(t, []string{"assets/clip/keyframes/5000.jpg", "assets/clip/provenance/provenance.json"}, keys)
		assert.Equal(t, []byte("jpg"), store.objects["assets/clip/keyframes/5000.jpg"])
	})

	t.Run("upload failure", func(t *testing.T) {
		store := &memStore{err: errors.New("connection refused")}
		m := NewManager(Layout{BaseDir: t.TempDir()}, nil, WithTransfer(store, "assets", true))
		populate(t, m, "clip")

		_, err := m.Transfer(context.Background(), "clip", AllKinds())
		assert.Error(t, err)
	})
}

func tarNames(t *testing.T, data []byte) []string {
	t.Helper()
	gz, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, hdr.Name)
	}
	return names
}
