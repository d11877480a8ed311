package output

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// WriteArchive writes a gzipped tar of the kind subdirectories of srcDir
// to dst. Entry names are relative to srcDir; missing subdirectories are
// skipped.
func WriteArchive(dst, srcDir string, kinds []Kind) error {
	f, err := os.Create(dst) // #nosec G304 - path is built from the output layout
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	err = func() error {
		for _, k := range kinds {
			dir := filepath.Join(srcDir, k.Subdir())
			if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err := addTree(tw, srcDir, dir); err != nil {
				return err
			}
		}
		if err := tw.Close(); err != nil {
			return fmt.Errorf("finish tar: %w", err)
		}
		if err := gz.Close(); err != nil {
			return fmt.Errorf("finish gzip: %w", err)
		}
		return nil
	}()
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close archive: %w", cerr)
	}
	if err != nil {
		_ = os.Remove(dst)
	}
	return err
}

func addTree(tw *tar.Writer, root, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return fmt.Errorf("tar header %s: %w", rel, err)
		}
		hdr.Name = filepath.ToSlash(rel)
		if d.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("write tar header %s: %w", rel, err)
		}
		if !d.Type().IsRegular() {
			return nil
		}

		src, err := os.Open(path) // #nosec G304 - walking our own output directory
		if err != nil {
			return err
		}
		defer func() { _ = src.Close() }()
		if _, err := io.Copy(tw, src); err != nil {
			return fmt.Errorf("write tar entry %s: %w", rel, err)
		}
		return nil
	})
}
