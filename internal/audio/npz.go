package audio

import (
	"archive/zip"
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// ArrayKey is the name of the single array stored in each spectrogram archive.
const ArrayKey = "audio"

var npyMagic = []byte("\x93NUMPY")

var shapePattern = regexp.MustCompile(`'shape':\s*\(([^)]*)\)`)

// ErrInvalidNPY is returned when an archive member is not a float32 NPY array.
var ErrInvalidNPY = errors.New("invalid npy array")

// WriteNPZ writes a deflate-compressed npz archive holding one float32
// array under name, readable with numpy.load(path)[name].
func WriteNPZ(path, name string, shape []int, data []float32) error {
	f, err := os.Create(path) // #nosec G304 - path is built from the output layout
	if err != nil {
		return fmt.Errorf("create npz: %w", err)
	}

	zw := zip.NewWriter(f)
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name + ".npy", Method: zip.Deflate})
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("create npz member: %w", err)
	}
	if err := writeNPY(w, shape, data); err != nil {
		_ = f.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("finish npz: %w", err)
	}
	return f.Close()
}

// writeNPY writes a version 1.0 NPY array of little-endian float32 in C order.
func writeNPY(w io.Writer, shape []int, data []float32) error {
	dims := make([]string, len(shape))
	for i, d := range shape {
		dims[i] = strconv.Itoa(d)
	}
	tuple := "(" + strings.Join(dims, ", ")
	if len(shape) == 1 {
		tuple += ","
	}
	tuple += ")"

	header := fmt.Sprintf("{'descr': '<f4', 'fortran_order': False, 'shape': %s, }", tuple)
	// magic(6) + version(2) + header length(2) + header + '\n' is a multiple of 64
	total := len(npyMagic) + 4 + len(header) + 1
	if pad := (64 - total%64) % 64; pad > 0 {
		header += strings.Repeat(" ", pad)
	}
	header += "\n"

	bw := bufio.NewWriter(w)
	_, _ = bw.Write(npyMagic)
	_, _ = bw.Write([]byte{1, 0})
	_ = binary.Write(bw, binary.LittleEndian, uint16(len(header)))
	_, _ = bw.WriteString(header)
	if err := binary.Write(bw, binary.LittleEndian, data); err != nil {
		return fmt.Errorf("write npy data: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write npy: %w", err)
	}
	return nil
}

// ReadNPZ reads the float32 array stored under name in an npz archive.
func ReadNPZ(path, name string) ([]int, []float32, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open npz: %w", err)
	}
	defer func() { _ = zr.Close() }()

	for _, zf := range zr.File {
		if zf.Name != name+".npy" {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return nil, nil, fmt.Errorf("open npz member: %w", err)
		}
		defer func() { _ = rc.Close() }()
		raw, err := io.ReadAll(rc)
		if err != nil {
			return nil, nil, fmt.Errorf("read npz member: %w", err)
		}
		return readNPY(raw)
	}
	return nil, nil, fmt.Errorf("%w: %s has no member %q", ErrInvalidNPY, path, name)
}

func readNPY(raw []byte) ([]int, []float32, error) {
	if len(raw) < 10 || !bytes.Equal(raw[:6], npyMagic) {
		return nil, nil, fmt.Errorf("%w: bad magic", ErrInvalidNPY)
	}
	hlen := int(binary.LittleEndian.Uint16(raw[8:10]))
	if len(raw) < 10+hlen {
		return nil, nil, fmt.Errorf("%w: truncated header", ErrInvalidNPY)
	}
	header := string(raw[10 : 10+hlen])
	if !strings.Contains(header, "'descr': '<f4'") {
		return nil, nil, fmt.Errorf("%w: unsupported dtype in %q", ErrInvalidNPY, header)
	}

	m := shapePattern.FindStringSubmatch(header)
	if m == nil {
		return nil, nil, fmt.Errorf("%w: no shape in %q", ErrInvalidNPY, header)
	}
	var shape []int
	count := 1
	for _, part := range strings.Split(m[1], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := strconv.Atoi(part)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: shape %q", ErrInvalidNPY, m[1])
		}
		shape = append(shape, d)
		count *= d
	}

	body := raw[10+hlen:]
	if len(body) != count*4 {
		return nil, nil, fmt.Errorf("%w: expected %d values, got %d bytes", ErrInvalidNPY, count, len(body))
	}
	data := make([]float32, count)
	if err := binary.Read(bytes.NewReader(body), binary.LittleEndian, data); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidNPY, err)
	}
	return shape, data, nil
}
