package bundle

import (
	"bytes"
	"debug/elf"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// set on platforms that support read-only file mappings
var mapFile func(f *os.File, size int64) (data []byte, unmap func() error, err error)

// Image is an opened bundle binary: a random access byte source plus its parsed ELF structure.
type Image struct {
	ef       *elf.File
	r        io.ReaderAt
	size     int64
	segments []Segment
	closers  []func() error
}

// NewImage parses an ELF image from r, which must hold size bytes.
func NewImage(r io.ReaderAt, size int64) (*Image, error) {
	ef, err := elf.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotELF, err)
	}
	img := &Image{ef: ef, r: r, size: size}
	for _, p := range ef.Progs {
		img.segments = append(img.segments, Segment{
			Type:   p.Type,
			Vaddr:  p.Vaddr,
			Memsz:  p.Memsz,
			Offset: p.Off,
		})
	}
	return img, nil
}

// OpenFile builds an Image on top of f, memory mapping it where possible.
// The caller keeps ownership of f.
func OpenFile(f *os.File) (*Image, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()
	if mapFile == nil || size == 0 {
		return NewImage(f, size)
	}

	data, unmap, err := mapFile(f, size)
	if err != nil {
		slog.Debug("Failed to map file, falling back to reads", "path", f.Name(), "error", err)
		return NewImage(f, size)
	}
	img, err := NewImage(bytes.NewReader(data), size)
	if err != nil {
		_ = unmap()
		return nil, err
	}
	img.closers = append(img.closers, unmap)
	return img, nil
}

func OpenImage(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	img, err := OpenFile(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	img.closers = append(img.closers, f.Close)
	return img, nil
}

func (i *Image) Close() error {
	var firstErr error
	for _, c := range i.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	i.closers = nil
	return firstErr
}

func (i *Image) Size() int64 { return i.size }

func (i *Image) Segments() []Segment { return i.segments }

func (i *Image) Class() elf.Class { return i.ef.Class }

func (i *Image) Machine() elf.Machine { return i.ef.Machine }

func (i *Image) ReadAt(p []byte, off int64) (int, error) {
	return i.r.ReadAt(p, off)
}
