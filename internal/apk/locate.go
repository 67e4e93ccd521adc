package apk

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
)

const BundleLibrary = "libmonodroid_bundle_app.so"

// DefaultABIs is the search order used after the caller's preferred ABI.
var DefaultABIs = []string{"arm64-v8a", "armeabi-v7a", "x86_64", "x86"}

var ErrBundleNotFound = errors.New(BundleLibrary + " not found in APK")

var zipMagic = []byte("PK\x03\x04")

// Bundle is the bundle library located inside a package.
type Bundle struct {
	ABI  string
	Path string
	Data []byte
}

func SearchOrder(preferred string) []string {
	order := make([]string, 0, len(DefaultABIs)+1)
	if preferred != "" {
		order = append(order, preferred)
	}
	for _, abi := range DefaultABIs {
		if abi != preferred {
			order = append(order, abi)
		}
	}
	return order
}

func CandidatePath(abi string) string {
	return path.Join("lib", abi, BundleLibrary)
}

// Locate finds the bundle library in the zip container read from r and returns its bytes.
func Locate(r io.ReaderAt, size int64, preferred string) (*Bundle, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("open package: %w", err)
	}
	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	for _, abi := range SearchOrder(preferred) {
		f, ok := files[CandidatePath(abi)]
		if !ok {
			slog.Debug("No bundle for ABI", "abi", abi)
			continue
		}
		data, err := readEntry(f)
		if err != nil {
			return nil, err
		}
		slog.Info("Found bundle in package", "path", f.Name, "abi", abi, "size", len(data))
		return &Bundle{ABI: abi, Path: f.Name, Data: data}, nil
	}
	return nil, ErrBundleNotFound
}

// LocateFile is Locate for a package stored on fs.
func LocateFile(fs afero.Fs, name, preferred string) (*Bundle, error) {
	f, err := fs.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return Locate(f, info.Size(), preferred)
}

// IsPackage reports whether name should be treated as a zip package rather than a bare ELF
// library: either by its .apk extension or by the zip local header magic.
func IsPackage(fs afero.Fs, name string) (bool, error) {
	if strings.EqualFold(filepath.Ext(name), ".apk") {
		return true, nil
	}
	f, err := fs.Open(name)
	if err != nil {
		return false, err
	}
	defer f.Close()

	head := make([]byte, len(zipMagic))
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false, err
	}
	return bytes.Equal(head[:n], zipMagic), nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	return data, nil
}
