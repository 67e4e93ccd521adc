package extractor

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/VladMinzatu/monodroid-extractor/internal/bundle"
	"github.com/klauspost/compress/gzip"
	"github.com/spf13/afero"
)

// Materialize reads the blob from the image, decompresses it when it holds a gzip member and
// writes the result to outDir under the blob's artifact name.
func (e *Extractor) Materialize(img *bundle.Image, blob bundle.Blob, outDir string) (Artifact, error) {
	raw := make([]byte, blob.Size)
	if n, err := img.ReadAt(raw, int64(blob.Offset)); n < len(raw) {
		return Artifact{}, fmt.Errorf("read %s at 0x%x (%d of %d bytes): %w", blob.Symbol, blob.Offset, n, len(raw), err)
	}

	content, compressed := decompress(raw)
	slog.Debug("Materializing blob", "symbol", blob.Symbol, "offset", blob.Offset, "size", blob.Size, "compressed", compressed)

	if err := e.fs.MkdirAll(outDir, 0o755); err != nil {
		return Artifact{}, err
	}
	out := filepath.Join(outDir, blob.Name)
	if err := afero.WriteFile(e.fs, out, content, 0o644); err != nil {
		return Artifact{}, err
	}

	return Artifact{
		Name:       blob.Name,
		Path:       out,
		Symbol:     blob.Symbol,
		Offset:     blob.Offset,
		StoredSize: blob.Size,
		Size:       uint64(len(content)),
		Compressed: compressed,
	}, nil
}

// decompress returns the content of the first gzip member in data. Blobs that are not gzip
// streams are returned unchanged.
func decompress(data []byte) ([]byte, bool) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return data, false
	}
	defer zr.Close()
	// single member: padding up to the next blob is not part of the stream
	zr.Multistream(false)

	out, err := io.ReadAll(zr)
	if err != nil {
		return data, false
	}
	return out, true
}
