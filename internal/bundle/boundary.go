package bundle

import (
	"fmt"
	"sort"
	"strings"
)

const compiledSuffix = "_dll"

// ArtifactName derives the output filename of an assembly symbol:
// assembly_data_Foo_dll -> Foo.dll. Names without the _dll suffix are kept as they are.
func ArtifactName(symbol string) string {
	name := strings.TrimPrefix(symbol, SymbolPrefix)
	if base, ok := strings.CutSuffix(name, compiledSuffix); ok {
		return base + ".dll"
	}
	return name
}

func validArtifactName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`+"\x00")
}

// ResolveBlobs orders the symbols by address and derives the byte range of each blob. A blob
// ends where the next one starts; the last one runs to the end of the file.
func ResolveBlobs(symbols []Symbol, segments []Segment, fileSize uint64) ([]Blob, error) {
	sorted := make([]Symbol, len(symbols))
	copy(sorted, symbols)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Addr < sorted[j].Addr })

	offsets := make([]uint64, len(sorted))
	for i, s := range sorted {
		if i > 0 && sorted[i-1].Addr == s.Addr {
			return nil, fmt.Errorf("%w: %s and %s at 0x%x", ErrDuplicateAddress, sorted[i-1].Name, s.Name, s.Addr)
		}
		off, err := Translate(segments, s.Addr)
		if err != nil {
			return nil, fmt.Errorf("symbol %s: %w", s.Name, err)
		}
		offsets[i] = off
	}

	blobs := make([]Blob, 0, len(sorted))
	names := make(map[string]string, len(sorted))
	for i, s := range sorted {
		start := offsets[i]
		end := fileSize
		if i+1 < len(sorted) {
			end = offsets[i+1]
		}
		if end <= start {
			return nil, fmt.Errorf("%w: %s starts at offset 0x%x, next boundary at 0x%x", ErrInvalidBlobBoundary, s.Name, start, end)
		}

		name := ArtifactName(s.Name)
		if !validArtifactName(name) {
			return nil, fmt.Errorf("%w: %q from symbol %s", ErrInvalidArtifactName, name, s.Name)
		}
		if other, ok := names[name]; ok {
			return nil, fmt.Errorf("%w: %s and %s both map to %s", ErrArtifactCollision, other, s.Name, name)
		}
		names[name] = s.Name

		blobs = append(blobs, Blob{
			Symbol: s.Name,
			Name:   name,
			Addr:   s.Addr,
			Offset: start,
			Size:   end - start,
		})
	}
	return blobs, nil
}
