package extractor

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/VladMinzatu/monodroid-extractor/internal/apk"
	"github.com/VladMinzatu/monodroid-extractor/internal/bundle"
	"github.com/spf13/afero"
)

const (
	DefaultOutDir = "extracted_dlls"
	// assemblies extracted from a package go to this subdirectory of the output directory
	PackageAssemblyDir = "dlls"
)

type Options struct {
	OutDir string
	Arch   string // preferred package ABI
}

type Artifact struct {
	Name       string
	Path       string
	Symbol     string
	Offset     uint64
	StoredSize uint64
	Size       uint64
	Compressed bool
}

// Result lists the artifacts of one extraction run in bundle order.
type Result struct {
	Source    string // path of the bundle library the artifacts came from
	ABI       string // set when the bundle was taken from a package
	OutDir    string
	Artifacts []Artifact
}

// Paths maps artifact names to their output paths.
func (r *Result) Paths() map[string]string {
	paths := make(map[string]string, len(r.Artifacts))
	for _, a := range r.Artifacts {
		paths[a.Name] = a.Path
	}
	return paths
}

// BundleName identifies the bundle library in reports: its base name, prefixed by the ABI for
// libraries taken from a package.
func (r *Result) BundleName() string {
	name := filepath.Base(r.Source)
	if r.ABI != "" {
		return r.ABI + "/" + name
	}
	return name
}

type Extractor struct {
	fs afero.Fs
}

func New(fs afero.Fs) *Extractor {
	return &Extractor{fs: fs}
}

// Extract treats input as a package or a bare bundle library and extracts its assemblies.
func (e *Extractor) Extract(input string, opts Options) (*Result, error) {
	if opts.OutDir == "" {
		opts.OutDir = DefaultOutDir
	}
	isPackage, err := apk.IsPackage(e.fs, input)
	if err != nil {
		return nil, err
	}
	if isPackage {
		return e.FromPackage(input, opts.OutDir, opts.Arch)
	}
	return e.FromBundle(input, opts.OutDir)
}

// FromBundle extracts every assembly embedded in the bundle library at bundlePath into outDir.
func (e *Extractor) FromBundle(bundlePath, outDir string) (*Result, error) {
	if err := e.fs.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}

	f, err := e.fs.Open(bundlePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var img *bundle.Image
	if osFile, ok := f.(*os.File); ok {
		img, err = bundle.OpenFile(osFile)
	} else {
		var info os.FileInfo
		if info, err = f.Stat(); err == nil {
			img, err = bundle.NewImage(f, info.Size())
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", bundlePath, err)
	}
	defer img.Close()

	return e.extract(img, bundlePath, outDir)
}

// FromPackage locates the bundle library inside the package at pkgPath, stages a copy of it in
// outDir and extracts its assemblies into outDir/dlls.
func (e *Extractor) FromPackage(pkgPath, outDir, arch string) (*Result, error) {
	b, err := apk.LocateFile(e.fs, pkgPath, arch)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", pkgPath, err)
	}

	if err := e.fs.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	staged := filepath.Join(outDir, path.Base(b.Path))
	if err := afero.WriteFile(e.fs, staged, b.Data, 0o644); err != nil {
		return nil, err
	}
	slog.Debug("Staged bundle library", "path", staged, "abi", b.ABI)

	assemblyDir := filepath.Join(outDir, PackageAssemblyDir)
	if err := e.fs.MkdirAll(assemblyDir, 0o755); err != nil {
		return nil, err
	}
	img, err := bundle.NewImage(bytes.NewReader(b.Data), int64(len(b.Data)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", staged, err)
	}
	defer img.Close()

	res, err := e.extract(img, staged, assemblyDir)
	if err != nil {
		return nil, err
	}
	res.ABI = b.ABI
	return res, nil
}

func (e *Extractor) extract(img *bundle.Image, source, outDir string) (*Result, error) {
	syms, err := bundle.CollectSymbols(img)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	if len(syms) == 0 {
		return nil, fmt.Errorf("%s: %w", source, bundle.ErrNotABundle)
	}
	slog.Debug("Collected assembly symbols", "source", source, "count", len(syms))

	blobs, err := bundle.ResolveBlobs(syms, img.Segments(), uint64(img.Size()))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}

	res := &Result{Source: source, OutDir: outDir, Artifacts: make([]Artifact, 0, len(blobs))}
	for _, blob := range blobs {
		a, err := e.Materialize(img, blob, outDir)
		if err != nil {
			return nil, err
		}
		res.Artifacts = append(res.Artifacts, a)
	}
	slog.Info("Extracted assemblies", "source", source, "count", len(res.Artifacts), "out", outDir)
	return res, nil
}
