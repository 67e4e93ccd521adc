package pprof

import (
	"sort"
	"strconv"
	"time"

	"github.com/VladMinzatu/monodroid-extractor/internal/extractor"
	"github.com/google/pprof/profile"
	"github.com/spf13/afero"
)

// BuildSizeProfile describes an extraction as a pprof profile: one sample per artifact with its
// stored and extracted sizes, stacked on top of the bundle library it came from.
func BuildSizeProfile(res *extractor.Result, now time.Time) (*profile.Profile, error) {
	if res == nil || len(res.Artifacts) == 0 {
		p := &profile.Profile{}
		return p, nil
	}

	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "stored", Unit: "bytes"},
			{Type: "extracted", Unit: "bytes"},
		},
		PeriodType:        &profile.ValueType{Type: "space", Unit: "bytes"},
		DefaultSampleType: "extracted",
		TimeNanos:         now.UnixNano(),
	}

	funcs := map[string]*profile.Function{}
	locMap := map[string]*profile.Location{}
	nextFuncID := uint64(1)
	nextLocID := uint64(1)

	addFunction := func(name, filename string) *profile.Function {
		if f, ok := funcs[name]; ok {
			return f
		}
		fn := &profile.Function{
			ID:       nextFuncID,
			Name:     name,
			Filename: filename,
		}
		nextFuncID++
		funcs[name] = fn
		p.Function = append(p.Function, fn)
		return fn
	}

	addLocationFor := func(name, filename string, addr uint64) *profile.Location {
		if loc, ok := locMap[name]; ok {
			return loc
		}
		fn := addFunction(name, filename)
		loc := &profile.Location{
			ID:      nextLocID,
			Address: addr,
			Line:    []profile.Line{{Function: fn, Line: 0}},
		}
		nextLocID++
		locMap[name] = loc
		p.Location = append(p.Location, loc)
		return loc
	}

	bundleLoc := addLocationFor(res.BundleName(), res.Source, 0)
	for _, a := range res.Artifacts {
		// leaf first: the artifact, then the bundle holding it
		locs := []*profile.Location{addLocationFor(a.Name, a.Path, a.Offset), bundleLoc}
		p.Sample = append(p.Sample, &profile.Sample{
			Value:    []int64{int64(a.StoredSize), int64(a.Size)},
			Location: locs,
			Label: map[string][]string{
				"compressed": {strconv.FormatBool(a.Compressed)},
				"symbol":     {a.Symbol},
			},
			NumLabel: map[string][]int64{"offset": {int64(a.Offset)}},
			NumUnit:  map[string][]string{"offset": {"bytes"}},
		})
	}

	// sort for deterministic output
	sort.Slice(p.Function, func(i, j int) bool { return p.Function[i].ID < p.Function[j].ID })
	sort.Slice(p.Location, func(i, j int) bool { return p.Location[i].ID < p.Location[j].ID })

	return p, nil
}

// WriteProfile writes p to name in the gzip-compressed protobuf encoding pprof reads.
func WriteProfile(fs afero.Fs, p *profile.Profile, name string) error {
	f, err := fs.Create(name)
	if err != nil {
		return err
	}
	if err := p.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
