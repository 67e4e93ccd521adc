package exporter

import (
	"github.com/VladMinzatu/monodroid-extractor/internal/extractor"
	"github.com/spf13/afero"
	v1 "go.opentelemetry.io/proto/otlp/common/v1"
	profilespb "go.opentelemetry.io/proto/otlp/profiles/v1development"
	resourceV1 "go.opentelemetry.io/proto/otlp/resource/v1"
	"google.golang.org/protobuf/proto"
)

const ScopeName = "monodroid-extractor"

type NowFunc func() uint64 // produces unix nsec

// BuildOltpProfile encodes the extracted sizes as OTLP profiles data: one sample per artifact whose
// stack is the artifact followed by its bundle library.
func BuildOltpProfile(res *extractor.Result, now NowFunc) *profilespb.ProfilesData {
	nowNsec := now()
	stringTable := []string{""}
	mappingTable := []*profilespb.Mapping{{}}
	locationTable := []*profilespb.Location{{}}
	functionTable := []*profilespb.Function{{}}
	stackTable := []*profilespb.Stack{{}}

	defaultMappingIdx := 0
	var artifacts []extractor.Artifact
	if res != nil {
		artifacts = res.Artifacts
	}
	profileSamples := make([]*profilespb.Sample, 0, len(artifacts))

	sampleType := &profilespb.ValueType{
		TypeStrindex: strIndex(&stringTable, "extracted"),
		UnitStrindex: strIndex(&stringTable, "bytes"),
	}

	addLocation := func(name string, addr uint64) int32 {
		nameIdx := strIndex(&stringTable, name)
		functionTable = append(functionTable, &profilespb.Function{
			NameStrindex:       nameIdx,
			SystemNameStrindex: nameIdx,
		})
		fnIdx := int32(len(functionTable) - 1)

		locationTable = append(locationTable, &profilespb.Location{
			Address:      addr,
			MappingIndex: int32(defaultMappingIdx),
			Lines: []*profilespb.Line{
				{
					FunctionIndex: fnIdx,
					Line:          0,
				},
			},
		})
		return int32(len(locationTable) - 1)
	}

	var bundleLoc int32
	if len(artifacts) > 0 {
		bundleLoc = addLocation(res.BundleName(), 0)
	}
	for _, a := range artifacts {
		stackTable = append(stackTable, &profilespb.Stack{
			LocationIndices: []int32{addLocation(a.Name, a.Offset), bundleLoc},
		})
		profileSamples = append(profileSamples, &profilespb.Sample{
			StackIndex:         int32(len(stackTable) - 1),
			Values:             []int64{int64(a.Size)},
			AttributeIndices:   []int32{},
			LinkIndex:          0,
			TimestampsUnixNano: []uint64{nowNsec},
		})
	}

	profile := &profilespb.Profile{
		TimeUnixNano: nowNsec,
		DurationNano: uint64(0),
		SampleType:   sampleType,
		Samples:      profileSamples,
	}

	resourceProfiles := &profilespb.ResourceProfiles{
		Resource: &resourceV1.Resource{Attributes: resourceAttributes(res)},
		ScopeProfiles: []*profilespb.ScopeProfiles{
			{
				Scope: &v1.InstrumentationScope{
					Name:    ScopeName,
					Version: "v1",
				},
				Profiles: []*profilespb.Profile{profile},
			},
		},
	}

	dictionary := &profilespb.ProfilesDictionary{
		MappingTable:  mappingTable,
		LocationTable: locationTable,
		FunctionTable: functionTable,
		StackTable:    stackTable,
		StringTable:   stringTable,
	}

	return &profilespb.ProfilesData{
		ResourceProfiles: []*profilespb.ResourceProfiles{resourceProfiles},
		Dictionary:       dictionary,
	}
}

func resourceAttributes(res *extractor.Result) []*v1.KeyValue {
	if res == nil || res.Source == "" {
		return nil
	}
	attrs := []*v1.KeyValue{stringAttr("bundle.path", res.Source)}
	if res.ABI != "" {
		attrs = append(attrs, stringAttr("bundle.abi", res.ABI))
	}
	return attrs
}

func stringAttr(key, value string) *v1.KeyValue {
	return &v1.KeyValue{Key: key, Value: &v1.AnyValue{Value: &v1.AnyValue_StringValue{StringValue: value}}}
}

func strIndex(table *[]string, s string) int32 {
	for i, v := range *table {
		if v == s {
			return int32(i)
		}
	}
	*table = append(*table, s)
	return int32(len(*table) - 1)
}

// WriteOltpProfile writes data to filename as binary protobuf.
func WriteOltpProfile(fs afero.Fs, data *profilespb.ProfilesData, filename string) error {
	b, err := proto.Marshal(data)
	if err != nil {
		return err
	}
	return afero.WriteFile(fs, filename, b, 0o644)
}
