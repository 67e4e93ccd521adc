package exporter

import (
	"testing"

	"github.com/VladMinzatu/monodroid-extractor/internal/extractor"
	"github.com/spf13/afero"
	v1 "go.opentelemetry.io/proto/otlp/common/v1"
	profilespb "go.opentelemetry.io/proto/otlp/profiles/v1development"
	resourceV1 "go.opentelemetry.io/proto/otlp/resource/v1"
	"google.golang.org/protobuf/proto"
)

func mustMarshal(t *testing.T, m proto.Message) []byte {
	t.Helper()
	b, err := proto.Marshal(m)
	if err != nil {
		t.Fatalf("failed to marshal proto: %v", err)
	}
	return b
}

func TestBuildOltpProfile_Basic(t *testing.T) {
	nowValue := uint64(9999999999)
	res := &extractor.Result{
		Source: "/out/libmonodroid_bundle_app.so",
		ABI:    "arm64-v8a",
		Artifacts: []extractor.Artifact{
			{Name: "Foo.dll", Offset: 0x1000, StoredSize: 0x1000, Size: 9000, Compressed: true},
			{Name: "Bar.dll", Offset: 0x2000, StoredSize: 0x1000, Size: 0x1000},
		},
	}

	got := BuildOltpProfile(res, func() uint64 { return nowValue })

	expectedStringTable := []string{"", "extracted", "bytes", "arm64-v8a/libmonodroid_bundle_app.so", "Foo.dll", "Bar.dll"}
	expectedMappingTable := []*profilespb.Mapping{{}}
	expectedFunctionTable := []*profilespb.Function{
		{},
		{NameStrindex: int32(3), SystemNameStrindex: int32(3)}, // bundle
		{NameStrindex: int32(4), SystemNameStrindex: int32(4)}, // Foo.dll
		{NameStrindex: int32(5), SystemNameStrindex: int32(5)}, // Bar.dll
	}

	expectedLocationTable := []*profilespb.Location{
		{},
		{Address: 0, MappingIndex: 0, Lines: []*profilespb.Line{{FunctionIndex: 1, Line: 0}}},
		{Address: uint64(0x1000), MappingIndex: 0, Lines: []*profilespb.Line{{FunctionIndex: 2, Line: 0}}},
		{Address: uint64(0x2000), MappingIndex: 0, Lines: []*profilespb.Line{{FunctionIndex: 3, Line: 0}}},
	}

	expectedStackTable := []*profilespb.Stack{
		{},
		{LocationIndices: []int32{2, 1}},
		{LocationIndices: []int32{3, 1}},
	}

	expectedSamples := []*profilespb.Sample{
		{
			StackIndex:         1,
			Values:             []int64{9000},
			AttributeIndices:   []int32{},
			LinkIndex:          0,
			TimestampsUnixNano: []uint64{nowValue},
		},
		{
			StackIndex:         2,
			Values:             []int64{0x1000},
			AttributeIndices:   []int32{},
			LinkIndex:          0,
			TimestampsUnixNano: []uint64{nowValue},
		},
	}

	expectedProfile := &profilespb.Profile{
		TimeUnixNano: nowValue,
		DurationNano: uint64(0),
		SampleType:   &profilespb.ValueType{TypeStrindex: int32(1), UnitStrindex: int32(2)},
		Samples:      expectedSamples,
	}

	expectedResourceProfiles := &profilespb.ResourceProfiles{
		Resource: &resourceV1.Resource{
			Attributes: []*v1.KeyValue{
				{Key: "bundle.path", Value: &v1.AnyValue{Value: &v1.AnyValue_StringValue{StringValue: "/out/libmonodroid_bundle_app.so"}}},
				{Key: "bundle.abi", Value: &v1.AnyValue{Value: &v1.AnyValue_StringValue{StringValue: "arm64-v8a"}}},
			},
		},
		ScopeProfiles: []*profilespb.ScopeProfiles{
			{
				Scope:    &v1.InstrumentationScope{Name: "monodroid-extractor", Version: "v1"},
				Profiles: []*profilespb.Profile{expectedProfile},
			},
		},
	}

	expected := &profilespb.ProfilesData{
		ResourceProfiles: []*profilespb.ResourceProfiles{expectedResourceProfiles},
		Dictionary: &profilespb.ProfilesDictionary{
			MappingTable:  expectedMappingTable,
			LocationTable: expectedLocationTable,
			FunctionTable: expectedFunctionTable,
			StackTable:    expectedStackTable,
			StringTable:   expectedStringTable,
		},
	}

	if !proto.Equal(got, expected) {
		gotB := mustMarshal(t, got)
		wantB := mustMarshal(t, expected)
		t.Fatalf("ProfilesData proto mismatch\nGOT (len %d): %x\nWANT (len %d): %x", len(gotB), gotB, len(wantB), wantB)
	}
}

func TestBuildOltpProfile_Empty(t *testing.T) {
	got := BuildOltpProfile(&extractor.Result{}, func() uint64 { return 1 })

	expected := &profilespb.ProfilesData{
		ResourceProfiles: []*profilespb.ResourceProfiles{
			{
				Resource: &resourceV1.Resource{},
				ScopeProfiles: []*profilespb.ScopeProfiles{
					{
						Scope: &v1.InstrumentationScope{Name: "monodroid-extractor", Version: "v1"},
						Profiles: []*profilespb.Profile{{
							TimeUnixNano: 1,
							SampleType:   &profilespb.ValueType{TypeStrindex: 1, UnitStrindex: 2},
							Samples:      []*profilespb.Sample{},
						}},
					},
				},
			},
		},
		Dictionary: &profilespb.ProfilesDictionary{
			MappingTable:  []*profilespb.Mapping{{}},
			LocationTable: []*profilespb.Location{{}},
			FunctionTable: []*profilespb.Function{{}},
			StackTable:    []*profilespb.Stack{{}},
			StringTable:   []string{"", "extracted", "bytes"},
		},
	}

	if !proto.Equal(got, expected) {
		gotB := mustMarshal(t, got)
		wantB := mustMarshal(t, expected)
		t.Fatalf("ProfilesData proto mismatch\nGOT (len %d): %x\nWANT (len %d): %x", len(gotB), gotB, len(wantB), wantB)
	}
}

func TestWriteOltpProfile(t *testing.T) {
	fs := afero.NewMemMapFs()
	res := &extractor.Result{Source: "b.so", Artifacts: []extractor.Artifact{{Name: "Foo.dll", Size: 3}}}
	data := BuildOltpProfile(res, func() uint64 { return 42 })
	if err := WriteOltpProfile(fs, data, "/sizes.otlp"); err != nil {
		t.Fatalf("WriteOltpProfile: %v", err)
	}

	b, err := afero.ReadFile(fs, "/sizes.otlp")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var decoded profilespb.ProfilesData
	if err := proto.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !proto.Equal(&decoded, data) {
		t.Fatalf("decoded profiles data differs from the written one")
	}
}
