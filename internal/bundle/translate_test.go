package bundle

import (
	"debug/elf"
	"errors"
	"fmt"
	"testing"
)

func TestTranslate(t *testing.T) {
	segments := []Segment{
		{Type: elf.PT_LOAD, Vaddr: 0x0, Memsz: 0x2000, Offset: 0x0},
		{Type: elf.PT_LOAD, Vaddr: 0x12000, Memsz: 0x3000, Offset: 0x2000},
		{Type: elf.PT_GNU_STACK, Vaddr: 0x0, Memsz: 0x0, Offset: 0x0},
	}

	tests := []struct {
		addr    uint64
		want    uint64
		wantErr bool
	}{
		{addr: 0x0, want: 0x0},
		{addr: 0x1fff, want: 0x1fff},
		{addr: 0x12000, want: 0x2000},
		{addr: 0x13abc, want: 0x3abc},
		{addr: 0x14fff, want: 0x4fff},
		{addr: 0x2000, wantErr: true},
		{addr: 0x15000, wantErr: true},
		{addr: 0xffffffffffffffff, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("addr=0x%x", tt.addr), func(t *testing.T) {
			got, err := Translate(segments, tt.addr)
			if tt.wantErr {
				if !errors.Is(err, ErrAddressNotMapped) {
					t.Fatalf("expected ErrAddressNotMapped, got offset=0x%x err=%v", got, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("Translate(0x%x) = 0x%x; want 0x%x", tt.addr, got, tt.want)
			}
			again, _ := Translate(segments, tt.addr)
			if again != got {
				t.Fatalf("translation not deterministic: 0x%x then 0x%x", got, again)
			}
		})
	}
}

func TestTranslate_NoSegments(t *testing.T) {
	if _, err := Translate(nil, 0x1000); !errors.Is(err, ErrAddressNotMapped) {
		t.Fatalf("expected ErrAddressNotMapped, got %v", err)
	}
}

func TestSegmentContains_NoOverflowAtTopOfAddressSpace(t *testing.T) {
	s := Segment{Vaddr: 0xfffffffffffff000, Memsz: 0x1000}
	if !s.Contains(0xffffffffffffffff) {
		t.Fatalf("expected last address to be contained")
	}
	if s.Contains(0xffffffffffffefff) {
		t.Fatalf("address below segment reported as contained")
	}
}
