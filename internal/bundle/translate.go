package bundle

import "fmt"

// Translate maps a virtual address to a file offset using the first segment that contains it.
func Translate(segments []Segment, addr uint64) (uint64, error) {
	for _, s := range segments {
		if s.Contains(addr) {
			return s.Offset + (addr - s.Vaddr), nil
		}
	}
	return 0, fmt.Errorf("%w: 0x%x", ErrAddressNotMapped, addr)
}
