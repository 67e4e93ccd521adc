package bundle

import "debug/elf"

// SymbolPrefix marks the symbols whose address is the start of an embedded assembly.
const SymbolPrefix = "assembly_data_"

// Segment maps a virtual address range onto the file, as described by one program header.
type Segment struct {
	Type   elf.ProgType
	Vaddr  uint64
	Memsz  uint64
	Offset uint64
}

func (s Segment) Contains(addr uint64) bool {
	return s.Memsz > 0 && addr >= s.Vaddr && addr-s.Vaddr < s.Memsz
}

type Symbol struct {
	Name string
	Addr uint64
}

// Blob is the byte range of one embedded assembly inside the bundle file.
type Blob struct {
	Symbol string
	Name   string // artifact filename derived from Symbol
	Addr   uint64
	Offset uint64
	Size   uint64
}
