package bundle

import (
	"bytes"
	"debug/elf"
	"fmt"
	"log/slog"
	"strings"
)

const (
	shtSunwLdynsym = elf.SectionType(0x6ffffff3)

	sym32Size = 16
	sym64Size = 24
)

type rawSymbol struct {
	name  uint32
	value uint64
	shndx elf.SectionIndex
}

func isSymbolTable(typ elf.SectionType) bool {
	switch typ {
	case elf.SHT_SYMTAB, elf.SHT_DYNSYM, shtSunwLdynsym:
		return true
	}
	return false
}

// CollectSymbols returns the assembly symbols of every symbol table in the image, in the order
// they were found. The same symbol appearing in several tables is reported once.
func CollectSymbols(img *Image) ([]Symbol, error) {
	var syms []Symbol
	seen := make(map[Symbol]struct{})
	for _, section := range img.ef.Sections {
		if !isSymbolTable(section.Type) {
			continue
		}
		strtab, err := img.stringTable(section)
		if err != nil {
			return nil, err
		}
		if strtab == nil {
			slog.Warn("Symbol table has no string table, skipping", "section", section.Name)
			continue
		}
		entries, err := img.readSymbolTable(section)
		if err != nil {
			return nil, err
		}
		slog.Debug("Scanning symbol table", "section", section.Name, "entries", len(entries))

		for _, e := range entries {
			if e.shndx == elf.SHN_UNDEF {
				continue
			}
			name, ok := cstring(strtab, e.name)
			if !ok {
				return nil, fmt.Errorf("%w: %s: name offset %d out of range", ErrMalformedSymbols, section.Name, e.name)
			}
			if !strings.HasPrefix(name, SymbolPrefix) {
				continue
			}
			s := Symbol{Name: name, Addr: e.value}
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			syms = append(syms, s)
		}
	}
	return syms, nil
}

// stringTable returns the string table that names the entries of a symbol table section. The
// linked section wins; a table without a usable link falls back to the conventional companion.
func (i *Image) stringTable(section *elf.Section) ([]byte, error) {
	sections := i.ef.Sections
	link := int(section.Link)
	if link > 0 && link < len(sections) && sections[link].Type == elf.SHT_STRTAB {
		return sectionData(sections[link])
	}

	companion := ".dynstr"
	if section.Type == elf.SHT_SYMTAB {
		companion = ".strtab"
	}
	if s := i.ef.Section(companion); s != nil && s.Type == elf.SHT_STRTAB {
		slog.Debug("Using companion string table", "section", section.Name, "strtab", companion)
		return sectionData(s)
	}
	return nil, nil
}

func (i *Image) readSymbolTable(section *elf.Section) ([]rawSymbol, error) {
	data, err := sectionData(section)
	if err != nil {
		return nil, err
	}

	entSize := sym64Size
	if i.ef.Class == elf.ELFCLASS32 {
		entSize = sym32Size
	}
	if len(data)%entSize != 0 {
		return nil, fmt.Errorf("%w: %s: size %d is not a multiple of %d", ErrMalformedSymbols, section.Name, len(data), entSize)
	}

	bo := i.ef.ByteOrder
	entries := make([]rawSymbol, 0, len(data)/entSize)
	for off := 0; off < len(data); off += entSize {
		e := data[off : off+entSize]
		var s rawSymbol
		s.name = bo.Uint32(e[0:4])
		if entSize == sym64Size {
			// name, info, other, shndx, value, size
			s.shndx = elf.SectionIndex(bo.Uint16(e[6:8]))
			s.value = bo.Uint64(e[8:16])
		} else {
			// name, value, size, info, other, shndx
			s.value = uint64(bo.Uint32(e[4:8]))
			s.shndx = elf.SectionIndex(bo.Uint16(e[14:16]))
		}
		entries = append(entries, s)
	}
	return entries, nil
}

func sectionData(s *elf.Section) ([]byte, error) {
	data, err := s.Data()
	if err != nil {
		return nil, fmt.Errorf("read section %s: %w", s.Name, err)
	}
	return data, nil
}

func cstring(table []byte, off uint32) (string, bool) {
	if int64(off) >= int64(len(table)) {
		return "", false
	}
	rest := table[off:]
	if end := bytes.IndexByte(rest, 0); end >= 0 {
		return string(rest[:end]), true
	}
	return string(rest), true
}
