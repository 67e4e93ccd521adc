// Package bundletest writes small little-endian ELF shared objects for tests.
package bundletest

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
)

// SHT_SUNW_LDYNSYM is not defined by debug/elf.
const SHT_SUNW_LDYNSYM = elf.SectionType(0x6ffffff3)

type Segment struct {
	Type   elf.ProgType
	Off    uint64
	Vaddr  uint64
	Filesz uint64
	Memsz  uint64
}

type Symbol struct {
	Name      string
	Value     uint64
	Undefined bool
}

type Table struct {
	Type    elf.SectionType // SHT_DYNSYM when zero
	Name    string          // section name, derived from Type when empty
	StrName string          // string table name, .dynstr or .strtab when empty
	NoLink  bool            // leave sh_link at 0
	Symbols []Symbol
}

// Chunk is raw content placed at a fixed file offset.
type Chunk struct {
	Off  uint64
	Data []byte
}

type File struct {
	Class    elf.Class // ELFCLASS64 when zero
	Segments []Segment
	Tables   []Table
	Chunks   []Chunk
	Size     uint64 // total file size; grows to fit the content when smaller
}

type section struct {
	name    string
	typ     elf.SectionType
	link    uint32
	entsize uint64
	data    []byte
	off     uint64
}

// Bytes lays out headers and tables at the start of the file, followed by the chunks. All the
// metadata has to fit in front of the first chunk.
func (f *File) Bytes() ([]byte, error) {
	is64 := f.Class != elf.ELFCLASS32
	ehsize, phentsize, shentsize, symsize := 52, 32, 40, 16
	if is64 {
		ehsize, phentsize, shentsize, symsize = 64, 56, 64, 24
	}

	sections := []*section{{}}
	for _, t := range f.Tables {
		typ := t.Type
		if typ == 0 {
			typ = elf.SHT_DYNSYM
		}
		name, strName := t.Name, t.StrName
		if name == "" {
			name = ".dynsym"
			if typ == elf.SHT_SYMTAB {
				name = ".symtab"
			}
		}
		if strName == "" {
			strName = ".dynstr"
			if typ == elf.SHT_SYMTAB {
				strName = ".strtab"
			}
		}

		strtab := []byte{0}
		symtab := make([]byte, symsize) // null entry
		for _, s := range t.Symbols {
			nameOff := uint32(len(strtab))
			strtab = append(append(strtab, s.Name...), 0)
			shndx := uint16(1)
			if s.Undefined {
				shndx = 0
			}
			symtab = append(symtab, encodeSym(is64, nameOff, s.Value, shndx)...)
		}

		strIdx := uint32(len(sections))
		sections = append(sections, &section{name: strName, typ: elf.SHT_STRTAB, data: strtab})
		link := strIdx
		if t.NoLink {
			link = 0
		}
		sections = append(sections, &section{name: name, typ: typ, link: link, entsize: uint64(symsize), data: symtab})
	}

	shstrtab := []byte{0}
	nameOffs := make([]uint32, len(sections)+1)
	for i, s := range sections[1:] {
		nameOffs[i+1] = uint32(len(shstrtab))
		shstrtab = append(append(shstrtab, s.name...), 0)
	}
	nameOffs[len(sections)] = uint32(len(shstrtab))
	shstrtab = append(append(shstrtab, ".shstrtab"...), 0)
	sections = append(sections, &section{name: ".shstrtab", typ: elf.SHT_STRTAB, data: shstrtab})

	off := uint64(ehsize + phentsize*len(f.Segments))
	for _, s := range sections[1:] {
		s.off = off
		off += uint64(len(s.data))
	}
	shoff := (off + 7) &^ 7
	metaEnd := shoff + uint64(shentsize*len(sections))

	size := metaEnd
	for _, c := range f.Chunks {
		if c.Off < metaEnd {
			return nil, fmt.Errorf("chunk at 0x%x overlaps ELF metadata ending at 0x%x", c.Off, metaEnd)
		}
		if end := c.Off + uint64(len(c.Data)); end > size {
			size = end
		}
	}
	if f.Size > size {
		size = f.Size
	}

	buf := make([]byte, size)
	le := binary.LittleEndian

	// ELF header
	copy(buf, elf.ELFMAG)
	buf[elf.EI_CLASS] = byte(elf.ELFCLASS32)
	machine := elf.EM_ARM
	if is64 {
		buf[elf.EI_CLASS] = byte(elf.ELFCLASS64)
		machine = elf.EM_AARCH64
	}
	buf[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	buf[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	le.PutUint16(buf[16:], uint16(elf.ET_DYN))
	le.PutUint16(buf[18:], uint16(machine))
	le.PutUint32(buf[20:], uint32(elf.EV_CURRENT))
	p := 24
	if is64 {
		le.PutUint64(buf[p:], 0) // entry
		le.PutUint64(buf[p+8:], uint64(ehsize))
		le.PutUint64(buf[p+16:], shoff)
		p += 24
	} else {
		le.PutUint32(buf[p:], 0)
		le.PutUint32(buf[p+4:], uint32(ehsize))
		le.PutUint32(buf[p+8:], uint32(shoff))
		p += 12
	}
	le.PutUint32(buf[p:], 0) // flags
	le.PutUint16(buf[p+4:], uint16(ehsize))
	le.PutUint16(buf[p+6:], uint16(phentsize))
	le.PutUint16(buf[p+8:], uint16(len(f.Segments)))
	le.PutUint16(buf[p+10:], uint16(shentsize))
	le.PutUint16(buf[p+12:], uint16(len(sections)))
	le.PutUint16(buf[p+14:], uint16(len(sections)-1))

	// program headers
	for i, seg := range f.Segments {
		ph := buf[ehsize+i*phentsize:]
		if is64 {
			le.PutUint32(ph[0:], uint32(seg.Type))
			le.PutUint32(ph[4:], uint32(elf.PF_R))
			le.PutUint64(ph[8:], seg.Off)
			le.PutUint64(ph[16:], seg.Vaddr)
			le.PutUint64(ph[24:], seg.Vaddr)
			le.PutUint64(ph[32:], seg.Filesz)
			le.PutUint64(ph[40:], seg.Memsz)
			le.PutUint64(ph[48:], 0x1000)
		} else {
			le.PutUint32(ph[0:], uint32(seg.Type))
			le.PutUint32(ph[4:], uint32(seg.Off))
			le.PutUint32(ph[8:], uint32(seg.Vaddr))
			le.PutUint32(ph[12:], uint32(seg.Vaddr))
			le.PutUint32(ph[16:], uint32(seg.Filesz))
			le.PutUint32(ph[20:], uint32(seg.Memsz))
			le.PutUint32(ph[24:], uint32(elf.PF_R))
			le.PutUint32(ph[28:], 0x1000)
		}
	}

	// section contents and headers
	for i, s := range sections {
		copy(buf[s.off:], s.data)
		sh := buf[shoff+uint64(i*shentsize):]
		if i == 0 {
			continue
		}
		if is64 {
			le.PutUint32(sh[0:], nameOffs[i])
			le.PutUint32(sh[4:], uint32(s.typ))
			le.PutUint64(sh[24:], s.off)
			le.PutUint64(sh[32:], uint64(len(s.data)))
			le.PutUint32(sh[40:], s.link)
			le.PutUint64(sh[48:], 1)
			le.PutUint64(sh[56:], s.entsize)
		} else {
			le.PutUint32(sh[0:], nameOffs[i])
			le.PutUint32(sh[4:], uint32(s.typ))
			le.PutUint32(sh[16:], uint32(s.off))
			le.PutUint32(sh[20:], uint32(len(s.data)))
			le.PutUint32(sh[24:], s.link)
			le.PutUint32(sh[32:], 1)
			le.PutUint32(sh[36:], uint32(s.entsize))
		}
	}

	for _, c := range f.Chunks {
		copy(buf[c.Off:], c.Data)
	}
	return buf, nil
}

func encodeSym(is64 bool, name uint32, value uint64, shndx uint16) []byte {
	le := binary.LittleEndian
	info := byte(elf.STB_GLOBAL)<<4 | byte(elf.STT_OBJECT)
	if is64 {
		b := make([]byte, 24)
		le.PutUint32(b[0:], name)
		b[4] = info
		le.PutUint16(b[6:], shndx)
		le.PutUint64(b[8:], value)
		return b
	}
	b := make([]byte, 16)
	le.PutUint32(b[0:], name)
	le.PutUint32(b[4:], uint32(value))
	b[12] = info
	le.PutUint16(b[14:], shndx)
	return b
}

// Bundle is the usual fixture: one PT_LOAD segment mapping the whole file at vaddr 0 and a
// .dynsym table holding the given symbols.
func Bundle(size uint64, chunks []Chunk, symbols ...Symbol) *File {
	return &File{
		Segments: []Segment{{Type: elf.PT_LOAD, Off: 0, Vaddr: 0, Filesz: size, Memsz: size}},
		Tables:   []Table{{Type: elf.SHT_DYNSYM, Symbols: symbols}},
		Chunks:   chunks,
		Size:     size,
	}
}

// MustBytes is Bytes for fixtures known to be valid.
func (f *File) MustBytes() []byte {
	b, err := f.Bytes()
	if err != nil {
		panic(err)
	}
	return b
}
