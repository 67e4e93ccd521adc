package bundle

import (
	"errors"
	"fmt"
)

var (
	ErrNotELF              = errors.New("not an ELF file")
	ErrNotABundle          = errors.New("no assembly_data_ symbols found; is this a Mono bundle?")
	ErrAddressNotMapped    = errors.New("address not in any segment")
	ErrMalformedSymbols    = errors.New("malformed symbol table")
	ErrInvalidBlobBoundary = errors.New("invalid blob boundary")

	// both are integrity failures of the symbol layout, so they match ErrInvalidBlobBoundary too
	ErrDuplicateAddress    = fmt.Errorf("%w: symbols share an address", ErrInvalidBlobBoundary)
	ErrArtifactCollision   = fmt.Errorf("%w: symbols map to the same artifact name", ErrInvalidBlobBoundary)
	ErrInvalidArtifactName = errors.New("invalid artifact name")
)
