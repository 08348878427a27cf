// errors.go - configuration-error taxa (spec.md §7, taxon 1)

package machine

import "errors"

var (
	ErrZeroSize      = errors.New("machine: zero size")
	ErrZeroPages     = errors.New("machine: zero pages")
	ErrOutOfRange    = errors.New("machine: page range exceeds total pages")
	ErrSelfMirror    = errors.New("machine: mirror base page equals start page")
	ErrAlreadySetup  = errors.New("machine: id already set up")
	ErrNotSetup      = errors.New("machine: id not set up")
	ErrOutOfBounds   = errors.New("machine: id out of range")
	ErrNoBuffer      = errors.New("machine: page is not backed by a memory region")
	ErrStringTooLong = errors.New("machine: string exceeds 255 bytes")
	ErrSliceInFlight = errors.New("machine: execution slice already in flight")
)
