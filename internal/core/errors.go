package core

import "errors"

// Sentinel errors shared across the switch, pool, and tracking packages.
var (
	// Packet pool errors
	ErrOutOfMemory = errors.New("swcore: packet pool exhausted")
	ErrDoubleFree  = errors.New("swcore: packet already freed")

	// Switch errors
	ErrPortOverflow = errors.New("swcore: port table full")
	ErrPortDetached = errors.New("swcore: port not attached")
	ErrFrameTooRunt = errors.New("swcore: frame shorter than minimum header")
	ErrHeaderLength = errors.New("swcore: plugin changed header length")
	ErrLinkFull     = errors.New("swcore: link egress buffer full")

	// Route table errors
	ErrRouteTableFull = errors.New("swcore: routing table full")
	ErrRouteNotFound  = errors.New("swcore: no matching route")

	// Tracking errors
	ErrBadCoeff = errors.New("swcore: tracking coefficients out of range")

	// Configuration errors
	ErrConfigInvalid = errors.New("swcore: invalid configuration")
)
