// Package objid names an object by a 128-bit identifier, the same width
// FLUTE's Transport Object Identifier (TOI) used to name objects within
// a session (spec.md §4 calls this objectID). A block's id is typically
// a truncation of its hash; 128 bits is wide enough to make collisions
// within one decode session a non-concern while staying a fixed,
// allocation-free value type.
//
// Grounded on Mowenhao13-FluteGo/pkg/type/type.go, generalized from a
// generic Uint128 into the codec's object-identity type and trimmed down
// to the operations this domain actually exercises: widening a 64-bit
// seed, advancing the allocator's cursor, and rendering/parsing the hex
// form used for mmap scratch filenames and log lines. The teacher's
// bitwise AND, greater-than, and byte-oriented (de)serialization were
// dropped — this codec never puts an id on the wire, only in filenames
// and log lines, so String/Parse cover every real call site.
package objid

import "fmt"

// ID is a 128-bit object identifier. Being a plain comparable struct, it
// works directly as a map key and with == without a dedicated Equal
// method.
type ID struct {
	High uint64
	Low  uint64
}

// FromUint64 widens a 64-bit value into an ID.
func FromUint64(v uint64) ID { return ID{Low: v} }

// AddUint64 adds v to the low 64 bits, carrying into High on overflow.
func (u ID) AddUint64(v uint64) ID {
	low := u.Low + v
	high := u.High
	if low < u.Low {
		high++
	}
	return ID{High: high, Low: low}
}

// String renders the id as 32 lowercase hex digits (High then Low).
func (u ID) String() string { return fmt.Sprintf("%016x%016x", u.High, u.Low) }

// Parse is the inverse of String.
func Parse(s string) (ID, error) {
	if len(s) != 32 {
		return ID{}, fmt.Errorf("objid: invalid id length %d, want 32 hex digits", len(s))
	}
	var u ID
	if _, err := fmt.Sscanf(s[:16], "%016x", &u.High); err != nil {
		return ID{}, fmt.Errorf("objid: parse high bits: %w", err)
	}
	if _, err := fmt.Sscanf(s[16:], "%016x", &u.Low); err != nil {
		return ID{}, fmt.Errorf("objid: parse low bits: %w", err)
	}
	return u, nil
}
