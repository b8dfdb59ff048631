// Package authz holds the permission model: set representations, the
// verification primitive and the provider contract used by the authorization
// middleware.
package authz

import (
	"fmt"
	"sort"
	"strings"
)

// Set is the abstract permission-set contract. Membership is idempotent,
// Merge is commutative and associative, and Contains on a merged set is the
// disjunction of Contains on the parts.
type Set[P comparable] interface {
	// Contains reports whether p is a member.
	Contains(p P) bool

	// IsEmpty reports whether the set has no members.
	IsEmpty() bool

	// Merge returns the union of this set and other. other may be nil.
	Merge(other Set[P]) Set[P]

	// ForEach visits every member until fn returns false.
	ForEach(fn func(p P) bool)
}

// VerifyResult is the outcome of checking a required set against a held set.
// An empty Missing slice means every required permission is present.
type VerifyResult[P comparable] struct {
	// Missing holds the required permissions absent from the held set.
	Missing []P
}

// Authorized reports whether no required permission was missing.
func (r VerifyResult[P]) Authorized() bool { return len(r.Missing) == 0 }

// String renders the missing permissions for log lines.
func (r VerifyResult[P]) String() string {
	if r.Authorized() {
		return "authorized"
	}
	parts := make([]string, 0, len(r.Missing))
	for _, p := range r.Missing {
		parts = append(parts, fmt.Sprintf("%v", p))
	}
	return "missing " + strings.Join(parts, ",")
}

// VerifyRequired checks required ⊆ held and reports the missing permissions.
// held may be nil, in which case every required permission is missing.
func VerifyRequired[P comparable](held, required Set[P]) VerifyResult[P] {
	var missing []P
	if required == nil {
		return VerifyResult[P]{}
	}
	required.ForEach(func(p P) bool {
		if held == nil || !held.Contains(p) {
			missing = append(missing, p)
		}
		return true
	})
	return VerifyResult[P]{Missing: missing}
}

// HashSet is the open, hash-keyed set representation.
type HashSet[P comparable] struct {
	members map[P]struct{}
}

// NewHashSet builds a HashSet from the given permissions.
func NewHashSet[P comparable](ps ...P) HashSet[P] {
	m := make(map[P]struct{}, len(ps))
	for _, p := range ps {
		m[p] = struct{}{}
	}
	return HashSet[P]{members: m}
}

// Contains implements Set.
func (s HashSet[P]) Contains(p P) bool {
	_, ok := s.members[p]
	return ok
}

// IsEmpty implements Set.
func (s HashSet[P]) IsEmpty() bool { return len(s.members) == 0 }

// Merge implements Set. The result is a fresh HashSet; neither input is
// modified.
func (s HashSet[P]) Merge(other Set[P]) Set[P] {
	m := make(map[P]struct{}, len(s.members))
	for p := range s.members {
		m[p] = struct{}{}
	}
	if other != nil {
		other.ForEach(func(p P) bool {
			m[p] = struct{}{}
			return true
		})
	}
	return HashSet[P]{members: m}
}

// ForEach implements Set. Iteration order is unspecified.
func (s HashSet[P]) ForEach(fn func(p P) bool) {
	for p := range s.members {
		if !fn(p) {
			return
		}
	}
}

// Len reports the member count.
func (s HashSet[P]) Len() int { return len(s.members) }

// Bit constrains permission types representable as a position in a 32-bit
// mask. BitIndex must return a stable value below 32.
type Bit interface {
	comparable
	BitIndex() uint32
}

// BitDecoder maps a bit position back to a permission value. It returns
// false for positions that do not correspond to a known permission; such
// bits are treated as absent (see ErrPermissionDecode for the provider-side
// counterpart).
type BitDecoder[P Bit] func(bit uint32) (P, bool)

// BitSet is the closed, bit-mask set representation for small enumerations.
// The zero value is an empty set without a decoder and cannot enumerate its
// members; construct with NewBitSet.
type BitSet[P Bit] struct {
	bits uint32
	dec  BitDecoder[P]
}

// NewBitSet builds a BitSet over dec from the given permissions.
func NewBitSet[P Bit](dec BitDecoder[P], ps ...P) BitSet[P] {
	s := BitSet[P]{dec: dec}
	for _, p := range ps {
		s.bits |= 1 << p.BitIndex()
	}
	return s
}

// NewBitSetFromMask builds a BitSet directly from a raw mask, e.g. a value
// read from storage. Unknown bits stay in the mask but never enumerate.
func NewBitSetFromMask[P Bit](dec BitDecoder[P], mask uint32) BitSet[P] {
	return BitSet[P]{bits: mask, dec: dec}
}

// Contains implements Set.
func (s BitSet[P]) Contains(p P) bool {
	return s.bits&(1<<p.BitIndex()) != 0
}

// IsEmpty implements Set.
func (s BitSet[P]) IsEmpty() bool { return s.bits == 0 }

// Mask exposes the raw bit mask.
func (s BitSet[P]) Mask() uint32 { return s.bits }

// Merge implements Set. Merging two BitSets is a single OR; merging any
// other representation falls back to element-wise insertion.
func (s BitSet[P]) Merge(other Set[P]) Set[P] {
	out := BitSet[P]{bits: s.bits, dec: s.dec}
	switch o := other.(type) {
	case nil:
	case BitSet[P]:
		out.bits |= o.bits
		if out.dec == nil {
			out.dec = o.dec
		}
	default:
		other.ForEach(func(p P) bool {
			out.bits |= 1 << p.BitIndex()
			return true
		})
	}
	return out
}

// ForEach implements Set. Bits that the decoder does not recognize are
// skipped, which degrades them to absent permissions.
func (s BitSet[P]) ForEach(fn func(p P) bool) {
	if s.dec == nil {
		return
	}
	for bit := uint32(0); bit < 32; bit++ {
		if s.bits&(1<<bit) == 0 {
			continue
		}
		p, ok := s.dec(bit)
		if !ok {
			continue
		}
		if !fn(p) {
			return
		}
	}
}

// UndecodableBits returns the bit positions set in the mask that the decoder
// rejects. Callers log these and carry on; an unknown bit never fails a
// request.
func (s BitSet[P]) UndecodableBits() []uint32 {
	var bad []uint32
	if s.dec == nil {
		return bad
	}
	for bit := uint32(0); bit < 32; bit++ {
		if s.bits&(1<<bit) == 0 {
			continue
		}
		if _, ok := s.dec(bit); !ok {
			bad = append(bad, bit)
		}
	}
	sort.Slice(bad, func(i, j int) bool { return bad[i] < bad[j] })
	return bad
}
