package authz

import (
	"fmt"
	"strings"
)

// Role is the ready-made bit-position permission enumeration. It matches the
// read/write role columns of the reference SQL schema.
type Role uint32

const (
	// RoleRead grants read access to protected resources.
	RoleRead Role = iota
	// RoleWrite grants write access to protected resources.
	RoleWrite
	// RoleAdmin grants administrative operations.
	RoleAdmin

	roleCount
)

// BitIndex implements the Bit constraint.
func (r Role) BitIndex() uint32 { return uint32(r) }

// String implements fmt.Stringer.
func (r Role) String() string {
	switch r {
	case RoleRead:
		return "read"
	case RoleWrite:
		return "write"
	case RoleAdmin:
		return "admin"
	}
	return fmt.Sprintf("role(%d)", uint32(r))
}

// RoleFromName parses a role name as printed by String.
func RoleFromName(name string) (Role, bool) {
	switch strings.ToLower(name) {
	case "read":
		return RoleRead, true
	case "write":
		return RoleWrite, true
	case "admin":
		return RoleAdmin, true
	}
	return 0, false
}

// RoleFromBit is the BitDecoder for Role.
func RoleFromBit(bit uint32) (Role, bool) {
	if bit >= uint32(roleCount) {
		return 0, false
	}
	return Role(bit), true
}

// Roles builds a Role bit set.
func Roles(rs ...Role) BitSet[Role] {
	return NewBitSet(RoleFromBit, rs...)
}
