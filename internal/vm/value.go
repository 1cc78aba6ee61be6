package vm

import "fmt"

// ValueKind discriminates the variant a Value holds.
type ValueKind uint8

const (
	KindInt ValueKind = iota
	KindString
	KindAddress
	KindLabel
)

func (k ValueKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindString:
		return "string"
	case KindAddress:
		return "address"
	case KindLabel:
		return "label"
	default:
		return "unknown"
	}
}

// Value is the uniform runtime value usable on either stack, in a
// register, or in memory. Only one of Int/Str is meaningful,
// selected by Kind; interned strings, addresses, and label
// references all live in Str to keep the struct small and avoid an
// interface-boxed payload for the common non-integer cases.
type Value struct {
	Kind ValueKind
	Int  int64
	Str  string
}

// IntValue builds an integer Value.
func IntValue(v int64) Value { return Value{Kind: KindInt, Int: v} }

// StringValue builds an interned-string Value.
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// AddressValue builds an address Value. addr is the address text
// verbatim; two distinct textual forms of the same numeric address do
// not collide (spec §9.c).
func AddressValue(addr string) Value { return Value{Kind: KindAddress, Str: addr} }

// LabelValue builds a label-reference Value.
func LabelValue(name string) Value { return Value{Kind: KindLabel, Str: name} }

// IsInt reports whether v holds an integer.
func (v Value) IsInt() bool { return v.Kind == KindInt }

func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindString:
		return fmt.Sprintf("%q", v.Str)
	case KindAddress:
		return "@" + v.Str
	case KindLabel:
		return v.Str
	default:
		return "?"
	}
}

// Size returns the number of bytes v contributes to the VM's
// memory-usage counter: 8 for the fixed-width int payload, or the
// byte length of Str for the string/address/label variants.
func (v Value) Size() int {
	if v.Kind == KindInt {
		return 8
	}
	return len(v.Str)
}

// Equal reports value equality: same kind and same payload.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindInt:
		return v.Int == other.Int
	default:
		return v.Str == other.Str
	}
}
