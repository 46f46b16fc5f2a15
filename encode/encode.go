// Package encode fixes the canonical textual representation of hash values
// on the target shell, where everything is a flat string.
//
// Every value carries a tag so decoding never guesses:
//
//	T;hello                 text
//	L2;T;a\x1FT;b           list of two elements
//	M1;name\x1FT;bo         map of one entry
//	F;__hash_fn_3\x1FT;x    closure: generated procedure plus captures
//
// Container payloads are joined with the unit separator (0x1F). Elements
// are escaped before joining and unescaped after splitting, one level at a
// time, so nesting is unbounded and no data byte can be read as structure.
// The code generator emits shell helpers implementing this exact scheme;
// the two sides must never drift.
package encode

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hash-lang/hash/core/invariant"
)

// Sep joins container payload fields. The escape scheme guarantees it never
// occurs inside an encoded field.
const Sep = "\x1f"

// Kind tags a Value. Numbers, booleans, and paths all live as text, like the
// shell itself treats them; only containers and closures need structure.
type Kind int

const (
	KindText Kind = iota
	KindList
	KindMap
	KindClosure
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindClosure:
		return "closure"
	}
	return "unknown"
}

// Value is the tagged variant the encoder works over.
type Value struct {
	Kind Kind

	Text string // KindText

	Elems []Value // KindList

	Keys []string // KindMap, parallel to Vals, insertion order
	Vals []Value

	Proc     string  // KindClosure: generated procedure name
	Captures []Value // KindClosure: captured values, leading-argument order
}

// Text wraps a string.
func Text(s string) Value { return Value{Kind: KindText, Text: s} }

// List wraps elements.
func List(elems ...Value) Value { return Value{Kind: KindList, Elems: elems} }

// Map wraps parallel keys and values.
func Map(keys []string, vals []Value) Value {
	invariant.Precondition(len(keys) == len(vals), "map keys and values must align")
	return Value{Kind: KindMap, Keys: keys, Vals: vals}
}

// Closure wraps a generated procedure name and its captures.
func Closure(proc string, captures ...Value) Value {
	return Value{Kind: KindClosure, Proc: proc, Captures: captures}
}

// escape makes a field safe to join: the escape character doubles and the
// separator becomes \u.
func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, Sep, `\u`)
}

func unescape(s string) (string, error) {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			continue
		}
		i++
		if i >= len(s) {
			return "", errors.New("dangling escape at end of field")
		}
		switch s[i] {
		case '\\':
			b.WriteByte('\\')
		case 'u':
			b.WriteString(Sep)
		default:
			return "", fmt.Errorf("unknown escape '\\%c'", s[i])
		}
	}
	return b.String(), nil
}

// Encode renders any value to its canonical form.
func Encode(v Value) string {
	switch v.Kind {
	case KindText:
		return "T;" + v.Text

	case KindList:
		fields := make([]string, len(v.Elems))
		for i, e := range v.Elems {
			fields[i] = escape(Encode(e))
		}
		return fmt.Sprintf("L%d;%s", len(v.Elems), strings.Join(fields, Sep))

	case KindMap:
		invariant.Invariant(len(v.Keys) == len(v.Vals), "map keys and values must align")
		fields := make([]string, 0, len(v.Keys)*2)
		for i, k := range v.Keys {
			fields = append(fields, escape(k), escape(Encode(v.Vals[i])))
		}
		return fmt.Sprintf("M%d;%s", len(v.Keys), strings.Join(fields, Sep))

	case KindClosure:
		fields := make([]string, 0, len(v.Captures)+1)
		fields = append(fields, v.Proc)
		for _, c := range v.Captures {
			fields = append(fields, escape(Encode(c)))
		}
		return "F;" + strings.Join(fields, Sep)
	}

	invariant.Invariant(false, "unencodable kind %d", v.Kind)
	return ""
}

// EncodeList is the list entry point the generator calls.
func EncodeList(elems []Value) string { return Encode(Value{Kind: KindList, Elems: elems}) }

// EncodeMap is the map entry point the generator calls.
func EncodeMap(keys []string, vals []Value) string { return Encode(Map(keys, vals)) }

// Decode parses any canonical form back into a value.
func Decode(s string) (Value, error) {
	tag := strings.IndexByte(s, ';')
	if tag < 1 {
		return Value{}, fmt.Errorf("missing tag in %q", s)
	}
	head, payload := s[:tag], s[tag+1:]

	switch head[0] {
	case 'T':
		if head != "T" {
			return Value{}, fmt.Errorf("malformed text tag %q", head)
		}
		return Text(payload), nil

	case 'L':
		n, err := strconv.Atoi(head[1:])
		if err != nil || n < 0 {
			return Value{}, fmt.Errorf("malformed list length in %q", head)
		}
		fields, err := splitFields(payload, n)
		if err != nil {
			return Value{}, err
		}
		// nil for empty keeps decoded values deeply equal to constructed
		// ones.
		var elems []Value
		if n > 0 {
			elems = make([]Value, n)
		}
		for i, f := range fields {
			raw, err := unescape(f)
			if err != nil {
				return Value{}, err
			}
			if elems[i], err = Decode(raw); err != nil {
				return Value{}, err
			}
		}
		return Value{Kind: KindList, Elems: elems}, nil

	case 'M':
		n, err := strconv.Atoi(head[1:])
		if err != nil || n < 0 {
			return Value{}, fmt.Errorf("malformed map length in %q", head)
		}
		fields, err := splitFields(payload, n*2)
		if err != nil {
			return Value{}, err
		}
		var keys []string
		var vals []Value
		if n > 0 {
			keys = make([]string, n)
			vals = make([]Value, n)
		}
		for i := 0; i < n; i++ {
			if keys[i], err = unescape(fields[i*2]); err != nil {
				return Value{}, err
			}
			raw, err := unescape(fields[i*2+1])
			if err != nil {
				return Value{}, err
			}
			if vals[i], err = Decode(raw); err != nil {
				return Value{}, err
			}
		}
		return Value{Kind: KindMap, Keys: keys, Vals: vals}, nil

	case 'F':
		if head != "F" {
			return Value{}, fmt.Errorf("malformed closure tag %q", head)
		}
		fields := strings.Split(payload, Sep)
		if fields[0] == "" {
			return Value{}, errors.New("closure without a procedure name")
		}
		var captures []Value
		if len(fields) > 1 {
			captures = make([]Value, len(fields)-1)
		}
		for i, f := range fields[1:] {
			raw, err := unescape(f)
			if err != nil {
				return Value{}, err
			}
			if captures[i], err = Decode(raw); err != nil {
				return Value{}, err
			}
		}
		return Value{Kind: KindClosure, Proc: fields[0], Captures: captures}, nil
	}

	return Value{}, fmt.Errorf("unknown tag %q", head)
}

// DecodeList parses a canonical list form.
func DecodeList(s string) ([]Value, error) {
	v, err := Decode(s)
	if err != nil {
		return nil, err
	}
	if v.Kind != KindList {
		return nil, fmt.Errorf("expected a list, decoded %s", v.Kind)
	}
	return v.Elems, nil
}

// DecodeMap parses a canonical map form.
func DecodeMap(s string) ([]string, []Value, error) {
	v, err := Decode(s)
	if err != nil {
		return nil, nil, err
	}
	if v.Kind != KindMap {
		return nil, nil, fmt.Errorf("expected a map, decoded %s", v.Kind)
	}
	return v.Keys, v.Vals, nil
}

// splitFields splits a container payload into exactly n fields.
func splitFields(payload string, n int) ([]string, error) {
	if n == 0 {
		if payload != "" {
			return nil, fmt.Errorf("empty container with payload %q", payload)
		}
		return nil, nil
	}
	fields := strings.Split(payload, Sep)
	if len(fields) != n {
		return nil, fmt.Errorf("container announces %d field(s), carries %d", n, len(fields))
	}
	return fields, nil
}
