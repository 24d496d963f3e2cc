// Package ecdp implements the password scheme of the eCDP (eCrew Development
// Program) Nintendo DS cartridge and its inverse.
//
// A password is derived from the MAC address of the DS, a store number and a
// store management number. The 24 nibbles of the three inputs are summed to
// pick one of seven shuffle tables, shuffled with it, split into six groups
// of four nibbles and each group is reduced modulo 33 into Alphabet.
package ecdp

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	reIdentifier = regexp.MustCompile(`^[0-9A-F]{12}$`)
	reField      = regexp.MustCompile(`^[0-9]{6}$`)
)

// Aggregate is MAC address nibbles followed by the store number digits and
// the management number digits.
type Aggregate [AggregateLen]uint8

// Shuffled is an Aggregate reordered by one of the shuffle tables.
type Shuffled [AggregateLen]uint8

// Code is a six character password.
type Code string

// Tracer receives human readable lines describing each encoding step.
type Tracer interface {
	Trace(line string)
}

// TraceFunc adapts a function to Tracer.
type TraceFunc func(line string)

func (f TraceFunc) Trace(line string) { f(line) }

type nopTracer struct{}

func (nopTracer) Trace(string) {}

// NopTracer discards all lines.
var NopTracer Tracer = nopTracer{}

func tracing(tr Tracer) bool {
	if tr == nil {
		return false
	}
	_, nop := tr.(nopTracer)
	return !nop
}

type encodeOptions struct {
	tracer Tracer
}

// EncodeOption configures Encode.
type EncodeOption func(*encodeOptions)

// WithTracer sends the encoding steps to t.
func WithTracer(t Tracer) EncodeOption {
	return func(o *encodeOptions) {
		if t != nil {
			o.tracer = t
		}
	}
}

// upperASCII upper-cases a to z only. Other bytes, multi-byte runes
// included, pass through unchanged.
func upperASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'a' <= c && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}

// NormalizeIdentifier upper-cases mac and checks it is 12 hex characters.
func NormalizeIdentifier(mac string) (string, error) {
	up := upperASCII(mac)
	if !reIdentifier.MatchString(up) {
		return "", &InvalidInputError{Field: "mac address", Value: mac, Reason: "must be 12 hexadecimal characters without separators"}
	}
	return up, nil
}

func validateField(name, v string) error {
	if !reField.MatchString(v) {
		return &InvalidInputError{Field: name, Value: v, Reason: "must be exactly 6 decimal digits"}
	}
	return nil
}

// NewAggregate validates the three inputs and concatenates them.
func NewAggregate(mac, store, management string) (Aggregate, error) {
	var a Aggregate
	id, err := NormalizeIdentifier(mac)
	if err != nil {
		return a, err
	}
	if err := validateField("store number", store); err != nil {
		return a, err
	}
	if err := validateField("management number", management); err != nil {
		return a, err
	}
	for i := 0; i < IdentifierLen; i++ {
		a[i] = hexNibble(id[i])
	}
	for i := 0; i < FieldLen; i++ {
		a[IdentifierLen+i] = store[i] - '0'
		a[IdentifierLen+FieldLen+i] = management[i] - '0'
	}
	return a, nil
}

func hexNibble(c byte) uint8 {
	if c <= '9' {
		return c - '0'
	}
	return c - 'A' + 10
}

// String renders the aggregate as 24 upper-case hex characters.
func (a Aggregate) String() string {
	return nibblesString(a[:])
}

// Sum adds up all nibbles.
func (a Aggregate) Sum() int {
	s := 0
	for _, v := range a {
		s += int(v)
	}
	return s
}

func (s Shuffled) String() string {
	return nibblesString(s[:])
}

func nibblesString(ns []uint8) string {
	const hexDigits = "0123456789ABCDEF"
	b := make([]byte, len(ns))
	for i, v := range ns {
		b[i] = hexDigits[v&0x0f]
	}
	return string(b)
}

// tableForSum keeps the cartridge quirk: sums below 7 always use the first
// table, so 6 selects table 0 and not 6.
func tableForSum(sum int) int {
	if sum < 7 {
		return 0
	}
	return sum % 7
}

// SelectTable returns the zero-indexed shuffle table for a.
func SelectTable(a Aggregate) int {
	return tableForSum(a.Sum())
}

// Shuffle reorders a with shuffle table t (zero-indexed).
func Shuffle(a Aggregate, t int) Shuffled {
	var s Shuffled
	for i, src := range shuffleTables[t] {
		s[i] = a[src-1]
	}
	return s
}

func chunkValue(s *Shuffled, k int) uint32 {
	i := k * chunkLen
	return uint32(s[i])<<12 | uint32(s[i+1])<<8 | uint32(s[i+2])<<4 | uint32(s[i+3])
}

// MapChunks turns a shuffled aggregate into a password.
func MapChunks(s Shuffled, tr Tracer) Code {
	trace := tracing(tr)
	var out [CodeLen]byte
	for k := 0; k < numChunks; k++ {
		v := chunkValue(&s, k)
		d := v % uint32(len(Alphabet))
		out[k] = Alphabet[d]
		if trace {
			tr.Trace(fmt.Sprintf("  char %d: %04X mod 33 = %02d -> %c", k+1, v, d, out[k]))
		}
	}
	return Code(out[:])
}

// Encode derives the password for a MAC address, store number and store
// management number.
func Encode(mac, store, management string, opts ...EncodeOption) (Code, error) {
	o := encodeOptions{tracer: NopTracer}
	for _, opt := range opts {
		opt(&o)
	}
	a, err := NewAggregate(mac, store, management)
	if err != nil {
		return "", err
	}
	return encodeAggregate(a, o.tracer), nil
}

func encodeAggregate(a Aggregate, tr Tracer) Code {
	if !tracing(tr) {
		return MapChunks(Shuffle(a, SelectTable(a)), nil)
	}
	hex := a.String()
	tr.Trace("mac address: " + hex[:IdentifierLen])
	tr.Trace("store number: " + hex[IdentifierLen:IdentifierLen+FieldLen])
	tr.Trace("management number: " + hex[IdentifierLen+FieldLen:])
	tr.Trace("aggregate: " + hex)

	sum := a.Sum()
	terms := make([]string, len(a))
	for i, v := range a {
		terms[i] = strconv.Itoa(int(v))
	}
	tr.Trace(fmt.Sprintf("sum: %s = %d", strings.Join(terms, "+"), sum))
	t := tableForSum(sum)
	if sum < 7 {
		tr.Trace("table: 1 (sum is less than 7)")
	} else {
		tr.Trace(fmt.Sprintf("table: %d (%d mod 7 = %d)", t+1, sum, t))
	}
	tbl := shuffleTables[t]
	parts := make([]string, len(tbl))
	for i, v := range tbl {
		parts[i] = strconv.Itoa(int(v))
	}
	tr.Trace("table positions: " + strings.Join(parts, " "))

	s := Shuffle(a, t)
	tr.Trace("shuffled: " + s.String())
	code := MapChunks(s, tr)
	tr.Trace("password: " + string(code))
	return code
}
