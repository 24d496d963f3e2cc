package ecdp

import "fmt"

const (
	// AggregateLen is the number of nibbles the encoder works on.
	AggregateLen = 24
	// IdentifierLen is the number of hex characters in a MAC address.
	IdentifierLen = 12
	// FieldLen is the number of decimal digits in a store or management number.
	FieldLen = 6
	// CodeLen is the length of a generated password.
	CodeLen = 6
	// NumTables is the number of shuffle tables.
	NumTables = 7

	chunkLen  = 4
	numChunks = AggregateLen / chunkLen
)

// Alphabet maps chunk checksums (mod 33) to password characters. 0, I and O
// are not part of it.
const Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// MasterCode is accepted by the cartridge for any MAC address and any store
// numbers. It cannot be produced by Encode.
const MasterCode = "0QKDE9"

// shuffleTables are one-indexed positions into the aggregate. These values
// are fixed by already issued codes and must never change.
var shuffleTables = [NumTables][AggregateLen]uint8{
	{0x01, 0x0A, 0x16, 0x04, 0x07, 0x18, 0x0C, 0x10, 0x05, 0x17, 0x09, 0x03, 0x12, 0x08, 0x15, 0x13, 0x0B, 0x02, 0x0F, 0x0D, 0x11, 0x0E, 0x06, 0x14},
	{0x07, 0x0C, 0x0E, 0x11, 0x09, 0x16, 0x10, 0x06, 0x14, 0x0D, 0x01, 0x02, 0x12, 0x08, 0x13, 0x0B, 0x0F, 0x0A, 0x18, 0x15, 0x04, 0x05, 0x03, 0x17},
	{0x0F, 0x04, 0x09, 0x03, 0x06, 0x07, 0x11, 0x12, 0x15, 0x16, 0x02, 0x08, 0x05, 0x17, 0x0C, 0x0D, 0x01, 0x18, 0x0B, 0x14, 0x0E, 0x10, 0x13, 0x0A},
	{0x02, 0x0A, 0x0E, 0x12, 0x0B, 0x03, 0x0C, 0x06, 0x13, 0x07, 0x11, 0x09, 0x15, 0x18, 0x10, 0x17, 0x14, 0x0F, 0x04, 0x01, 0x05, 0x08, 0x16, 0x0D},
	{0x0B, 0x02, 0x09, 0x16, 0x14, 0x01, 0x12, 0x11, 0x15, 0x06, 0x0F, 0x17, 0x07, 0x10, 0x0C, 0x0E, 0x08, 0x18, 0x13, 0x03, 0x0A, 0x0D, 0x04, 0x05},
	{0x09, 0x0F, 0x05, 0x0D, 0x16, 0x15, 0x12, 0x11, 0x03, 0x0A, 0x04, 0x10, 0x0E, 0x14, 0x02, 0x01, 0x13, 0x0C, 0x06, 0x0B, 0x17, 0x18, 0x07, 0x08},
	{0x12, 0x02, 0x0C, 0x09, 0x0D, 0x0E, 0x04, 0x07, 0x16, 0x14, 0x17, 0x01, 0x11, 0x03, 0x10, 0x15, 0x08, 0x0A, 0x05, 0x13, 0x0B, 0x18, 0x0F, 0x06},
}

// alphabetIndex is the reverse of Alphabet; -1 for bytes outside it.
var alphabetIndex [256]int8

func init() {
	for i := range alphabetIndex {
		alphabetIndex[i] = -1
	}
	for i := 0; i < len(Alphabet); i++ {
		if alphabetIndex[Alphabet[i]] >= 0 {
			panic(fmt.Sprintf("ecdp: duplicate alphabet symbol %q", Alphabet[i]))
		}
		alphabetIndex[Alphabet[i]] = int8(i)
	}
	for t := range shuffleTables {
		var seen [AggregateLen + 1]bool
		for _, v := range shuffleTables[t] {
			if v < 1 || v > AggregateLen || seen[v] {
				panic(fmt.Sprintf("ecdp: shuffle table %d is not a permutation", t+1))
			}
			seen[v] = true
		}
	}
	for t := range plans {
		plans[t] = newTablePlan(t)
	}
}

// Table returns a copy of shuffle table t (zero-indexed).
func Table(t int) [AggregateLen]uint8 {
	return shuffleTables[t]
}

// SymbolIndex returns the position of c in Alphabet, or -1.
func SymbolIndex(c byte) int {
	return int(alphabetIndex[c])
}
