package ecdp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_KnownPasswords(t *testing.T) {
	tests := []struct {
		name       string
		mac        string
		store      string
		management string
		want       Code
	}{
		{name: "all zero", mac: "000000000000", store: "000000", management: "000000", want: "111111"},
		{name: "sum below 7", mac: "600000000000", store: "000000", management: "000000", want: "R11111"},
		{name: "sum equals 7", mac: "700000000000", store: "000000", management: "000000", want: "V11111"},
		{name: "random", mac: "01438BADE227", store: "164332", management: "842231", want: "PFNPVY"},
		{name: "random 2", mac: "8F2B4EFCA756", store: "649132", management: "376440", want: "YZUMZV"},
		{name: "max values", mac: "FFFFFFFFFFFF", store: "999999", management: "999999", want: "UGNA4R"},
		{name: "all hex digits 1", mac: "123456789ABC", store: "123456", management: "789123", want: "ZMVD87"},
		{name: "all hex digits 2", mac: "DEF012345678", store: "121121", management: "223344", want: "SR87LF"},
		{name: "lower case mac", mac: "01438bade227", store: "164332", management: "842231", want: "PFNPVY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.mac, tt.store, tt.management)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelectTable_SumBelowSevenUsesFirstTable(t *testing.T) {
	for sum := 0; sum < 7; sum++ {
		var a Aggregate
		a[0] = uint8(sum)
		assert.Equal(t, 0, SelectTable(a), "sum %d", sum)
	}
	var a Aggregate
	a[0] = 7
	assert.Equal(t, 0, SelectTable(a))
	a[1] = 6
	assert.Equal(t, 6, SelectTable(a))
	a[2] = 1
	assert.Equal(t, 0, SelectTable(a))
}

func TestSelectTable_IgnoresOrder(t *testing.T) {
	a, err := NewAggregate("01438BADE227", "164332", "842231")
	require.NoError(t, err)
	assert.Equal(t, 114, a.Sum())
	assert.Equal(t, 2, SelectTable(a))
	assert.Equal(t, a.Sum(), Aggregate(Shuffle(a, 4)).Sum())
}

func TestShuffle(t *testing.T) {
	a, err := NewAggregate("01438BADE227", "164332", "842231")
	require.NoError(t, err)
	assert.Equal(t, "43E4BA32221D837101246382", Shuffle(a, 2).String())
}

func TestMapChunks(t *testing.T) {
	var s Shuffled
	copy(s[:], []uint8{4, 3, 14, 4, 11, 10, 3, 2, 2, 2, 1, 13, 8, 3, 7, 1, 0, 1, 2, 4, 6, 3, 8, 2})
	var lines []string
	code := MapChunks(s, TraceFunc(func(l string) { lines = append(lines, l) }))
	assert.Equal(t, Code("PFNPVY"), code)
	require.Len(t, lines, CodeLen)
	assert.Contains(t, lines[0], "43E4 mod 33 = 22")
}

func TestEncode_InvalidInput(t *testing.T) {
	tests := []struct {
		name       string
		mac        string
		store      string
		management string
		field      string
	}{
		{name: "short mac", mac: "01438BADE22", store: "164332", management: "842231", field: "mac address"},
		{name: "mac with separators", mac: "01-43-8B-AD-E2-27", store: "164332", management: "842231", field: "mac address"},
		{name: "non hex mac", mac: "01438BADE22G", store: "164332", management: "842231", field: "mac address"},
		{name: "short store", mac: "01438BADE227", store: "16433", management: "842231", field: "store number"},
		{name: "hex store", mac: "01438BADE227", store: "16433A", management: "842231", field: "store number"},
		{name: "long management", mac: "01438BADE227", store: "164332", management: "8422310", field: "management number"},
		{name: "empty management", mac: "01438BADE227", store: "164332", management: "", field: "management number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := Encode(tt.mac, tt.store, tt.management)
			require.Error(t, err)
			assert.Empty(t, code)
			assert.True(t, IsInvalidInput(err))
			var ie *InvalidInputError
			require.ErrorAs(t, err, &ie)
			assert.Equal(t, tt.field, ie.Field)
		})
	}
}

func TestEncode_OutputAlwaysInAlphabet(t *testing.T) {
	macs := []string{"000000000000", "FFFFFFFFFFFF", "0123456789AB", "A1B2C3D4E5F6"}
	fields := []string{"000000", "999999", "123456", "505050", "000001"}
	for _, mac := range macs {
		for _, store := range fields {
			for _, mgmt := range fields {
				code, err := Encode(mac, store, mgmt)
				require.NoError(t, err)
				require.Len(t, code, CodeLen)
				for i := 0; i < CodeLen; i++ {
					assert.True(t, strings.IndexByte(Alphabet, code[i]) >= 0, "%q not in alphabet", code[i])
				}
				again, err := Encode(mac, store, mgmt)
				require.NoError(t, err)
				assert.Equal(t, code, again)
			}
		}
	}
}

func TestEncode_Trace(t *testing.T) {
	var lines []string
	_, err := Encode("600000000000", "000000", "000000", WithTracer(TraceFunc(func(l string) {
		lines = append(lines, l)
	})))
	require.NoError(t, err)
	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "aggregate: 600000000000000000000000")
	assert.Contains(t, joined, "table: 1 (sum is less than 7)")
	assert.Contains(t, joined, "password: R11111")
}

func TestMasterCodeIsNotEncodable(t *testing.T) {
	assert.Len(t, MasterCode, CodeLen)
	_, _, err := ParseCode(MasterCode)
	assert.True(t, IsInvalidInput(err))
}

func TestTablesArePermutations(t *testing.T) {
	for i := 0; i < NumTables; i++ {
		tbl := Table(i)
		seen := map[uint8]bool{}
		for _, v := range tbl {
			assert.GreaterOrEqual(t, v, uint8(1))
			assert.LessOrEqual(t, v, uint8(AggregateLen))
			seen[v] = true
		}
		assert.Len(t, seen, AggregateLen)
	}
	assert.Len(t, Alphabet, 33)
	assert.NotContains(t, Alphabet, "0")
	assert.NotContains(t, Alphabet, "I")
	assert.NotContains(t, Alphabet, "O")
}
