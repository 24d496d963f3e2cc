package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeka/zip"

	"github.com/LiEnby/eCDP-Serial-Code/internal/ecdp"
)

func writeSearch(t *testing.T, path, password string, method zip.EncryptionMethod) (ecdp.Result, []ecdp.Match) {
	t.Helper()
	w, err := Create(path, password, method)
	require.NoError(t, err)

	var c ecdp.Collector
	sink := ecdp.SinkFunc(func(m ecdp.Match) error {
		_ = c.Emit(m)
		return w.Emit(m)
	})
	res, err := ecdp.NewSolver(ecdp.Options{Max: 40, Workers: 1}).Reverse(context.Background(), "01438BADE227", "PFNPVY", sink)
	require.NoError(t, err)
	require.EqualValues(t, 40, w.Count())
	require.NoError(t, w.Close(NewSummary("01438BADE227", "PFNPVY", 40, res)))
	return res, c.Matches
}

func TestWriter_RoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		password string
		method   zip.EncryptionMethod
	}{
		{name: "plain"},
		{name: "aes256", password: "hunter2", method: zip.AES256Encryption},
		{name: "aes128", password: "hunter2", method: zip.AES128Encryption},
		{name: "zipcrypto", password: "hunter2", method: zip.StandardEncryption},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "matches.zip")
			res, want := writeSearch(t, path, tt.password, tt.method)

			got, err := ReadMatches(path, tt.password)
			require.NoError(t, err)
			assert.Equal(t, tt.password != "", got.Encrypted)
			assert.Equal(t, want, got.Matches)
			require.NotNil(t, got.Summary)
			assert.Equal(t, "PFNPVY", got.Summary.Code)
			assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, got.Summary.Tables)
			assert.EqualValues(t, 40, got.Summary.Found)
			assert.Equal(t, res.Stats.Checked, got.Summary.Checked)
			assert.WithinDuration(t, time.Now(), got.Summary.Created, time.Minute)
		})
	}
}

func TestReadMatches_Password(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matches.zip")
	writeSearch(t, path, "right", zip.AES256Encryption)

	_, err := ReadMatches(path, "")
	assert.ErrorIs(t, err, ErrPassword)

	_, err = ReadMatches(path, "wrong")
	assert.ErrorIs(t, err, ErrPassword)
}

func TestReadMatches_Missing(t *testing.T) {
	_, err := ReadMatches(filepath.Join(t.TempDir(), "none.zip"), "")
	assert.Error(t, err)
}

func TestWriter_EmptySearch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.zip")
	w, err := Create(path, "", 0)
	require.NoError(t, err)
	res, err := ecdp.NewSolver(ecdp.Options{Table: 1}).Reverse(context.Background(), "123456789ABC", "QQQQQQ", w)
	require.NoError(t, err)
	require.NoError(t, w.Close(NewSummary("123456789ABC", "QQQQQQ", 0, res)))
	assert.Error(t, w.Emit(ecdp.Match{}))
	assert.NoError(t, w.Close(Summary{}))

	got, err := ReadMatches(path, "")
	require.NoError(t, err)
	assert.Empty(t, got.Matches)
	assert.Equal(t, []int{1}, got.Summary.Tables)
}

func TestCreate_FailureLeavesNoFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.zip")
	w, err := Create(path, "secret", zip.EncryptionMethod(42))
	require.Error(t, err)
	assert.Nil(t, w)
	assert.NoFileExists(t, path)
}

func TestParseEncryption(t *testing.T) {
	for name, want := range map[string]zip.EncryptionMethod{
		"":         zip.AES256Encryption,
		"aes256":   zip.AES256Encryption,
		"aes128":   zip.AES128Encryption,
		"standard": zip.StandardEncryption,
	} {
		got, err := ParseEncryption(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := ParseEncryption("rot13")
	assert.Error(t, err)
}
