// Package archive stores reverse search results in a zip file, optionally
// encrypted, and reads them back.
package archive

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/yeka/zip"
	"gopkg.in/yaml.v3"

	"github.com/LiEnby/eCDP-Serial-Code/internal/ecdp"
)

// Entry names inside an archive.
const (
	MatchesEntry = "matches.csv"
	SummaryEntry = "summary.yaml"
)

var csvHeader = []string{"store", "management", "table"}

// ErrPassword is returned when an encrypted archive is opened without the
// right password.
var ErrPassword = errors.New("archive: wrong or missing password")

// Summary describes the search an archive was written for.
type Summary struct {
	MAC     string    `yaml:"mac"`
	Code    string    `yaml:"code"`
	Tables  []int     `yaml:"tables"`
	Max     int64     `yaml:"max"`
	Found   int64     `yaml:"found"`
	Checked int64     `yaml:"checked"`
	Elapsed string    `yaml:"elapsed"`
	Created time.Time `yaml:"created"`
}

// NewSummary fills a Summary from a search result. Tables are one-indexed.
func NewSummary(mac, code string, max int64, res ecdp.Result) Summary {
	tables := make([]int, len(res.Tables))
	for i, t := range res.Tables {
		tables[i] = t + 1
	}
	return Summary{
		MAC:     mac,
		Code:    code,
		Tables:  tables,
		Max:     max,
		Found:   res.Found,
		Checked: res.Stats.Checked,
		Elapsed: res.Elapsed.Round(time.Millisecond).String(),
		Created: time.Now().UTC().Truncate(time.Second),
	}
}

// ParseEncryption maps a config name to a zip encryption method.
func ParseEncryption(name string) (zip.EncryptionMethod, error) {
	switch name {
	case "", "aes256":
		return zip.AES256Encryption, nil
	case "aes128":
		return zip.AES128Encryption, nil
	case "standard":
		return zip.StandardEncryption, nil
	default:
		return 0, fmt.Errorf("unknown archive encryption %q", name)
	}
}

// Writer streams matches into a zip archive. It implements ecdp.Sink.
type Writer struct {
	f        *os.File
	zw       *zip.Writer
	cw       *csv.Writer
	password string
	method   zip.EncryptionMethod
	n        int64
	closed   bool
}

// Create opens path for writing. An empty password writes plain entries.
func Create(path, password string, method zip.EncryptionMethod) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}
	w := &Writer{f: f, zw: zip.NewWriter(f), password: password, method: method}
	ew, err := w.entry(MatchesEntry)
	if err != nil {
		discard(f)
		return nil, err
	}
	w.cw = csv.NewWriter(ew)
	if err := w.cw.Write(csvHeader); err != nil {
		discard(f)
		return nil, fmt.Errorf("failed to write %s: %w", MatchesEntry, err)
	}
	return w, nil
}

// discard closes and removes a half-written archive.
func discard(f *os.File) {
	_ = f.Close()
	_ = os.Remove(f.Name())
}

func (w *Writer) entry(name string) (io.Writer, error) {
	var (
		ew  io.Writer
		err error
	)
	switch {
	case w.password == "":
		ew, err = w.zw.Create(name)
	case w.method != zip.StandardEncryption && w.method != zip.AES128Encryption &&
		w.method != zip.AES192Encryption && w.method != zip.AES256Encryption:
		err = fmt.Errorf("unsupported encryption method %d", w.method)
	default:
		ew, err = w.zw.Encrypt(name, w.password, w.method)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to add %s: %w", name, err)
	}
	return ew, nil
}

// Emit appends one match.
func (w *Writer) Emit(m ecdp.Match) error {
	if w.closed {
		return errors.New("archive: write after close")
	}
	if err := w.cw.Write([]string{m.Store, m.Management, strconv.Itoa(m.Table + 1)}); err != nil {
		return fmt.Errorf("failed to write match: %w", err)
	}
	w.n++
	return nil
}

// Count returns the number of matches written so far.
func (w *Writer) Count() int64 { return w.n }

// Close finishes the matches entry, adds the summary and closes the file.
func (w *Writer) Close(sum Summary) error {
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.finish(sum)
	if cerr := w.f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close archive: %w", cerr)
	}
	return err
}

func (w *Writer) finish(sum Summary) error {
	w.cw.Flush()
	if err := w.cw.Error(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", MatchesEntry, err)
	}
	data, err := yaml.Marshal(sum)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	ew, err := w.entry(SummaryEntry)
	if err != nil {
		return err
	}
	if _, err := ew.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", SummaryEntry, err)
	}
	if err := w.zw.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return nil
}

// Contents is what ReadMatches found in an archive.
type Contents struct {
	Matches   []ecdp.Match
	Summary   *Summary
	Encrypted bool
}

// ReadMatches reads the matches and summary of an archive written by Writer.
func ReadMatches(path, password string) (*Contents, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer zr.Close()

	var c Contents
	seen := false
	for _, f := range zr.File {
		if f.IsEncrypted() {
			c.Encrypted = true
			if password == "" {
				return nil, ErrPassword
			}
			f.SetPassword(password)
		}
		switch f.Name {
		case MatchesEntry:
			if c.Matches, err = readCSV(f); err != nil {
				return nil, err
			}
			seen = true
		case SummaryEntry:
			var s Summary
			if err := readYAML(f, &s); err != nil {
				return nil, err
			}
			c.Summary = &s
		}
	}
	if !seen {
		return nil, fmt.Errorf("archive has no %s entry", MatchesEntry)
	}
	return &c, nil
}

func open(f *zip.File) (io.ReadCloser, error) {
	rc, err := f.Open()
	if err != nil {
		if f.IsEncrypted() {
			return nil, fmt.Errorf("%w: %v", ErrPassword, err)
		}
		return nil, fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	return rc, nil
}

func readCSV(f *zip.File) ([]ecdp.Match, error) {
	rc, err := open(f)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	rows, err := csv.NewReader(rc).ReadAll()
	if err != nil {
		if f.IsEncrypted() {
			return nil, fmt.Errorf("%w: %v", ErrPassword, err)
		}
		return nil, fmt.Errorf("failed to read %s: %w", f.Name, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s has no header", f.Name)
	}
	matches := make([]ecdp.Match, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) != len(csvHeader) {
			return nil, fmt.Errorf("%s line %d: want %d fields, got %d", f.Name, i+2, len(csvHeader), len(row))
		}
		t, err := strconv.Atoi(row[2])
		if err != nil || t < 1 || t > ecdp.NumTables {
			return nil, fmt.Errorf("%s line %d: bad table %q", f.Name, i+2, row[2])
		}
		matches = append(matches, ecdp.Match{Store: row[0], Management: row[1], Table: t - 1})
	}
	return matches, nil
}

func readYAML(f *zip.File, v any) error {
	rc, err := open(f)
	if err != nil {
		return err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		if f.IsEncrypted() {
			return fmt.Errorf("%w: %v", ErrPassword, err)
		}
		return fmt.Errorf("failed to read %s: %w", f.Name, err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", f.Name, err)
	}
	return nil
}
