package ecdp

import (
	"cmp"
	"context"
	"fmt"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// flushEvery is how many checksum tests a worker batches before publishing
// them to the shared progress counter.
const flushEvery = 1 << 12

// Match is a store number and management number pair that encodes to the
// searched password under the given MAC address.
type Match struct {
	Store      string `json:"store" yaml:"store"`
	Management string `json:"management" yaml:"management"`
	// Table is the zero-indexed shuffle table the pair is routed to.
	Table int `json:"table" yaml:"table"`
}

func (m Match) String() string {
	return fmt.Sprintf("table=%d store=%s management=%s", m.Table+1, m.Store, m.Management)
}

// SortMatches puts matches in table, store, management order.
func SortMatches(ms []Match) {
	slices.SortFunc(ms, func(a, b Match) int {
		if c := cmp.Compare(a.Table, b.Table); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Store, b.Store); c != 0 {
			return c
		}
		return cmp.Compare(a.Management, b.Management)
	})
}

// Sink receives matches as soon as they are found. Calls are serialized.
// A returned error aborts the search.
type Sink interface {
	Emit(Match) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Match) error

func (f SinkFunc) Emit(m Match) error { return f(m) }

// Collector is a Sink that keeps every match in memory.
type Collector struct {
	Matches []Match
}

func (c *Collector) Emit(m Match) error {
	c.Matches = append(c.Matches, m)
	return nil
}

// Options configures a Solver.
type Options struct {
	// Max stops the search once that many matches were emitted. Zero or
	// less searches the whole space.
	Max int64
	// Table restricts the search to one shuffle table, numbered 1 to 7.
	// Zero searches all of them.
	Table int
	// Workers is the number of tables searched concurrently. Zero or less
	// uses runtime.NumCPU(). With one worker matches arrive in table order
	// and then in enumeration order; with more, tables interleave.
	Workers int
}

// Stats counts the work done by one search.
type Stats struct {
	// Checked is the number of chunk checksum tests.
	Checked int64
	// Pruned is the number of failed checksum tests.
	Pruned int64
	// Rejected counts candidates that passed all six checksums but sum to a
	// different shuffle table.
	Rejected int64
}

// Result summarizes a finished search.
type Result struct {
	Found   int64
	Tables  []int
	Stats   Stats
	Elapsed time.Duration
}

// Solver finds store and management numbers for a password. A Solver runs
// one search at a time; use one per goroutine.
type Solver struct {
	opts    Options
	checked atomic.Int64
}

// NewSolver returns a Solver with opts.
func NewSolver(opts Options) *Solver {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Solver{opts: opts}
}

// Options returns the effective options.
func (s *Solver) Options() Options { return s.opts }

// Checked returns the number of checksum tests done so far by the running
// or last search.
func (s *Solver) Checked() int64 { return s.checked.Load() }

// freeSlot is a shuffled position filled by a store or management digit.
type freeSlot struct {
	field uint8 // 0-5 store digits, 6-11 management digits
	shift uint8
}

// knownSlot is a shuffled position filled by a MAC address nibble.
type knownSlot struct {
	nibble uint8
	shift  uint8
}

type chunkPlan struct {
	known []knownSlot
	free  []freeSlot
}

// tablePlan splits a shuffle table into what the MAC address fixes and what
// the search has to enumerate, chunk by chunk.
type tablePlan struct {
	table  int
	chunks [numChunks]chunkPlan
}

var plans [NumTables]tablePlan

func newTablePlan(t int) tablePlan {
	p := tablePlan{table: t}
	for i, pos := range shuffleTables[t] {
		src := pos - 1
		c := &p.chunks[i/chunkLen]
		shift := uint8(4 * (chunkLen - 1 - i%chunkLen))
		if src < IdentifierLen {
			c.known = append(c.known, knownSlot{nibble: src, shift: shift})
		} else {
			c.free = append(c.free, freeSlot{field: src - IdentifierLen, shift: shift})
		}
	}
	return p
}

// freeCount returns how many digits the search enumerates in chunk k.
func (p *tablePlan) freeCount(k int) int { return len(p.chunks[k].free) }

// ParseCode upper-cases code and returns the alphabet index of each symbol.
func ParseCode(code string) (Code, [CodeLen]uint32, error) {
	var want [CodeLen]uint32
	if len(code) != CodeLen {
		return "", want, &InvalidInputError{Field: "password", Value: code, Reason: "must be 6 characters"}
	}
	up := upperASCII(code)
	for i := 0; i < CodeLen; i++ {
		d := SymbolIndex(up[i])
		if d < 0 {
			return "", want, &InvalidInputError{Field: "password", Value: code, Reason: fmt.Sprintf("character %q is not in the password alphabet", up[i])}
		}
		want[i] = uint32(d)
	}
	return Code(up), want, nil
}

// run is the state shared by the workers of one search.
type run struct {
	max     int64
	found   atomic.Int64
	stop    atomic.Bool
	checked *atomic.Int64

	mu      sync.Mutex
	sink    Sink
	sinkErr error
}

func (r *run) halt() { r.stop.Store(true) }

// err returns the first sink error, if any.
func (r *run) err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sinkErr
}

// emit hands m to the sink and reports whether the search should go on.
// The lock makes the cap check and the sink call one step, so exactly Max
// matches reach the sink.
func (r *run) emit(m Match) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sinkErr != nil || (r.max > 0 && r.found.Load() >= r.max) {
		r.halt()
		return false
	}
	if err := r.sink.Emit(m); err != nil {
		r.sinkErr = err
		r.halt()
		return false
	}
	if n := r.found.Add(1); r.max > 0 && n >= r.max {
		r.halt()
		return false
	}
	return true
}

// search is the scratch state of one table worker.
type search struct {
	plan   *tablePlan
	run    *run
	base   [numChunks]uint32
	want   [CodeLen]uint32
	idSum  int
	digits [2 * FieldLen]uint8

	pending int64
	stats   Stats
}

func newSearch(p *tablePlan, r *run, id *[IdentifierLen]uint8, want [CodeLen]uint32) *search {
	s := &search{plan: p, run: r, want: want}
	for _, v := range id {
		s.idSum += int(v)
	}
	for k := range p.chunks {
		for _, ks := range p.chunks[k].known {
			s.base[k] += uint32(id[ks.nibble]) << ks.shift
		}
	}
	return s
}

// chunk descends into chunk k. It returns false once the whole search has
// to stop.
func (s *search) chunk(k int) bool {
	if s.run.stop.Load() {
		return false
	}
	if k == numChunks {
		return s.accept()
	}
	return s.assign(k, 0, s.base[k])
}

// assign enumerates the j-th free digit of chunk k, the earliest slot being
// the most significant.
func (s *search) assign(k, j int, v uint32) bool {
	free := s.plan.chunks[k].free
	if j == len(free) {
		s.stats.Checked++
		s.pending++
		if s.pending == flushEvery {
			s.run.checked.Add(s.pending)
			s.pending = 0
		}
		if v%uint32(len(Alphabet)) != s.want[k] {
			s.stats.Pruned++
			return true
		}
		return s.chunk(k + 1)
	}
	f := free[j]
	for d := uint8(0); d < 10; d++ {
		s.digits[f.field] = d
		if !s.assign(k, j+1, v+uint32(d)<<f.shift) {
			return false
		}
	}
	return true
}

// accept checks that a candidate passing all checksums is really routed to
// the table under test. The checksums do not constrain the nibble sum.
func (s *search) accept() bool {
	sum := s.idSum
	for _, d := range s.digits {
		sum += int(d)
	}
	if tableForSum(sum) != s.plan.table {
		s.stats.Rejected++
		return true
	}
	var store, mgmt [FieldLen]byte
	for i := 0; i < FieldLen; i++ {
		store[i] = '0' + s.digits[i]
		mgmt[i] = '0' + s.digits[FieldLen+i]
	}
	return s.run.emit(Match{Store: string(store[:]), Management: string(mgmt[:]), Table: s.plan.table})
}

func (s *search) finish() {
	s.run.checked.Add(s.pending)
	s.pending = 0
}

// Reverse streams to sink every store and management number pair that
// encodes to code under mac, up to Options.Max. A search without results is
// not an error.
func (s *Solver) Reverse(ctx context.Context, mac, code string, sink Sink) (Result, error) {
	var res Result
	id, err := NormalizeIdentifier(mac)
	if err != nil {
		return res, err
	}
	_, want, err := ParseCode(code)
	if err != nil {
		return res, err
	}
	if s.opts.Table < 0 || s.opts.Table > NumTables {
		return res, &InvalidInputError{Field: "table", Value: fmt.Sprint(s.opts.Table), Reason: "must be 0 (all) or 1 to 7"}
	}
	if sink == nil {
		sink = SinkFunc(func(Match) error { return nil })
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	var nibbles [IdentifierLen]uint8
	for i := 0; i < IdentifierLen; i++ {
		nibbles[i] = hexNibble(id[i])
	}
	if s.opts.Table == 0 {
		res.Tables = []int{0, 1, 2, 3, 4, 5, 6}
	} else {
		res.Tables = []int{s.opts.Table - 1}
	}

	start := time.Now()
	s.checked.Store(0)
	r := &run{max: s.opts.Max, sink: sink, checked: &s.checked}

	var interrupted atomic.Bool
	stopWatch := context.AfterFunc(ctx, func() {
		interrupted.Store(true)
		r.halt()
	})
	defer stopWatch()

	var (
		statsMu sync.Mutex
		g       errgroup.Group
	)
	g.SetLimit(s.opts.Workers)
	for _, t := range res.Tables {
		if r.stop.Load() {
			break
		}
		t := t
		g.Go(func() error {
			sr := newSearch(&plans[t], r, &nibbles, want)
			sr.chunk(0)
			sr.finish()
			statsMu.Lock()
			res.Stats.Checked += sr.stats.Checked
			res.Stats.Pruned += sr.stats.Pruned
			res.Stats.Rejected += sr.stats.Rejected
			statsMu.Unlock()
			return r.err()
		})
	}
	err = g.Wait()

	res.Found = r.found.Load()
	res.Elapsed = time.Since(start)
	if err != nil {
		return res, fmt.Errorf("result sink: %w", err)
	}
	if interrupted.Load() && (r.max <= 0 || res.Found < r.max) {
		return res, ctx.Err()
	}
	return res, nil
}
