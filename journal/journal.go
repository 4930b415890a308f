// Package journal implements append-only “journal” files: a directory of
// numbered segment files holding opaque records.
//
// Package doc uses a journal to archive every committed change, so the full
// history of a document survives compaction of its storage.
//
// Features:
//
//  1. Records of any size. Several records can be grouped under one commit
//     with minimal overhead.
//
//  2. Crash-resistant if Options.Sync is set. Every commit carries a running
//     xxhash checksum of the segment; readers ignore everything after the last
//     valid commit.
//
//  3. Rotates segment files once they reach Options.MaxFileSize.
//
// File format:
//
//	segment = header (record* commit)*
//	header  = magic:64 version:8 pad:8 flags:16 pad:32 ordinal:32 timestamp:32 firstRecord:64 invariant:256 reserved:64*7 checksum:64
//	record  = size<<1:uvarint tsDelta:uvarint bytes*
//	commit  = checksum:64, lowest bit set
//
// Segment files are named prefix + ordinal + "-" + timestamp + "-" + first
// record number + suffix, so lexicographic order is segment order.
package journal

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	ErrIncompatible       = errors.New("incompatible journal")
	ErrUnsupportedVersion = errors.New("unsupported journal version")
	ErrClosed             = errors.New("journal closed")
	errCorruptedFile      = errors.New("corrupted journal segment file")
)

type Options struct {
	FileName    string // e.g. "changes-*.wal"
	MaxFileSize int64  // new segment after this size
	DebugName   string
	Now         func() time.Time

	// Invariant identifies the journal. Segments written with a different
	// invariant are rejected with ErrIncompatible.
	Invariant [32]byte

	// Sync makes Commit wait until the data reaches the disk.
	Sync bool

	Logger  *slog.Logger
	Verbose bool
}

const DefaultMaxFileSize = 4 * 1024 * 1024

const timestampFmt = "20060102T150405"

// Journal appends records to segment files in a directory. It is safe for
// concurrent use.
type Journal struct {
	dir         string
	prefix      string
	suffix      string
	debugName   string
	maxFileSize int64
	now         func() time.Time
	invariant   [32]byte
	sync        bool
	logger      *slog.Logger
	verbose     bool

	mu     sync.Mutex
	err    error
	closed bool
	seg    uint32
	rec    uint64
	w      *segmentWriter
}

// Open prepares a journal in dir, creating the directory if needed. Writing
// continues after the last record of the last segment; a last segment with
// a corrupted header (a crash while creating it) is deleted.
func Open(dir string, o Options) (*Journal, error) {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.FileName == "" {
		o.FileName = "*"
	}
	prefix, suffix, _ := strings.Cut(o.FileName, "*")
	if o.DebugName == "" {
		o.DebugName = "journal"
	}
	if o.MaxFileSize == 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	j := &Journal{
		dir:         dir,
		prefix:      prefix,
		suffix:      suffix,
		debugName:   o.DebugName,
		maxFileSize: o.MaxFileSize,
		now:         o.Now,
		invariant:   o.Invariant,
		sync:        o.Sync,
		logger:      o.Logger,
		verbose:     o.Verbose,
	}
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return nil, fmt.Errorf("%v: %w", j.debugName, err)
	}
	if err := j.recover(); err != nil {
		return nil, fmt.Errorf("%v: %w", j.debugName, err)
	}
	return j, nil
}

func (j *Journal) recover() error {
	for {
		names, err := j.Segments()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			return nil
		}
		last := names[len(names)-1]

		h, count, err := j.scanFile(last, nil)
		if err == errCorruptedFile {
			j.logger.Warn("journal: deleting corrupted file", "jrnl", j.debugName, "file", last)
			if err := os.Remove(filepath.Join(j.dir, last)); err != nil {
				return fmt.Errorf("failed to delete corrupted file: %w", err)
			}
			continue
		} else if err != nil {
			return err
		}

		j.seg = h.Ordinal
		j.rec = h.FirstRecord + uint64(count) - 1
		if j.verbose {
			j.logger.Debug("journal: OPEN", "jrnl", j.debugName, "file", last, "seg", j.seg, "rec", j.rec)
		}
		return nil
	}
}

// Now returns the current time as a record timestamp.
func (j *Journal) Now() uint32 {
	v := j.now().Unix()
	if v < 0 || v > 0xFFFF_FFFF {
		panic("time travel disallowed")
	}
	return uint32(v)
}

func (j *Journal) String() string {
	return j.debugName
}

// Dir returns the directory holding the segment files.
func (j *Journal) Dir() string {
	return j.dir
}

// WriteRecord appends a record. It is invisible to readers until the next
// Commit. A zero timestamp means now.
func (j *Journal) WriteRecord(timestamp uint32, data []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.check(); err != nil {
		return err
	}
	if timestamp == 0 {
		timestamp = j.Now()
	}

	if j.w != nil && !j.w.uncommitted && j.w.size >= j.maxFileSize {
		j.finishSegment()
	}
	if j.w == nil {
		w, err := startSegment(j, j.seg+1, timestamp, j.rec+1)
		if err != nil {
			return j.fail(err)
		}
		j.seg++
		j.w = w
		if j.verbose {
			j.logger.Debug("journal: SEGMENT", "jrnl", j.debugName, "file", w.name)
		}
	}

	j.rec++
	return j.fail(j.w.writeRecord(timestamp, data))
}

// Commit makes the records written since the previous commit visible.
func (j *Journal) Commit() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.check(); err != nil {
		return err
	}
	if j.w == nil || !j.w.uncommitted {
		return nil
	}
	if err := j.w.commit(); err != nil {
		return j.fail(err)
	}
	if j.sync {
		return j.fail(fdatasync(j.w.f))
	}
	return nil
}

// Rotate makes the next record start a new segment. Uncommitted records of
// the current segment are abandoned.
func (j *Journal) Rotate() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.check(); err != nil {
		return err
	}
	j.finishSegment()
	return nil
}

// Close closes the current segment. Uncommitted records are abandoned.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.finishSegment()
	j.closed = true
	return nil
}

// LastRecord returns the number of the last record written. Records are
// numbered from 1 across all segments.
func (j *Journal) LastRecord() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.rec
}

func (j *Journal) check() error {
	if j.closed {
		return ErrClosed
	}
	return j.err
}

func (j *Journal) finishSegment() {
	if j.w != nil {
		j.rec = j.w.first + uint64(j.w.committed) - 1
		j.w.close()
		j.w = nil
	}
}

// fail makes err sticky: a journal that failed to write stops accepting
// records, because the segment may end in garbage.
func (j *Journal) fail(err error) error {
	if err == nil {
		return nil
	}
	j.logger.Error("journal: failed", "jrnl", j.debugName, "err", err)
	j.finishSegment()
	if j.err == nil {
		j.err = err
	}
	return err
}

// Segments returns the names of the segment files in order.
func (j *Journal) Segments() ([]string, error) {
	ents, err := os.ReadDir(j.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, ent := range ents {
		if !ent.Type().IsRegular() {
			continue
		}
		name := ent.Name()
		if !strings.HasPrefix(name, j.prefix) || !strings.HasSuffix(name, j.suffix) {
			continue
		}
		if _, _, _, err := parseSegmentName(j.trimName(name)); err != nil {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

func (j *Journal) trimName(name string) string {
	return strings.TrimSuffix(strings.TrimPrefix(name, j.prefix), j.suffix)
}

func formatSegmentName(prefix, suffix string, seq, ts uint32, id uint64) string {
	t := time.Unix(int64(ts), 0).UTC()
	return fmt.Sprintf("%s%012d-%s-%016x%s", prefix, seq, t.Format(timestampFmt), id, suffix)
}

func parseSegmentName(name string) (seq, ts uint32, id uint64, err error) {
	seqStr, rem, ok := strings.Cut(name, "-")
	if !ok {
		return 0, 0, 0, fmt.Errorf("invalid segment file name %q", name)
	}
	v, err := strconv.ParseUint(seqStr, 10, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid segment file name %q (invalid segment number)", name)
	}
	seq = uint32(v)

	tsStr, idStr, ok := strings.Cut(rem, "-")
	if !ok {
		return 0, 0, 0, fmt.Errorf("invalid segment file name %q", name)
	}
	t, err := time.ParseInLocation(timestampFmt, tsStr, time.UTC)
	if err != nil {
		return seq, 0, 0, fmt.Errorf("invalid segment file name %q (invalid timestamp)", name)
	}
	ts = uint32(t.Unix())

	id, err = strconv.ParseUint(idStr, 16, 64)
	if err != nil {
		return seq, 0, 0, fmt.Errorf("invalid segment file name %q (invalid record identifier)", name)
	}
	return
}
