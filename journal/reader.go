package journal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
)

// Record is a committed record read back from a journal.
type Record struct {
	Segment   uint32
	Number    uint64
	Timestamp uint32

	// Data is only valid during the callback.
	Data []byte
}

// Read calls f with every committed record, oldest first. A segment whose
// header is corrupted is skipped, and records after the last valid commit of
// a segment are ignored; both are logged. Read can run while the journal is
// being written and sees what was committed when each segment was opened.
// Returning an error from f stops the iteration and returns that error.
func (j *Journal) Read(f func(rec Record) error) error {
	names, err := j.Segments()
	if err != nil {
		return fmt.Errorf("%v: %w", j.debugName, err)
	}
	for _, name := range names {
		_, _, err := j.scanFile(name, f)
		if err == errCorruptedFile {
			j.logger.Warn("journal: skipping corrupted file", "jrnl", j.debugName, "file", name)
			continue
		} else if err != nil {
			return err
		}
	}
	return nil
}

type pendingRecord struct {
	ts   uint32
	data []byte
}

// scanFile verifies a segment file, calling f (if not nil) with its committed
// records, and returns the header and the number of committed records.
func (j *Journal) scanFile(name string, f func(rec Record) error) (segmentHeader, int, error) {
	var h segmentHeader
	file, err := os.Open(filepath.Join(j.dir, name))
	if err != nil {
		return h, 0, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return h, 0, err
	}
	if stat.Size() < headerSize {
		return h, 0, errCorruptedFile
	}

	data, err := mapFile(file, int(stat.Size()))
	if err != nil {
		return h, 0, fmt.Errorf("%v: mapping %v: %w", j.debugName, name, err)
	}
	defer unmapFile(data)

	seq, _, _, err := parseSegmentName(j.trimName(name))
	if err != nil {
		return h, 0, err
	}
	if err := j.readHeader(data, &h, seq); err != nil {
		return h, 0, err
	}

	count, torn, err := scanRecords(data, &h, func(num uint64, ts uint32, rec []byte) error {
		if f == nil {
			return nil
		}
		return f(Record{Segment: h.Ordinal, Number: num, Timestamp: ts, Data: rec})
	})
	if torn && j.verbose {
		j.logger.Debug("journal: ignoring uncommitted tail", "jrnl", j.debugName, "file", name, "records", count)
	}
	return h, count, err
}

func (j *Journal) readHeader(data []byte, h *segmentHeader, expectedSeq uint32) error {
	if len(data) < headerSize {
		return errCorruptedFile
	}
	n, err := binary.Decode(data[:headerSize], binary.LittleEndian, h)
	if err != nil {
		panic(err)
	}
	if n != headerSize {
		panic("internal size mismatch")
	}
	if h.Magic != magic {
		return errCorruptedFile
	}
	if xxhash.Sum64(data[:headerSize-8]) != h.Checksum {
		return errCorruptedFile
	}
	if h.Ordinal != expectedSeq {
		return errCorruptedFile
	}
	if h.Version > version0 {
		return ErrUnsupportedVersion
	}
	if h.Invariant != j.invariant {
		return ErrIncompatible
	}
	return nil
}

var errTorn = errors.New("torn record")

// scanRecords replays the running checksum over the records following the
// header and calls f for each record of every valid commit. torn reports
// whether anything after the last valid commit was ignored.
func scanRecords(data []byte, h *segmentHeader, f func(num uint64, ts uint32, rec []byte) error) (count int, torn bool, err error) {
	hash := xxhash.New()
	hash.Write(data[:headerSize])

	ts := h.Timestamp
	num := h.FirstRecord
	var pending []pendingRecord
	off := headerSize
	for off < len(data) {
		if data[off]&recordFlagCommit != 0 {
			if off+8 > len(data) {
				return count, true, nil
			}
			stored := binary.LittleEndian.Uint64(data[off : off+8])
			if stored != hash.Sum64()|uint64(recordFlagCommit) {
				return count, true, nil
			}
			hash.Write(data[off : off+8])
			off += 8

			for _, p := range pending {
				if err := f(num, p.ts, p.data); err != nil {
					return count, false, err
				}
				num++
				count++
			}
			pending = pending[:0]
			continue
		}

		start := off
		rec, tsDelta, n, err := decodeRecord(data[off:])
		if err != nil {
			return count, true, nil
		}
		off += n
		hash.Write(data[start:off])
		ts += tsDelta
		pending = append(pending, pendingRecord{ts, rec})
	}
	return count, len(pending) > 0, nil
}

func decodeRecord(b []byte) (data []byte, tsDelta uint32, n int, err error) {
	sizeAndFlags, k := binary.Uvarint(b)
	if k <= 0 {
		return nil, 0, 0, errTorn
	}
	n = k
	delta, k := binary.Uvarint(b[n:])
	if k <= 0 || delta > 0xFFFF_FFFF {
		return nil, 0, 0, errTorn
	}
	n += k
	size := sizeAndFlags >> recordFlagShift
	if size > uint64(len(b)-n) {
		return nil, 0, 0, errTorn
	}
	data = b[n : n+int(size)]
	n += int(size)
	return data, uint32(delta), n, nil
}
