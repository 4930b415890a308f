package journal

import (
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
)

const (
	magic          = 0x54414c4e52554f4a // "JOURNLAT" as little-endian uint64
	version0 uint8 = 0
)

const headerSize = 16 * 8

type segmentHeader struct {
	Magic       uint64
	Version     uint8
	_           uint8
	Flags       uint16
	_           uint32
	Ordinal     uint32
	Timestamp   uint32
	FirstRecord uint64
	Invariant   [32]byte
	_           [7]uint64
	Checksum    uint64
}

const (
	recordFlagCommit byte = 1
	recordFlagShift       = 1
)

const maxRecHeaderLen = 2 * binary.MaxVarintLen64

type segmentWriter struct {
	f           *os.File
	name        string
	ts          uint32
	size        int64
	hash        *xxhash.Digest
	first       uint64
	written     int
	committed   int
	uncommitted bool
}

func startSegment(j *Journal, seg, ts uint32, first uint64) (*segmentWriter, error) {
	name := formatSegmentName(j.prefix, j.suffix, seg, ts, first)
	f, err := os.OpenFile(filepath.Join(j.dir, name), os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o666)
	if err != nil {
		return nil, err
	}

	var ok bool
	defer closeAndDeleteUnlessOK(f, &ok)

	sw := &segmentWriter{
		f:     f,
		name:  name,
		ts:    ts,
		size:  headerSize,
		hash:  xxhash.New(),
		first: first,
	}

	var hbuf [headerSize]byte
	fillSegmentHeader(hbuf[:], segmentHeader{
		Magic:       magic,
		Version:     version0,
		Ordinal:     seg,
		Timestamp:   ts,
		FirstRecord: first,
		Invariant:   j.invariant,
	}, sw.hash)

	if _, err := f.Write(hbuf[:]); err != nil {
		return nil, err
	}
	ok = true
	return sw, nil
}

// writeRecord appends a record. Timestamps are stored as deltas and never go
// backwards within a segment.
func (sw *segmentWriter) writeRecord(ts uint32, data []byte) error {
	var tsDelta uint32
	if ts > sw.ts {
		tsDelta = ts - sw.ts
		sw.ts = ts
	}
	sw.uncommitted = true
	sw.written++

	var hbuf [maxRecHeaderLen]byte
	h := appendRecordHeader(hbuf[:0], len(data), tsDelta)

	sw.hash.Write(h)
	if _, err := sw.f.Write(h); err != nil {
		return err
	}
	sw.hash.Write(data)
	if _, err := sw.f.Write(data); err != nil {
		return err
	}
	sw.size += int64(len(h) + len(data))
	return nil
}

func (sw *segmentWriter) commit() error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], sw.hash.Sum64())
	buf[0] |= recordFlagCommit

	sw.hash.Write(buf[:])
	if _, err := sw.f.Write(buf[:]); err != nil {
		return err
	}
	sw.size += int64(len(buf))
	sw.uncommitted = false
	sw.committed = sw.written
	return nil
}

func (sw *segmentWriter) close() {
	if sw.f == nil {
		return
	}
	sw.f.Close()
	sw.f = nil
}

func closeAndDeleteUnlessOK(f *os.File, ok *bool) {
	if *ok {
		return
	}
	f.Close()
	os.Remove(f.Name())
}

func fillSegmentHeader(buf []byte, h segmentHeader, hash *xxhash.Digest) {
	n, err := binary.Encode(buf, binary.LittleEndian, h)
	if err != nil {
		panic(err)
	}
	if n != headerSize {
		panic("internal size mismatch")
	}
	hash.Write(buf[:headerSize-8])
	binary.LittleEndian.PutUint64(buf[headerSize-8:], hash.Sum64())
	hash.Write(buf[headerSize-8 : headerSize])
}

func appendRecordHeader(b []byte, size int, tsDelta uint32) []byte {
	b = binary.AppendUvarint(b, uint64(size)<<recordFlagShift)
	b = binary.AppendUvarint(b, uint64(tsDelta))
	return b
}
