package doc

import (
	"fmt"

	"github.com/andreyvit/docorm/journal"
)

// A journal record is the 16-byte document ID followed by the encoded change.
const journalIDSize = 16

func journalRecord(id DocumentID, raw []byte) []byte {
	rec := make([]byte, 0, journalIDSize+len(raw))
	rec = append(rec, id[:]...)
	return append(rec, raw...)
}

// journalTimestamp returns the commit time of ch, or zero (meaning now) if it
// does not fit a journal timestamp.
func journalTimestamp(ch *Change) uint32 {
	if ch.Time <= 0 || ch.Time > 0xFFFF_FFFF {
		return 0
	}
	return uint32(ch.Time)
}

// ReplayJournal calls f with every change archived in j, in commit order,
// across all documents.
func ReplayJournal(j *journal.Journal, f func(id DocumentID, ch *Change) error) error {
	return j.Read(func(rec journal.Record) error {
		if len(rec.Data) < journalIDSize {
			return fmt.Errorf("doc: journal record %d: %w", rec.Number, ErrCorruptedChange)
		}
		var id DocumentID
		copy(id[:], rec.Data[:journalIDSize])
		ch, err := DecodeChange(rec.Data[journalIDSize:])
		if err != nil {
			return fmt.Errorf("doc: journal record %d: %w", rec.Number, err)
		}
		return f(id, ch)
	})
}

// RestoreFromJournal rebuilds a document from its archived changes. It fails
// with ErrDocumentNotFound if the journal has no changes of that document,
// and with ErrCorruptedChange if they do not form a chain starting at the
// first change.
func RestoreFromJournal(j *journal.Journal, id DocumentID) (*Doc, error) {
	d := New()
	err := ReplayJournal(j, func(docID DocumentID, ch *Change) error {
		if docID != id {
			return nil
		}
		if err := d.ApplyChange(ch); err != nil {
			return fmt.Errorf("doc: restoring %v: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if d.Seq() == 0 {
		return nil, fmt.Errorf("doc: restoring %v: %w", id, ErrDocumentNotFound)
	}
	return d, nil
}
