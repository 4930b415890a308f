package doc

import (
	"testing"

	"github.com/andreyvit/docorm/journal"
)

func setupJournal(t testing.TB, dir string) *journal.Journal {
	t.Helper()
	j := must(journal.Open(dir, journal.Options{
		FileName: "changes-*.wal",
		Logger:   testLogger(t),
		Verbose:  true,
	}))
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournalSurvivesCompaction(t *testing.T) {
	dir := t.TempDir()
	j := setupJournal(t, dir)
	r := setupRepo(t, setupStorage(t), RepoOptions{CompactEvery: 2, Journal: j})

	a := must(r.NewDocument())
	b := must(r.NewDocument())
	for i := range 5 {
		ok(t, commitPut(a, "n", i))
	}
	ok(t, commitPut(b, "other", "x"))
	ok(t, a.Compact())

	var seqs []uint64
	var others int
	ok(t, ReplayJournal(j, func(id DocumentID, ch *Change) error {
		switch id {
		case a.ID():
			seqs = append(seqs, ch.Seq)
		case b.ID():
			others++
		default:
			t.Errorf("** unexpected document %v", id)
		}
		return nil
	}))
	deepEqual(t, seqs, []uint64{1, 2, 3, 4, 5})
	deepEqual(t, others, 1)

	// A fresh journal over the same directory restores identical state.
	ok(t, j.Close())
	j2 := setupJournal(t, dir)
	restored := must(RestoreFromJournal(j2, a.ID()))
	ok(t, a.WithDoc(func(d *Doc) error {
		deepEqual(t, materialize(t, restored, Root), materialize(t, d, Root))
		deepEqual(t, restored.Heads(), d.Heads())
		deepEqual(t, restored.Seq(), d.Seq())
		return nil
	}))
}

func TestRestoreFromJournalUnknown(t *testing.T) {
	j := setupJournal(t, t.TempDir())
	_, err := RestoreFromJournal(j, NewDocumentID())
	isErr(t, err, ErrDocumentNotFound)
}

func TestJournalRecordFormat(t *testing.T) {
	id := NewDocumentID()
	rec := journalRecord(id, []byte{1, 2, 3})
	deepEqual(t, len(rec), 19)
	deepEqual(t, rec[16:], []byte{1, 2, 3})

	deepEqual(t, journalTimestamp(&Change{Time: 1700000000}), uint32(1700000000))
	deepEqual(t, journalTimestamp(&Change{Time: -1}), uint32(0))
	deepEqual(t, journalTimestamp(&Change{Time: 1 << 40}), uint32(0))
}
