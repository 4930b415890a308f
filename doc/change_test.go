package doc

import (
	"testing"
	"time"
)

func TestChangeEncodeDecode(t *testing.T) {
	d := New()
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ch := write(t, d, func(tx *Tx) {
		m := must(tx.PutObject(Root, "m", Map))
		ok(t, tx.Put(m, "i", -7))
		ok(t, tx.Put(m, "u", uint8(7)))
		ok(t, tx.Put(m, "f", 1.25))
		ok(t, tx.Put(m, "b", false))
		ok(t, tx.Put(m, "raw", []byte{0xff}))
		ok(t, tx.Put(m, "t", ts))
		ok(t, tx.Put(m, "n", nil))
		l := must(tx.PutObject(m, "l", List))
		ok(t, tx.Insert(l, 0, "x"))
		must(tx.InsertObject(l, 1, Map))
		ok(t, tx.ListDelete(l, 0))
		ok(t, tx.Delete(m, "n"))
	})

	raw := must(EncodeChange(ch))
	decoded := must(DecodeChange(raw))
	deepEqual(t, decoded.Hash, ch.Hash)
	deepEqual(t, decoded.Seq, ch.Seq)
	deepEqual(t, decoded.Time, int64(1700000000))
	deepEqual(t, len(decoded.Ops), len(ch.Ops))

	other := New()
	ok(t, other.ApplyChange(decoded))
	deepEqual(t, other.Heads(), d.Heads())

	got := materialize(t, other, Root).(map[string]any)["m"].(map[string]any)
	want := materialize(t, d, Root).(map[string]any)["m"].(map[string]any)
	for k, v := range want {
		if !scalarsEqual(got[k], v) && k != "l" {
			t.Errorf("m[%q] = %#v, wanted %#v", k, got[k], v)
		}
	}
	deepEqual(t, got["l"], want["l"])
	deepEqual(t, len(got), len(want))
}

func TestChangeCorruption(t *testing.T) {
	d := New()
	ch := write(t, d, func(tx *Tx) { ok(t, tx.Put(Root, "a", "b")) })

	tampered := *ch
	tampered.Message = "tampered"
	raw := must(EncodeChange(&tampered))
	_, err := DecodeChange(raw)
	isErr(t, err, ErrCorruptedChange)

	_, err = DecodeChange([]byte{0xc1})
	isErr(t, err, ErrCorruptedChange)
}

func TestApplyChangeOutOfOrder(t *testing.T) {
	d := New()
	write(t, d, func(tx *Tx) { ok(t, tx.Put(Root, "a", 1)) })
	c2 := write(t, d, func(tx *Tx) { ok(t, tx.Put(Root, "a", 2)) })

	other := New()
	isErr(t, other.ApplyChange(c2), ErrCorruptedChange)
	deepEqual(t, other.Seq(), uint64(0))
}

func TestApplyChangeInvalidOp(t *testing.T) {
	ch := &Change{Seq: 1, Ops: []Op{{Action: OpPut, Obj: ObjID(5), Prop: "x", Value: int64(1)}}}
	ch.Hash = must(ch.computeHash())

	d := New()
	isErr(t, d.ApplyChange(ch), ErrObjectNotFound)
	deepEqual(t, d.InTransaction(), false)
	deepEqual(t, d.Seq(), uint64(0))
}

func TestSnapshotRoundTrip(t *testing.T) {
	d := New()
	write(t, d, func(tx *Tx) {
		m := must(tx.PutObject(Root, "m", Map))
		ok(t, tx.Put(m, "s", "x"))
		l := must(tx.PutObject(m, "l", List))
		ok(t, tx.Insert(l, 0, int64(3)))
	})
	snap := must(d.Save())

	c2 := write(t, d, func(tx *Tx) { ok(t, tx.Put(Root, "after", true)) })
	raw := must(EncodeChange(c2))

	loaded := must(Load(snap, [][]byte{raw}))
	deepEqual(t, materialize(t, loaded, Root), materialize(t, d, Root))
	deepEqual(t, loaded.Seq(), d.Seq())
	deepEqual(t, loaded.Heads(), d.Heads())
	deepEqual(t, len(loaded.Changes()), 1)

	// New objects created after loading must not collide with restored ones.
	write(t, loaded, func(tx *Tx) {
		must(tx.PutObject(Root, "fresh", Map))
	})
	deepEqual(t, materialize(t, loaded, Root).(map[string]any)["m"], materialize(t, d, Root).(map[string]any)["m"])
}
