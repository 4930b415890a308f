package doc

import (
	"strings"
	"testing"
	"time"
)

func TestDocPutGet(t *testing.T) {
	d := New()
	ch := write(t, d, func(tx *Tx) {
		ok(t, tx.Put(Root, "name", "foo"))
		ok(t, tx.Put(Root, "count", 42))
		ok(t, tx.Put(Root, "ratio", float32(0.5)))
		ok(t, tx.Put(Root, "raw", []byte{1, 2, 3}))
		ok(t, tx.Put(Root, "none", nil))
	})
	if ch == nil {
		t.Fatalf("CommitWith = nil change, wanted non-nil")
	}
	deepEqual(t, ch.Seq, uint64(1))
	deepEqual(t, ch.Message, "test")
	deepEqual(t, len(ch.Ops), 5)
	deepEqual(t, d.Seq(), uint64(1))
	deepEqual(t, d.Heads(), ch.Hash)

	v, _, found, err := d.Get(Root, "count")
	ok(t, err)
	deepEqual(t, found, true)
	deepEqual(t, v.Scalar(), any(int64(42)))
	deepEqual(t, v.Kind(), "int")

	v, _, _, _ = d.Get(Root, "ratio")
	deepEqual(t, v.Scalar(), any(float64(0.5)))

	_, _, found, err = d.Get(Root, "missing")
	ok(t, err)
	deepEqual(t, found, false)

	deepEqual(t, must(d.Keys(Root)), []string{"count", "name", "none", "ratio", "raw"})
	deepEqual(t, must(d.Length(Root)), 5)
}

func TestDocUnsupportedScalar(t *testing.T) {
	d := New()
	tx := must(d.Transaction())
	defer tx.Rollback()
	isErr(t, tx.Put(Root, "x", struct{}{}), ErrUnsupportedScalar)
	isErr(t, tx.Put(Root, "x", map[string]any{}), ErrUnsupportedScalar)
}

func TestDocNestedObjects(t *testing.T) {
	d := New()
	var books, tags ObjID
	write(t, d, func(tx *Tx) {
		books = must(tx.PutObject(Root, "books", Map))
		row := must(tx.PutObject(books, "b1", Map))
		ok(t, tx.Put(row, "title", "Dune"))
		tags = must(tx.PutObject(row, "tags", List))
		ok(t, tx.Insert(tags, 0, "scifi"))
		ok(t, tx.Insert(tags, 0, "classic"))
		item := must(tx.InsertObject(tags, 2, Map))
		ok(t, tx.Put(item, "k", true))
	})

	v, child, _, err := d.Get(Root, "books")
	ok(t, err)
	deepEqual(t, v.IsMap(), true)
	deepEqual(t, child, books)

	deepEqual(t, materialize(t, d, Root), any(map[string]any{
		"books": map[string]any{
			"b1": map[string]any{
				"title": "Dune",
				"tags":  []any{"classic", "scifi", map[string]any{"k": true}},
			},
		},
	}))

	write(t, d, func(tx *Tx) {
		ok(t, tx.ListDelete(tags, 0))
	})
	deepEqual(t, must(d.Length(tags)), 2)

	isErr(t, func() error { _, err := d.Keys(tags); return err }(), ErrNotMap)
	tx := must(d.Transaction())
	isErr(t, tx.Insert(tags, 5, "x"), ErrIndexOutOfRange)
	isErr(t, tx.Insert(books, 0, "x"), ErrNotList)
	isErr(t, tx.Put(ObjID(999), "x", 1), ErrObjectNotFound)
	ok(t, tx.Rollback())
}

func TestDocReplaceRemovesSubtree(t *testing.T) {
	d := New()
	var row, tags ObjID
	write(t, d, func(tx *Tx) {
		row = must(tx.PutObject(Root, "row", Map))
		tags = must(tx.PutObject(row, "tags", List))
		ok(t, tx.Insert(tags, 0, "a"))
	})
	write(t, d, func(tx *Tx) {
		ok(t, tx.Put(Root, "row", "gone"))
	})
	if _, err := d.ObjectType(row); err == nil {
		t.Errorf("ObjectType(%v) after replace = nil error, wanted ErrObjectNotFound", row)
	}
	if _, err := d.ObjectType(tags); err == nil {
		t.Errorf("ObjectType(%v) after replace = nil error, wanted ErrObjectNotFound", tags)
	}
	deepEqual(t, materialize(t, d, Root), any(map[string]any{"row": "gone"}))
}

func TestDocTxIsolation(t *testing.T) {
	d := New()
	write(t, d, func(tx *Tx) {
		ok(t, tx.Put(Root, "a", 1))
	})

	tx := must(d.Transaction())
	ok(t, tx.Put(Root, "a", 2))
	ok(t, tx.Put(Root, "b", 3))

	v, _, _, _ := tx.Get(Root, "a")
	deepEqual(t, v.Scalar(), any(int64(2)))
	v, _, _, _ = d.Get(Root, "a")
	deepEqual(t, v.Scalar(), any(int64(1)))
	_, _, found, _ := d.Get(Root, "b")
	deepEqual(t, found, false)

	ok(t, tx.Rollback())
	deepEqual(t, materialize(t, d, Root), any(map[string]any{"a": int64(1)}))
	deepEqual(t, d.Seq(), uint64(1))
}

func TestDocTxLifecycle(t *testing.T) {
	d := New()
	tx := must(d.Transaction())
	if _, err := d.Transaction(); err != ErrTxInProgress {
		t.Errorf("second Transaction() err = %v, wanted ErrTxInProgress", err)
	}
	deepEqual(t, d.InTransaction(), true)

	ch, err := tx.CommitWith(CommitOptions{Message: "empty"})
	ok(t, err)
	if ch != nil {
		t.Errorf("empty CommitWith = %v, wanted nil change", ch)
	}
	deepEqual(t, d.Seq(), uint64(0))
	deepEqual(t, d.InTransaction(), false)

	isErr(t, tx.Put(Root, "a", 1), ErrTxClosed)
	isErr(t, tx.Rollback(), ErrTxClosed)
	if _, err := tx.CommitWith(CommitOptions{}); err != ErrTxClosed {
		t.Errorf("CommitWith after close err = %v, wanted ErrTxClosed", err)
	}
}

func TestDocPutSameValueIsNoop(t *testing.T) {
	d := New()
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	write(t, d, func(tx *Tx) {
		ok(t, tx.Put(Root, "s", "x"))
		ok(t, tx.Put(Root, "b", []byte("abc")))
		ok(t, tx.Put(Root, "t", ts))
	})

	tx := must(d.Transaction())
	ok(t, tx.Put(Root, "s", "x"))
	ok(t, tx.Put(Root, "b", []byte("abc")))
	ok(t, tx.Put(Root, "t", ts.In(time.FixedZone("X", 3600))))
	ok(t, tx.Delete(Root, "missing"))
	deepEqual(t, tx.OpCount(), 0)
	ch := must(tx.CommitWith(CommitOptions{}))
	if ch != nil {
		t.Errorf("CommitWith = %v, wanted nil change", ch)
	}
}

func TestDocHashChain(t *testing.T) {
	d := New()
	c1 := write(t, d, func(tx *Tx) { ok(t, tx.Put(Root, "a", 1)) })
	c2 := write(t, d, func(tx *Tx) { ok(t, tx.Put(Root, "a", 2)) })
	deepEqual(t, c1.Deps, uint64(0))
	deepEqual(t, c2.Deps, c1.Hash)
	deepEqual(t, d.Heads(), c2.Hash)
	deepEqual(t, len(d.Changes()), 2)
	deepEqual(t, d.LastChange(), c2)
	if c1.Hash == c2.Hash {
		t.Errorf("change hashes are equal: %016x", c1.Hash)
	}
}

func TestDump(t *testing.T) {
	d := New()
	write(t, d, func(tx *Tx) {
		m := must(tx.PutObject(Root, "m", Map))
		ok(t, tx.Put(m, "x", "y"))
		l := must(tx.PutObject(Root, "l", List))
		ok(t, tx.Insert(l, 0, 1))
	})
	s := Dump(d, Root)
	for _, want := range []string{`"m": {`, `"x": "y"`, `"l": [`, "1"} {
		if !strings.Contains(s, want) {
			t.Errorf("Dump = %s, wanted it to include %s", s, want)
		}
	}
}
