package docorm

import (
	"errors"
	"log/slog"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/andreyvit/docorm/doc"
	"github.com/google/uuid"
	"github.com/lmittmann/tint"
)

type (
	Book struct {
		ID     Key[Book] `msgpack:"id"`
		Author string    `msgpack:"author,omitempty"`
	}

	BookAuthor struct {
		ID   Key[BookAuthor] `msgpack:"id"`
		Name string          `msgpack:"name"`
		Tags []string        `msgpack:"tags,omitempty"`
		Meta map[string]any  `msgpack:"meta,omitempty"`
		Born time.Time       `msgpack:"born"`
	}

	// Shelf stores its key in a field with a different name and has a custom
	// table name.
	Shelf struct {
		Code  Key[Shelf]  `msgpack:"code"`
		Books []Key[Book] `msgpack:"books"`
	}

	Nameless struct {
		ID Key[Nameless] `msgpack:"id"`
	}

	Scalar string
)

func (Book) TableName() string { return TableNameOf[Book]() }
func (b Book) Key() Key[Book]  { return b.ID }

func (BookAuthor) TableName() string      { return TableNameOf[BookAuthor]() }
func (a BookAuthor) Key() Key[BookAuthor] { return a.ID }

func (Shelf) TableName() string { return "shelves" }
func (s Shelf) Key() Key[Shelf] { return s.Code }

func (Nameless) TableName() string    { return "" }
func (n Nameless) Key() Key[Nameless] { return n.ID }

func (Scalar) TableName() string { return "scalars" }
func (Scalar) Key() Key[Scalar]  { return NewKey[Scalar](uuid.Nil) }

func newBook(author string) Book {
	return Book{ID: NewRandomKey[Book](), Author: author}
}

type testLogWriter struct {
	t testing.TB
}

func (w testLogWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}

func testLogger(t testing.TB) *slog.Logger {
	return slog.New(tint.NewHandler(testLogWriter{t}, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: "15:04:05.000",
		NoColor:    true,
	}))
}

var testNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

// setup returns a manager over a fresh document, persisted in memory under
// -short and to a temporary Bolt file otherwise.
func setup(t testing.TB) *EntityManager {
	t.Helper()
	var storage doc.Storage
	if testing.Short() {
		storage = doc.NewMemStorage()
	} else {
		path := filepath.Join(t.TempDir(), "orm.db")
		t.Logf("DB: %s", path)
		storage = must(doc.OpenBolt(path, doc.BoltOptions{IsTesting: true}))
	}
	return setupWithStorage(t, storage)
}

func setupWithStorage(t testing.TB, storage doc.Storage) *EntityManager {
	t.Helper()
	repo := doc.NewRepo(storage, doc.RepoOptions{Logger: testLogger(t), Verbose: true})
	t.Cleanup(func() { repo.Close() })

	return NewEntityManager(must(repo.NewDocument()), Options{
		Logger:  testLogger(t),
		Verbose: true,
		Now:     func() time.Time { return testNow },
	})
}

// state materializes the whole committed document.
func state(t testing.TB, m *EntityManager) any {
	t.Helper()
	var result any
	err := m.Doc().WithDoc(func(d *doc.Doc) error {
		var err error
		result, err = doc.Materialize(d, doc.Root)
		return err
	})
	if err != nil {
		t.Fatalf("** Materialize: %v", err)
	}
	return result
}

func seq(t testing.TB, m *EntityManager) uint64 {
	t.Helper()
	var s uint64
	m.Doc().WithDoc(func(d *doc.Doc) error {
		s = d.Seq()
		return nil
	})
	return s
}

func keyBytes[T any](k Key[T]) []byte {
	u := k.UUID()
	return u[:]
}

func deepEqual[T any](t testing.TB, a, e T) {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}

func ok(t testing.TB, err error) {
	if err != nil {
		t.Helper()
		t.Fatalf("** unexpected error: %v", err)
	}
}

func isErr(t testing.TB, err, target error) {
	if !errors.Is(err, target) {
		t.Helper()
		t.Errorf("** got error %v, wanted %v", err, target)
	}
}

func isnil[T any, P ~*T](t testing.TB, a P) {
	if a != nil {
		t.Helper()
		t.Errorf("** got &%v, wanted nil", *a)
	}
}

func isnonnil[T any](t testing.TB, a *T) {
	if a == nil {
		t.Helper()
		t.Fatalf("** got nil %T, wanted non-nil", a)
	}
}
