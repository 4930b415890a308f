package doc

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/lmittmann/tint"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func ok(t testing.TB, err error) {
	if err != nil {
		t.Helper()
		t.Fatalf("** unexpected error: %v", err)
	}
}

func deepEqual[T any](t testing.TB, a, e T) {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}

func isErr(t testing.TB, err, target error) {
	if !errors.Is(err, target) {
		t.Helper()
		t.Errorf("** got error %v, wanted %v", err, target)
	}
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

// setupStorage returns in-memory storage under -short, and a temporary Bolt
// file otherwise.
func setupStorage(t testing.TB) Storage {
	t.Helper()
	if testing.Short() {
		s := NewMemStorage()
		t.Cleanup(func() { s.Close() })
		return s
	}
	path := filepath.Join(t.TempDir(), "docs.db")
	t.Logf("DB: %s", path)
	s := must(OpenBolt(path, BoltOptions{IsTesting: true}))
	t.Cleanup(func() { s.Close() })
	return s
}

// write runs f in a transaction and commits it.
func write(t testing.TB, d *Doc, f func(tx *Tx)) *Change {
	t.Helper()
	tx := must(d.Transaction())
	f(tx)
	return must(tx.CommitWith(CommitOptions{Message: "test", Time: 1700000000}))
}

func materialize(t testing.TB, r Reader, obj ObjID) any {
	t.Helper()
	v, err := Materialize(r, obj)
	ok(t, err)
	return v
}

func init() {
	if os.Getenv("DOC_DEBUG") != "" {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}
}
