package docorm

import (
	"errors"
	"slices"
	"testing"

	"github.com/google/uuid"
)

func TestKeyParse(t *testing.T) {
	const s = "6f1c0d2e-8b7a-4c3d-9e2f-1a2b3c4d5e6f"
	k := must(ParseKey[Book](s))
	deepEqual(t, k.String(), s)
	deepEqual(t, k.UUID(), uuid.MustParse(s))
	deepEqual(t, MustParseKey[Book](s), k)
	deepEqual(t, k.IsZero(), false)
	deepEqual(t, Key[Book]{}.IsZero(), true)
	deepEqual(t, k.GoString(), "docorm.Key[docorm.Book]("+s+")")

	// uuid.Parse also accepts the braced and urn forms.
	deepEqual(t, must(ParseKey[Book]("{"+s+"}")), k)
}

func TestKeyParseInvalid(t *testing.T) {
	for _, s := range []string{"", "abc", "6f1c0d2e-8b7a-4c3d-9e2f-1a2b3c4d5e6", "zzzzzzzz-8b7a-4c3d-9e2f-1a2b3c4d5e6f"} {
		_, err := ParseKey[Book](s)
		isErr(t, err, ErrInvalidKey)
		var e *Error
		if !errors.As(err, &e) {
			t.Fatalf("** ParseKey(%q) = %v, wanted *Error", s, err)
		}
		deepEqual(t, e.Key, s)
		if e.Err == nil {
			t.Errorf("** ParseKey(%q): missing cause", s)
		}
	}
}

func TestKeyCompare(t *testing.T) {
	a := MustParseKey[Book]("00000000-0000-0000-0000-000000000001")
	b := MustParseKey[Book]("00000000-0000-0000-0000-000000000002")
	c := MustParseKey[Book]("10000000-0000-0000-0000-000000000000")

	deepEqual(t, a.Compare(b), -1)
	deepEqual(t, c.Compare(b), 1)
	deepEqual(t, a.Compare(a), 0)

	keys := []Key[Book]{c, a, b}
	slices.SortFunc(keys, Key[Book].Compare)
	deepEqual(t, keys, []Key[Book]{a, b, c})

	set := map[Key[Book]]bool{a: true}
	deepEqual(t, set[MustParseKey[Book](a.String())], true)
}

func TestKeyMarshal(t *testing.T) {
	k := NewRandomKey[Book]()

	bin := must(k.MarshalBinary())
	deepEqual(t, bin, keyBytes(k))
	var k2 Key[Book]
	ok(t, k2.UnmarshalBinary(bin))
	deepEqual(t, k2, k)

	text := must(k.MarshalText())
	deepEqual(t, string(text), k.String())
	var k3 Key[Book]
	ok(t, k3.UnmarshalText(text))
	deepEqual(t, k3, k)

	var k4 Key[Book]
	isErr(t, k4.UnmarshalText([]byte("nope")), ErrInvalidKey)
}
