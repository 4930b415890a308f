package doc

import (
	"bytes"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"
)

type OpAction uint8

const (
	OpNone OpAction = iota
	OpPut
	OpPutObject
	OpDelete
	OpInsert
	OpInsertObject
	OpListDelete
)

func (a OpAction) String() string {
	switch a {
	case OpNone:
		return "none"
	case OpPut:
		return "put"
	case OpPutObject:
		return "put_object"
	case OpDelete:
		return "delete"
	case OpInsert:
		return "insert"
	case OpInsertObject:
		return "insert_object"
	case OpListDelete:
		return "list_delete"
	default:
		return fmt.Sprintf("invalid op %d", uint8(a))
	}
}

// Op is a single primitive mutation recorded by a transaction.
type Op struct {
	Action  OpAction `msgpack:"a"`
	Obj     ObjID    `msgpack:"o"`
	Prop    string   `msgpack:"p,omitempty"`
	Index   int      `msgpack:"i,omitempty"`
	Child   ObjID    `msgpack:"c,omitempty"`
	ObjType ObjType  `msgpack:"t,omitempty"`
	Value   any      `msgpack:"v,omitempty"`
}

func (op Op) String() string {
	switch op.Action {
	case OpPut:
		return fmt.Sprintf("%v %v[%q] = %v", op.Action, op.Obj, op.Prop, Value{scalar: op.Value})
	case OpPutObject:
		return fmt.Sprintf("%v %v[%q] = %v %v", op.Action, op.Obj, op.Prop, op.ObjType, op.Child)
	case OpDelete:
		return fmt.Sprintf("%v %v[%q]", op.Action, op.Obj, op.Prop)
	case OpInsert:
		return fmt.Sprintf("%v %v[%d] = %v", op.Action, op.Obj, op.Index, Value{scalar: op.Value})
	case OpInsertObject:
		return fmt.Sprintf("%v %v[%d] = %v %v", op.Action, op.Obj, op.Index, op.ObjType, op.Child)
	default:
		return fmt.Sprintf("%v %v[%d]", op.Action, op.Obj, op.Index)
	}
}

// Change is a committed batch of operations.
type Change struct {
	Seq     uint64 `msgpack:"s"`
	Hash    uint64 `msgpack:"h"`
	Deps    uint64 `msgpack:"d"`
	Message string `msgpack:"m,omitempty"`
	Time    int64  `msgpack:"t"`
	Ops     []Op   `msgpack:"ops"`
}

// Timestamp returns the commit time as a time.Time.
func (ch *Change) Timestamp() time.Time {
	return time.Unix(ch.Time, 0)
}

func (ch *Change) String() string {
	return fmt.Sprintf("change #%d %016x (%d ops) %q", ch.Seq, ch.Hash, len(ch.Ops), ch.Message)
}

func (ch *Change) computeHash() (uint64, error) {
	c := *ch
	c.Hash = 0
	raw, err := encodeMsgpack(&c)
	if err != nil {
		return 0, fmt.Errorf("doc: encoding change #%d: %w", ch.Seq, err)
	}
	return xxhash.Sum64(raw), nil
}

// EncodeChange returns the storage encoding of a change.
func EncodeChange(ch *Change) ([]byte, error) {
	raw, err := encodeMsgpack(ch)
	if err != nil {
		return nil, fmt.Errorf("doc: encoding change #%d: %w", ch.Seq, err)
	}
	return raw, nil
}

// DecodeChange decodes a change and verifies its hash.
func DecodeChange(raw []byte) (*Change, error) {
	ch := new(Change)
	if err := decodeMsgpack(raw, ch); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedChange, err)
	}
	for i := range ch.Ops {
		v, err := normalizeScalar(ch.Ops[i].Value)
		if err != nil {
			return nil, fmt.Errorf("%w: change #%d op %d: %v", ErrCorruptedChange, ch.Seq, i, err)
		}
		ch.Ops[i].Value = v
	}
	hash, err := ch.computeHash()
	if err != nil {
		return nil, err
	}
	if hash != ch.Hash {
		return nil, fmt.Errorf("%w: change #%d hash %016x, computed %016x", ErrCorruptedChange, ch.Seq, ch.Hash, hash)
	}
	return ch, nil
}

// ApplyChange applies a change produced by another copy of this document.
// Changes must be applied in order.
func (d *Doc) ApplyChange(ch *Change) error {
	if ch.Seq != d.seq+1 || ch.Deps != d.heads {
		return fmt.Errorf("%w: change #%d (deps %016x) does not follow #%d (heads %016x)", ErrCorruptedChange, ch.Seq, ch.Deps, d.seq, d.heads)
	}
	tx, err := d.Transaction()
	if err != nil {
		return err
	}
	for i, op := range ch.Ops {
		if err := tx.replay(op); err != nil {
			tx.close()
			return fmt.Errorf("doc: applying change #%d op %d (%v): %w", ch.Seq, i, op, err)
		}
	}
	tx.close()
	tx.apply(ch, false)
	return nil
}

func encodeMsgpack(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	enc.Reset(&buf)
	enc.SetSortMapKeys(true)
	err := enc.Encode(v)
	msgpack.PutEncoder(enc)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeMsgpack(raw []byte, v any) error {
	dec := msgpack.GetDecoder()
	dec.Reset(bytes.NewReader(raw))
	dec.UseLooseInterfaceDecoding(true)
	err := dec.Decode(v)
	msgpack.PutDecoder(dec)
	return err
}
