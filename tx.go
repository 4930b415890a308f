package docorm

import (
	"fmt"
	"log/slog"
	"reflect"
	"runtime/debug"

	"github.com/andreyvit/docorm/doc"
)

// Transaction wraps one document write transaction. Reads through it observe
// its own uncommitted writes. It is finished by exactly one Commit or
// Rollback. Transactions passed to EntityManager.Transact are finished by
// Transact itself, and calling Commit or Rollback on them fails with
// ErrManagedTransaction.
//
// Entity operations are package-level functions (Insert, Update, ...) because
// Go methods cannot have type parameters.
type Transaction struct {
	tx     *doc.Tx
	opt    *Options
	change *doc.Change

	managed bool
}

func newTransaction(tx *doc.Tx, opt *Options) *Transaction {
	return &Transaction{tx: tx, opt: opt}
}

// Writer exposes the underlying document transaction for primitive access.
func (tx *Transaction) Writer() doc.Writer {
	return tx.tx
}

// IsClosed reports whether Commit or Rollback has been called.
func (tx *Transaction) IsClosed() bool {
	return tx.tx.IsClosed()
}

// Change returns the change produced by Commit, or nil if the transaction
// is still open, was rolled back, or committed no writes.
func (tx *Transaction) Change() *doc.Change {
	return tx.change
}

func (tx *Transaction) checkOpen() error {
	if tx.tx.IsClosed() {
		return docErr(doc.ErrTxClosed)
	}
	return nil
}

func (tx *Transaction) logOp(op, table string, id fmt.Stringer) {
	if tx.opt.Verbose {
		tx.opt.Logger.Debug("orm: "+op+" "+table+"/"+id.String(), slog.String("table", table))
	}
}

func (tx *Transaction) checkFinishable(op string) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	if tx.managed {
		return &Error{Kind: KindManagedTransaction, Msg: op + " inside Transact"}
	}
	return nil
}

// Commit makes all writes visible, recording the configured commit message
// and the current time.
func (tx *Transaction) Commit() error {
	if err := tx.checkFinishable("Commit"); err != nil {
		return err
	}
	return tx.commit()
}

func (tx *Transaction) commit() error {
	ch, err := tx.tx.CommitWith(doc.CommitOptions{
		Message: tx.opt.CommitMessage,
		Time:    tx.opt.Now().Unix(),
	})
	if err != nil {
		return docErr(err)
	}
	tx.change = ch
	if tx.opt.Verbose && ch != nil {
		tx.opt.Logger.Debug("orm: COMMIT", "seq", ch.Seq, "ops", len(ch.Ops))
	}
	return nil
}

// Rollback discards all writes.
func (tx *Transaction) Rollback() error {
	if err := tx.checkFinishable("Rollback"); err != nil {
		return err
	}
	return tx.rollback()
}

func (tx *Transaction) rollback() error {
	if err := tx.tx.Rollback(); err != nil {
		return docErr(err)
	}
	if tx.opt.Verbose {
		tx.opt.Logger.Debug("orm: ROLLBACK")
	}
	return nil
}

// FindIn is Find against the transaction's in-progress state.
func FindIn[T Mapped](tx *Transaction, id Key[T]) (*T, error) {
	if err := tx.checkOpen(); err != nil {
		return nil, err
	}
	return Find[T](tx.tx, id)
}

// FindAllIn is FindAll against the transaction's in-progress state.
func FindAllIn[T Mapped](tx *Transaction) (*EntityMap[T], error) {
	if err := tx.checkOpen(); err != nil {
		return nil, err
	}
	return FindAll[T](tx.tx)
}

// Insert stores a new entity, creating its table if needed. If the key is
// already taken, it fails with ErrObjectAlreadyExists and writes nothing.
func Insert[T Entity[T]](tx *Transaction, entity T) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	props, err := toProps(entity)
	if err != nil {
		return err
	}
	name, err := tableName[T]()
	if err != nil {
		return err
	}
	id := entity.Key()

	table, found, err := getTable(tx.tx, name)
	if err != nil {
		return err
	}
	if found {
		_, _, exists, err := tx.tx.Get(table, id.String())
		if err != nil {
			return docErr(err)
		}
		if exists {
			return &Error{Kind: KindObjectAlreadyExists, Table: name, ID: id.UUID()}
		}
	} else {
		table, _, err = resolveTable(tx.tx, name)
		if err != nil {
			return err
		}
	}

	if err := reconcileProp(tx.tx, table, id.String(), props); err != nil {
		return docErr(err)
	}
	tx.logOp("INSERT", name, id)
	return nil
}

// GetOrInsert returns the entity stored under id. If there is none, it calls
// makeDefault and inserts the result, which must carry the same key;
// otherwise it fails with ErrKeyMismatch and writes nothing.
func GetOrInsert[T Entity[T]](tx *Transaction, id Key[T], makeDefault func() T) (T, error) {
	var zero T
	existing, err := FindIn(tx, id)
	if err != nil {
		return zero, err
	}
	if existing != nil {
		return *existing, nil
	}

	entity := makeDefault()
	if actual := entity.Key(); actual != id {
		return zero, &Error{
			Kind:     KindKeyMismatch,
			Actual:   actual.UUID(),
			Expected: id.UUID(),
			Msg:      fmt.Sprintf("key obtained from %v.Key() does not match the requested key", reflect.TypeFor[T]()),
		}
	}
	if err := Insert(tx, entity); err != nil {
		return zero, err
	}
	return entity, nil
}

// Update overwrites an existing entity. It never creates a table; if the
// table or the row is missing, it fails with ErrObjectDoesNotExist.
func Update[T Entity[T]](tx *Transaction, entity T) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	props, err := toProps(entity)
	if err != nil {
		return err
	}
	name, err := tableName[T]()
	if err != nil {
		return err
	}
	id := entity.Key()

	table, found, err := getTable(tx.tx, name)
	if err != nil {
		return err
	}
	if found {
		_, _, found, err = tx.tx.Get(table, id.String())
		if err != nil {
			return docErr(err)
		}
	}
	if !found {
		return &Error{Kind: KindObjectDoesNotExist, Table: name, ID: id.UUID()}
	}

	if err := reconcileProp(tx.tx, table, id.String(), props); err != nil {
		return docErr(err)
	}
	tx.logOp("UPDATE", name, id)
	return nil
}

// Upsert stores an entity whether or not it exists, creating its table if
// needed. Only properties that differ are written, so repeating an Upsert
// with the same entity changes nothing.
func Upsert[T Entity[T]](tx *Transaction, entity T) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	props, err := toProps(entity)
	if err != nil {
		return err
	}
	name, err := tableName[T]()
	if err != nil {
		return err
	}
	id := entity.Key()

	table, _, err := resolveTable(tx.tx, name)
	if err != nil {
		return err
	}
	if err := reconcileProp(tx.tx, table, id.String(), props); err != nil {
		return docErr(err)
	}
	tx.logOp("UPSERT", name, id)
	return nil
}

// Remove deletes the entity stored under id. A missing table or row is not
// an error. An emptied table is kept.
func Remove[T Mapped](tx *Transaction, id Key[T]) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	name, err := tableName[T]()
	if err != nil {
		return err
	}
	table, found, err := getTable(tx.tx, name)
	if err != nil || !found {
		return err
	}
	if err := tx.tx.Delete(table, id.String()); err != nil {
		return docErr(err)
	}
	tx.logOp("DELETE", name, id)
	return nil
}

type panicked struct {
	reason any
	stack  string
}

func (p panicked) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", p.reason, p.stack)
}

func safelyCall[O any](fn func(*Transaction) (O, error), tx *Transaction) (result O, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = panicked{p, string(debug.Stack())}
		}
	}()
	return fn(tx)
}
