package docorm

import (
	"log/slog"
	"sync"
	"time"

	"github.com/andreyvit/docorm/doc"
)

const DefaultCommitMessage = "docorm.Transaction.Commit"

type Options struct {
	Logger *slog.Logger
	// Verbose logs every entity operation at debug level.
	Verbose bool
	// CommitMessage is recorded on every change. Defaults to
	// DefaultCommitMessage.
	CommitMessage string
	// Now returns the commit timestamp. Defaults to time.Now.
	Now func() time.Time
}

func (opt Options) withDefaults() Options {
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	if opt.CommitMessage == "" {
		opt.CommitMessage = DefaultCommitMessage
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	return opt
}

// Observer is called with every change committed through an EntityManager,
// after the document lock is released.
type Observer func(ch *doc.Change) error

// EntityManager runs transactions against one document.
type EntityManager struct {
	doc *doc.Handle
	opt Options

	obsMu     sync.Mutex
	observers []Observer
}

func NewEntityManager(h *doc.Handle, opt Options) *EntityManager {
	return &EntityManager{
		doc: h,
		opt: opt.withDefaults(),
	}
}

// Doc returns the document handle.
func (m *EntityManager) Doc() *doc.Handle {
	return m.doc
}

func (m *EntityManager) Observe(f Observer) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	m.observers = append(m.observers, f)
}

// Transact runs f in a new transaction while holding the document's write
// lock. If f succeeds, the transaction is committed and a commit failure is
// returned as is. If f fails or panics, the transaction is rolled back and
// the failure is returned wrapped in ErrTransactionAborted. f must not call
// Commit or Rollback itself.
//
// No other writer can touch the document until f returns, so keep f short.
func (m *EntityManager) Transact(f func(tx *Transaction) error) error {
	_, err := TransactValue(m, func(tx *Transaction) (struct{}, error) {
		return struct{}{}, f(tx)
	})
	return err
}

// TransactValue is Transact for functions that produce a value.
func TransactValue[O any](m *EntityManager, f func(tx *Transaction) (O, error)) (O, error) {
	var result, zero O
	var change *doc.Change
	err := m.doc.WithDocMut(func(d *doc.Doc) error {
		dtx, err := d.Transaction()
		if err != nil {
			return docErr(err)
		}
		tx := newTransaction(dtx, &m.opt)
		tx.managed = true

		v, ferr := safelyCall(f, tx)
		if ferr != nil {
			if err := tx.rollback(); err != nil {
				m.opt.Logger.Warn("orm: rollback failed", "err", err)
			}
			return &Error{Kind: KindTransactionAborted, Err: ferr}
		}

		if err := tx.commit(); err != nil {
			return err
		}
		result, change = v, tx.change
		return nil
	})
	// A change that committed but failed to persist is still visible and
	// will be persisted by a later write, so observers hear about it.
	if change != nil {
		if nerr := m.notify(change); nerr != nil && err == nil {
			return result, nerr
		}
	}
	if err != nil {
		return zero, docErr(err)
	}
	return result, nil
}

func (m *EntityManager) notify(ch *doc.Change) error {
	m.obsMu.Lock()
	observers := append([]Observer(nil), m.observers...)
	m.obsMu.Unlock()

	var first error
	for _, f := range observers {
		if err := f(ch); err != nil {
			m.opt.Logger.Warn("orm: observer failed", "seq", ch.Seq, "err", err)
			if first == nil {
				first = &Error{Kind: KindObserver, Err: err}
			}
		}
	}
	return first
}
