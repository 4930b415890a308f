package doc

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/andreyvit/docorm/journal"
)

type RepoOptions struct {
	Logger  *slog.Logger
	Verbose bool

	// CompactEvery replaces the change log with a snapshot once a document
	// accumulates this many changes. Zero disables automatic compaction.
	CompactEvery int

	// Journal, if set, receives a copy of every change appended to storage
	// and keeps it after compaction. See ReplayJournal.
	Journal *journal.Journal
}

// Repo is a set of documents persisted to a Storage. Each document is loaded
// at most once and shared through its Handle.
type Repo struct {
	storage      Storage
	logger       *slog.Logger
	verbose      bool
	compactEvery int
	journal      *journal.Journal

	mu      sync.Mutex
	handles map[DocumentID]*Handle
	closed  bool
}

func NewRepo(storage Storage, opt RepoOptions) *Repo {
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	return &Repo{
		storage:      storage,
		logger:       opt.Logger,
		verbose:      opt.Verbose,
		compactEvery: opt.CompactEvery,
		journal:      opt.Journal,
		handles:      make(map[DocumentID]*Handle),
	}
}

// NewDocument creates and persists an empty document.
func (r *Repo) NewDocument() (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}

	id := NewDocumentID()
	d := New()
	snap, err := d.Save()
	if err != nil {
		return nil, err
	}
	if err := r.storage.Compact(id, snap, 0); err != nil {
		return nil, err
	}
	if r.verbose {
		r.logger.Debug("doc: CREATE", "doc", id)
	}
	h := r.newHandle(id, d)
	return h, nil
}

// Find returns the handle of a document, loading it from storage on first
// access. Unknown documents fail with ErrDocumentNotFound.
func (r *Repo) Find(id DocumentID) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if h := r.handles[id]; h != nil {
		return h, nil
	}

	sd, err := r.storage.Load(id)
	if err != nil {
		return nil, err
	}
	d, err := Load(sd.Snapshot, sd.Changes)
	if err != nil {
		return nil, fmt.Errorf("doc: loading %v: %w", id, err)
	}
	if r.verbose {
		r.logger.Debug("doc: LOAD", "doc", id, "seq", d.Seq(), "changes", len(sd.Changes))
	}
	return r.newHandle(id, d), nil
}

func (r *Repo) newHandle(id DocumentID, d *Doc) *Handle {
	h := &Handle{repo: r, id: id, doc: d}
	r.handles[id] = h
	return h
}

func (r *Repo) List() ([]DocumentID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	return r.storage.List()
}

// Delete removes a document from storage. Existing handles keep working on
// their in-memory copy but no longer persist anything.
func (r *Repo) Delete(id DocumentID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if h := r.handles[id]; h != nil {
		h.mu.Lock()
		h.deleted = true
		h.mu.Unlock()
		delete(r.handles, id)
	}
	return r.storage.Delete(id)
}

func (r *Repo) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.handles = nil
	return r.storage.Close()
}

// Handle guards a loaded document. WithDoc runs readers concurrently under
// a shared lock; WithDocMut runs a single writer under an exclusive lock and
// persists whatever the writer committed.
type Handle struct {
	repo *Repo
	id   DocumentID

	mu      sync.RWMutex
	doc     *Doc
	deleted bool
}

func (h *Handle) ID() DocumentID {
	return h.id
}

// WithDoc calls f with the document under a shared lock. f must not open
// transactions.
func (h *Handle) WithDoc(f func(d *Doc) error) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return f(h.doc)
}

// WithDocMut calls f with the document under an exclusive lock held for the
// whole call. Changes committed by f are appended to storage before the lock
// is released, even if f returns an error afterwards. If appending fails, the
// error is returned and the changes, already visible in memory, are retried
// by the next WithDocMut. A transaction f leaves open is rolled back.
func (h *Handle) WithDocMut(f func(d *Doc) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	err := f(h.doc)
	if tx := h.doc.tx; tx != nil {
		h.repo.logger.Warn("doc: rolling back transaction left open", "doc", h.id, "ops", tx.OpCount())
		tx.Rollback()
	}
	if ferr := h.flushLocked(); ferr != nil {
		return errors.Join(err, ferr)
	}
	return err
}

// flushLocked appends pending changes to storage in order. Changes that
// could not be appended stay pending and are retried by the next flush, so a
// transient storage failure does not leave a gap in the stored log.
func (h *Handle) flushLocked() error {
	pending := h.doc.takePending()
	if h.deleted || len(pending) == 0 {
		return nil
	}
	var appended []*Change
	var raws [][]byte
	var err error
	for i, ch := range pending {
		var raw []byte
		raw, err = EncodeChange(ch)
		if err == nil {
			err = h.repo.storage.Append(h.id, ch.Seq, raw)
		}
		if err != nil {
			h.doc.requeuePending(pending[i:])
			h.repo.logger.Warn("doc: append failed, will retry", "doc", h.id, "seq", ch.Seq, "unflushed", len(pending)-i, "err", err)
			break
		}
		if h.repo.verbose {
			h.repo.logger.Debug("doc: APPEND", "doc", h.id, "seq", ch.Seq, "ops", len(ch.Ops), "message", ch.Message)
		}
		appended = append(appended, ch)
		raws = append(raws, raw)
	}
	if jerr := h.archiveLocked(appended, raws); jerr != nil {
		return errors.Join(err, jerr)
	}
	if err != nil {
		return err
	}
	if n := h.repo.compactEvery; n > 0 && len(h.doc.changes) >= n {
		return h.compactLocked()
	}
	return nil
}

func (h *Handle) archiveLocked(changes []*Change, raws [][]byte) error {
	j := h.repo.journal
	if j == nil || len(changes) == 0 {
		return nil
	}
	for i, ch := range changes {
		if err := j.WriteRecord(journalTimestamp(ch), journalRecord(h.id, raws[i])); err != nil {
			return fmt.Errorf("doc: archiving %v seq %d: %w", h.id, ch.Seq, err)
		}
	}
	if err := j.Commit(); err != nil {
		return fmt.Errorf("doc: archiving %v: %w", h.id, err)
	}
	return nil
}

// Compact replaces the document's change log with a snapshot of its current
// state.
func (h *Handle) Compact() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.deleted {
		return ErrDocumentNotFound
	}
	return h.compactLocked()
}

func (h *Handle) compactLocked() error {
	snap, err := h.doc.Save()
	if err != nil {
		return err
	}
	if err := h.repo.storage.Compact(h.id, snap, h.doc.seq); err != nil {
		return err
	}
	if h.repo.verbose {
		h.repo.logger.Debug("doc: COMPACT", "doc", h.id, "seq", h.doc.seq, "changes", len(h.doc.changes))
	}
	h.doc.changes = nil
	h.doc.pending = nil
	return nil
}
