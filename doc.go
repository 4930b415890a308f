/*
Package docorm stores typed entities as tables inside a hierarchical document
(see package doc), with atomic multi-operation transactions, optimistic
existence checks and typed keys.

# Layout

The document root is a map. Every entity type owns one property of the root
named by its TableName; that property is a map ("table") created lazily on the
first write and never removed, even when emptied. Inside a table, each entity
lives under the canonical string form of its key (a UUID) as a map of its
fields.

# Entities

An entity is any type with TableName and Key methods:

	type Book struct {
		ID     docorm.Key[Book] `msgpack:"id"`
		Title  string           `msgpack:"title"`
		Author string           `msgpack:"author"`
	}

	func (Book) TableName() string       { return docorm.TableNameOf[Book]() }
	func (b Book) Key() docorm.Key[Book] { return b.ID }

Fields are mapped through msgpack: struct tags, omitempty and
encoding.BinaryMarshaler all apply. Keys are stored as 16 bytes.

# Transactions

EntityManager.Transact runs a function under the document's exclusive lock
with a fresh Transaction, then commits, or rolls back if the function fails:

	err := m.Transact(func(tx *docorm.Transaction) error {
		return docorm.Insert(tx, book)
	})

Entity operations (Insert, GetOrInsert, Update, Upsert, Remove) check
existence against the transaction's own state; nothing is visible to readers
until commit. A failed function leaves the document exactly as it was and
yields an ErrTransactionAborted error wrapping the cause.

# Errors

Every failure is an *Error. Its Kind tells what happened, and kinds double as
sentinels for errors.Is. Absence is never an error: Find returns nil and
FindAll returns an empty map.
*/
package docorm
