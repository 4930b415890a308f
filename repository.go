package docorm

import (
	"github.com/andreyvit/docorm/doc"
)

// EntityRepository reads committed entities of one type.
type EntityRepository[T Mapped] interface {
	Find(id Key[T]) (*T, error)
	FindAll() (*EntityMap[T], error)
}

// DefaultEntityRepository reads straight from the document under its shared
// lock, without a transaction. It never observes a transaction in progress.
type DefaultEntityRepository[T Mapped] struct {
	manager *EntityManager
}

var _ EntityRepository[Mapped] = (*DefaultEntityRepository[Mapped])(nil)

func NewEntityRepository[T Mapped](m *EntityManager) *DefaultEntityRepository[T] {
	return &DefaultEntityRepository[T]{manager: m}
}

func (r *DefaultEntityRepository[T]) Find(id Key[T]) (*T, error) {
	var result *T
	err := r.manager.Doc().WithDoc(func(d *doc.Doc) error {
		var err error
		result, err = Find[T](d, id)
		return err
	})
	return result, err
}

func (r *DefaultEntityRepository[T]) FindAll() (*EntityMap[T], error) {
	var result *EntityMap[T]
	err := r.manager.Doc().WithDoc(func(d *doc.Doc) error {
		var err error
		result, err = FindAll[T](d)
		return err
	})
	return result, err
}
