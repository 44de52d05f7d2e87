package object

import (
	"fmt"
	"reflect"
)

// Destroyable is implemented by everything a Ptr can own.
type Destroyable interface {
	Destroy()
}

// Ptr is an exclusive owner. Ownership moves with Release; dropping it through
// Reset runs the target's Destroy path instead of freeing it directly.
type Ptr[T Destroyable] struct {
	ref   WeakRef[T]
	owned bool
}

// Own wraps an object that nothing else owns yet.
func Own[T Destroyable](ref WeakRef[T]) Ptr[T] {
	return Ptr[T]{ref: ref, owned: ref.Valid()}
}

func (p *Ptr[T]) IsNil() bool { return p == nil || !p.owned }

// Get returns the owned object or the zero value after Release/Reset.
func (p *Ptr[T]) Get() T {
	if p.IsNil() {
		var zero T
		return zero
	}
	obj, _ := p.ref.Get()
	return obj
}

func (p *Ptr[T]) Ref() WeakRef[T] {
	if p.IsNil() {
		return WeakRef[T]{}
	}
	return p.ref
}

// Release gives up ownership and returns the object to the caller, who takes
// over responsibility for it.
func (p *Ptr[T]) Release() T {
	obj := p.Get()
	p.owned = false
	p.ref = WeakRef[T]{}
	return obj
}

// Reset destroys the owned object, if any.
func (p *Ptr[T]) Reset() {
	if p.IsNil() {
		return
	}
	obj, ok := p.ref.Get()
	p.owned = false
	p.ref = WeakRef[T]{}
	if ok {
		obj.Destroy()
	}
}

// PtrCast moves ownership to a Ptr of another base or capability type. On
// mismatch the source keeps ownership.
func PtrCast[U Destroyable, T Destroyable](p *Ptr[T]) (Ptr[U], error) {
	if p.IsNil() {
		return Ptr[U]{}, nil
	}
	ref, err := Cast[U](p.ref)
	if err != nil {
		return Ptr[U]{}, err
	}
	if !ref.Valid() {
		return Ptr[U]{}, fmt.Errorf("%w: owned %s is no longer alive", ErrTypeMismatch, reflect.TypeFor[T]())
	}
	p.owned = false
	p.ref = WeakRef[T]{}
	return Ptr[U]{ref: ref, owned: true}, nil
}
