package object

import (
	"errors"
	"fmt"
	"reflect"
)

var ErrTypeMismatch = errors.New("object: type mismatch")

// WeakRef observes an object without keeping it alive. The zero value is an
// absent reference.
type WeakRef[T any] struct {
	reg *Registry
	h   Handle
	ptr T
}

// RefOf builds a reference to obj, which must be the object registered under h.
func RefOf[T any](reg *Registry, h Handle, obj T) WeakRef[T] {
	return WeakRef[T]{reg: reg, h: h, ptr: obj}
}

// Get returns the target, or the zero value and false once it was invalidated.
func (r WeakRef[T]) Get() (T, bool) {
	if r.reg == nil || !r.reg.Alive(r.h) {
		var zero T
		return zero, false
	}
	return r.ptr, true
}

func (r WeakRef[T]) Valid() bool {
	return r.reg != nil && r.reg.Alive(r.h)
}

func (r WeakRef[T]) Handle() Handle { return r.h }

// Uid of the target, NullUid when absent.
func (r WeakRef[T]) Uid() Uid {
	if !r.Valid() {
		return NullUid
	}
	return r.reg.slots[r.h.Index()].uid
}

// Cast re-types a reference while keeping the same liveness slot. Casting an
// absent reference yields an absent reference.
func Cast[U, T any](r WeakRef[T]) (WeakRef[U], error) {
	obj, ok := r.Get()
	if !ok {
		return WeakRef[U]{}, nil
	}
	u, ok := any(obj).(U)
	if !ok {
		return WeakRef[U]{}, fmt.Errorf("%w: %T is not %s", ErrTypeMismatch, obj, reflect.TypeFor[U]())
	}
	return WeakRef[U]{reg: r.reg, h: r.h, ptr: u}, nil
}
