package fault

import (
	"errors"
	"reflect"
	"sync/atomic"
)

// maxUnwrapDepth bounds every walk over an Unwrap chain.
const maxUnwrapDepth = 64

// WrapperRegistry is a set of error types treated as transparent carriers.
// Readers see an immutable snapshot; Add and Remove publish a new copy.
type WrapperRegistry struct {
	types atomic.Pointer[map[reflect.Type]struct{}]
}

// NewWrapperRegistry returns a registry holding the given types.
func NewWrapperRegistry(types ...reflect.Type) *WrapperRegistry {
	r := &WrapperRegistry{}
	set := make(map[reflect.Type]struct{}, len(types))
	for _, t := range types {
		if t != nil {
			set[t] = struct{}{}
		}
	}
	r.types.Store(&set)
	return r
}

// NewDefaultWrapperRegistry returns a registry holding *PanicError.
func NewDefaultWrapperRegistry() *WrapperRegistry {
	return NewWrapperRegistry(reflect.TypeFor[*PanicError]())
}

// Add registers types. Already registered types are ignored.
func (r *WrapperRegistry) Add(types ...reflect.Type) {
	r.update(func(set map[reflect.Type]struct{}) {
		for _, t := range types {
			if t != nil {
				set[t] = struct{}{}
			}
		}
	})
}

// Remove unregisters types.
func (r *WrapperRegistry) Remove(types ...reflect.Type) {
	r.update(func(set map[reflect.Type]struct{}) {
		for _, t := range types {
			delete(set, t)
		}
	})
}

func (r *WrapperRegistry) update(mutate func(map[reflect.Type]struct{})) {
	for {
		old := r.types.Load()
		next := make(map[reflect.Type]struct{}, len(*old)+1)
		for t := range *old {
			next[t] = struct{}{}
		}
		mutate(next)
		if r.types.CompareAndSwap(old, &next) {
			return
		}
	}
}

// Contains reports whether t is registered.
func (r *WrapperRegistry) Contains(t reflect.Type) bool {
	_, ok := (*r.types.Load())[t]
	return ok
}

// Len returns the number of registered types.
func (r *WrapperRegistry) Len() int {
	return len(*r.types.Load())
}

// Normalize replaces err with its cause for as long as err is a registered
// wrapper that has one. A registered wrapper without a cause is returned as is.
func (r *WrapperRegistry) Normalize(err error) error {
	set := *r.types.Load()
	for depth := 0; err != nil && depth < maxUnwrapDepth; depth++ {
		if _, ok := set[reflect.TypeOf(err)]; !ok {
			return err
		}
		inner := errors.Unwrap(err)
		if inner == nil {
			return err
		}
		err = inner
	}
	return err
}
