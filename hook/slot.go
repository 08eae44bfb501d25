package hook

import (
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"
	"unsafe"
)

// ErrSlotChanged is returned when the slot was rewritten between reading the
// original entry and installing the replacement.
var ErrSlotChanged = errors.New("hook: slot changed during patch")

// Load atomically reads the function stored in slot.
// Every caller that dispatches through a hookable slot must read it this way
// so that a concurrent Patch is observed either fully or not at all.
func Load[F any](slot unsafe.Pointer) F {
	mustBeFunc[F]()
	p := atomic.LoadPointer((*unsafe.Pointer)(slot))
	return *(*F)(unsafe.Pointer(&p))
}

// SlotPatcher patches function slots: package-level function variables,
// GOT entries and the like. The slot holds a single pointer, so it can be
// swapped atomically without stopping other threads.
type SlotPatcher[F any] struct{}

// Patch records the current slot contents into original and then swaps in
// replacement.
func (SlotPatcher[F]) Patch(slot unsafe.Pointer, replacement F, original *F) error {
	mustBeFunc[F]()
	if slot == nil {
		return errors.New("hook: nil slot address")
	}
	if reflect.ValueOf(replacement).IsNil() {
		return errors.New("hook: nil replacement")
	}

	entry := (*unsafe.Pointer)(slot)
	old := atomic.LoadPointer(entry)
	if old == nil {
		return fmt.Errorf("hook: slot %p is empty", slot)
	}
	*original = *(*F)(unsafe.Pointer(&old))

	next := *(*unsafe.Pointer)(unsafe.Pointer(&replacement))
	if !atomic.CompareAndSwapPointer(entry, old, next) {
		var zero F
		*original = zero
		return ErrSlotChanged
	}
	return nil
}

func mustBeFunc[F any]() {
	if reflect.TypeFor[F]().Kind() != reflect.Func {
		panic(fmt.Sprintf("hook: slot type %s is not a func", reflect.TypeFor[F]()))
	}
}
