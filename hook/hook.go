// Package hook installs a single replacement for a process-wide entry point.
//
// An Interceptor resolves the entry point by symbol name, records the entry
// that was live as the original and switches callers to the replacement.
// The installation is attempted at most once per Interceptor; its outcome is
// recorded and never changes afterwards.
package hook

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"
)

var ErrAlreadyAttempted = errors.New("hook: installation already attempted")

// Patcher switches the entry point in slot to replacement. It must store the
// entry that was live before the switch into original before any caller can
// observe replacement.
type Patcher[F any] interface {
	Patch(slot unsafe.Pointer, replacement F, original *F) error
}

type Outcome int32

const (
	NotAttempted Outcome = iota
	Installed
	Failed
)

func (o Outcome) String() string {
	switch o {
	case NotAttempted:
		return "not-attempted"
	case Installed:
		return "installed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int32(o))
	}
}

// Binding is the resolved entry point and the original it replaced.
type Binding[F any] struct {
	Symbol string
	Slot   unsafe.Pointer

	original F
}

func (b Binding[F]) Original() F {
	return b.original
}

type Interceptor[F any] struct {
	resolver Resolver
	patcher  Patcher[F]

	attempted atomic.Bool
	outcome   atomic.Int32
	binding   Binding[F]
	err       error
}

func NewInterceptor[F any](resolver Resolver, patcher Patcher[F]) *Interceptor[F] {
	return &Interceptor[F]{resolver: resolver, patcher: patcher}
}

// Install resolves symbol and routes every later call through replacement.
// Only the first call has any effect; later calls return ErrAlreadyAttempted.
func (i *Interceptor[F]) Install(symbol string, replacement F) error {
	if !i.attempted.CompareAndSwap(false, true) {
		return ErrAlreadyAttempted
	}

	err := i.install(symbol, replacement)
	if err != nil {
		i.err = err
		i.outcome.Store(int32(Failed))
		return err
	}
	i.outcome.Store(int32(Installed))
	return nil
}

func (i *Interceptor[F]) install(symbol string, replacement F) error {
	slot, err := i.resolver.Resolve(symbol)
	if err != nil {
		if !errors.Is(err, ErrSymbolNotFound) {
			err = fmt.Errorf("%w: %s: %w", ErrSymbolNotFound, symbol, err)
		}
		return err
	}
	if slot == nil {
		return fmt.Errorf("%w: %s resolved to nil", ErrSymbolNotFound, symbol)
	}

	i.binding.Symbol = symbol
	i.binding.Slot = slot
	if err := i.patcher.Patch(slot, replacement, &i.binding.original); err != nil {
		return fmt.Errorf("hook: patch %s at %p: %w", symbol, slot, err)
	}
	return nil
}

func (i *Interceptor[F]) Outcome() Outcome {
	return Outcome(i.outcome.Load())
}

// Err is the installation error, if the installation failed.
func (i *Interceptor[F]) Err() error {
	if i.Outcome() != Failed {
		return nil
	}
	return i.err
}

// Original returns the entry point that was live before installation. It is
// the zero value unless the outcome is Installed; a replacement only runs
// after a successful Patch, so it can always call Original.
func (i *Interceptor[F]) Original() F {
	return i.binding.original
}

// Binding returns a copy of the installed binding.
func (i *Interceptor[F]) Binding() (Binding[F], bool) {
	if i.Outcome() != Installed {
		return Binding[F]{}, false
	}
	return i.binding, true
}
