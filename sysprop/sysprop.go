// Package sysprop is an in-process system property area with a single,
// hookable read entry point.
//
// Every read goes through ReadCallback, the way bionic routes reads through
// __system_property_read_callback: whoever replaces that slot observes, and
// may rewrite, every property value handed to a reader.
package sysprop

import (
	"sort"
	"sync"
	"unsafe"

	"github.com/sliverarmory/snfix/hook"
)

// ReadCallbackSymbol is the linker name of the ReadCallback slot.
const ReadCallbackSymbol = "github.com/sliverarmory/snfix/sysprop.ReadCallback"

// PropInfo is a snapshot of one property.
type PropInfo struct {
	Name   string
	Value  string
	Serial uint32
}

// Callback receives a property value. cookie is passed through untouched.
type Callback func(cookie uintptr, name, value string, serial uint32)

// ReadFunc hands the value of pi to cb.
type ReadFunc func(pi *PropInfo, cb Callback, cookie uintptr)

// ReadCallback is the process-wide read entry point. Do not assign it
// directly; it is read atomically and patched with hook.SlotPatcher.
var ReadCallback ReadFunc = readCallback

func readCallback(pi *PropInfo, cb Callback, cookie uintptr) {
	cb(cookie, pi.Name, pi.Value, pi.Serial)
}

func init() {
	hook.Register(ReadCallbackSymbol, ReadCallbackSlot())
}

// ReadCallbackSlot returns the ReadCallback slot.
func ReadCallbackSlot() unsafe.Pointer {
	return unsafe.Pointer(&ReadCallback)
}

// Read dispatches through the current ReadCallback.
func Read(pi *PropInfo, cb Callback, cookie uintptr) {
	hook.Load[ReadFunc](ReadCallbackSlot())(pi, cb, cookie)
}

type Area struct {
	mu     sync.RWMutex
	props  map[string]*PropInfo
	serial uint32
}

func NewArea() *Area {
	return &Area{props: make(map[string]*PropInfo)}
}

// Set stores value under name and bumps the serial of the property.
func (a *Area) Set(name, value string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.serial++
	// bionic layout: value length in the top byte, counter below
	serial := uint32(len(value))<<24 | a.serial&0xffffff
	if pi, ok := a.props[name]; ok {
		pi.Value = value
		pi.Serial = serial
		return
	}
	a.props[name] = &PropInfo{Name: name, Value: value, Serial: serial}
}

// Find returns a snapshot of name, or nil if it is not set.
func (a *Area) Find(name string) *PropInfo {
	a.mu.RLock()
	defer a.mu.RUnlock()

	pi, ok := a.props[name]
	if !ok {
		return nil
	}
	snapshot := *pi
	return &snapshot
}

// Get reads name through the read entry point.
func (a *Area) Get(name string) (string, bool) {
	pi := a.Find(name)
	if pi == nil {
		return "", false
	}

	var value string
	Read(pi, func(_ uintptr, _ string, v string, _ uint32) {
		value = v
	}, 0)
	return value, true
}

// Names returns the names of all properties, sorted.
func (a *Area) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	names := make([]string, 0, len(a.props))
	for name := range a.props {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
