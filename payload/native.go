package payload

import (
	"bytes"
	"debug/elf"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf16"

	"github.com/sliverarmory/snfix/memmod"
)

var ErrLoaderReleased = errors.New("payload: loader is released")

// NativeRuntime runs payloads shipped as ELF shared objects. A class is the
// set of exports named after it with JNI short-name mangling, and a static
// method is the export Java_<class>_<method>.
type NativeRuntime struct{}

func (NativeRuntime) SystemLoader() (Loader, error) {
	return systemLoader{}, nil
}

func (NativeRuntime) NewMemoryLoader(image []byte, parent Loader) (Loader, error) {
	if len(image) == 0 {
		return nil, errors.New("empty library image")
	}
	exports, err := imageExports(image)
	if err != nil {
		return nil, err
	}

	module, err := memmod.LoadLibrary(image)
	if err != nil {
		return nil, fmt.Errorf("load library: %w", err)
	}
	return &nativeLoader{parent: parent, module: module, exports: exports}, nil
}

// systemLoader is the root of the native loader hierarchy. It defines no
// classes of its own.
type systemLoader struct{}

func (systemLoader) LoadClass(name string) (Class, error) {
	return nil, fmt.Errorf("%w: %s", ErrClassNotFound, name)
}

func (systemLoader) Release() {}

type nativeLoader struct {
	mu      sync.RWMutex
	parent  Loader
	module  *memmod.Module
	exports []string
	closed  bool
}

// LoadClass delegates to the parent first, like any Java class loader.
func (loader *nativeLoader) LoadClass(name string) (Class, error) {
	if loader.parent != nil {
		class, err := loader.parent.LoadClass(name)
		if err == nil {
			return class, nil
		}
		if !errors.Is(err, ErrClassNotFound) {
			return nil, err
		}
	}

	loader.mu.RLock()
	defer loader.mu.RUnlock()
	if loader.closed {
		return nil, ErrLoaderReleased
	}

	prefix := "Java_" + mangle(name) + "_"
	for _, export := range loader.exports {
		if strings.HasPrefix(export, prefix) {
			return &nativeClass{loader: loader, name: name, prefix: prefix}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrClassNotFound, name)
}

func (loader *nativeLoader) Release() {
	loader.mu.Lock()
	defer loader.mu.Unlock()

	if loader.closed {
		return
	}
	loader.closed = true
	loader.exports = nil
	if loader.module != nil {
		loader.module.Free()
		loader.module = nil
	}
}

type nativeClass struct {
	loader *nativeLoader
	name   string
	prefix string
}

func (class *nativeClass) StaticMethod(name string) (Method, error) {
	symbol := class.prefix + mangle(name)

	class.loader.mu.RLock()
	defer class.loader.mu.RUnlock()
	if class.loader.closed {
		return nil, ErrLoaderReleased
	}
	if _, err := class.loader.module.ProcAddressByName(symbol); err != nil {
		return nil, fmt.Errorf("%w: %s.%s: %w", ErrMethodNotFound, class.name, name, err)
	}
	return &nativeMethod{loader: class.loader, symbol: symbol}, nil
}

func (class *nativeClass) Release() {}

type nativeMethod struct {
	loader *nativeLoader
	symbol string
}

func (method *nativeMethod) Invoke() error {
	method.loader.mu.RLock()
	defer method.loader.mu.RUnlock()
	if method.loader.closed {
		return ErrLoaderReleased
	}
	return method.loader.module.CallExport(method.symbol)
}

// mangle applies JNI short-name escaping to a class or method name.
func mangle(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '.' || r == '/':
			b.WriteByte('_')
		case r == '_':
			b.WriteString("_1")
		case r == ';':
			b.WriteString("_2")
		case r == '[':
			b.WriteString("_3")
		case r < 0x80:
			b.WriteRune(r)
		case r > 0xffff:
			hi, lo := utf16.EncodeRune(r)
			fmt.Fprintf(&b, "_0%04x_0%04x", hi, lo)
		default:
			fmt.Fprintf(&b, "_0%04x", r)
		}
	}
	return b.String()
}

func imageExports(image []byte) ([]string, error) {
	f, err := elf.NewFile(bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("invalid ELF image: %w", err)
	}
	defer f.Close()

	syms, err := f.DynamicSymbols()
	if err != nil {
		return nil, fmt.Errorf("read dynamic symbols: %w", err)
	}
	exports := make([]string, 0, len(syms))
	for _, sym := range syms {
		if sym.Section == elf.SHN_UNDEF || elf.ST_TYPE(sym.Info) != elf.STT_FUNC {
			continue
		}
		exports = append(exports, sym.Name)
	}
	return exports, nil
}
