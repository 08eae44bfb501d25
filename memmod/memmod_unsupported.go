//go:build !(linux && cgo && (386 || amd64 || arm || arm64))

package memmod

import "errors"

var (
	ErrClosed      = errors.New("library is closed")
	errUnsupported = errors.New("memmod requires linux with cgo")
)

type Module struct{}

func LoadLibrary(data []byte) (*Module, error) {
	_ = data
	return nil, errUnsupported
}

func (module *Module) Free() {}

func (module *Module) CallExport(name string) error {
	_ = name
	return errUnsupported
}

func (module *Module) ProcAddressByName(name string) (uintptr, error) {
	_ = name
	return 0, errUnsupported
}
