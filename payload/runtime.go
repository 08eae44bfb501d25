package payload

import "errors"

var (
	ErrClassNotFound  = errors.New("class not found")
	ErrMethodNotFound = errors.New("method not found")
)

// EntryPoint names the static, no-argument routine invoked in the payload.
type EntryPoint struct {
	Class  string
	Method string
}

var DefaultEntryPoint = EntryPoint{
	Class:  "es.chiteroman.playintegrityfix.EntryPoint",
	Method: "init",
}

func (e EntryPoint) String() string {
	return e.Class + "." + e.Method
}

// Runtime is the managed runtime of the target process.
type Runtime interface {
	// SystemLoader returns the primary class loader of the process.
	SystemLoader() (Loader, error)
	// NewMemoryLoader builds a loader over image, which it must not copy
	// or retain past Release.
	NewMemoryLoader(image []byte, parent Loader) (Loader, error)
}

type Loader interface {
	LoadClass(name string) (Class, error)
	Release()
}

type Class interface {
	StaticMethod(name string) (Method, error)
	Release()
}

type Method interface {
	Invoke() error
}
