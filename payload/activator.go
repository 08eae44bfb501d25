// Package payload activates a delivered code payload inside the managed
// runtime of the target process.
package payload

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

var (
	ErrEmptyPayload = errors.New("payload: empty payload")
	ErrActivation   = errors.New("payload: activation failed")
)

type Activator struct {
	Runtime Runtime
	Entry   EntryPoint
	Log     logrus.FieldLogger
}

// Activate loads buf into a memory class loader parented to the system
// loader and invokes the entry point. buf is released on every path,
// together with every runtime handle obtained on the way.
func (a *Activator) Activate(buf *Buffer) error {
	defer buf.Release()

	if buf.Empty() {
		return ErrEmptyPayload
	}
	log := a.logger()
	entry := a.Entry
	if entry.Class == "" || entry.Method == "" {
		entry = DefaultEntryPoint
	}
	log.Debugf("payload size: %d", buf.Len())

	log.Debug("getSystemClassLoader")
	parent, err := a.Runtime.SystemLoader()
	if err != nil {
		return fmt.Errorf("%w: system class loader: %w", ErrActivation, err)
	}
	defer parent.Release()

	log.Debug("InMemoryClassLoader")
	loader, err := a.Runtime.NewMemoryLoader(buf.Bytes(), parent)
	if err != nil {
		return fmt.Errorf("%w: memory class loader: %w", ErrActivation, err)
	}
	defer loader.Release()

	log.Debugf("loadClass %s", entry.Class)
	class, err := loader.LoadClass(entry.Class)
	if err != nil {
		return fmt.Errorf("%w: load %s: %w", ErrActivation, entry.Class, err)
	}
	defer class.Release()

	method, err := class.StaticMethod(entry.Method)
	if err != nil {
		return fmt.Errorf("%w: resolve %s: %w", ErrActivation, entry, err)
	}

	log.Debugf("invoke %s", entry)
	if err := method.Invoke(); err != nil {
		return fmt.Errorf("%w: invoke %s: %w", ErrActivation, entry, err)
	}
	log.Debug("clean")
	return nil
}

func (a *Activator) logger() logrus.FieldLogger {
	if a.Log != nil {
		return a.Log
	}
	return logrus.WithField("component", "payload")
}
