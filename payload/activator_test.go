package payload

import (
	"bytes"
	"errors"
	"testing"
)

type fakeRuntime struct {
	image    []byte
	classes  map[string]map[string]func() error
	failSys  bool
	released []string
	invoked  []string
}

type fakeLoader struct {
	rt     *fakeRuntime
	name   string
	memory bool
}

type fakeClass struct {
	rt      *fakeRuntime
	name    string
	methods map[string]func() error
}

type fakeMethod struct {
	rt   *fakeRuntime
	name string
	fn   func() error
}

func (rt *fakeRuntime) SystemLoader() (Loader, error) {
	if rt.failSys {
		return nil, errors.New("no system loader")
	}
	return &fakeLoader{rt: rt, name: "system"}, nil
}

func (rt *fakeRuntime) NewMemoryLoader(image []byte, parent Loader) (Loader, error) {
	if parent == nil {
		return nil, errors.New("nil parent")
	}
	rt.image = image
	return &fakeLoader{rt: rt, name: "memory", memory: true}, nil
}

func (l *fakeLoader) LoadClass(name string) (Class, error) {
	methods, ok := l.rt.classes[name]
	if !l.memory || !ok {
		return nil, ErrClassNotFound
	}
	return &fakeClass{rt: l.rt, name: name, methods: methods}, nil
}

func (l *fakeLoader) Release() { l.rt.released = append(l.rt.released, "loader:"+l.name) }

func (c *fakeClass) StaticMethod(name string) (Method, error) {
	fn, ok := c.methods[name]
	if !ok {
		return nil, ErrMethodNotFound
	}
	return &fakeMethod{rt: c.rt, name: c.name + "." + name, fn: fn}, nil
}

func (c *fakeClass) Release() { c.rt.released = append(c.rt.released, "class:"+c.name) }

func (m *fakeMethod) Invoke() error {
	m.rt.invoked = append(m.rt.invoked, m.name)
	return m.fn()
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		classes: map[string]map[string]func() error{
			DefaultEntryPoint.Class: {
				DefaultEntryPoint.Method: func() error { return nil },
			},
		},
	}
}

func payloadBuffer(content string) *Buffer {
	buf := NewBuffer(len(content))
	copy(buf.Bytes(), content)
	return buf
}

func TestActivateInvokesEntryAndReleases(t *testing.T) {
	rt := newFakeRuntime()
	buf := payloadBuffer("dex\n035\x00payload")
	view := buf.Bytes()

	activator := &Activator{Runtime: rt}
	if err := activator.Activate(buf); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	if len(rt.invoked) != 1 || rt.invoked[0] != DefaultEntryPoint.String() {
		t.Fatalf("invoked = %v", rt.invoked)
	}
	if &rt.image[0] != &view[0] {
		t.Fatalf("memory loader did not receive the buffer without copying")
	}
	want := []string{"class:" + DefaultEntryPoint.Class, "loader:memory", "loader:system"}
	if len(rt.released) != len(want) {
		t.Fatalf("released = %v, want %v", rt.released, want)
	}
	for i := range want {
		if rt.released[i] != want[i] {
			t.Fatalf("released = %v, want %v", rt.released, want)
		}
	}
	assertReleased(t, buf, view)
}

func TestActivateFailuresStillRelease(t *testing.T) {
	tests := []struct {
		name  string
		setup func(rt *fakeRuntime)
		entry EntryPoint
		want  error
	}{
		{
			name:  "system loader",
			setup: func(rt *fakeRuntime) { rt.failSys = true },
		},
		{
			name:  "class not found",
			entry: EntryPoint{Class: "com.example.Missing", Method: "init"},
			want:  ErrClassNotFound,
		},
		{
			name:  "method not found",
			entry: EntryPoint{Class: DefaultEntryPoint.Class, Method: "main"},
			want:  ErrMethodNotFound,
		},
		{
			name: "entry throws",
			setup: func(rt *fakeRuntime) {
				rt.classes[DefaultEntryPoint.Class][DefaultEntryPoint.Method] = func() error {
					return errors.New("java.lang.IllegalStateException")
				}
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rt := newFakeRuntime()
			if tc.setup != nil {
				tc.setup(rt)
			}
			buf := payloadBuffer("payload")
			view := buf.Bytes()

			err := (&Activator{Runtime: rt, Entry: tc.entry}).Activate(buf)
			if !errors.Is(err, ErrActivation) {
				t.Fatalf("Activate: got %v, want ErrActivation", err)
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("Activate: got %v, want %v", err, tc.want)
			}
			assertReleased(t, buf, view)
		})
	}
}

func TestActivateEmptyPayload(t *testing.T) {
	rt := newFakeRuntime()
	buf := NewBuffer(0)
	if err := (&Activator{Runtime: rt}).Activate(buf); !errors.Is(err, ErrEmptyPayload) {
		t.Fatalf("got %v, want ErrEmptyPayload", err)
	}
	if len(rt.invoked) != 0 {
		t.Fatalf("entry invoked for empty payload")
	}
	if buf.Cap() != 0 {
		t.Fatalf("buffer not released")
	}
}

func assertReleased(t *testing.T, buf *Buffer, view []byte) {
	t.Helper()
	if buf.Len() != 0 || buf.Cap() != 0 || buf.Bytes() != nil {
		t.Fatalf("buffer not released: len=%d cap=%d", buf.Len(), buf.Cap())
	}
	if !bytes.Equal(view, make([]byte, len(view))) {
		t.Fatalf("released payload bytes were not wiped")
	}
}
