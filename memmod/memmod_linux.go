//go:build linux && cgo && (386 || amd64 || arm || arm64)

// Package memmod loads ELF shared objects from memory and calls their
// exports. The image is written to an unlinked tmpfs or memfd file and
// opened with the dynamic linker of the running process.
package memmod

import (
	"bytes"
	"debug/elf"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/sliverarmory/snfix/internal/elfsym"
	"github.com/sliverarmory/snfix/internal/procmaps"
)

const (
	rtldNow   = 2
	rtldLocal = 0
)

type linuxDynAPI struct {
	dlopen  uintptr
	dlsym   uintptr
	dlclose uintptr
	dlerror uintptr
}

var (
	linuxAPIOnce sync.Once
	linuxAPI     linuxDynAPI
	linuxAPIErr  error
)

var ErrClosed = errors.New("library is closed")

type Module struct {
	mu     sync.RWMutex
	fd     int
	handle uintptr
	path   string
	closed bool
}

// LoadLibrary validates data as a shared object for the running
// architecture and maps it with dlopen. data is not retained.
func LoadLibrary(data []byte) (*Module, error) {
	if len(data) == 0 {
		return nil, errors.New("empty ELF image")
	}
	if err := validateELFForCurrentArch(data); err != nil {
		return nil, err
	}

	api, err := getLinuxDynAPI()
	if err != nil {
		return nil, err
	}

	fd, err := createAnonymousLibraryFD()
	if err != nil {
		return nil, fmt.Errorf("create anonymous shared object fd: %w", err)
	}
	if err := writeFull(fd, data); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	module := &Module{
		fd:   fd,
		path: fmt.Sprintf("/proc/self/fd/%d", fd),
	}

	cPath, err := cStringBytes(module.path)
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	// clear stale dlerror
	_ = cCall0(api.dlerror)
	handle := cCall2(api.dlopen, cStringPtr(cPath), uintptr(rtldNow|rtldLocal))
	runtime.KeepAlive(cPath)
	if handle == 0 {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("dlopen(%s): %w", module.path, lastDLErrorWithFallback(api, "unknown dlopen error"))
	}

	module.handle = handle
	return module, nil
}

func writeFull(fd int, data []byte) error {
	written := 0
	for written < len(data) {
		n, err := unix.Write(fd, data[written:])
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("write anonymous shared object: %w", err)
		}
		if n <= 0 {
			return fmt.Errorf("write anonymous shared object: short write (%d/%d)", written, len(data))
		}
		written += n
	}
	return nil
}

// Free unloads the image. Calling it more than once is a no-op.
func (module *Module) Free() {
	module.mu.Lock()
	defer module.mu.Unlock()

	if module.closed {
		return
	}
	module.closed = true

	if module.handle != 0 {
		if api, err := getLinuxDynAPI(); err == nil {
			_ = cCall1(api.dlclose, module.handle)
		}
		module.handle = 0
	}
	if module.fd >= 0 {
		_ = unix.Close(module.fd)
		module.fd = -1
	}
}

// CallExport resolves name and calls it with no arguments.
func (module *Module) CallExport(name string) error {
	addr, err := module.ProcAddressByName(name)
	if err != nil {
		return fmt.Errorf("resolve export %q: %w", name, err)
	}
	_ = cCall0(addr)
	return nil
}

func (module *Module) ProcAddressByName(name string) (uintptr, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, errors.New("export name cannot be empty")
	}

	module.mu.RLock()
	if module.closed {
		module.mu.RUnlock()
		return 0, ErrClosed
	}
	handle := module.handle
	module.mu.RUnlock()
	if handle == 0 {
		return 0, errors.New("library handle is nil")
	}

	api, err := getLinuxDynAPI()
	if err != nil {
		return 0, err
	}

	cName, err := cStringBytes(name)
	if err != nil {
		return 0, err
	}

	// clear stale dlerror
	_ = cCall0(api.dlerror)
	sym := cCall2(api.dlsym, handle, cStringPtr(cName))
	runtime.KeepAlive(cName)
	if err := lastDLError(api); err != nil {
		return 0, fmt.Errorf("dlsym(%s): %w", name, err)
	}
	if sym == 0 {
		return 0, errors.New("symbol address is nil")
	}
	return sym, nil
}

func createAnonymousLibraryFD() (int, error) {
	// memfd first: on Android /dev/shm does not exist.
	fd, err := unix.MemfdCreate("", unix.MFD_CLOEXEC)
	if err == nil {
		return fd, nil
	}

	tmpFD, tmpErr := unix.Open("/dev/shm", unix.O_RDWR|unix.O_CLOEXEC|unix.O_TMPFILE, 0o600)
	if tmpErr == nil {
		return tmpFD, nil
	}

	// Last resort: create then unlink immediately. The open fd stays usable
	// via /proc/self/fd/<n>.
	f, createErr := os.CreateTemp(os.TempDir(), "snfix-memmod-*")
	if createErr != nil {
		return -1, errors.Join(err, tmpErr, createErr)
	}
	name := f.Name()
	if rmErr := os.Remove(name); rmErr != nil {
		_ = f.Close()
		return -1, fmt.Errorf("unlink temp shared object %s: %w", name, rmErr)
	}
	dupFD, dupErr := unix.Dup(int(f.Fd()))
	if closeErr := f.Close(); closeErr != nil && dupErr == nil {
		_ = unix.Close(dupFD)
		return -1, fmt.Errorf("close temp shared object file %s: %w", name, closeErr)
	}
	if dupErr != nil {
		return -1, fmt.Errorf("dup temp shared object fd: %w", dupErr)
	}
	return dupFD, nil
}

func cStringBytes(s string) ([]byte, error) {
	if strings.ContainsRune(s, '\x00') {
		return nil, errors.New("string contains NUL")
	}
	b := make([]byte, len(s)+1)
	copy(b, s)
	return b, nil
}

func cStringPtr(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

func cStringFromPtr(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	const maxLen = 1 << 20
	buf := make([]byte, 0, 64)
	for i := 0; i < maxLen; i++ {
		ch := *(*byte)(unsafe.Pointer(ptr + uintptr(i)))
		if ch == 0 {
			return string(buf)
		}
		buf = append(buf, ch)
	}
	return string(buf)
}

func lastDLError(api *linuxDynAPI) error {
	msg := cStringFromPtr(cCall0(api.dlerror))
	if msg == "" {
		return nil
	}
	return errors.New(msg)
}

func lastDLErrorWithFallback(api *linuxDynAPI, fallback string) error {
	if err := lastDLError(api); err != nil {
		return err
	}
	return errors.New(fallback)
}

func getLinuxDynAPI() (*linuxDynAPI, error) {
	linuxAPIOnce.Do(func() {
		linuxAPIErr = initLinuxDynAPI()
	})
	if linuxAPIErr != nil {
		return nil, linuxAPIErr
	}
	return &linuxAPI, nil
}

// initLinuxDynAPI finds the dl* entry points in the mapped runtime
// libraries. Bionic keeps them in libdl.so, glibc 2.34+ and musl in libc.
func initLinuxDynAPI() error {
	entries, err := procmaps.Self()
	if err != nil {
		return err
	}

	resolve := func(name string) (uintptr, error) {
		addr, _, err := elfsym.Resolve(entries, name, isDynamicLinkerLibrary)
		if err != nil {
			return 0, fmt.Errorf("resolve runtime symbol %s: %w", name, err)
		}
		return addr, nil
	}

	var api linuxDynAPI
	for _, sym := range []struct {
		name string
		dst  *uintptr
	}{
		{"dlopen", &api.dlopen},
		{"dlsym", &api.dlsym},
		{"dlclose", &api.dlclose},
		{"dlerror", &api.dlerror},
	} {
		if *sym.dst, err = resolve(sym.name); err != nil {
			return err
		}
	}
	linuxAPI = api
	return nil
}

func isDynamicLinkerLibrary(path string) bool {
	p := strings.ToLower(path)
	for _, marker := range []string{"libdl.so", "libc.so", "libc-", "ld-musl", "ld-linux"} {
		if strings.Contains(p, marker) {
			return true
		}
	}
	return false
}

func validateELFForCurrentArch(data []byte) error {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("invalid ELF image: %w", err)
	}
	defer f.Close()

	machine, err := currentELFMachine()
	if err != nil {
		return err
	}
	if f.Machine != machine {
		return fmt.Errorf("foreign platform (provided: %s, expected: %s)", f.Machine, machine)
	}
	if f.Type != elf.ET_DYN {
		return fmt.Errorf("unsupported ELF file type: %s", f.Type)
	}
	return nil
}

func currentELFMachine() (elf.Machine, error) {
	switch runtime.GOARCH {
	case "386":
		return elf.EM_386, nil
	case "amd64":
		return elf.EM_X86_64, nil
	case "arm":
		return elf.EM_ARM, nil
	case "arm64":
		return elf.EM_AARCH64, nil
	default:
		return 0, fmt.Errorf("unsupported linux architecture: %s", runtime.GOARCH)
	}
}
