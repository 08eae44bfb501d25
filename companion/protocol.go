// Package companion moves the payload from the privileged companion process
// into the target process.
//
// The protocol is a single length-prefixed blob per connection: the
// companion writes a 4-byte signed length in native byte order followed by
// exactly that many bytes, and both sides close. The client sends nothing;
// connecting is the request.
package companion

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"os"
	"time"

	"github.com/sliverarmory/snfix/payload"
)

// MaxPayloadSize bounds the allocation a client makes for one payload.
const MaxPayloadSize = 256 << 20

// unavailable is sent as the length when the payload file cannot be read.
const unavailable int32 = -1

var (
	ErrShortRead          = errors.New("companion: short read")
	ErrPayloadUnavailable = errors.New("companion: payload unavailable")
	ErrPayloadTooLarge    = errors.New("companion: payload too large")
)

// Fetch receives one payload from conn and closes it. When conn is a
// net.Conn, a timeout above zero bounds each receive: the read deadline is
// renewed before every read, so a slow but steady companion is not cut off.
// Zero waits forever.
//
// On any failure the partially received buffer is released and nil is
// returned.
func Fetch(conn io.ReadCloser, timeout time.Duration) (*payload.Buffer, error) {
	defer conn.Close()

	var r io.Reader = conn
	if nc, ok := conn.(net.Conn); ok && timeout > 0 {
		r = &deadlineReader{conn: nc, timeout: timeout}
	}

	size, err := readLength(r)
	if err != nil {
		return nil, fmt.Errorf("recv size: %w", err)
	}
	switch {
	case size < 0:
		return nil, ErrPayloadUnavailable
	case size > MaxPayloadSize:
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, size)
	}

	buf := payload.NewBuffer(int(size))
	if _, err := io.ReadFull(r, buf.Bytes()); err != nil {
		buf.Release()
		return nil, fmt.Errorf("recv payload data: %w", shortRead(err))
	}
	return buf, nil
}

// deadlineReader sets a fresh read deadline before every Read.
type deadlineReader struct {
	conn    net.Conn
	timeout time.Duration
}

func (r *deadlineReader) Read(p []byte) (int, error) {
	if err := r.conn.SetReadDeadline(time.Now().Add(r.timeout)); err != nil {
		return 0, fmt.Errorf("companion: set deadline: %w", err)
	}
	return r.conn.Read(p)
}

func readLength(r io.Reader) (int32, error) {
	var raw [4]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return 0, shortRead(err)
	}
	return int32(binary.NativeEndian.Uint32(raw[:])), nil
}

func writeLength(w io.Writer, size int32) error {
	var raw [4]byte
	binary.NativeEndian.PutUint32(raw[:], uint32(size))
	_, err := w.Write(raw[:])
	return err
}

func shortRead(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %w", ErrShortRead, err)
	}
	return err
}

// ServeFile sends the file at path to w as one payload message. When the
// file cannot be opened or is too large for the length prefix, the length
// -1 is sent and the error returned.
func ServeFile(w io.Writer, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Join(err, writeLength(w, unavailable))
	}
	defer f.Close()

	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, errors.Join(fmt.Errorf("size %s: %w", path, err), writeLength(w, unavailable))
	}
	if end > math.MaxInt32 {
		return 0, errors.Join(fmt.Errorf("%w: %s is %d bytes", ErrPayloadTooLarge, path, end), writeLength(w, unavailable))
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, errors.Join(fmt.Errorf("rewind %s: %w", path, err), writeLength(w, unavailable))
	}

	data := make([]byte, end)
	if _, err := io.ReadFull(f, data); err != nil {
		return 0, errors.Join(fmt.Errorf("read %s: %w", path, err), writeLength(w, unavailable))
	}
	defer clear(data)

	if err := writeLength(w, int32(end)); err != nil {
		return 0, fmt.Errorf("send size: %w", err)
	}
	if len(data) == 0 {
		return 0, nil
	}
	n, err := w.Write(data)
	if err != nil {
		return n, fmt.Errorf("send payload data: %w", err)
	}
	return n, nil
}
