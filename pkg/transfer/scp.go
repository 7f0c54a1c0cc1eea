package transfer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ScpError is a warning (1) or fatal (2) reply from the remote scp sink.
type ScpError struct {
	Fatal   bool
	Message string
}

func (e *ScpError) Error() string {
	if e.Fatal {
		return "scp: fatal: " + e.Message
	}
	return "scp: " + e.Message
}

// scpSend streams one file to an scp sink ("scp -t <dir>") whose stdin is w
// and stdout is r. The sink acknowledges each step with a zero byte.
func scpSend(w io.Writer, r io.Reader, name string, mode os.FileMode, size int64, content io.Reader) error {
	br := bufio.NewReader(r)

	if err := readAck(br); err != nil {
		return fmt.Errorf("sink not ready: %w", err)
	}

	if _, err := fmt.Fprintf(w, "C%04o %d %s\n", mode.Perm(), size, name); err != nil {
		return fmt.Errorf("send header: %w", err)
	}
	if err := readAck(br); err != nil {
		return fmt.Errorf("header rejected: %w", err)
	}

	if _, err := io.CopyN(w, content, size); err != nil {
		return fmt.Errorf("send content: %w", err)
	}
	if _, err := w.Write([]byte{0}); err != nil {
		return fmt.Errorf("send terminator: %w", err)
	}
	if err := readAck(br); err != nil {
		return fmt.Errorf("content rejected: %w", err)
	}
	return nil
}

func readAck(r *bufio.Reader) error {
	b, err := r.ReadByte()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return io.ErrUnexpectedEOF
		}
		return err
	}

	switch b {
	case 0:
		return nil
	case 1, 2:
		msg, _ := r.ReadString('\n')
		return &ScpError{Fatal: b == 2, Message: strings.TrimSpace(msg)}
	default:
		return fmt.Errorf("unexpected scp reply byte %#x", b)
	}
}
