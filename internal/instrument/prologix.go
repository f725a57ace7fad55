package instrument

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// maxReadTimeoutMs is the largest ++read_tmo_ms the Prologix firmware accepts.
const maxReadTimeoutMs = 3000

const (
	usbTerm = '\n'
	eotChar = '\n'
	escChar = 0x1b
)

// transport is the byte stream to a Prologix controller. Read returns
// ErrTimeout when nothing arrived within the configured read timeout.
type transport interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// prologixHandle talks to one instrument through a Prologix GPIB controller
// in controller mode with read-after-write disabled.
type prologixHandle struct {
	rw     transport
	r      *bufio.Reader
	addr   GPIBAddress
	debug  bool
	closed bool
}

func newPrologixHandle(rw transport, addr GPIBAddress, timeout time.Duration, debug bool) (*prologixHandle, error) {
	h := &prologixHandle{
		rw:    rw,
		r:     bufio.NewReader(rw),
		addr:  addr,
		debug: debug,
	}

	addrCmd := fmt.Sprintf("addr %d", addr.Primary)
	if addr.Secondary >= 0 {
		addrCmd = fmt.Sprintf("addr %d %d", addr.Primary, addr.Secondary)
	}
	tmo := min(int(timeout/time.Millisecond), maxReadTimeoutMs)
	if tmo <= 0 {
		tmo = maxReadTimeoutMs
	}
	cmds := []string{
		"savecfg 0", // don't wear out the EEPROM with our settings
		"mode 1",    // controller mode
		addrCmd,
		"auto 0", // no read-after-write; reads are requested explicitly
		"eoi 1",  // assert EOI with the last byte written
		"eos 0",  // CR+LF appended to instrument commands
		fmt.Sprintf("read_tmo_ms %d", tmo),
		"eot_enable 1",
		fmt.Sprintf("eot_char %d", eotChar),
	}
	for _, cmd := range cmds {
		if err := h.commandController(cmd); err != nil {
			return nil, fmt.Errorf("configuring prologix controller: %w", err)
		}
	}
	return h, nil
}

// commandController sends a "++" command to the controller itself.
func (h *prologixHandle) commandController(cmd string) error {
	line := fmt.Sprintf("++%s%c", strings.ToLower(strings.TrimSpace(cmd)), usbTerm)
	if h.debug {
		log.Printf("prologix cmd %q", line)
	}
	_, err := h.rw.Write([]byte(line))
	return err
}

// Write sends an instrument command. Bytes the controller would otherwise
// interpret (CR, LF, ESC and '+') are escaped.
func (h *prologixHandle) Write(cmd string) error {
	if h.closed {
		return ErrClosed
	}
	payload := escape(strings.TrimRight(cmd, "\r\n"))
	payload = append(payload, usbTerm)
	if h.debug {
		log.Printf("prologix write %q", payload)
	}
	_, err := h.rw.Write(payload)
	return err
}

// Read asks the controller to read from the instrument until EOI and
// returns the reply without its terminator.
func (h *prologixHandle) Read(timeout time.Duration) (string, error) {
	if h.closed {
		return "", ErrClosed
	}
	if err := h.rw.SetReadTimeout(timeout); err != nil {
		return "", fmt.Errorf("setting read timeout: %w", err)
	}
	if err := h.commandController("read eoi"); err != nil {
		return "", err
	}
	s, err := h.r.ReadString(eotChar)
	if err != nil {
		if errors.Is(err, ErrTimeout) || (errors.Is(err, io.EOF) && s == "") {
			return "", ErrTimeout
		}
		if !errors.Is(err, io.EOF) {
			return "", err
		}
	}
	if h.debug {
		log.Printf("prologix read %q", s)
	}
	return strings.TrimSuffix(s, string(rune(eotChar))), nil
}

// Close returns the instrument to front panel control and closes the transport.
func (h *prologixHandle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	return multierr.Combine(h.commandController("loc"), h.rw.Close())
}

func escape(s string) []byte {
	var b bytes.Buffer
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\r', '\n', escChar, '+':
			b.WriteByte(escChar)
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.Bytes()
}
