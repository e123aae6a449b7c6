package reach

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/digineo/go-reach/internal"
)

// Mode selects the kind of ICMP socket a Pinger opens.
type Mode int

const (
	// ModeAuto tries a raw socket first and falls back to an unprivileged
	// datagram socket when raw sockets are not permitted.
	ModeAuto Mode = iota
	ModePrivileged
	ModeUnprivileged
)

func (m Mode) String() string {
	switch m {
	case ModePrivileged:
		return "privileged"
	case ModeUnprivileged:
		return "unprivileged"
	default:
		return "auto"
	}
}

// ParseMode parses "auto", "privileged" or "unprivileged".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ModeAuto, nil
	case "privileged", "raw":
		return ModePrivileged, nil
	case "unprivileged", "udp", "dgram":
		return ModeUnprivileged, nil
	}
	return ModeAuto, fmt.Errorf("invalid icmp mode %q", s)
}

const defaultPayloadSize = 56

var (
	// ErrNotBound is returned when neither an IPv4 nor an IPv6 bind
	// address was given.
	ErrNotBound = internal.ErrNotBound

	// ErrSocketMissing is returned when no socket for the address family
	// of the destination is open.
	ErrSocketMissing = internal.ErrSocketMissing
)

// Pinger sends ICMP echo requests. Sockets are opened on first use and
// shared by all concurrent requests; call Close() to release them.
type Pinger struct {
	bind4, bind6 string
	mode         Mode

	openOnce   sync.Once
	closeOnce  sync.Once
	openErr    error
	privileged bool

	conn     internal.Conn
	requests map[uint16]*request // currently running requests
	mtx      sync.Mutex          // lock for the requests map

	payload   internal.Payload
	payloadMu sync.RWMutex
}

// NewPinger creates a Pinger for the given bind addresses. An empty bind
// address disables the respective address family.
func NewPinger(bind4, bind6 string, mode Mode) *Pinger {
	p := &Pinger{
		bind4:    bind4,
		bind6:    bind6,
		mode:     mode,
		requests: make(map[uint16]*request),
	}
	p.payload.Resize(defaultPayloadSize)
	return p
}

// SetPayloadSize resizes the random payload of outgoing requests.
func (p *Pinger) SetPayloadSize(size uint16) {
	p.payloadMu.Lock()
	p.payload.Resize(size)
	p.payloadMu.Unlock()
}

// PayloadSize returns the current payload size.
func (p *Pinger) PayloadSize() uint16 {
	p.payloadMu.RLock()
	defer p.payloadMu.RUnlock()
	return uint16(len(p.payload))
}

// Open opens the sockets. It is called implicitly by the first request and
// returns the same result on every call.
func (p *Pinger) Open() error {
	p.openOnce.Do(func() {
		p.openErr = p.open()
	})
	return p.openErr
}

func (p *Pinger) open() error {
	p.conn.Receiver = p.process

	switch p.mode {
	case ModePrivileged:
		return p.openAs(true)
	case ModeUnprivileged:
		return p.openAs(false)
	}

	rawErr := p.openAs(true)
	if rawErr == nil {
		return nil
	}
	if !errors.Is(rawErr, os.ErrPermission) {
		return rawErr
	}

	log.Infof("raw ICMP socket not permitted, trying datagram socket: %v", rawErr)
	if err := p.openAs(false); err != nil {
		return fmt.Errorf("raw socket: %v; datagram socket: %w", rawErr, err)
	}
	return nil
}

func (p *Pinger) openAs(privileged bool) error {
	p.conn.Privileged = privileged
	if err := p.conn.Open(p.bind4, p.bind6); err != nil {
		return err
	}
	p.privileged = privileged
	return nil
}

// Privileged reports whether raw sockets are in use. It opens the sockets
// if necessary.
func (p *Pinger) Privileged() (bool, error) {
	if err := p.Open(); err != nil {
		return false, err
	}
	return p.privileged, nil
}

// Close will close the ICMP sockets. Requests sent afterwards fail.
func (p *Pinger) Close() {
	p.openOnce.Do(func() {
		p.openErr = net.ErrClosed
	})
	p.closeOnce.Do(func() {
		if p.openErr == nil {
			p.conn.Close()
		}
	})
}
