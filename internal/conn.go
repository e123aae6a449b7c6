package internal

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

const (
	// ProtocolICMP is the number of the Internet Control Message Protocol
	// (see golang.org/x/net/internal/iana.ProtocolICMP)
	ProtocolICMP = 1

	// ProtocolICMPv6 is the IPv6 Next Header value for ICMPv6
	// see golang.org/x/net/internal/iana.ProtocolIPv6ICMP
	ProtocolICMPv6 = 58
)

var (
	ErrNotBound      = errors.New("need at least one bind address")
	ErrSocketMissing = errors.New("socket missing")

	id = os.Getpid() & 0xffff
)

// ICMPError is an ICMP error message (destination unreachable, time
// exceeded) quoting one of our echo requests.
type ICMPError struct {
	Type icmp.Type
	From net.IP
}

func (e *ICMPError) Error() string {
	return fmt.Sprintf("%v from %v", e.Type, e.From)
}

// Receiver is called for every echo reply or ICMP error matching an echo
// request sent by this process.
type Receiver func(body *icmp.Echo, icmpError error, addr net.IPAddr, tRecv time.Time)

// Conn wraps the IPv4 and IPv6 ICMP sockets. Privileged selects raw sockets
// ("ip4:icmp"), otherwise datagram sockets ("udp4") are used, which need
// net.ipv4.ping_group_range on Linux.
type Conn struct {
	Receiver   Receiver
	Privileged bool

	conn4 net.PacketConn
	conn6 net.PacketConn
	wg    sync.WaitGroup
}

// Open opens the sockets for the non-empty bind addresses and starts the
// receiving goroutines. You'll need to call Close() to cleanup.
func (c *Conn) Open(bind4, bind6 string) error {
	var err error
	var network4, network6 string

	if c.Privileged {
		network4 = "ip4:icmp"
		network6 = "ip6:ipv6-icmp"
	} else {
		network4 = "udp4"
		network6 = "udp6"
	}

	c.conn4, err = connectICMP(network4, bind4)
	if err != nil {
		return err
	}

	c.conn6, err = connectICMP(network6, bind6)
	if err != nil {
		if c.conn4 == nil {
			return err
		}
		// IPv6 may be disabled on the host
		Logger.Infof("ICMPv6 socket unavailable, continuing with IPv4 only: %v", err)
	}

	if c.conn4 == nil && c.conn6 == nil {
		return ErrNotBound
	}

	if c.conn4 != nil {
		c.wg.Add(1)
		go c.receiver(ProtocolICMP, c.conn4)
	}
	if c.conn6 != nil {
		c.wg.Add(1)
		go c.receiver(ProtocolICMPv6, c.conn6)
	}

	return nil
}

// Close closes the sockets and waits for the receivers to finish.
func (c *Conn) Close() {
	if c.conn4 != nil {
		c.conn4.Close()
	}
	if c.conn6 != nil {
		c.conn6.Close()
	}
	c.wg.Wait()
}

// Supports reports whether a socket for the address family of ip is open.
func (c *Conn) Supports(ip net.IP) bool {
	if ip.To4() != nil {
		return c.conn4 != nil
	}
	return c.conn6 != nil
}

// receiver listens on the socket and hands ICMP Echo Replys to receive().
func (c *Conn) receiver(proto int, conn net.PacketConn) {
	defer c.wg.Done()
	rb := make([]byte, 1500)

	for {
		n, source, err := conn.ReadFrom(rb)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return // socket gone
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			Logger.Errorf("icmp receiver stopped: %v", err)
			return
		}

		var ipAddr net.IPAddr
		switch addr := source.(type) {
		case *net.UDPAddr:
			ipAddr.IP = addr.IP
			ipAddr.Zone = addr.Zone
		case *net.IPAddr:
			ipAddr = *addr
		}

		c.receive(proto, rb[:n], ipAddr, time.Now())
	}
}

// receive takes the raw message and tries to evaluate an ICMP response.
// If that succeeds, the body will be given to the Receiver.
func (c *Conn) receive(proto int, bytes []byte, addr net.IPAddr, t time.Time) {
	m, err := icmp.ParseMessage(proto, bytes)
	if err != nil {
		return
	}

	switch m.Type {
	case ipv4.ICMPTypeEchoReply, ipv6.ICMPTypeEchoReply:
		echo, ok := m.Body.(*icmp.Echo)
		if !ok || !c.ours(echo) {
			return
		}
		c.Receiver(echo, nil, addr, t)

	case ipv4.ICMPTypeDestinationUnreachable, ipv6.ICMPTypeDestinationUnreachable,
		ipv4.ICMPTypeTimeExceeded, ipv6.ICMPTypeTimeExceeded:

		var quoted []byte
		switch body := m.Body.(type) {
		case *icmp.DstUnreach:
			quoted = body.Data
		case *icmp.TimeExceeded:
			quoted = body.Data
		default:
			return
		}

		echo := parseQuoted(proto, quoted)
		if echo == nil || !c.ours(echo) {
			return
		}
		c.Receiver(echo, &ICMPError{Type: m.Type, From: addr.IP}, addr, t)
	}
}

// parseQuoted extracts the echo request quoted in an ICMP error message.
func parseQuoted(proto int, data []byte) *icmp.Echo {
	var body []byte
	switch proto {
	case ProtocolICMP:
		hdr, err := ipv4.ParseHeader(data)
		if err != nil || hdr.Len > len(data) {
			return nil
		}
		body = data[hdr.Len:]
	case ProtocolICMPv6:
		// we only want to detect parsing errors of the original header
		if _, err := ipv6.ParseHeader(data); err != nil || len(data) < ipv6.HeaderLen {
			return nil
		}
		body = data[ipv6.HeaderLen:]
	default:
		return nil
	}

	msg, err := icmp.ParseMessage(proto, body)
	if err != nil {
		return nil
	}
	echo, ok := msg.Body.(*icmp.Echo)
	if !ok || echo == nil {
		Logger.Infof("expected *icmp.Echo, got %#v", msg)
		return nil
	}
	return echo
}

// ours filters foreign echo traffic. Raw sockets see every ICMP packet of
// the host, datagram sockets only get their own (the kernel rewrites the ID).
func (c *Conn) ours(echo *icmp.Echo) bool {
	return !c.Privileged || echo.ID == id
}

// WriteTo marshals the payload and sends one echo request.
func (c *Conn) WriteTo(addr *net.IPAddr, seq int, data []byte) error {
	echo := icmp.Echo{
		Seq:  seq,
		Data: data,
	}
	msg := icmp.Message{
		Code: 0,
		Body: &echo,
	}

	var conn net.PacketConn
	if addr.IP.To4() != nil {
		msg.Type = ipv4.ICMPTypeEcho
		conn = c.conn4
	} else {
		msg.Type = ipv6.ICMPTypeEchoRequest
		conn = c.conn6
	}

	if c.Privileged {
		echo.ID = id
	}

	if conn == nil {
		return ErrSocketMissing
	}

	wb, err := msg.Marshal(nil)
	if err != nil {
		return err
	}

	if c.Privileged {
		_, err = conn.WriteTo(wb, addr)
	} else {
		_, err = conn.WriteTo(wb, &net.UDPAddr{IP: addr.IP, Zone: addr.Zone})
	}
	return err
}

// connectICMP opens a new ICMP connection, if network and address are not empty.
func connectICMP(network, address string) (net.PacketConn, error) {
	if network == "" || address == "" {
		return nil, nil
	}

	conn, err := icmp.ListenPacket(network, address)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
