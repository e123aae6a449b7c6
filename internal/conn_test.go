package internal

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

type received struct {
	echo *icmp.Echo
	err  error
	addr net.IPAddr
}

func recorder(c *Conn) *[]received {
	var got []received
	c.Receiver = func(body *icmp.Echo, icmpError error, addr net.IPAddr, _ time.Time) {
		got = append(got, received{body, icmpError, addr})
	}
	return &got
}

func marshal(t *testing.T, m icmp.Message) []byte {
	t.Helper()
	b, err := m.Marshal(nil)
	require.NoError(t, err)
	return b
}

func echoRequest(t *testing.T, echoID, seq int) []byte {
	return marshal(t, icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Body: &icmp.Echo{ID: echoID, Seq: seq, Data: []byte("payload")},
	})
}

func TestReceiveEchoReply(t *testing.T) {
	assert := assert.New(t)

	c := &Conn{Privileged: true}
	got := recorder(c)
	from := net.IPAddr{IP: net.ParseIP("192.0.2.1")}

	reply := func(echoID int) []byte {
		return marshal(t, icmp.Message{
			Type: ipv4.ICMPTypeEchoReply,
			Body: &icmp.Echo{ID: echoID, Seq: 7, Data: []byte("payload")},
		})
	}

	c.receive(ProtocolICMP, reply(id), from, time.Now())
	c.receive(ProtocolICMP, reply(id+1), from, time.Now()) // other process
	c.receive(ProtocolICMP, []byte{1, 2}, from, time.Now())
	c.receive(ProtocolICMP, echoRequest(t, id, 8), from, time.Now())

	require.Len(t, *got, 1)
	assert.Equal(7, (*got)[0].echo.Seq)
	assert.NoError((*got)[0].err)
	assert.Equal(from, (*got)[0].addr)

	// datagram sockets only see their own replies, the kernel sets the ID
	c.Privileged = false
	c.receive(ProtocolICMP, reply(id+1), from, time.Now())
	assert.Len(*got, 2)
}

func TestReceiveUnreachable(t *testing.T) {
	assert := assert.New(t)

	c := &Conn{Privileged: true}
	got := recorder(c)
	router := net.IPAddr{IP: net.ParseIP("198.51.100.1")}

	request := echoRequest(t, id, 42)
	hdr := ipv4.Header{
		Version:  ipv4.Version,
		Len:      ipv4.HeaderLen,
		TotalLen: ipv4.HeaderLen + len(request),
		TTL:      1,
		Protocol: ProtocolICMP,
		Src:      net.ParseIP("192.0.2.10"),
		Dst:      net.ParseIP("203.0.113.5"),
	}
	quoted, err := hdr.Marshal()
	require.NoError(t, err)
	quoted = append(quoted, request...)

	c.receive(ProtocolICMP, marshal(t, icmp.Message{
		Type: ipv4.ICMPTypeDestinationUnreachable,
		Code: 1,
		Body: &icmp.DstUnreach{Data: quoted},
	}), router, time.Now())

	c.receive(ProtocolICMP, marshal(t, icmp.Message{
		Type: ipv4.ICMPTypeTimeExceeded,
		Body: &icmp.TimeExceeded{Data: quoted},
	}), router, time.Now())

	// garbage quote
	c.receive(ProtocolICMP, marshal(t, icmp.Message{
		Type: ipv4.ICMPTypeDestinationUnreachable,
		Body: &icmp.DstUnreach{Data: []byte{0x45, 0}},
	}), router, time.Now())

	require.Len(t, *got, 2)
	for _, r := range *got {
		assert.Equal(42, r.echo.Seq)

		var icmpErr *ICMPError
		require.ErrorAs(t, r.err, &icmpErr)
		assert.True(router.IP.Equal(icmpErr.From))
	}
	assert.Equal(ipv4.ICMPTypeDestinationUnreachable, (*got)[0].err.(*ICMPError).Type)
	assert.Equal(ipv4.ICMPTypeTimeExceeded, (*got)[1].err.(*ICMPError).Type)
}

func TestSupports(t *testing.T) {
	assert := assert.New(t)

	var c Conn
	assert.False(c.Supports(net.ParseIP("127.0.0.1")))
	assert.ErrorIs(c.WriteTo(&net.IPAddr{IP: net.ParseIP("::1")}, 1, nil), ErrSocketMissing)
	assert.ErrorIs(c.Open("", ""), ErrNotBound)
}

func TestPayloadResize(t *testing.T) {
	var p Payload
	p.Resize(32)
	assert.Len(t, p, 32)
	p.Resize(0)
	assert.Empty(t, p)
}
