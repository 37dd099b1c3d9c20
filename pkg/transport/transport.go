// Package transport implements the TIO byte-pipe abstraction and the
// Dial() URL scheme that selects among TCP, UDP, serial, and in-memory
// router transports.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/twinleaf/tio-go/pkg/slip"
	"github.com/twinleaf/tio-go/pkg/wire"
)

// DefaultPort is the TCP/UDP port assumed when a Dial URL omits one.
const DefaultPort = 7855

// DefaultBaud and DefaultReadTimeout are the serial link defaults (spec
// §6: "115200 8N1, 1 s read timeout").
const (
	DefaultBaud        = 115200
	DefaultReadTimeout = time.Second
)

// ErrClosed is returned by Send/Recv after Close.
var ErrClosed = errors.New("transport: closed")

// Transport is a single-reader, single-writer framed byte pipe: each Send
// call writes one complete TIO packet, each Recv call returns one complete
// packet's bytes (header, payload, routing trailer), ready for
// wire.DecodePacket.
type Transport interface {
	Send(frame []byte) error
	Recv(ctx context.Context) ([]byte, error)
	Close() error
}

var comPortPattern = regexp.MustCompile(`(?i)^com\d+$`)

// Dial parses rawURL per spec §6 and opens the matching transport. The
// returned routing slice is reversed from the URL path's segment order
// per §4.4: "the session's routing list is the reverse of the URL-path
// order".
func Dial(rawURL string) (Transport, []byte, error) {
	if looksLikeSerialPath(rawURL) {
		return dialSerialPath(rawURL)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, nil, fmt.Errorf("transport: invalid url %q: %w", rawURL, err)
	}

	switch u.Scheme {
	case "tcp":
		return dialTCP(u)
	case "udp":
		return dialUDP(u)
	case "router":
		return nil, nil, fmt.Errorf("transport: router:// sessions are created by pkg/router, not Dial")
	default:
		return nil, nil, fmt.Errorf("transport: unsupported scheme %q", u.Scheme)
	}
}

func looksLikeSerialPath(s string) bool {
	if strings.Contains(s, "://") {
		return false
	}
	first := strings.SplitN(strings.TrimPrefix(s, "/"), "/", 2)[0]
	return comPortPattern.MatchString(first) || strings.HasPrefix(s, "/dev/")
}

func routingFromPath(path string) []byte {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	parts := strings.Split(path, "/")
	routing := make([]byte, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			continue
		}
		routing = append(routing, byte(n))
	}
	// Reverse: first path segment is the outermost routing byte, but the
	// wire (and this session's routing list) wants it LSB-first.
	for i, j := 0, len(routing)-1; i < j; i, j = i+1, j-1 {
		routing[i], routing[j] = routing[j], routing[i]
	}
	return routing
}

func dialTCP(u *url.URL) (Transport, []byte, error) {
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = strconv.Itoa(DefaultPort)
	}
	conn, err := net.Dial("tcp", net.JoinHostPort(host, port))
	if err != nil {
		return nil, nil, fmt.Errorf("transport: tcp dial: %w", err)
	}
	return &streamTransport{conn: conn}, routingFromPath(u.Path), nil
}

func dialUDP(u *url.URL) (Transport, []byte, error) {
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = strconv.Itoa(DefaultPort)
	}
	conn, err := net.Dial("udp", net.JoinHostPort(host, port))
	if err != nil {
		return nil, nil, fmt.Errorf("transport: udp dial: %w", err)
	}
	return &datagramTransport{conn: conn}, routingFromPath(u.Path), nil
}

func dialSerialPath(raw string) (Transport, []byte, error) {
	trimmed := strings.TrimPrefix(raw, "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 {
		return nil, nil, fmt.Errorf("transport: empty serial path")
	}

	var devPath string
	var routingParts []string
	if comPortPattern.MatchString(parts[0]) {
		devPath = parts[0]
		routingParts = parts[1:]
	} else {
		// "^/dev/..." — the first three slash-separated components of the
		// raw path ("", "dev", node) form the device node (e.g.
		// /dev/ttyUSB0), trailing segments route. The leading "" was
		// trimmed above, so two parts remain to take.
		n := 2
		if len(parts) < n {
			n = len(parts)
		}
		devPath = "/" + strings.Join(parts[:n], "/")
		routingParts = parts[n:]
	}

	mode := &serial.Mode{BaudRate: DefaultBaud, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit}
	port, err := serial.Open(devPath, mode)
	if err != nil {
		return nil, nil, fmt.Errorf("transport: serial open %q: %w", devPath, err)
	}
	if err := port.SetReadTimeout(DefaultReadTimeout); err != nil {
		port.Close()
		return nil, nil, fmt.Errorf("transport: serial set timeout: %w", err)
	}

	return &serialTransport{
		port:   port,
		reader: slip.NewReader(port, nil),
	}, routingFromPath(strings.Join(routingParts, "/")), nil
}

// streamTransport frames a byte-stream connection (TCP) by reading the
// fixed header, then exactly payload_size+routing_size more bytes, per
// §4.1's bounds check.
type streamTransport struct {
	conn net.Conn
}

func (t *streamTransport) Send(frame []byte) error {
	_, err := t.conn.Write(frame)
	return err
}

func (t *streamTransport) Recv(ctx context.Context) ([]byte, error) {
	if dl, ok := ctx.Deadline(); ok {
		t.conn.SetReadDeadline(dl)
	} else {
		t.conn.SetReadDeadline(time.Time{})
	}
	hdr := make([]byte, wire.HeaderSize)
	if _, err := readFull(t.conn, hdr); err != nil {
		return nil, err
	}
	h, err := wire.DecodeHeader(hdr)
	if err != nil {
		return nil, err
	}
	rest := make([]byte, int(h.PayloadSize)+int(h.RoutingSize))
	if _, err := readFull(t.conn, rest); err != nil {
		return nil, err
	}
	return append(hdr, rest...), nil
}

func (t *streamTransport) Close() error { return t.conn.Close() }

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// datagramTransport treats each UDP datagram as one complete packet.
type datagramTransport struct {
	conn net.Conn
}

func (t *datagramTransport) Send(frame []byte) error {
	_, err := t.conn.Write(frame)
	return err
}

func (t *datagramTransport) Recv(ctx context.Context) ([]byte, error) {
	if dl, ok := ctx.Deadline(); ok {
		t.conn.SetReadDeadline(dl)
	} else {
		t.conn.SetReadDeadline(time.Time{})
	}
	buf := make([]byte, wire.HeaderSize+wire.MaxPayloadSize+wire.MaxRoutingSize)
	n, err := t.conn.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (t *datagramTransport) Close() error { return t.conn.Close() }

// serialTransport wraps a go.bug.st/serial port with the SLIP codec so the
// session layer never sees a difference between serial and TCP framing:
// Recv returns raw header+payload+routing bytes either way.
type serialTransport struct {
	port   serial.Port
	reader *slip.Reader
}

func (t *serialTransport) Send(frame []byte) error {
	_, err := t.port.Write(slip.Encode(frame))
	return err
}

func (t *serialTransport) Recv(ctx context.Context) ([]byte, error) {
	// go.bug.st/serial has no context-aware read; the configured
	// per-read timeout bounds blocking instead. Cancellation is
	// best-effort: the caller's next Recv call will observe ctx's state.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.reader.ReadFrame()
}

func (t *serialTransport) Close() error { return t.port.Close() }
