package transport

import "context"

// InterthreadPair returns two linked Transports (a, b) such that a.Send
// feeds b.Recv and vice versa, each buffered to bufSize frames. This backs
// router://interthread sessions (spec §6): the router owns one side,
// hands the other to the child Session, and no real I/O occurs.
func InterthreadPair(bufSize int) (Transport, Transport) {
	ab := make(chan []byte, bufSize)
	ba := make(chan []byte, bufSize)
	a := &interthreadTransport{out: ab, in: ba, done: make(chan struct{})}
	b := &interthreadTransport{out: ba, in: ab, done: a.done}
	return a, b
}

type interthreadTransport struct {
	out  chan []byte
	in   chan []byte
	done chan struct{}
}

func (t *interthreadTransport) Send(frame []byte) error {
	cp := append([]byte(nil), frame...)
	select {
	case t.out <- cp:
		return nil
	case <-t.done:
		return ErrClosed
	}
}

func (t *interthreadTransport) Recv(ctx context.Context) ([]byte, error) {
	select {
	case f := <-t.in:
		return f, nil
	case <-t.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *interthreadTransport) Close() error {
	select {
	case <-t.done:
	default:
		close(t.done)
	}
	return nil
}
