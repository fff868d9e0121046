package grbl

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"sync"
)

// bufferSize is the GRBL serial receive buffer. Lines are only sent
// once the controller has acked enough previous lines to make room.
const bufferSize = 128

// ErrReset is returned from send methods if the controller resets
// before every queued command is acknowledged.
var ErrReset = errors.New("grbl: controller reset")

// Conn speaks the GRBL line protocol over a serial port: one command
// per line, "ok"/"error:n" acks in order, unsolicited push messages
// for status reports.
type Conn struct {
	rw io.ReadWriter

	ackCh   chan error
	resetCh chan struct{}
	closeCh chan struct{}
	pushCh  chan string

	mx  sync.Mutex // raw writes
	wMx sync.Mutex // command submission order

	deviceBuf int
	lineSize  []int

	wroteLines int64
	readLines  int64
}

// NewConn creates a Conn on the provided ReadWriter and starts its
// read loop.
func NewConn(rw io.ReadWriter) *Conn {
	c := &Conn{
		rw:      rw,
		ackCh:   make(chan error),
		resetCh: make(chan struct{}, 1),
		closeCh: make(chan struct{}),
		pushCh:  make(chan string, 16),
	}
	go c.readLoop()
	return c
}

// Close aborts in-progress sends and closes the underlying
// ReadWriter if it implements io.Closer.
func (c *Conn) Close() error {
	close(c.closeCh)
	if closer, ok := c.rw.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Push returns the channel of unsolicited controller messages, such
// as <...> status reports. Slow consumers lose the oldest messages.
func (c *Conn) Push() <-chan string {
	return c.pushCh
}

func (c *Conn) readLoop() {
	scan := bufio.NewScanner(c.rw)
	for scan.Scan() {
		line := strings.TrimSpace(scan.Text())
		switch {
		case line == "ok":
			select {
			case c.ackCh <- nil:
			case <-c.closeCh:
				return
			}
		case strings.HasPrefix(line, "error:"):
			select {
			case c.ackCh <- errors.New("grbl: " + line):
			case <-c.closeCh:
				return
			}
		case strings.HasPrefix(line, "Grbl"):
			// reset banner
			select {
			case c.resetCh <- struct{}{}:
			default:
			}
		case line == "":
		default:
			select {
			case c.pushCh <- line:
			default:
				// drop rather than stall the ack stream
				select {
				case <-c.pushCh:
				default:
				}
				select {
				case c.pushCh <- line:
				default:
				}
			}
		}
	}
}

func (c *Conn) recordBufferSpace(n int) int64 {
	c.deviceBuf += n
	c.wroteLines++
	c.lineSize = append(c.lineSize, n)
	return c.wroteLines
}

func (c *Conn) waitForBufferSpace(n int) error {
	for c.deviceBuf+n > bufferSize {
		if err := c.next(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Conn) next() error {
	select {
	case <-c.closeCh:
		return io.ErrClosedPipe
	default:
	}

	select {
	case <-c.closeCh:
		return io.ErrClosedPipe
	case <-c.resetCh:
		c.deviceBuf = 0
		c.lineSize = nil
		c.readLines = c.wroteLines
		return ErrReset
	case e := <-c.ackCh:
		c.readLines++
		// a stray ack can follow a reset; the accounting is already clear
		if len(c.lineSize) > 0 {
			c.deviceBuf -= c.lineSize[0]
			c.lineSize = c.lineSize[1:]
		}
		return e
	}
}

func (c *Conn) waitForLine(id int64) (err error) {
	for c.readLines < id {
		e := c.next()
		if err == nil {
			err = e
		}
		if e == io.ErrClosedPipe {
			return err
		}
	}
	return err
}

// SendLine writes one command line and blocks until the controller
// acknowledges it.
func (c *Conn) SendLine(line string) error {
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	c.wMx.Lock()
	defer c.wMx.Unlock()

	select {
	case <-c.closeCh:
		return io.ErrClosedPipe
	default:
	}

	if err := c.waitForBufferSpace(len(line)); err != nil {
		return err
	}
	c.mx.Lock()
	_, err := io.WriteString(c.rw, line)
	c.mx.Unlock()
	if err != nil {
		return err
	}
	id := c.recordBufferSpace(len(line))
	return c.waitForLine(id)
}

// WriteRealtime writes a single realtime command byte, bypassing the
// line buffer accounting. Use for `?`, `!`, `~` and reset.
func (c *Conn) WriteRealtime(b byte) error {
	select {
	case <-c.closeCh:
		return io.ErrClosedPipe
	default:
	}
	c.mx.Lock()
	_, err := c.rw.Write([]byte{b})
	c.mx.Unlock()
	return err
}
