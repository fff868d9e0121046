package grbl

import (
	"bufio"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pipePort struct {
	io.Reader
	io.Writer
}

// newFakeController returns a Conn wired to a goroutine that plays
// the controller side: every received line is passed to respond,
// whose return value is written back.
func newFakeController(t *testing.T, respond func(line string) string) (*Conn, *io.PipeWriter) {
	t.Helper()
	hostR, devW := io.Pipe()
	devR, hostW := io.Pipe()

	go func() {
		scan := bufio.NewScanner(devR)
		for scan.Scan() {
			resp := respond(scan.Text())
			if resp != "" {
				io.WriteString(devW, resp+"\n")
			}
		}
	}()

	c := NewConn(pipePort{Reader: hostR, Writer: hostW})
	t.Cleanup(func() { c.Close() })
	return c, devW
}

func TestConnSendLine(t *testing.T) {
	var got []string
	c, _ := newFakeController(t, func(line string) string {
		got = append(got, line)
		return "ok"
	})

	assert.NoError(t, c.SendLine("G90 G0 X150"))
	assert.NoError(t, c.SendLine("G90 G0 Y230"))
	assert.Equal(t, []string{"G90 G0 X150", "G90 G0 Y230"}, got)
}

func TestConnSendLineError(t *testing.T) {
	c, _ := newFakeController(t, func(line string) string {
		return "error:20"
	})

	err := c.SendLine("G91 G0 Q1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error:20")
}

func TestConnReset(t *testing.T) {
	reqCh := make(chan struct{}, 1)
	c, devW := newFakeController(t, func(line string) string {
		// never ack, reset instead
		select {
		case reqCh <- struct{}{}:
		default:
		}
		return ""
	})
	go func() {
		<-reqCh
		io.WriteString(devW, "Grbl 1.1f ['$' for help]\n")
	}()

	err := c.SendLine("$H")
	assert.Equal(t, ErrReset, err)
}

func TestConnPush(t *testing.T) {
	c, devW := newFakeController(t, func(line string) string { return "ok" })

	go io.WriteString(devW, "<Idle|MPos:0.000,0.000,0.000>\n")

	select {
	case line := <-c.Push():
		assert.Equal(t, "<Idle|MPos:0.000,0.000,0.000>", line)
	case <-time.After(time.Second):
		t.Fatal("no push message received")
	}
}
