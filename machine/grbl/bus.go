package grbl

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/scratchdesk/scratchdesk/machine"
)

// The desk's I/O board sits on a second serial line and exposes the
// pistons, piston position sensors, edge sensors and the door switch
// through a small ASCII protocol:
//
//	R           -> RXXXX   four hex digits, current input levels
//	T           -> TXX     two hex digits, latched edge triggers (clear on read)
//	C<n> <0|1>  -> ok      drive coil n
//
// Edge triggers latch on the board until read so a press is never
// missed between polls.

// input register bits
const (
	inXLeft = 1 << iota
	inXRight
	inYTop
	inYBottom
	inDoorClosed
	inLineMarkerUp
	inLineMarkerDown
	inLineCutterUp
	inLineCutterDown
	inRowMarkerUp
	inRowMarkerDown
	inRowCutterUp
	inRowCutterDown
)

// trigger register bits
const (
	trigXLeft = 1 << iota
	trigXRight
	trigYTop
	trigYBottom
)

// piston coil numbers, energized = down
const (
	coilLineMarker = iota
	coilLineCutter
	coilRowMarker
	coilRowCutter
)

// Bus is the query/command client for the I/O board. All methods are
// safe for concurrent use; the board answers one request at a time.
type Bus struct {
	mx   sync.Mutex
	rw   io.ReadWriter
	scan *bufio.Scanner
}

// NewBus creates a Bus on the provided ReadWriter.
func NewBus(rw io.ReadWriter) *Bus {
	return &Bus{rw: rw, scan: bufio.NewScanner(rw)}
}

func (b *Bus) request(cmd string) (string, error) {
	if _, err := io.WriteString(b.rw, cmd+"\n"); err != nil {
		return "", err
	}
	for b.scan.Scan() {
		line := strings.TrimSpace(b.scan.Text())
		if line != "" {
			return line, nil
		}
	}
	if err := b.scan.Err(); err != nil {
		return "", err
	}
	return "", io.ErrUnexpectedEOF
}

// ReadInputs returns the current input register.
func (b *Bus) ReadInputs() (uint16, error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	resp, err := b.request("R")
	if err != nil {
		return 0, err
	}
	if !strings.HasPrefix(resp, "R") {
		return 0, errors.New("iobus: unexpected response: " + resp)
	}
	v, err := strconv.ParseUint(resp[1:], 16, 16)
	if err != nil {
		return 0, errors.New("iobus: bad input register: " + resp)
	}
	return uint16(v), nil
}

// ReadTriggers returns and clears the latched edge-trigger register.
func (b *Bus) ReadTriggers() (uint8, error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	resp, err := b.request("T")
	if err != nil {
		return 0, err
	}
	if !strings.HasPrefix(resp, "T") {
		return 0, errors.New("iobus: unexpected response: " + resp)
	}
	v, err := strconv.ParseUint(resp[1:], 16, 8)
	if err != nil {
		return 0, errors.New("iobus: bad trigger register: " + resp)
	}
	return uint8(v), nil
}

// SetCoil drives a piston coil. Energized coils push the tool down.
func (b *Bus) SetCoil(n int, on bool) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	arg := "0"
	if on {
		arg = "1"
	}
	resp, err := b.request("C" + strconv.Itoa(n) + " " + arg)
	if err != nil {
		return err
	}
	if resp != "ok" {
		return errors.New("iobus: coil command failed: " + resp)
	}
	return nil
}

func sensorTriggerBit(id machine.SensorID) uint8 {
	switch id {
	case machine.SensorXLeft:
		return trigXLeft
	case machine.SensorXRight:
		return trigXRight
	case machine.SensorYTop:
		return trigYTop
	case machine.SensorYBottom:
		return trigYBottom
	}
	return 0
}

func sensorInputBit(id machine.SensorID) uint16 {
	switch id {
	case machine.SensorXLeft:
		return inXLeft
	case machine.SensorXRight:
		return inXRight
	case machine.SensorYTop:
		return inYTop
	case machine.SensorYBottom:
		return inYBottom
	}
	return 0
}

func toolCoil(t machine.Tool) (int, bool) {
	switch t {
	case machine.ToolLineMarker:
		return coilLineMarker, true
	case machine.ToolLineCutter:
		return coilLineCutter, true
	case machine.ToolRowMarker:
		return coilRowMarker, true
	case machine.ToolRowCutter:
		return coilRowCutter, true
	}
	return 0, false
}

func toolSensorBits(t machine.Tool) (up, down uint16) {
	switch t {
	case machine.ToolLineMarker:
		return inLineMarkerUp, inLineMarkerDown
	case machine.ToolLineCutter:
		return inLineCutterUp, inLineCutterDown
	case machine.ToolRowMarker:
		return inRowMarkerUp, inRowMarkerDown
	case machine.ToolRowCutter:
		return inRowCutterUp, inRowCutterDown
	}
	return 0, 0
}
