package grbl

import (
	"errors"
	"strconv"
	"strings"

	"github.com/scratchdesk/scratchdesk/coord"
)

// Status is a parsed GRBL realtime status report.
type Status struct {
	State string
	MPos  coord.Point
	Pins  string
}

// Idle reports whether the controller has finished all motion.
func (s Status) Idle() bool { return s.State == "Idle" }

// parseStatus parses a report of the form
// `<Idle|MPos:0.000,0.000,0.000|FS:0,0>`. Only the first two machine
// coordinates are kept; the desk has no third axis.
func parseStatus(line string) (Status, error) {
	var st Status
	if len(line) < 2 || line[0] != '<' || line[len(line)-1] != '>' {
		return st, errors.New("grbl: malformed status report: " + line)
	}
	parts := strings.Split(line[1:len(line)-1], "|")
	if len(parts) < 2 {
		return st, errors.New("grbl: malformed status report: " + line)
	}
	st.State = strings.SplitN(parts[0], ":", 2)[0]
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, ":", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "MPos", "WPos":
			vals := strings.Split(kv[1], ",")
			if len(vals) < 2 {
				return st, errors.New("grbl: malformed position: " + p)
			}
			x, err := strconv.ParseFloat(vals[0], 64)
			if err != nil {
				return st, err
			}
			y, err := strconv.ParseFloat(vals[1], 64)
			if err != nil {
				return st, err
			}
			st.MPos = coord.Point{X: x, Y: y}
		case "Pn":
			st.Pins = kv[1]
		}
	}
	return st, nil
}
