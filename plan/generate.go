package plan

import (
	"fmt"

	"github.com/scratchdesk/scratchdesk/coord"
	"github.com/scratchdesk/scratchdesk/machine"
	"github.com/scratchdesk/scratchdesk/program"
)

// Generate expands a validated program into the ordered step plan:
// the lines phase first (top edge cut, evenly spaced line marks,
// bottom edge cut), then the rows phase (right edge cut, page edges
// marked right-to-left, left edge cut). Repeat tiling inserts a cut
// at every internal section boundary.
//
// Generate is deterministic and touches no hardware. It panics on an
// invalid program: validation happens at construction/edit time, so
// an invalid program reaching this point is a caller bug.
func Generate(p program.Program) []Step {
	if errs := p.Validate(); len(errs) > 0 {
		panic(fmt.Sprintf("plan: invalid program %d: %s", p.Number, errs[0]))
	}

	steps := []Step{{
		Op:      OpProgramStart,
		Program: p.Number,
		Desc: fmt.Sprintf("starting program %d: %s (%.0f×%.0fcm)",
			p.Number, p.Name, p.ActualWidth(), p.ActualHeight()),
	}}
	steps = append(steps, linesPhase(p)...)
	steps = append(steps, rowsPhase(p)...)
	steps = append(steps, Step{
		Op:      OpProgramComplete,
		Program: p.Number,
		Desc: fmt.Sprintf("program %d complete: %.0f×%.0fcm paper processed",
			p.Number, p.ActualWidth(), p.ActualHeight()),
	})
	return steps
}

// toolCycle is the shared mark/cut pattern: wait for the start-edge
// sensor, drop the tool, wait for the end-edge sensor, lift the tool.
func toolCycle(t machine.Tool, start, end machine.SensorID, desc string) []Step {
	return []Step{
		waitSensor(start, desc+": wait for "+string(start)+" sensor"),
		tool(t, machine.DirDown, desc+": lower "+string(t)),
		waitSensor(end, desc+": wait for "+string(end)+" sensor"),
		tool(t, machine.DirUp, desc+": raise "+string(t)),
	}
}

func lineCut(desc string) []Step {
	return toolCycle(machine.ToolLineCutter, machine.SensorXLeft, machine.SensorXRight, desc)
}

func lineMark(desc string) []Step {
	return toolCycle(machine.ToolLineMarker, machine.SensorXLeft, machine.SensorXRight, desc)
}

func rowCut(desc string) []Step {
	return toolCycle(machine.ToolRowCutter, machine.SensorYTop, machine.SensorYBottom, desc)
}

func rowMark(desc string) []Step {
	return toolCycle(machine.ToolRowMarker, machine.SensorYTop, machine.SensorYBottom, desc)
}

func linesPhase(p program.Program) []Step {
	offY := p.Limits.PaperStartY
	top := offY + p.ActualHeight()

	steps := []Step{
		moveX(0, Setup, "lines phase: park rows motor at home"),
		moveY(top, Setup, fmt.Sprintf("lines phase: move to paper top at %.1fcm", top)),
	}

	steps = append(steps, lineCut("cut top edge")...)

	total := p.Lines * p.RepeatLines
	mark := 0
	for section := 0; section < p.RepeatLines; section++ {
		sectionTop := offY + float64(p.RepeatLines-section)*p.Height
		sectionBottom := sectionTop - p.Height

		first := sectionTop - p.TopPadding
		last := sectionBottom + p.BottomPadding

		for i, y := range coord.Space(first, last, p.Lines) {
			mark++
			if section > 0 || i > 0 {
				steps = append(steps, moveY(y, Operational,
					fmt.Sprintf("move to line %d/%d at %.1fcm", mark, total, y)))
			} else {
				steps = append(steps, moveY(y, Operational,
					fmt.Sprintf("move to first line at %.1fcm", y)))
			}
			steps = append(steps, lineMark(fmt.Sprintf("mark line %d/%d", mark, total))...)
		}

		// cut between repeated sections, never after the last one
		if section < p.RepeatLines-1 {
			steps = append(steps, moveY(sectionBottom, Operational,
				fmt.Sprintf("move to section cut at %.1fcm", sectionBottom)))
			steps = append(steps, lineCut(fmt.Sprintf("cut between sections %d and %d", section+1, section+2))...)
		}
	}

	steps = append(steps, moveY(offY, Operational,
		fmt.Sprintf("move to bottom edge at %.1fcm", offY)))
	steps = append(steps, lineCut("cut bottom edge")...)
	steps = append(steps, moveY(0, Setup, "lines complete: park lines motor at home"))
	return steps
}

// rowsPhase marks pages right-to-left: each page is reached from the
// already-cut right side, its right edge marked before its left. The
// ordering is a hard constraint of the physical machine.
func rowsPhase(p program.Program) []Step {
	offX := p.Limits.PaperStartX
	right := offX + p.ActualWidth()

	steps := []Step{
		moveY(0, Setup, "rows phase: park lines motor at home"),
		moveX(right, Operational, fmt.Sprintf("move to right edge at %.1fcm", right)),
	}
	steps = append(steps, rowCut("cut right edge")...)

	total := p.Pages * p.RepeatRows
	for rtlSection := 0; rtlSection < p.RepeatRows; rtlSection++ {
		// rightmost section first
		section := p.RepeatRows - 1 - rtlSection
		sectionStart := offX + float64(section)*p.Width

		for rtlPage := 0; rtlPage < p.Pages; rtlPage++ {
			// execution is right-to-left, physical layout left-to-right
			phys := p.Pages - 1 - rtlPage
			leftEdge := sectionStart + p.LeftMargin + float64(phys)*(p.PageWidth+p.Buffer)
			rightEdge := leftEdge + p.PageWidth

			n := rtlSection*p.Pages + rtlPage + 1
			page := fmt.Sprintf("page %d/%d", n, total)

			steps = append(steps, moveX(rightEdge, Operational,
				fmt.Sprintf("move to %s right edge at %.1fcm", page, rightEdge)))
			steps = append(steps, rowMark(page+" right edge")...)
			steps = append(steps, moveX(leftEdge, Operational,
				fmt.Sprintf("move to %s left edge at %.1fcm", page, leftEdge)))
			steps = append(steps, rowMark(page+" left edge")...)
		}

		if rtlSection < p.RepeatRows-1 {
			steps = append(steps, moveX(sectionStart, Operational,
				fmt.Sprintf("move to section cut at %.1fcm", sectionStart)))
			steps = append(steps, rowCut(fmt.Sprintf("cut between row sections %d and %d", section+1, section))...)
		}
	}

	steps = append(steps, moveX(offX, Operational,
		fmt.Sprintf("move to left edge at %.1fcm", offX)))
	steps = append(steps, rowCut("cut left edge")...)
	steps = append(steps, moveX(0, Setup, "rows complete: park rows motor at home"))
	return steps
}

// Summary reports the plan shape for a program without keeping the
// steps around.
type Summary struct {
	LinesSteps   int
	RowSteps     int
	TotalSteps   int
	LinesMarked  int
	PagesMarked  int
	ActualWidth  float64
	ActualHeight float64
}

// Summarize computes step counts the way Generate would emit them.
func Summarize(p program.Program) Summary {
	return Summary{
		LinesSteps:   len(linesPhase(p)),
		RowSteps:     len(rowsPhase(p)),
		TotalSteps:   len(linesPhase(p)) + len(rowsPhase(p)) + 2,
		LinesMarked:  p.Lines * p.RepeatLines,
		PagesMarked:  p.Pages * p.RepeatRows,
		ActualWidth:  p.ActualWidth(),
		ActualHeight: p.ActualHeight(),
	}
}
