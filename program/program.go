package program

import (
	"fmt"
	"math"
)

// widthTolerance allows for floating point drift in the row pattern
// formula check.
const widthTolerance = 0.001

// Limits are the physical constraints of the desk, loaded from
// configuration and injected when a Program is built. All values
// are in centimeters.
type Limits struct {
	MaxX           float64 `mapstructure:"max_x_position"`
	MaxY           float64 `mapstructure:"max_y_position"`
	MinLineSpacing float64 `mapstructure:"min_line_spacing"`
	PaperStartX    float64 `mapstructure:"paper_start_x"`
	PaperStartY    float64 `mapstructure:"paper_start_y"`
}

// A Program describes one marking/cutting pattern. It is a value
// type: editing code copies it, revalidates, and only then swaps the
// copy in, so a Program handed to the step generator never changes.
type Program struct {
	Number int
	Name   string

	// lines pattern
	Height        float64
	Lines         int
	TopPadding    float64
	BottomPadding float64

	// row pattern
	Width       float64
	LeftMargin  float64
	RightMargin float64
	PageWidth   float64
	Pages       int
	Buffer      float64

	// repeat tiling
	RepeatRows  int
	RepeatLines int

	Limits Limits
}

// ActualWidth is the full paper width once repeats are tiled.
func (p Program) ActualWidth() float64 { return p.Width * float64(p.RepeatRows) }

// ActualHeight is the full paper height once repeats are tiled.
func (p Program) ActualHeight() float64 { return p.Height * float64(p.RepeatLines) }

// LineSpacing is the distance between marks within one section, zero
// for a single line.
func (p Program) LineSpacing() float64 {
	if p.Lines <= 1 {
		return 0
	}
	return (p.Height - p.TopPadding - p.BottomPadding) / float64(p.Lines-1)
}

// Validate returns every constraint the program breaks, as
// operator-readable messages. An empty slice means the program may be
// handed to the step generator.
func (p Program) Validate() []string {
	var errs []string

	expected := p.LeftMargin + p.RightMargin +
		p.PageWidth*float64(p.Pages) +
		p.Buffer*float64(p.Pages-1)
	if math.Abs(p.Width-expected) > widthTolerance {
		errs = append(errs, fmt.Sprintf(
			"row pattern mismatch: width %.3f != left_margin + right_margin + page_width*pages + buffer*(pages-1) = %.3f",
			p.Width, expected))
	}

	if w := p.ActualWidth(); w > p.Limits.MaxX {
		errs = append(errs, fmt.Sprintf("paper too wide: width*repeat_rows %.1fcm exceeds desk width %.1fcm", w, p.Limits.MaxX))
	}
	if h := p.ActualHeight(); h > p.Limits.MaxY {
		errs = append(errs, fmt.Sprintf("paper too tall: height*repeat_lines %.1fcm exceeds desk height %.1fcm", h, p.Limits.MaxY))
	}

	if p.Lines <= 0 {
		errs = append(errs, "number of lines must be greater than 0")
	}
	if p.Pages <= 0 {
		errs = append(errs, "number of pages must be greater than 0")
	}
	if p.RepeatRows <= 0 {
		errs = append(errs, "repeat rows must be greater than 0")
	}
	if p.RepeatLines <= 0 {
		errs = append(errs, "repeat lines must be greater than 0")
	}
	if p.Height <= 0 {
		errs = append(errs, "height must be greater than 0")
	}
	if p.Width <= 0 {
		errs = append(errs, "width must be greater than 0")
	}
	if p.PageWidth <= 0 {
		errs = append(errs, "page width must be greater than 0")
	}
	if p.TopPadding < 0 || p.BottomPadding < 0 {
		errs = append(errs, "padding values cannot be negative")
	}
	if p.LeftMargin < 0 || p.RightMargin < 0 {
		errs = append(errs, "margin values cannot be negative")
	}
	if p.Buffer < 0 {
		errs = append(errs, "buffer between pages cannot be negative")
	}

	if p.Height > 0 && p.TopPadding+p.BottomPadding >= p.Height {
		errs = append(errs, fmt.Sprintf("padding sum %.1fcm leaves no room for lines in %.1fcm height", p.TopPadding+p.BottomPadding, p.Height))
	} else if p.Lines > 1 && p.LineSpacing() < p.Limits.MinLineSpacing {
		errs = append(errs, fmt.Sprintf("line spacing %.2fcm is below the machine minimum %.2fcm", p.LineSpacing(), p.Limits.MinLineSpacing))
	}

	return errs
}

// Valid reports whether the program passes every check.
func (p Program) Valid() bool { return len(p.Validate()) == 0 }

func (p Program) String() string {
	return fmt.Sprintf("program %d: %s", p.Number, p.Name)
}
