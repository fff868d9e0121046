package program

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var csvHeaders = []string{
	"program_number", "program_name",
	"high", "number_of_lines", "top_padding", "bottom_padding",
	"width", "left_margin", "right_margin",
	"page_width", "number_of_pages", "buffer_between_pages",
	"repeat_rows", "repeat_lines",
}

// ReadCSV loads program records, validating each row against lim.
// Rows that fail to parse or validate are reported in the returned
// message list and skipped; good rows still load.
func ReadCSV(r io.Reader, lim Limits) ([]Program, []string) {
	var progs []Program
	var errs []string

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, []string{fmt.Sprintf("read header: %v", err)}
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	for _, h := range csvHeaders {
		if _, ok := col[h]; !ok {
			errs = append(errs, "missing required header: "+h)
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}

	for row := 2; ; row++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("row %d: %v", row, err))
			continue
		}

		p, err := parseRecord(rec, col, lim)
		if err != nil {
			errs = append(errs, fmt.Sprintf("row %d: %v", row, err))
			continue
		}
		if verrs := p.Validate(); len(verrs) > 0 {
			for _, v := range verrs {
				errs = append(errs, fmt.Sprintf("row %d: %s", row, v))
			}
			continue
		}
		progs = append(progs, p)
	}

	return progs, errs
}

func parseRecord(rec []string, col map[string]int, lim Limits) (p Program, err error) {
	field := func(name string) string {
		return strings.TrimSpace(rec[col[name]])
	}
	num := func(name string) (v float64) {
		if err != nil {
			return 0
		}
		s := field(name)
		if s == "" {
			return 0
		}
		v, err = strconv.ParseFloat(s, 64)
		if err != nil {
			err = fmt.Errorf("field %s: %w", name, err)
		}
		return v
	}
	// counts arrive as integer-valued floats ("5.0") in legacy files
	count := func(name string) int {
		return int(num(name))
	}

	p = Program{
		Number:        count("program_number"),
		Name:          field("program_name"),
		Height:        num("high"),
		Lines:         count("number_of_lines"),
		TopPadding:    num("top_padding"),
		BottomPadding: num("bottom_padding"),
		Width:         num("width"),
		LeftMargin:    num("left_margin"),
		RightMargin:   num("right_margin"),
		PageWidth:     num("page_width"),
		Pages:         count("number_of_pages"),
		Buffer:        num("buffer_between_pages"),
		RepeatRows:    count("repeat_rows"),
		RepeatLines:   count("repeat_lines"),
		Limits:        lim,
	}
	return p, err
}

// WriteCSV writes programs back out in the same record format.
func WriteCSV(w io.Writer, progs []Program) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeaders); err != nil {
		return err
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	for _, p := range progs {
		rec := []string{
			strconv.Itoa(p.Number), p.Name,
			f(p.Height), strconv.Itoa(p.Lines), f(p.TopPadding), f(p.BottomPadding),
			f(p.Width), f(p.LeftMargin), f(p.RightMargin),
			f(p.PageWidth), strconv.Itoa(p.Pages), f(p.Buffer),
			strconv.Itoa(p.RepeatRows), strconv.Itoa(p.RepeatLines),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
