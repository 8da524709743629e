package output

import (
	"fmt"
	"io"
)

// Printer writes terminal-safe output, sanitizing any string-like
// argument. Everything the CLI prints that originated in target memory
// goes through here.
type Printer struct {
	w io.Writer
}

func NewPrinter(w io.Writer) Printer { return Printer{w: w} }

func (p Printer) Printf(format string, args ...any) {
	fmt.Fprintf(p.w, format, sanitizeArgs(args)...)
}

func (p Printer) Println(args ...any) {
	fmt.Fprintln(p.w, sanitizeArgs(args)...)
}

func sanitizeArgs(args []any) []any {
	if len(args) == 0 {
		return nil
	}
	out := make([]any, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case string:
			out[i] = Sanitize(v)
		case []byte:
			out[i] = Sanitize(string(v))
		case error:
			out[i] = Sanitize(v.Error())
		case fmt.Stringer:
			out[i] = Sanitize(v.String())
		default:
			out[i] = a
		}
	}
	return out
}
