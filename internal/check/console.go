package check

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"go.followtheprocess.codes/hue"
)

// contextLines is how many lines either side of a problem are shown.
const contextLines = 3

// PrettyConsoleHandler returns an [ErrorHandler] that formats each problem for
// display on the terminal, showing the surrounding lines of src with the offending
// range underlined.
func PrettyConsoleHandler(w io.Writer, src []byte) ErrorHandler {
	lines := bytes.Split(src, []byte("\n"))

	return func(pos Position, msg string) {
		fmt.Fprintf(w, "%s: %s\n\n", pos, msg)

		startLine := max(pos.Line-contextLines, 1)
		endLine := min(pos.Line+contextLines, len(lines))

		for i := startLine; i <= endLine; i++ {
			line := bytes.TrimSuffix(lines[i-1], []byte("\r"))
			margin := fmt.Sprintf("%d | ", i)
			fmt.Fprintf(w, "%s%s\n", margin, line)

			if i == pos.Line {
				hue.Red.Fprintf(
					w,
					"%s%s\n",
					strings.Repeat(" ", len(margin)+pos.StartCol-1),
					strings.Repeat("─", pos.EndCol-pos.StartCol+1),
				)
			}
		}

		fmt.Fprintln(w)
	}
}
