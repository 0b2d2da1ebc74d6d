package report

import (
	"fmt"
	"io"
	"strings"
)

// WriteAll formats reports in order and writes them to w. YAML documents are
// separated by "---", other formats by a blank line.
func WriteAll(w io.Writer, format FormatType, reports []*Report) error {
	f, err := NewFormatter(format)
	if err != nil {
		return err
	}

	for i, r := range reports {
		if i > 0 {
			sep := "\n"
			if format == FormatYAML {
				sep = "---\n"
			}
			if _, err := io.WriteString(w, sep); err != nil {
				return err
			}
		}

		out, err := f.Format(r)
		if err != nil {
			return err
		}
		if !strings.HasSuffix(out, "\n") {
			out += "\n"
		}
		if _, err := fmt.Fprint(w, out); err != nil {
			return err
		}
	}
	return nil
}
