package ledger

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// LineError is a persisted line that could not be parsed.
type LineError struct {
	Line int
	Text string
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d %q: %v", e.Line, e.Text, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// Load inserts every "name & score &" line of r in file order. Lines that
// do not parse are skipped and returned as warnings; the error result is
// only set when r itself fails.
func (l *Ledger) Load(r io.Reader) ([]error, error) {
	var warnings []error
	br := bufio.NewReader(r)
	n := 0
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			n++
			text := strings.TrimRight(line, "\r\n")
			if strings.TrimSpace(text) != "" {
				if w := l.loadLine(n, text); w != nil {
					warnings = append(warnings, w)
				}
			}
		}
		if err == io.EOF {
			return warnings, nil
		}
		if err != nil {
			return warnings, fmt.Errorf("read scores: %w", err)
		}
	}
}

func (l *Ledger) loadLine(n int, text string) error {
	e, err := ParseEntry(text)
	if err != nil {
		return &LineError{Line: n, Text: text, Err: err}
	}
	if _, err := l.Insert(e.Name, e.Score); err != nil {
		return &LineError{Line: n, Text: text, Err: err}
	}
	return nil
}

// Persist writes one "name & score &" line per entry, highest score first.
func (l *Ledger) Persist(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, e := range l.Entries() {
		if _, err := bw.WriteString(e.String() + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}
