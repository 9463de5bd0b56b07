// Package logfile appends pressure records to a plain text file, one line
// per record: unix time followed by six comma separated values in %.3E
// notation.  Channels without a usable measurement are left empty, the
// commas remain so columns stay aligned.
package logfile

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/alexkolodchuk/maxigauge/output"
)

// Logfile is an append-only file sink
type Logfile struct {
	f *os.File
}

// New opens (or creates) the file at path for appending
func New(path string) (*Logfile, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &Logfile{f: f}, nil
}

// FormatLine renders one record as a logfile line, without the newline
func FormatLine(rec output.Record) string {
	fields := make([]string, 0, 1+len(rec.Pressures))
	fields = append(fields, strconv.FormatInt(rec.Time.Unix(), 10))
	for ch := 1; ch <= len(rec.Pressures); ch++ {
		if rec.Valid(ch) {
			fields = append(fields, fmt.Sprintf("%.3E", rec.Pressures[ch-1]))
		} else {
			fields = append(fields, "")
		}
	}
	return strings.Join(fields, ", ")
}

// Publish appends one line to the file
func (l *Logfile) Publish(rec output.Record) error {
	_, err := l.f.WriteString(FormatLine(rec) + "\n")
	return err
}

// Flush pushes buffered writes to stable storage
func (l *Logfile) Flush() error {
	return l.f.Sync()
}

// Close flushes and closes the file
func (l *Logfile) Close() error {
	err := l.f.Sync()
	if err != nil {
		l.f.Close()
		return err
	}
	return l.f.Close()
}
