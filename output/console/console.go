// Package console prints pressure records to stdout, one line per record in
// the same format the logfile sink uses.
package console

import (
	"fmt"

	"github.com/alexkolodchuk/maxigauge/output"
	"github.com/alexkolodchuk/maxigauge/output/logfile"
)

// Console is a stdout sink
type Console struct{}

// New returns a new Console sink
func New() Console { return Console{} }

// Publish prints one record
func (c Console) Publish(rec output.Record) error {
	_, err := fmt.Println(logfile.FormatLine(rec))
	return err
}

// Close is a no-op
func (c Console) Close() error { return nil }
