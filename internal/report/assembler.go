// Package report renders the communes export: one line per commune between a header and a
// footer computed from the commune store.
package report

import (
	"context"
	"fmt"
	"io"

	entity "github.com/tigerroll/communes/internal/domain/entity"
	"github.com/tigerroll/communes/pkg/batch/component/step/writer"
)

// Counter provides the totals printed around the report lines.
type Counter interface {
	CountDistinctPostalCodes(ctx context.Context) (int64, error)
	CountDistinctNames(ctx context.Context) (int64, error)
}

// Assembler formats the lines, header and footer of the communes report.
type Assembler struct {
	counter Counter
}

var _ writer.LineAggregator[*entity.Commune] = (*Assembler)(nil)

// NewAssembler creates an Assembler reading its totals from counter.
func NewAssembler(counter Counter) *Assembler {
	return &Assembler{counter: counter}
}

// Format renders c as "<postal> - <insee> - <name> : <lat> <lon>". Missing coordinates are
// printed as zero.
func Format(c *entity.Commune) string {
	var lat, lon float64
	if c.Latitude != nil {
		lat = *c.Latitude
	}
	if c.Longitude != nil {
		lon = *c.Longitude
	}
	return fmt.Sprintf("%5s - %5s - %s : %.5f %.5f", c.CodePostal, c.CodeInsee, c.Nom, lat, lon)
}

// Aggregate implements writer.LineAggregator.
func (a *Assembler) Aggregate(c *entity.Commune) (string, error) {
	if c == nil {
		return "", fmt.Errorf("cannot format a nil commune")
	}
	return Format(c), nil
}

// Header writes "Total codes postaux : <n>".
func (a *Assembler) Header(ctx context.Context, w io.Writer) error {
	n, err := a.counter.CountDistinctPostalCodes(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "Total codes postaux : %d", n)
	return err
}

// Footer writes "Total communes : <n>".
func (a *Assembler) Footer(ctx context.Context, w io.Writer) error {
	n, err := a.counter.CountDistinctNames(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "Total communes : %d", n)
	return err
}
