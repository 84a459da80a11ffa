package notify

import (
	"context"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/Deathbringer98/Firemap-WebApp/internal/reports"
)

const TypeReportAdded = "REPORT_ADDED"

// Event is what sinks receive after a report is stored.
type Event struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	At     time.Time      `json:"at"`
	Report reports.Report `json:"report"`
}

func NewReportAdded(r reports.Report, at time.Time) Event {
	return Event{
		ID:     uuid.NewString(),
		Type:   TypeReportAdded,
		At:     at,
		Report: r,
	}
}

// Publisher delivers events to one destination.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Fanout delivers each event to every sink. A failing sink does not stop
// delivery to the others.
type Fanout struct {
	sinks  []Publisher
	logger *log.Logger
}

func NewFanout(logger *log.Logger, sinks ...Publisher) *Fanout {
	if logger == nil {
		logger = log.Default()
	}
	f := &Fanout{logger: logger}
	for _, s := range sinks {
		f.Add(s)
	}
	return f
}

func (f *Fanout) Add(p Publisher) {
	if p != nil {
		f.sinks = append(f.sinks, p)
	}
}

func (f *Fanout) Len() int { return len(f.sinks) }

func (f *Fanout) Publish(ctx context.Context, ev Event) error {
	var failed []string
	for _, s := range f.sinks {
		if err := s.Publish(ctx, ev); err != nil {
			failed = append(failed, err.Error())
		}
	}
	if len(failed) > 0 {
		return errors.Errorf("%d of %d sinks failed: %s", len(failed), len(f.sinks), strings.Join(failed, "; "))
	}
	return nil
}

// Close closes every sink that holds a connection.
func (f *Fanout) Close() error {
	var first error
	for _, s := range f.sinks {
		c, ok := s.(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			f.logger.Printf("closing %T failed: %v", s, err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}
