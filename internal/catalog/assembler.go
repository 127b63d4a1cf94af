package catalog

import (
	"errors"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"example.com/shopcatalog/internal/listing"
	"example.com/shopcatalog/internal/logger"
	"example.com/shopcatalog/internal/metrics"
)

// Assembler rebuilds a Catalog from a snapshot of events. It keeps no state
// between calls and is safe for concurrent use.
type Assembler struct {
	kinds   map[int]struct{}
	metrics *metrics.Metrics
	log     *logger.Entry
}

type Option func(*Assembler)

// WithKinds restricts assembly to the given event kinds. With no kinds,
// every kind is considered.
func WithKinds(kinds ...int) Option {
	return func(a *Assembler) {
		a.kinds = nil
		if len(kinds) == 0 {
			return
		}
		a.kinds = make(map[int]struct{}, len(kinds))
		for _, k := range kinds {
			a.kinds[k] = struct{}{}
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Assembler) { a.metrics = m }
}

func WithLogger(e *logger.Entry) Option {
	return func(a *Assembler) { a.log = e }
}

// NewAssembler considers every kind unless WithKinds narrows it.
func NewAssembler(opts ...Option) *Assembler {
	a := &Assembler{log: logger.Discard()}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Ingest parses and filters events in order. Eligible events are admitted
// at the position of their id's first eligible occurrence; a later eligible
// occurrence of the same id replaces the stored product in place.
func (a *Assembler) Ingest(events []nostr.Event) *Catalog {
	start := time.Now()
	c := newCatalog(len(events))
	considered := 0

	for i := range events {
		ev := &events[i]
		if a.kinds != nil {
			if _, ok := a.kinds[ev.Kind]; !ok {
				continue
			}
		}
		considered++

		p, skipped := listing.ParseReport(ev)
		for _, err := range skipped {
			var mt *listing.MalformedTagError
			if errors.As(err, &mt) {
				a.metrics.MalformedTag(mt.Name)
			}
			a.log.WithField("event_id", ev.ID).Debugf("skipped tag: %v", err)
		}

		if r := Check(&p); r != Eligible {
			a.metrics.Rejected(string(r))
			continue
		}
		c.put(p)
	}

	a.metrics.ObserveAssembly(considered, c.Len(), time.Since(start))
	a.log.WithField("considered", considered).WithField("admitted", c.Len()).Debug("catalog assembled")
	return c
}
