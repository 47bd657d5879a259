package unarc

import (
	"fmt"
	"log"
	"strings"
)

// Event is a diagnostic record emitted by the decoders.
//
// Events never affect the result of a decode call; they exist so that callers can see intermediate values such as
// the flags of a gzip member or the type of each Deflate block.
type Event struct {
	// Source identifies the emitting package, e.g. "tar.header", "gz.frame", "zip.scan".
	Source string
	// Name is what happened, e.g. "block", "eocd", "zip64".
	Name string
	// Offset is the byte offset the event refers to.
	Offset int64
	// Attrs holds alternating key/value pairs.
	Attrs []any
}

// String formats the event as `source: name @offset key=value ...`.
func (e Event) String() string {
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "%s: %s @%d", e.Source, e.Name, e.Offset)
	for i := 0; i+1 < len(e.Attrs); i += 2 {
		_, _ = fmt.Fprintf(&sb, " %v=%v", e.Attrs[i], e.Attrs[i+1])
	}
	if len(e.Attrs)%2 == 1 {
		_, _ = fmt.Fprintf(&sb, " %v", e.Attrs[len(e.Attrs)-1])
	}

	return sb.String()
}

// Observer receives diagnostic events.
//
// Observe is called synchronously from the decoding goroutine.
type Observer interface {
	Observe(e Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(e Event)

func (f ObserverFunc) Observe(e Event) {
	f(e)
}

// Emit sends the event to o if o is not nil.
func Emit(o Observer, source, name string, offset int64, attrs ...any) {
	if o == nil {
		return
	}

	o.Observe(Event{Source: source, Name: name, Offset: offset, Attrs: attrs})
}

// LogObserver returns an Observer that prints every event with the given logger.
func LogObserver(logger *log.Logger) Observer {
	return ObserverFunc(func(e Event) {
		logger.Print(e.String())
	})
}
