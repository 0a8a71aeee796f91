// Package server renders relay notifications on a terminal.
package server

import (
	"io"
	"os"
	"sync"

	"github.com/pterm/pterm"

	"github.com/Tyrowin/gorelay/internal/relay"
)

// ConsoleSink prints every relay event as a timestamped line, colored by
// kind. It is safe for concurrent use.
type ConsoleSink struct {
	mu      sync.Mutex
	info    *pterm.PrefixPrinter
	message *pterm.PrefixPrinter
	warning *pterm.PrefixPrinter
	failure *pterm.PrefixPrinter
}

// NewConsoleSink returns a sink writing to w, or to stdout when w is nil.
func NewConsoleSink(w io.Writer) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	return &ConsoleSink{
		info: pterm.Info.WithWriter(w),
		message: pterm.Info.
			WithPrefix(pterm.Prefix{Text: " MSG ", Style: pterm.NewStyle(pterm.BgLightBlue, pterm.FgBlack)}).
			WithMessageStyle(pterm.NewStyle(pterm.FgDefault)).
			WithWriter(w),
		warning: pterm.Warning.WithWriter(w),
		failure: pterm.Error.WithWriter(w),
	}
}

// Notify implements relay.Sink.
func (s *ConsoleSink) Notify(ev relay.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	line := ev.String()
	switch ev.Kind {
	case relay.EventMessage:
		s.message.Println(line)
	case relay.EventDisconnect, relay.EventPrune:
		s.warning.Println(line)
	case relay.EventError:
		s.failure.Println(line)
	default:
		s.info.Println(line)
	}
}
