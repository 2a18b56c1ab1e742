package listener

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"
)

// stream reads spot lines until EOF, a fatal error, a sink failure or a stop
// request. Timeouts are not counted against anything here: an idle feed is a
// healthy feed.
func (w *worker) stream(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return errStopped
		}
		line, err := w.lc.ReadLine(time.Now().Add(w.settings.PollInterval))
		if ctx.Err() != nil {
			return errStopped
		}
		if err != nil {
			if isTimeout(err) {
				continue
			}
			var tooLong errLineTooLong
			if errors.As(err, &tooLong) {
				w.logf("%s: line too long (%d bytes), dropping and continuing", w.settings.Name, tooLong.length)
				continue
			}
			return classifyRead(w.addr, err)
		}
		w.observeLine()

		clean := cleanLine(line)
		if clean == "" {
			continue
		}
		s, perr := w.settings.Parser(clean)
		if perr != nil || s == nil {
			if w.settings.Observer != nil {
				w.settings.Observer.ParseFailed(w.settings.Name, clean)
			}
			continue
		}
		if s.SourceNode == "" {
			s.SourceNode = w.settings.Name
		}
		if err := w.sink.Deliver(ctx, s); err != nil {
			if ctx.Err() != nil {
				return errStopped
			}
			return newError(KindReceiverLost, "deliver", w.addr, err)
		}
		if w.settings.Observer != nil {
			w.settings.Observer.SpotDelivered(w.settings.Name, s)
		}
	}
}

// cleanLine strips trailing whitespace and BEL (0x07) characters; some nodes
// ring the bell after DX announcements.
func cleanLine(line string) string {
	return strings.TrimRightFunc(line, func(r rune) bool {
		return r == '\a' || unicode.IsSpace(r)
	})
}
