package listener

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// authenticate waits for a login prompt and answers it with the callsign.
// Every read is bounded by PollInterval. A read that times out without a
// prompt in the buffer costs one retry; a complete line refills the budget.
func (w *worker) authenticate(ctx context.Context) error {
	remaining := w.settings.AuthRetries
	for {
		if ctx.Err() != nil {
			return errStopped
		}
		line, err := w.lc.ReadLine(time.Now().Add(w.settings.PollInterval))
		if ctx.Err() != nil {
			return errStopped
		}

		var candidate string
		timedOut := false
		switch {
		case err == nil:
			candidate = line
			remaining = w.settings.AuthRetries
			w.observeLine()
		case isTimeout(err):
			candidate = w.lc.Pending()
			timedOut = true
		default:
			var tooLong errLineTooLong
			if errors.As(err, &tooLong) {
				w.logf("%s: dropping overlong line during login (%d bytes)", w.settings.Name, tooLong.length)
				continue
			}
			return classifyRead(w.addr, err)
		}

		if matchPrompt(candidate, w.settings.Prompts) {
			w.lc.Discard()
			return w.sendCallsign()
		}
		if timedOut {
			remaining--
			if remaining <= 0 {
				return newError(KindAuthentication, "auth", w.addr,
					fmt.Errorf("no login prompt after %d read timeouts", w.settings.AuthRetries))
			}
		}
	}
}

// matchPrompt reports whether the buffered output ends with one of the
// prompts. Trailing whitespace is ignored on both sides since nodes commonly
// send "login: " with a space after the colon.
func matchPrompt(buffered string, prompts []string) bool {
	trimmed := strings.TrimRight(buffered, " \t\r\n")
	if trimmed == "" {
		return false
	}
	for _, p := range prompts {
		p = strings.TrimRight(p, " \t\r\n")
		if p != "" && strings.HasSuffix(trimmed, p) {
			return true
		}
	}
	return false
}

func (w *worker) sendCallsign() error {
	n, err := w.lc.WriteLine(w.handle.Callsign, w.settings.WriteTimeout)
	if err != nil {
		if n == 0 {
			return newError(KindConnectionLost, "write", w.addr, err)
		}
		return newError(KindUnknown, "write", w.addr, err)
	}
	w.logf("%s: logged in as %s", w.settings.Name, w.handle.Callsign)
	return nil
}
