package listener

import (
	"log"
	"net"
	"strconv"
	"time"

	"dxlistener/spot"
)

const (
	defaultPollInterval  = 250 * time.Millisecond
	defaultAuthRetries   = 10
	defaultMaxLineLength = 4096
	defaultWriteTimeout  = 10 * time.Second
)

// DefaultPrompts are the login prompts cluster nodes are known to send.
var DefaultPrompts = []string{"login:", "Please enter your call:"}

// ParseFunc turns one cleaned line into a spot. A non-nil error means the
// line is not a spot; it is dropped and never terminates the connection.
type ParseFunc func(line string) (*spot.Spot, error)

// Observer receives per-connection events. Calls happen on the worker
// goroutine and must not block.
type Observer interface {
	LineReceived(name string)
	SpotDelivered(name string, s *spot.Spot)
	ParseFailed(name string, line string)
	PhaseChanged(name string, phase Phase)
}

// Handle is the immutable identity of a target server and credential.
type Handle struct {
	Host     string
	Port     uint16
	Callsign string
}

// Addr returns host:port suitable for dialing.
func (h Handle) Addr() string {
	return net.JoinHostPort(h.Host, strconv.Itoa(int(h.Port)))
}

// String renders callsign@host:port.
func (h Handle) String() string {
	return h.Callsign + "@" + h.Addr()
}

// Settings tunes one listener. Zero values select the defaults.
type Settings struct {
	// Name labels log lines and observer events; defaults to Handle.String().
	Name string
	// PollInterval bounds every read so the stop signal and the auth retry
	// budget are evaluated at least this often.
	PollInterval time.Duration
	// AuthRetries is the number of consecutive read timeouts without a
	// prompt before authentication fails.
	AuthRetries int
	// Prompts are matched as suffixes of the buffered server output.
	Prompts       []string
	MaxLineLength int
	WriteTimeout  time.Duration
	Transport     Transport
	Parser        ParseFunc
	Logger        *log.Logger
	Observer      Observer
}

func (s Settings) withDefaults(h Handle) Settings {
	if s.Name == "" {
		s.Name = h.String()
	}
	if s.PollInterval <= 0 {
		s.PollInterval = defaultPollInterval
	}
	if s.AuthRetries <= 0 {
		s.AuthRetries = defaultAuthRetries
	}
	if len(s.Prompts) == 0 {
		s.Prompts = DefaultPrompts
	}
	if s.MaxLineLength <= 0 {
		s.MaxLineLength = defaultMaxLineLength
	}
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = defaultWriteTimeout
	}
	if s.Transport == "" {
		s.Transport = TransportNative
	}
	if s.Parser == nil {
		s.Parser = spot.Parse
	}
	if s.Logger == nil {
		s.Logger = log.Default()
	}
	return s
}
