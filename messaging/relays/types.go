package relays

import (
	"time"

	"github.com/nbd-wtf/go-nostr"
	"meshnostr/engine/actors"
	"meshnostr/engine/library"
)

// ConnState is the per-relay connection lifecycle.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
)

// RelayConnectionError classifies socket failures. Permanent errors (DNS
// resolution) are never retried automatically.
type RelayConnectionError struct {
	URL       string
	Permanent bool
	Err       error
}

func (e *RelayConnectionError) Error() string {
	return "relay " + e.URL + ": " + e.Err.Error()
}

func (e *RelayConnectionError) Unwrap() error {
	return e.Err
}

// Config tunes the connection engine. Zero values fall back to the same
// defaults InitConfig seeds into viper.
type Config struct {
	ConnectTimeout            time.Duration
	ReconnectInitialInterval  time.Duration
	ReconnectMultiplier       float64
	ReconnectMaxInterval      time.Duration
	ReconnectMaxAttempts      int
	DedupeCapacity            int
	SubscriptionCheckInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout:            time.Second * 10,
		ReconnectInitialInterval:  time.Second,
		ReconnectMultiplier:       2.0,
		ReconnectMaxInterval:      time.Second * 300,
		ReconnectMaxAttempts:      10,
		DedupeCapacity:            5000,
		SubscriptionCheckInterval: time.Second * 30,
	}
}

// ConfigFromViper reads the engine tuning from the global config object.
func ConfigFromViper() Config {
	conf := actors.MakeOrGetConfig()
	if conf == nil {
		return DefaultConfig()
	}
	return Config{
		ConnectTimeout:            conf.GetDuration("connectTimeout"),
		ReconnectInitialInterval:  conf.GetDuration("reconnectInitialInterval"),
		ReconnectMultiplier:       conf.GetFloat64("reconnectMultiplier"),
		ReconnectMaxInterval:      conf.GetDuration("reconnectMaxInterval"),
		ReconnectMaxAttempts:      conf.GetInt("reconnectMaxAttempts"),
		DedupeCapacity:            conf.GetInt("dedupeCapacity"),
		SubscriptionCheckInterval: conf.GetDuration("subscriptionCheckInterval"),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.ReconnectInitialInterval <= 0 {
		c.ReconnectInitialInterval = d.ReconnectInitialInterval
	}
	if c.ReconnectMultiplier <= 1 {
		c.ReconnectMultiplier = d.ReconnectMultiplier
	}
	if c.ReconnectMaxInterval <= 0 {
		c.ReconnectMaxInterval = d.ReconnectMaxInterval
	}
	if c.ReconnectMaxAttempts <= 0 {
		c.ReconnectMaxAttempts = d.ReconnectMaxAttempts
	}
	if c.DedupeCapacity <= 0 {
		c.DedupeCapacity = d.DedupeCapacity
	}
	if c.SubscriptionCheckInterval <= 0 {
		c.SubscriptionCheckInterval = d.SubscriptionCheckInterval
	}
	return c
}

// RelayStatus is an immutable snapshot of one relay's state. External
// callers only ever see copies, never the live table.
type RelayStatus struct {
	URL               string
	State             ConnState
	LastError         string
	ReconnectAttempts int
	NextReconnectTime time.Time
	MessagesSent      int64
	MessagesReceived  int64
	QueuedEvents      int
}

// EventHandler receives first-seen events matching a subscription, in
// socket-receive order for any single relay.
type EventHandler func(relayURL string, ev *nostr.Event)

// Subscription couples a filter with its handler and optional relay target
// set. A nil TargetRelays means every relay the pool knows about.
type Subscription struct {
	ID           string
	Filter       nostr.Filter
	Handler      EventHandler
	OnEndOfStoredEvents func(relayURL string)
	TargetRelays []string
	CreatedAt    time.Time
}

func (s *Subscription) targets(url string) bool {
	if s.TargetRelays == nil {
		return true
	}
	for _, u := range s.TargetRelays {
		if u == url {
			return true
		}
	}
	return false
}

// SubscriptionStatus is the snapshot form of a subscription for diagnostics.
type SubscriptionStatus struct {
	ID           string
	TargetRelays []string
	SentTo       []string
	CreatedAt    time.Time
}

// OKStatus records a relay's acceptance verdict for a published event.
type OKStatus struct {
	EventID  library.Sha256
	RelayURL string
	Accepted bool
	Message  string
}
