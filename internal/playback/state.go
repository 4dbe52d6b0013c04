package playback

import (
	"fmt"
	"time"
)

type State int

const (
	StateIdle State = iota
	StateNegotiating
	StateStreaming
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateStreaming:
		return "streaming"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Config is the capacity and retry policy of a Buffer.
type Config struct {
	// High is the sink buffered duration above which the buffer trims
	// before the next hand-off.
	High time.Duration
	// Low is what a trim keeps.
	Low time.Duration
	// MaxPending caps the pending queue; the oldest frame is evicted.
	MaxPending int
	// RetryDelay is the fixed pause after a dropped frame or decode error.
	RetryDelay time.Duration
}

var DefaultConfig = Config{
	High:       10 * time.Second,
	Low:        5 * time.Second,
	MaxPending: 100,
	RetryDelay: 100 * time.Millisecond,
}

func (c Config) withDefaults() Config {
	if c.High <= 0 {
		c.High = DefaultConfig.High
	}
	if c.Low <= 0 || c.Low >= c.High {
		c.Low = c.High / 2
	}
	if c.MaxPending <= 0 {
		c.MaxPending = DefaultConfig.MaxPending
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultConfig.RetryDelay
	}
	return c
}

// Stats count what happened to frames in the current subscription.
type Stats struct {
	Ingested     int `json:"ingested"`
	HandedOff    int `json:"handedOff"`
	Dropped      int `json:"dropped"`
	Evicted      int `json:"evicted"`
	Discarded    int `json:"discarded"`
	Trimmed      int `json:"trimmed"`
	DecodeErrors int `json:"decodeErrors"`
	Anomalies    int `json:"anomalies"`
}

// Snapshot is a diagnostic view of a Buffer.
type Snapshot struct {
	State      State         `json:"state"`
	Epoch      uint64        `json:"epoch"`
	Codec      string        `json:"codec,omitempty"`
	Pending    int           `json:"pending"`
	Buffered   time.Duration `json:"buffered"`
	SinkBusy   bool          `json:"sinkBusy"`
	RetryArmed bool          `json:"retryArmed"`
	Attempts   int           `json:"attempts"`
	Err        string        `json:"error,omitempty"`
	Stats      Stats         `json:"stats"`
}
