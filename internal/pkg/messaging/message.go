// Package messaging defines the broker-agnostic command/event protocol: the
// header contract, the command and event buses, and the listener state
// machine that drives retries, dead-lettering and the stale-message policy.
//
// Brokers plug in through Publisher on the way out and by calling
// Listener.Process for every record on the way in.
package messaging

import (
	"context"
	"errors"
	"maps"
	"time"
)

// Header names shared by every producer and consumer.
const (
	HeaderCommandID         = "command_id"
	HeaderCommandType       = "command_type"
	HeaderCommandOccurredOn = "command_occurred_on"
	HeaderEventID           = "event_id"
	HeaderEventType         = "event_type"
	HeaderEventOccurredOn   = "event_occurred_on"
	HeaderWho               = "who"
	HeaderTraceID           = "trace_id"

	HeaderErrorMessage   = "error_message"
	HeaderOriginalTopic  = "original_topic"
	HeaderRetryNotBefore = "retry_not_before"
)

// TimeLayout is used for every timestamp carried in a header.
const TimeLayout = time.RFC3339Nano

var (
	// ErrMalformedMessage marks a record that can never be processed, such as
	// one missing required headers or with an undecodable payload.
	ErrMalformedMessage = errors.New("messaging: malformed message")
	// ErrDispatch is returned when a command could not be handed to the broker.
	ErrDispatch = errors.New("messaging: dispatch failed")
)

// Message is a broker record: an opaque payload plus string headers.
type Message struct {
	Topic   string
	ID      string
	Key     string
	Payload []byte
	Headers map[string]string
}

func (m Message) Header(name string) string {
	if m.Headers == nil {
		return ""
	}
	return m.Headers[name]
}

// Clone returns a copy whose headers and payload can be changed freely.
func (m Message) Clone() Message {
	c := m
	c.Headers = maps.Clone(m.Headers)
	if c.Headers == nil {
		c.Headers = make(map[string]string)
	}
	c.Payload = append([]byte(nil), m.Payload...)
	return c
}

// Publisher hands a message to the broker and waits for its acknowledgment.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Decision is the outcome of processing one record.
type Decision struct {
	Ack   bool
	Delay time.Duration
}

func Ack() Decision {
	return Decision{Ack: true}
}

// Nack asks the broker to redeliver the same record after delay.
func Nack(delay time.Duration) Decision {
	return Decision{Delay: delay}
}

type permanentError struct {
	err error
}

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying; the listener dead-letters it on
// the first failure.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}
