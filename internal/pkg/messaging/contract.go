package messaging

import (
	"time"

	"github.com/google/uuid"
)

// HeaderContract names the identity headers a record must carry. who and
// trace_id are required on top of these.
type HeaderContract struct {
	ID         string
	Type       string
	OccurredOn string
}

var (
	CommandContract = HeaderContract{ID: HeaderCommandID, Type: HeaderCommandType, OccurredOn: HeaderCommandOccurredOn}
	EventContract   = HeaderContract{ID: HeaderEventID, Type: HeaderEventType, OccurredOn: HeaderEventOccurredOn}
)

func (c HeaderContract) Required() []string {
	return []string{c.ID, c.Type, c.OccurredOn, HeaderWho, HeaderTraceID}
}

// Missing lists the required headers absent from msg, in contract order.
func (c HeaderContract) Missing(msg Message) []string {
	var missing []string
	for _, name := range c.Required() {
		if msg.Header(name) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// CommandMetadata is the envelope every command carries.
type CommandMetadata struct {
	CommandID   string    `json:"commandId"`
	CommandType string    `json:"commandType"`
	OccurredOn  time.Time `json:"occurredOn"`
	Who         string    `json:"who"`
	TraceID     string    `json:"traceId"`
}

func NewCommandMetadata(commandType, who, traceID string) CommandMetadata {
	return CommandMetadata{
		CommandID:   uuid.NewString(),
		CommandType: commandType,
		OccurredOn:  time.Now().UTC(),
		Who:         who,
		TraceID:     traceID,
	}
}

func (m CommandMetadata) Metadata() CommandMetadata { return m }

func (m CommandMetadata) Headers() map[string]string {
	return map[string]string{
		HeaderCommandID:         m.CommandID,
		HeaderCommandType:       m.CommandType,
		HeaderCommandOccurredOn: m.OccurredOn.UTC().Format(TimeLayout),
		HeaderWho:               m.Who,
		HeaderTraceID:           m.TraceID,
	}
}

// Command is anything the CommandBus can dispatch.
type Command interface {
	Metadata() CommandMetadata
}

// EventMetadata is the envelope published alongside an event payload.
type EventMetadata struct {
	EventID    string
	EventType  string
	OccurredOn time.Time
	Who        string
	TraceID    string
}

func (m EventMetadata) Headers() map[string]string {
	return map[string]string{
		HeaderEventID:         m.EventID,
		HeaderEventType:       m.EventType,
		HeaderEventOccurredOn: m.OccurredOn.UTC().Format(TimeLayout),
		HeaderWho:             m.Who,
		HeaderTraceID:         m.TraceID,
	}
}
