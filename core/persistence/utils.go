package persistence

import (
	"time"

	"github.com/asaidimu/go-tapestry/core/document"
)

func createEvent(
	eventType EventType,
	operation string,
	doc *document.Document,
	input any,
	output any,
	err *string,
	startTime time.Time,
) Event {
	var duration *int64
	if !startTime.IsZero() {
		d := time.Since(startTime).Milliseconds()
		duration = &d
	}

	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UnixMilli(),
		Operation: operation,
		Input:     input,
		Output:    output,
		Error:     err,
		Duration:  duration,
	}
	if doc != nil {
		event.Collection = doc.Type().Collection()
		event.DocumentType = doc.TypeName()
		event.DocumentID = doc.ID()
	}
	return event
}
