package events

import "fmt"

var allowedEvents = map[string]struct{}{
	// phases (sequence level)
	"phases.load_started": {},
	"phases.loaded":       {},
	"phases.fallback":     {},
	"phases.navigated":    {},
	"phases.resumed":      {},

	// phase (single level)
	"phase.served":       {},
	"phase.exhausted":    {},
	"phase.materialized": {},
	"phase.invalid":      {},

	// game clients
	"client.registered":   {},
	"client.unregistered": {},
	"client.error":        {},

	// system
	"system.startup":  {},
	"system.shutdown": {},
	"system.error":    {},
}

func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}
