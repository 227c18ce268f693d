package assistant

import (
	"github.com/cgast/agdesk/pkg/capability"
	"github.com/cgast/agdesk/pkg/confirm"
	"github.com/cgast/agdesk/pkg/consent"
	"github.com/cgast/agdesk/pkg/events"
)

// ConsentRecorder persists consent decisions. *audit.Log satisfies it.
type ConsentRecorder interface {
	LogConsent(action, target string, res confirm.Result) error
}

type consentJournal struct {
	rec ConsentRecorder
	bus events.EventBus
}

// ConsentJournal returns a consent.Journal that records each decision in
// rec and publishes it on bus. Either may be nil.
func ConsentJournal(rec ConsentRecorder, bus events.EventBus) consent.Journal {
	return consentJournal{rec: rec, bus: bus}
}

func (j consentJournal) LogConsent(action, target string, res confirm.Result) error {
	if j.bus != nil {
		j.bus.Publish(events.NewEvent(events.EventConsentDecision, map[string]any{
			"action":  action,
			"target":  target,
			"outcome": string(res.Outcome()),
		}))
	}
	if j.rec == nil {
		return nil
	}
	return j.rec.LogConsent(action, target, res)
}

// PublishCapabilityChanges forwards registry changes to bus.
func PublishCapabilityChanges(reg *capability.Registry, bus events.EventBus) {
	reg.OnChange(func(c capability.Change) {
		bus.Publish(events.NewEvent(events.EventCapabilityChanged, map[string]any{
			"capability": string(c.Name),
			"enabled":    c.Enabled,
		}))
	})
}
