package assistant

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/cgast/agdesk/pkg/audit"
	"github.com/cgast/agdesk/pkg/capability"
	"github.com/cgast/agdesk/pkg/consent"
	"github.com/cgast/agdesk/pkg/events"
	"github.com/cgast/agdesk/pkg/intent"
	"github.com/cgast/agdesk/pkg/protocol"
	"github.com/cgast/agdesk/pkg/router"
)

const defaultHistoryLimit = 10

// Services are the components exposed over JSON-RPC. Nil members leave
// their methods unregistered; Session is required.
type Services struct {
	Session      *Session
	Router       *router.Router
	Capabilities *capability.Registry
	Consent      *consent.Store
	Audit        *audit.Log
	Bus          events.EventBus
}

// CapabilityInfo is one row of capabilities.list.
type CapabilityInfo struct {
	Name        string `json:"name"`
	Enabled     bool   `json:"enabled"`
	Description string `json:"description"`
}

// RegisterMethods binds the agent-mode methods on h.
func RegisterMethods(h *protocol.Handler, svc Services) {
	s := svc.Session

	h.Register(protocol.MethodIntentExtract, func(ctx context.Context, params json.RawMessage) (any, *protocol.Error) {
		p, rpcErr := protocol.ParseParams[protocol.TextParams](params)
		if rpcErr != nil {
			return nil, rpcErr
		}
		return s.extractor.Analyze(ctx, p.Text), nil
	})

	h.Register(protocol.MethodIntentExecute, func(ctx context.Context, params json.RawMessage) (any, *protocol.Error) {
		p, rpcErr := protocol.ParseParams[protocol.ExecuteParams](params)
		if rpcErr != nil {
			return nil, rpcErr
		}
		in, err := intent.Decode(p.Intent)
		if err != nil {
			return nil, &protocol.Error{Code: protocol.CodeInvalidIntent, Message: err.Error()}
		}
		return s.Execute(ctx, p.Input, in).Map(), nil
	})

	h.Register(protocol.MethodProcess, func(ctx context.Context, params json.RawMessage) (any, *protocol.Error) {
		p, rpcErr := protocol.ParseParams[protocol.TextParams](params)
		if rpcErr != nil {
			return nil, rpcErr
		}
		turn := s.Process(ctx, p.Text)
		return map[string]any{
			"extraction": turn.Extraction,
			"result":     turn.Result.Map(),
			"exit":       turn.Exit(),
		}, nil
	})

	if svc.Capabilities != nil {
		registerCapabilityMethods(h, svc.Capabilities)
	}
	if svc.Consent != nil {
		registerConsentMethods(h, svc.Consent)
	}
	if svc.Audit != nil {
		registerHistoryMethods(h, svc.Audit)
	}
	if svc.Router != nil {
		registerModeMethods(h, svc.Router, svc.Bus)
	}
}

func capabilityList(reg *capability.Registry) []CapabilityInfo {
	flags := reg.All()
	out := make([]CapabilityInfo, 0, len(flags))
	for _, name := range capability.Names() {
		out = append(out, CapabilityInfo{
			Name:        string(name),
			Enabled:     flags[name],
			Description: reg.Describe(name),
		})
	}
	return out
}

func registerCapabilityMethods(h *protocol.Handler, reg *capability.Registry) {
	h.Register(protocol.MethodCapabilitiesList, func(context.Context, json.RawMessage) (any, *protocol.Error) {
		return capabilityList(reg), nil
	})

	h.Register(protocol.MethodCapabilitiesSet, func(_ context.Context, params json.RawMessage) (any, *protocol.Error) {
		p, rpcErr := protocol.ParseParams[protocol.CapabilitySetParams](params)
		if rpcErr != nil {
			return nil, rpcErr
		}
		if len(p.Changes) == 0 {
			return nil, protocol.InvalidParams("changes must not be empty")
		}
		changes := make(map[capability.Name]bool, len(p.Changes))
		for name, on := range p.Changes {
			changes[capability.Name(name)] = on
		}
		if err := reg.Update(changes); err != nil {
			if errors.Is(err, capability.ErrUnknownCapability) {
				return nil, &protocol.Error{Code: protocol.CodeUnknownCapability, Message: err.Error()}
			}
			return nil, &protocol.Error{Code: protocol.CodeStorageFailed, Message: err.Error()}
		}
		return capabilityList(reg), nil
	})
}

func registerConsentMethods(h *protocol.Handler, store *consent.Store) {
	h.Register(protocol.MethodConsentList, func(context.Context, json.RawMessage) (any, *protocol.Error) {
		records, err := store.List()
		if err != nil {
			return nil, &protocol.Error{Code: protocol.CodeStorageFailed, Message: err.Error()}
		}
		return records, nil
	})

	h.Register(protocol.MethodConsentRevoke, func(_ context.Context, params json.RawMessage) (any, *protocol.Error) {
		p, rpcErr := protocol.ParseParams[protocol.ConsentRevokeParams](params)
		if rpcErr != nil {
			return nil, rpcErr
		}
		if p.Action == "" {
			return nil, protocol.InvalidParams("action is required")
		}

		if p.Target == "" {
			n, err := store.RevokeAll(p.Action)
			if err != nil {
				return nil, &protocol.Error{Code: protocol.CodeStorageFailed, Message: err.Error()}
			}
			return map[string]any{"revoked": n}, nil
		}

		ok, err := store.Revoke(p.Action, p.Target)
		if err != nil {
			return nil, &protocol.Error{Code: protocol.CodeStorageFailed, Message: err.Error()}
		}
		n := 0
		if ok {
			n = 1
		}
		return map[string]any{"revoked": n}, nil
	})
}

func registerHistoryMethods(h *protocol.Handler, log *audit.Log) {
	h.Register(protocol.MethodHistoryRecent, func(_ context.Context, params json.RawMessage) (any, *protocol.Error) {
		p, rpcErr := protocol.ParseParams[protocol.HistoryParams](params)
		if rpcErr != nil {
			return nil, rpcErr
		}
		limit := p.Limit
		if limit <= 0 {
			limit = defaultHistoryLimit
		}

		var (
			out any
			err error
		)
		switch p.Kind {
		case "", "interactions":
			out, err = log.RecentInteractions(limit)
		case "errors":
			out, err = log.RecentErrors(limit)
		case "consents":
			out, err = log.RecentConsents(limit)
		default:
			return nil, protocol.InvalidParams("unknown history kind %q", p.Kind)
		}
		if err != nil {
			return nil, &protocol.Error{Code: protocol.CodeStorageFailed, Message: err.Error()}
		}
		return out, nil
	})

	h.Register(protocol.MethodHistoryStats, func(context.Context, json.RawMessage) (any, *protocol.Error) {
		stats, err := log.Statistics()
		if err != nil {
			return nil, &protocol.Error{Code: protocol.CodeStorageFailed, Message: err.Error()}
		}
		return stats, nil
	})
}

func registerModeMethods(h *protocol.Handler, r *router.Router, bus events.EventBus) {
	h.Register(protocol.MethodModeDryRun, func(_ context.Context, params json.RawMessage) (any, *protocol.Error) {
		p, rpcErr := protocol.ParseParams[protocol.DryRunParams](params)
		if rpcErr != nil {
			return nil, rpcErr
		}
		if p.Enabled != nil && *p.Enabled != r.DryRun() {
			r.SetDryRun(*p.Enabled)
			if bus != nil {
				bus.Publish(events.NewEvent(events.EventModeChanged, map[string]any{"dry_run": *p.Enabled}))
			}
		}
		return map[string]any{"dry_run": r.DryRun()}, nil
	})
}
