package intent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Type identifies what an utterance asks the assistant to do. The set is
// closed: Types lists every member.
type Type string

const (
	OpenApp             Type = "open_app"
	CloseApp            Type = "close_app"
	SwitchApp           Type = "switch_app"
	ReadFile            Type = "read_file"
	WriteFile           Type = "write_file"
	ListFiles           Type = "list_files"
	FindFile            Type = "find_file"
	RunCommand          Type = "run_command"
	KillProcess         Type = "kill_process"
	ListProcesses       Type = "list_processes"
	SearchWeb           Type = "search_web"
	OpenURL             Type = "open_url"
	BookmarkURL         Type = "bookmark_url"
	PlayMedia           Type = "play_media"
	PauseMedia          Type = "pause_media"
	ControlVolume       Type = "control_volume"
	GetTime             Type = "get_time"
	GetWeather          Type = "get_weather"
	GetSystemInfo       Type = "get_system_info"
	FocusWindow         Type = "focus_window"
	ClickAt             Type = "click_at"
	TypeText            Type = "type_text"
	Screenshot          Type = "screenshot"
	AskForClarification Type = "ask_for_clarification"
	Help                Type = "help"
	Exit                Type = "exit"
)

var allTypes = []Type{
	OpenApp, CloseApp, SwitchApp,
	ReadFile, WriteFile, ListFiles, FindFile,
	RunCommand, KillProcess, ListProcesses,
	SearchWeb, OpenURL, BookmarkURL,
	PlayMedia, PauseMedia, ControlVolume,
	GetTime, GetWeather, GetSystemInfo,
	FocusWindow, ClickAt, TypeText, Screenshot,
	AskForClarification, Help, Exit,
}

// Types returns every intent type in declaration order.
func Types() []Type {
	out := make([]Type, len(allTypes))
	copy(out, allTypes)
	return out
}

// Valid reports whether t is a member of the closed set.
func (t Type) Valid() bool {
	for _, v := range allTypes {
		if v == t {
			return true
		}
	}
	return false
}

// ParseType converts a wire name into a Type.
func ParseType(s string) (Type, error) {
	t := Type(strings.TrimSpace(s))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
	return t, nil
}

// Well-known option keys.
const (
	OptDryRun               = "dry_run"
	OptLanguage             = "original_language"
	OptOriginalText         = "original_text"
	OptMessage              = "message"
	OptContent              = "content"
	OptX                    = "x"
	OptY                    = "y"
	OptRequiresConfirmation = "requires_confirmation"
)

var (
	ErrMissingField = errors.New("intent: missing required field")
	ErrUnknownType  = errors.New("intent: unknown intent type")
)

// Options carries free-form intent parameters.
type Options map[string]any

// Clone returns a shallow copy. A nil receiver yields an empty map.
func (o Options) Clone() Options {
	out := make(Options, len(o)+1)
	for k, v := range o {
		out[k] = v
	}
	return out
}

// String returns the option as a string, or "" if absent or not a string.
func (o Options) String(key string) string {
	s, _ := o[key].(string)
	return s
}

// Bool returns the option as a bool, falling back to def when absent or
// not a bool.
func (o Options) Bool(key string, def bool) bool {
	switch v := o[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// Int returns the option as an int. Numbers decoded from JSON arrive as
// float64 or json.Number, so both are accepted.
func (o Options) Int(key string) (int, bool) {
	switch v := o[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	}
	return 0, false
}

// Intent is a structured command derived from one utterance.
type Intent struct {
	Type    Type    `json:"intent"`
	Target  string  `json:"target"`
	Options Options `json:"options"`
}

// New builds an intent with dry_run defaulted to true.
func New(t Type, target string) Intent {
	return Intent{Type: t, Target: target, Options: Options{OptDryRun: true}}
}

// DryRun reports the intent's dry_run option. Absence means true.
func (in Intent) DryRun() bool {
	return in.Options.Bool(OptDryRun, true)
}

// Validate checks that the required fields are present. Type membership is
// not checked here; dispatch reports unknown types.
func (in Intent) Validate() error {
	if in.Type == "" {
		return fmt.Errorf("%w: intent", ErrMissingField)
	}
	if in.Options == nil {
		return fmt.Errorf("%w: options", ErrMissingField)
	}
	return nil
}

// Decode builds an Intent from a generic object such as decoded JSON.
// The keys "intent", "target" and "options" must all be present. A
// non-object options value is replaced with an empty map, and dry_run is
// injected as true when absent.
func Decode(m map[string]any) (Intent, error) {
	for _, field := range []string{"intent", "target", "options"} {
		if _, ok := m[field]; !ok {
			return Intent{}, fmt.Errorf("%w: %s", ErrMissingField, field)
		}
	}

	name, ok := m["intent"].(string)
	if !ok || name == "" {
		return Intent{}, fmt.Errorf("%w: intent must be a non-empty string", ErrMissingField)
	}

	target, ok := m["target"].(string)
	if !ok {
		if m["target"] != nil {
			return Intent{}, fmt.Errorf("intent: target must be a string, got %T", m["target"])
		}
	}

	opts := Options{}
	if raw, ok := m["options"].(map[string]any); ok {
		for k, v := range raw {
			opts[k] = v
		}
	}
	if _, ok := opts[OptDryRun]; !ok {
		opts[OptDryRun] = true
	}

	return Intent{Type: Type(name), Target: target, Options: opts}, nil
}

// UnmarshalJSON decodes through Decode so the wire form gets the same
// required-field checks as any other source.
func (in *Intent) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	decoded, err := Decode(m)
	if err != nil {
		return err
	}
	*in = decoded
	return nil
}
