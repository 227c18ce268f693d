package router

import (
	"github.com/cgast/agdesk/pkg/capability"
	"github.com/cgast/agdesk/pkg/intent"
)

// CapabilityChecker answers whether a capability is enabled.
type CapabilityChecker interface {
	IsEnabled(name capability.Name) bool
}

// RequiredCapability returns the capability gating t. ok is false for types
// that need none.
func RequiredCapability(t intent.Type) (name capability.Name, ok bool) {
	switch t {
	case intent.OpenApp, intent.SwitchApp, intent.FocusWindow, intent.ClickAt, intent.TypeText:
		return capability.WindowControl, true
	case intent.CloseApp, intent.KillProcess, intent.ListProcesses:
		return capability.ProcessControl, true
	case intent.ReadFile, intent.WriteFile, intent.ListFiles, intent.FindFile:
		return capability.FS, true
	case intent.RunCommand:
		return capability.RunShell, true
	case intent.SearchWeb, intent.OpenURL:
		return capability.BrowserControl, true
	case intent.GetSystemInfo:
		return capability.SystemInfo, true
	case intent.Screenshot:
		return capability.Screenshot, true
	case intent.GetWeather:
		return capability.Network, true
	case intent.GetTime, intent.Help, intent.AskForClarification, intent.Exit:
		return "", false
	case intent.BookmarkURL, intent.PlayMedia, intent.PauseMedia, intent.ControlVolume:
		return "", false
	}
	return "", false
}
