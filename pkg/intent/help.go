package intent

var helpText = map[Type]string{
	OpenApp:             "Launch an application. Example: 'open chrome'",
	CloseApp:            "Close an application. Example: 'close notepad'",
	SwitchApp:           "Bring an application to the front. Example: 'switch to firefox'",
	ReadFile:            "Read file contents. Example: 'read file.txt'",
	WriteFile:           "Create or write to a file. Example: 'write hello world to file.txt'",
	ListFiles:           "List directory contents. Example: 'list files in documents'",
	FindFile:            "Search for files by name. Example: 'find readme'",
	RunCommand:          "Execute system command. Example: 'run ls -la'",
	KillProcess:         "Terminate a process. Example: 'kill notepad'",
	ListProcesses:       "Show running processes. Example: 'list processes'",
	SearchWeb:           "Search the internet. Example: 'search for python tutorials'",
	OpenURL:             "Open a web address. Example: 'open https://example.com'",
	GetTime:             "Get current time. Example: 'what time is it'",
	GetWeather:          "Get the weather. Example: 'weather in paris'",
	GetSystemInfo:       "Show system information. Example: 'show system status'",
	FocusWindow:         "Focus a window. Example: 'focus chrome window'",
	ClickAt:             "Click at coordinates. Example: 'click at 100, 200'",
	TypeText:            "Type text. Example: 'type hello world'",
	Screenshot:          "Capture the screen. Example: 'take screenshot'",
	Help:                "Show help information. Example: 'help'",
	AskForClarification: "Ask for clarification when intent is unclear",
	Exit:                "End the session. Example: 'goodbye'",
}

// HelpText returns a one-line description of t.
func HelpText(t Type) string {
	if s, ok := helpText[t]; ok {
		return s
	}
	return "No help available for this intent."
}
