package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/cgast/agdesk/pkg/intent"
)

type rule struct {
	typ   intent.Type
	match *regexp.Regexp
}

// rules are evaluated in order against the lower-cased text; the first match
// decides the intent type. More specific phrases come before the generic
// verbs they contain ("open ... file" before "open ...").
var rules = []rule{
	{intent.Exit, regexp.MustCompile(`^(exit|quit|bye|goodbye)[.!]?$`)},
	{intent.WriteFile, regexp.MustCompile(`\b(write|save)\b.+\b(to|into)\s+\S+|\b(write|create|save)\b.*\bfile\b`)},
	{intent.ReadFile, regexp.MustCompile(`\b(read|open|show|display|cat)\b.*\bfile\b|^(read|cat)\s+\S+`)},
	{intent.ListFiles, regexp.MustCompile(`\b(list|show)\b.*\b(files|directory|folder|dir)\b|^ls\b`)},
	{intent.FindFile, regexp.MustCompile(`\b(find|locate|search for)\b.*\bfiles?\b|^(find|locate)\s+\S+`)},
	{intent.ListProcesses, regexp.MustCompile(`\b(list|show)\b.*\bprocess(es)?\b|^ps$`)},
	{intent.KillProcess, regexp.MustCompile(`\b(kill|terminate)\s+\S+|\b(stop|end)\b.*\bprocess\b`)},
	{intent.RunCommand, regexp.MustCompile(`\b(run|execute)\s+\S+`)},
	{intent.GetSystemInfo, regexp.MustCompile(`\bsystem\b.*\b(info|information|status|stats)\b|\b(cpu|memory|disk)\s+usage\b`)},
	{intent.OpenURL, regexp.MustCompile(`https?://|\bopen\b.*\b(url|website|link)\b|\b(go to|visit)\s+\S+\.\S+`)},
	{intent.SearchWeb, regexp.MustCompile(`\b(search|google)\b`)},
	{intent.Screenshot, regexp.MustCompile(`\bscreen\s?shot\b|\bcapture\s+(the\s+)?screen\b`)},
	{intent.FocusWindow, regexp.MustCompile(`\bfocus\b`)},
	{intent.SwitchApp, regexp.MustCompile(`\bswitch to\b`)},
	{intent.PlayMedia, regexp.MustCompile(`\bplay\b.*\b(music|video|media|song)\b`)},
	{intent.PauseMedia, regexp.MustCompile(`\b(pause|stop)\b.*\b(music|video|media|song)\b`)},
	{intent.CloseApp, regexp.MustCompile(`\b(close|quit)\s+\S+`)},
	{intent.OpenApp, regexp.MustCompile(`\b(open|start|launch)\s+\S+`)},
	{intent.ClickAt, regexp.MustCompile(`\bclick\b`)},
	{intent.TypeText, regexp.MustCompile(`\btype\s+\S+`)},
	{intent.GetTime, regexp.MustCompile(`\b(what|current)\b.*\btime\b|\btime is it\b`)},
	{intent.GetWeather, regexp.MustCompile(`\b(weather|temperature|forecast)\b`)},
	{intent.ControlVolume, regexp.MustCompile(`\b(volume|sound|mute|unmute)\b`)},
	{intent.Help, regexp.MustCompile(`\b(help|what can)\b|^how\b`)},
	{intent.Exit, regexp.MustCompile(`\b(exit|goodbye|bye)\b`)},
}

var (
	openAppTarget   = regexp.MustCompile(`(?i)\b(?:open|start|launch)\s+(?:the\s+)?(.*?)(?:\s+(?:app|application|program))?$`)
	closeAppTarget  = regexp.MustCompile(`(?i)\b(?:close|quit)\s+(?:the\s+)?(.*?)(?:\s+(?:app|application|program|window))?$`)
	switchAppTarget = regexp.MustCompile(`(?i)\bswitch\s+to\s+(?:the\s+)?(.*?)(?:\s+(?:app|application|program|window))?$`)
	focusTarget     = regexp.MustCompile(`(?i)\bfocus(?:\s+on)?\s+(?:the\s+)?(.*?)(?:\s+window)?$`)
	readFileTarget  = regexp.MustCompile(`(?i)\b(?:read|open|show|display|cat)\s+(?:the\s+)?(?:file\s+)?(.*?)(?:\s+file)?$`)
	writeToTarget   = regexp.MustCompile(`(?i)\b(?:write|save)\s+(.+?)\s+(?:to|into)\s+(?:the\s+)?(?:file\s+)?(\S+)$`)
	createTarget    = regexp.MustCompile(`(?i)\b(?:create|write|save)\s+(?:a\s+)?(?:new\s+)?(?:the\s+)?file\s+(?:called\s+|named\s+)?(\S+)`)
	listFilesTarget = regexp.MustCompile(`(?i)\b(?:list|show|ls)\s*(?:files\s+)?(?:in\s+)?(.*?)(?:\s+(?:files|directory|folder|dir))?$`)
	listStopWords   = regexp.MustCompile(`(?i)\b(files|in|the|directory|folder|dir|my|of)\b`)
	findFileTarget  = regexp.MustCompile(`(?i)\b(?:find|locate|search\s+for)\s+(?:the\s+)?(?:files?\s+)?(?:called\s+|named\s+)?(.*?)(?:\s+files?)?$`)
	killTarget      = regexp.MustCompile(`(?i)\b(?:kill|terminate|stop|end)\s+(?:the\s+)?(?:process\s+)?(.*?)(?:\s+process)?$`)
	runTarget       = regexp.MustCompile(`(?i)\b(?:run|execute)\s+(?:the\s+)?(?:command\s+)?(.*?)(?:\s+(?:command|script))?$`)
	searchTarget    = regexp.MustCompile(`(?i)\b(?:search|google)\s+(?:the\s+web\s+)?(?:for\s+)?(.*)`)
	urlTarget       = regexp.MustCompile(`(?i)(https?://\S+)`)
	siteTarget      = regexp.MustCompile(`(?i)\b(?:open|go\s+to|visit)\s+(?:the\s+)?(?:url|website|link|site)?\s*(\S+\.\S+)`)
	typeTarget      = regexp.MustCompile(`(?i)\btype\s+(?:the\s+)?(?:text\s+)?(.*)`)
	coordinates     = regexp.MustCompile(`(\d+)\s*[,\s]\s*(\d+)`)
	weatherTarget   = regexp.MustCompile(`(?i)\b(?:weather|temperature|forecast)\b.*?\b(?:in|for|at)\s+(.+?)[?.!]?$`)
)

// matchPattern classifies text with the rule table. It returns false when
// no rule matches.
func matchPattern(text string) (intent.Intent, bool) {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)

	for _, r := range rules {
		if r.match.MatchString(lower) {
			return buildIntent(r.typ, trimmed), true
		}
	}
	return intent.Intent{}, false
}

// buildIntent applies the per-type target rule. Types that name something
// fall back to the whole text when their rule finds nothing; types that act
// on nothing get an empty target.
func buildIntent(t intent.Type, text string) intent.Intent {
	in := intent.New(t, "")

	switch t {
	case intent.OpenApp:
		in.Target = capture(openAppTarget, text, 1)
	case intent.CloseApp:
		in.Target = capture(closeAppTarget, text, 1)
	case intent.SwitchApp:
		in.Target = capture(switchAppTarget, text, 1)
	case intent.FocusWindow:
		in.Target = capture(focusTarget, text, 1)
	case intent.ReadFile:
		in.Target = capture(readFileTarget, text, 1)
	case intent.WriteFile:
		if m := writeToTarget.FindStringSubmatch(text); m != nil {
			in.Options[intent.OptContent] = strings.TrimSpace(m[1])
			in.Target = strings.TrimSpace(m[2])
		} else {
			in.Target = capture(createTarget, text, 1)
			in.Options[intent.OptContent] = ""
		}
	case intent.ListFiles:
		dir := capture(listFilesTarget, text, 1)
		dir = strings.Join(strings.Fields(listStopWords.ReplaceAllString(dir, "")), " ")
		if dir == "" {
			dir = "."
		}
		in.Target = dir
		return in
	case intent.FindFile:
		in.Target = capture(findFileTarget, text, 1)
	case intent.KillProcess:
		in.Target = capture(killTarget, text, 1)
	case intent.RunCommand:
		in.Target = capture(runTarget, text, 1)
		in.Options[intent.OptRequiresConfirmation] = true
	case intent.SearchWeb:
		in.Target = capture(searchTarget, text, 1)
	case intent.OpenURL:
		in.Target = capture(urlTarget, text, 1)
		if in.Target == "" {
			in.Target = capture(siteTarget, text, 1)
		}
	case intent.TypeText:
		in.Target = capture(typeTarget, text, 1)
	case intent.ClickAt:
		if m := coordinates.FindStringSubmatch(text); m != nil {
			x, _ := strconv.Atoi(m[1])
			y, _ := strconv.Atoi(m[2])
			in.Options[intent.OptX] = x
			in.Options[intent.OptY] = y
		}
		return in
	case intent.GetWeather:
		in.Target = capture(weatherTarget, text, 1)
		return in
	case intent.ControlVolume, intent.PlayMedia, intent.PauseMedia, intent.BookmarkURL:
		in.Target = text
		return in
	default:
		return in
	}

	if in.Target == "" {
		in.Target = text
	}
	return in
}

func capture(re *regexp.Regexp, text string, group int) string {
	m := re.FindStringSubmatch(text)
	if m == nil || group >= len(m) {
		return ""
	}
	return strings.TrimSpace(m[group])
}
