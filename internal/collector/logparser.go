package collector

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"

	"github.com/ernie/minebridge/internal/domain"
)

// serverThreadTag prefixes every line the main server thread logs
const serverThreadTag = "[Server thread/INFO]:"

// Regular expressions for parsing log lines, matched in order
var (
	// Chat: [12:00:00] [Server thread/INFO]: <Alice> hello
	chatRegex = regexp.MustCompile(`\[Server thread/INFO\]: <(\w+)> (.*)`)
	// Join/leave: [12:00:00] [Server thread/INFO]: Alice joined the game
	joinRegex  = regexp.MustCompile(`\[Server thread/INFO\]: (\w+) joined the game`)
	leaveRegex = regexp.MustCompile(`\[Server thread/INFO\]: (\w+) left the game`)
	// Anything else the server thread says that starts with a word
	noticeRegex = regexp.MustCompile(`\[Server thread/INFO\]: [\w ]+`)
)

// Lifecycle markers, compared against the notice text
const (
	rconReadyPrefix = "RCON running on "
	stoppingMarker  = "Stopping server"
	startingPrefix  = "Starting minecraft server"
)

// noisePhrases never become notices
var noisePhrases = []string{
	"lost connection: Disconnected",
	"logged in with entity id",
	"Server empty for ",
}

// Classify parses one log line into at most one GameEvent. It never fails:
// a line that matches nothing yields ok == false.
func Classify(line string) (domain.GameEvent, bool) {
	line = normalizeLine(line)
	if line == "" {
		return domain.GameEvent{}, false
	}

	if m := chatRegex.FindStringSubmatch(line); m != nil {
		return domain.Chat(m[1], m[2]), true
	}
	if m := joinRegex.FindStringSubmatch(line); m != nil {
		return domain.Join(m[1]), true
	}
	if m := leaveRegex.FindStringSubmatch(line); m != nil {
		return domain.Leave(m[1]), true
	}
	if !noticeRegex.MatchString(line) {
		return domain.GameEvent{}, false
	}

	text := noticeText(line)
	switch {
	case strings.HasPrefix(text, rconReadyPrefix):
		return domain.ServerStarted(), true
	case text == stoppingMarker, strings.HasPrefix(text, startingPrefix):
		return domain.ServerStopped(), true
	case isNoise(text):
		return domain.GameEvent{}, false
	}
	return domain.ServerNotice(text), true
}

// normalizeLine strips terminal escapes, invalid UTF-8 and surrounding space
func normalizeLine(line string) string {
	if !utf8.ValidString(line) {
		line = strings.ToValidUTF8(line, "")
	}
	if strings.IndexByte(line, '\x1b') >= 0 {
		line = ansi.Strip(line)
	}
	return strings.TrimSpace(line)
}

// noticeText returns what follows the last server thread tag
func noticeText(line string) string {
	idx := strings.LastIndex(line, serverThreadTag)
	return strings.TrimSpace(line[idx+len(serverThreadTag):])
}

func isNoise(text string) bool {
	if strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]") {
		return true
	}
	for _, phrase := range noisePhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}
