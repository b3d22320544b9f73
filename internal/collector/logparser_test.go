package collector

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ernie/minebridge/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		line string
		want domain.GameEvent
		ok   bool
	}{
		{
			name: "chat",
			line: "[12:00:01] [Server thread/INFO]: <Alice> hello",
			want: domain.Chat("Alice", "hello"),
			ok:   true,
		},
		{
			name: "chat without timestamp",
			line: "[Server thread/INFO]: <Alice> hello",
			want: domain.Chat("Alice", "hello"),
			ok:   true,
		},
		{
			name: "chat keeps free-form text",
			line: "[Server thread/INFO]: <Bob_2> joined the game, lol <3",
			want: domain.Chat("Bob_2", "joined the game, lol <3"),
			ok:   true,
		},
		{
			name: "join",
			line: "[12:00:02] [Server thread/INFO]: Steve joined the game",
			want: domain.Join("Steve"),
			ok:   true,
		},
		{
			name: "leave",
			line: "[12:00:03] [Server thread/INFO]: Steve left the game",
			want: domain.Leave("Steve"),
			ok:   true,
		},
		{
			name: "advancement notice",
			line: "[12:00:04] [Server thread/INFO]: Steve has made the advancement [Stone Age]",
			want: domain.ServerNotice("Steve has made the advancement [Stone Age]"),
			ok:   true,
		},
		{
			name: "death notice",
			line: "[12:00:05] [Server thread/INFO]: Steve was slain by Zombie",
			want: domain.ServerNotice("Steve was slain by Zombie"),
			ok:   true,
		},
		{
			name: "rcon ready marker",
			line: "[12:00:06] [Server thread/INFO]: RCON running on 0.0.0.0:25575",
			want: domain.ServerStarted(),
			ok:   true,
		},
		{
			name: "stopping marker",
			line: "[12:00:07] [Server thread/INFO]: Stopping server",
			want: domain.ServerStopped(),
			ok:   true,
		},
		{
			name: "starting marker",
			line: "[12:00:08] [Server thread/INFO]: Starting minecraft server version 1.21.1",
			want: domain.ServerStopped(),
			ok:   true,
		},
		{
			name: "lost connection noise",
			line: "[12:00:09] [Server thread/INFO]: Steve lost connection: Disconnected",
		},
		{
			name: "entity id noise",
			line: "[12:00:10] [Server thread/INFO]: Steve[/127.0.0.1:5555] logged in with entity id 42 at (1, 2, 3)",
		},
		{
			name: "idle noise",
			line: "[12:00:11] [Server thread/INFO]: Server empty for 60 seconds, pausing",
		},
		{
			name: "bracketed metadata",
			line: "[12:00:12] [Server thread/INFO]:  [Steve: Set the time to 1000]",
		},
		{
			name: "other thread",
			line: "[12:00:13] [Worker-Main-1/INFO]: Preparing spawn area: 50%",
		},
		{
			name: "empty",
			line: "   ",
		},
		{
			name: "ansi colored chat",
			line: "\x1b[32m[12:00:14] [Server thread/INFO]: <Alice> hi\x1b[0m",
			want: domain.Chat("Alice", "hi"),
			ok:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Classify(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyNoisePhrasesNeverYieldNotice(t *testing.T) {
	for _, phrase := range noisePhrases {
		line := "[Server thread/INFO]: Someone " + phrase + " something"
		ev, ok := Classify(line)
		if ok {
			assert.NotEqual(t, domain.EventServerNotice, ev.Kind, phrase)
		}
	}
}
