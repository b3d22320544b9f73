package verify

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrWhitelistRejected is returned when the console answered but did not
// acknowledge the player as whitelisted
var ErrWhitelistRejected = errors.New("whitelist command rejected")

// Vanilla answers "Added <name> to the whitelist" or "Player is already
// whitelisted". Other server builds vary the wording, so anything
// acknowledging whitelist membership counts.
var whitelistAcceptedRegex = regexp.MustCompile(`(?i)(\balready\b|added \S+ to the whitelist|whitelisted)`)

// CommandExecutor runs one remote console command
type CommandExecutor interface {
	Execute(ctx context.Context, command string) (string, error)
}

// WhitelistAccepted reports whether a whitelist-add response means the
// player is now on the whitelist
func WhitelistAccepted(response string) bool {
	return whitelistAcceptedRegex.MatchString(response)
}

// Whitelist adds name to the server whitelist. Repeating it for a name
// already on the whitelist succeeds.
func Whitelist(ctx context.Context, exec CommandExecutor, name string) error {
	response, err := exec.Execute(ctx, "whitelist add "+name)
	if err != nil {
		return err
	}
	if !WhitelistAccepted(response) {
		return fmt.Errorf("%w: %s", ErrWhitelistRejected, strings.TrimSpace(response))
	}
	return nil
}
