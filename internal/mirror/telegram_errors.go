package mirror

import (
	"errors"
	"strings"

	telebot "gopkg.in/telebot.v3"
)

// The Bot API distinguishes these failures only by description text,
// so classification matches substrings the same way the API reports them.

// IsNotModified reports the "message is not modified" edit error,
// which the mirror treats as success.
func IsNotModified(err error) bool {
	return hasDescription(err, "message is not modified")
}

// IsMessageGone reports errors meaning the mirrored message or the channel
// itself is no longer reachable, so the mirror must be recreated.
func IsMessageGone(err error) bool {
	return hasDescription(err, "message to edit not found") ||
		hasDescription(err, "chat not found") ||
		hasDescription(err, "bot was kicked") ||
		hasDescription(err, "bot is not a member")
}

func hasDescription(err error, fragment string) bool {
	if err == nil {
		return false
	}

	var tbErr *telebot.Error
	if errors.As(err, &tbErr) && tbErr != nil {
		return strings.Contains(strings.ToLower(tbErr.Description), fragment)
	}

	return strings.Contains(strings.ToLower(err.Error()), fragment)
}
