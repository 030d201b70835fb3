package bot

import (
	"fmt"
	"strings"
)

// callbackAction is the closed set of inline-keyboard actions the bot emits.
type callbackAction string

const (
	actionApprove callbackAction = "appr"
	actionDeny    callbackAction = "deny"
)

// encodeCallback packs an action and session id into callback data. Telegram
// caps callback data at 64 bytes; a 4-byte tag plus a 36-byte UUID fits.
func encodeCallback(action callbackAction, sessionID string) string {
	return string(action) + ":" + sessionID
}

// parseCallback is the inverse of encodeCallback. Unknown tags are rejected
// so stale keyboards from older bot versions cannot trigger anything.
func parseCallback(data string) (callbackAction, string, error) {
	tag, sessionID, ok := strings.Cut(data, ":")
	if !ok || sessionID == "" {
		return "", "", fmt.Errorf("unrecognised callback data %q", data)
	}

	switch action := callbackAction(tag); action {
	case actionApprove, actionDeny:
		return action, sessionID, nil
	default:
		return "", "", fmt.Errorf("unrecognised callback action %q", tag)
	}
}
