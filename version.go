package tbtcswap

import (
	"fmt"
	"strings"
)

// Commit stores the commit hash of this build, set with -ldflags at
// compile time.
var Commit string

const (
	appMajor uint = 0
	appMinor uint = 3
	appPatch uint = 0

	appPreRelease = "beta"

	agentName = "tbtcswap"

	// maxInitiatorLen bounds the initiator part of the user agent.
	maxInitiatorLen = 64
)

// Version returns the semantic version of this build and its commit.
func Version() string {
	return fmt.Sprintf("%s commit=%s", semanticVersion(), Commit)
}

// UserAgent identifies a client of the query server. Characters other than
// letters, digits, dots and dashes are dropped from the initiator.
func UserAgent(initiator string) string {
	initiator = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9', r == '.', r == '-':

			return r

		default:
			return -1
		}
	}, initiator)

	if len(initiator) > maxInitiatorLen {
		initiator = initiator[:maxInitiatorLen]
	}

	agent := fmt.Sprintf("%s/v%s/commit=%s", agentName, semanticVersion(),
		Commit)
	if initiator != "" {
		agent += ",initiator=" + initiator
	}

	return agent
}

func semanticVersion() string {
	version := fmt.Sprintf("%d.%d.%d", appMajor, appMinor, appPatch)
	if appPreRelease != "" {
		version += "-" + appPreRelease
	}

	return version
}
