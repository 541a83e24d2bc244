package cli

import (
	"errors"
	"fmt"
	"strings"
)

// CLI-specific sentinel errors.
// These are setup/usage errors that don't belong to domain packages.

var (
	// ErrCredentialsMissing indicates required reddit credentials are not set.
	ErrCredentialsMissing = errors.New("reddit credentials not set")

	// ErrAPIKeyMissing indicates OPENAI_API_KEY environment variable is not set.
	ErrAPIKeyMissing = errors.New("OPENAI_API_KEY environment variable not set")
)

func credentialsMissingError(missing []string) error {
	return fmt.Errorf("%w: missing %s (set SUBFEED_CLIENT_ID, SUBFEED_CLIENT_SECRET, SUBFEED_USERNAME, SUBFEED_PASSWORD)",
		ErrCredentialsMissing, strings.Join(missing, ", "))
}
