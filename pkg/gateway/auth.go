package gateway

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// fileAuthenticator implements msclient.SessionAuthenticator against a
// password provisioned out-of-band by the operator (see
// config.IdentityConfig.SessionPasswordFile), standing in for the OpenID
// handshake msclient.SessionAuthenticator's doc comment describes as out
// of scope here. The returned expiry is always ten years out: a file on
// disk has no natural renewal signal, so re-authentication would never
// actually produce a different password.
type fileAuthenticator struct {
	password string
}

func newFileAuthenticator(path string) (*fileAuthenticator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session password file: %w", err)
	}
	password := strings.TrimSpace(string(data))
	if password == "" {
		return nil, fmt.Errorf("session password file %q is empty", path)
	}
	return &fileAuthenticator{password: password}, nil
}

func (a *fileAuthenticator) Authenticate(ctx context.Context) (string, time.Time, error) {
	return a.password, time.Now().Add(10 * 365 * 24 * time.Hour), nil
}
