package coordinator

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/syndicate-project/gateway/pkg/cert"
)

// ShouldBecomeCoordinator reports whether err from Send means the caller
// should take over as coordinator per spec.md §4.5's "coordinator
// change" rule: the current coordinator is unreachable, or it explicitly
// redirected (ceded). Any other error — ESTALE, an invalid reply
// signature — is not a handoff signal and should be handled on its own
// terms instead.
func ShouldBecomeCoordinator(err error) bool {
	return errors.Is(err, ErrCeded) || errors.Is(err, ErrUnreachable)
}

// CoordinatorLookup resolves a gateway ID to its finish-endpoint base URL
// and current public key, as held in the MS client's certificate view.
type CoordinatorLookup func(gatewayID uint64) (baseURL string, pub *rsa.PublicKey, found bool)

// Client sends signed WriteMsgs to a file's coordinator and verifies the
// signed reply.
type Client struct {
	httpClient *http.Client
	lookup     CoordinatorLookup
	privateKey *rsa.PrivateKey
	selfID     uint64
	verifiers  *cert.VerifierPool
}

// NewClient builds a Client. httpClient defaults to a 30s timeout if nil.
func NewClient(lookup CoordinatorLookup, privateKey *rsa.PrivateKey, selfID uint64, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		lookup:     lookup,
		privateKey: privateKey,
		selfID:     selfID,
		verifiers:  cert.NewVerifierPool(),
	}
}

// Send signs msg, posts it to coordinatorID's finish endpoint, and
// verifies the reply. A transport failure or an unknown coordinator both
// surface as ErrUnreachable so the caller's coordinator-change path
// treats them identically to an explicit REDIRECT (ErrCeded).
func (c *Client) Send(ctx context.Context, coordinatorID uint64, msg *WriteMsg) (*WriteReply, error) {
	msg.SenderGatewayID = c.selfID

	baseURL, coordinatorPub, found := c.lookup(coordinatorID)
	if !found {
		return nil, fmt.Errorf("%w: no address for coordinator %d", ErrUnreachable, coordinatorID)
	}

	if err := cert.Sign(c.privateKey, msg); err != nil {
		return nil, fmt.Errorf("coordinator: sign write message: %w", err)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("coordinator: marshal write message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/coordinator/finish", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	var reply WriteReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("coordinator: decode reply: %w", err)
	}

	if err := c.verifiers.Verify(coordinatorPub, &reply); err != nil {
		return nil, fmt.Errorf("%w: reply signature invalid", ErrInvalidSignature)
	}

	switch reply.Status {
	case StatusStale:
		return &reply, ErrStale
	case StatusRedirect:
		return &reply, ErrCeded
	case StatusInvalid:
		return &reply, ErrInvalidSignature
	default:
		return &reply, nil
	}
}
