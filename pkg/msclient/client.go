// Package msclient implements the gateway's authenticated, signed RPC
// client to the metadata service (MS): session management, a background
// view-reload goroutine, a coalescing pending-update queue, the direct
// create/mkdir/update/delete/update_write RPCs, and peer-gateway message
// verification.
package msclient

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/syndicate-project/gateway/internal/logger"
	"github.com/syndicate-project/gateway/pkg/cert"
	"github.com/syndicate-project/gateway/pkg/msclient/viewstore"
)

var validate = validator.New()

// Options configures a Client.
type Options struct {
	BaseURL         string
	GatewayType     string
	GatewayID       uint64
	VolumeID        uint64
	PrivateKey      *rsa.PrivateKey
	VolumePublicKey *rsa.PublicKey
	Authenticator   SessionAuthenticator
	ViewReloadFreq  time.Duration
	HTTPClient      *http.Client

	// ViewStore, if non-nil, persists the held volume/certificate view
	// across restarts so a fresh process has a usable view before its
	// first network reload completes.
	ViewStore *viewstore.Store
}

// Client is the gateway's handle to the MS: one HTTP client, one held
// view, one session, one pending-update queue, and the goroutines backing
// the latter two.
type Client struct {
	baseURL         string
	gatewayType     string
	gatewayID       uint64
	volumeID        uint64
	privateKey      *rsa.PrivateKey
	volumePublicKey *rsa.PublicKey

	httpClient *http.Client
	session    *Session
	view       *view
	reloader   *ViewReloader
	pending    *pendingQueue
	verifiers  *cert.VerifierPool
	viewStore  *viewstore.Store

	// readMu/writeMu separate read and write RPC concurrency the way the
	// spec's two CURL handles did: a second call of the same class waits
	// with randomized exponential backoff rather than racing the wire.
	readMu  backoffMutex
	writeMu backoffMutex

	lastTiming struct {
		sync.Mutex
		t Timing
	}
}

// New constructs a Client. Call Start to launch its background goroutines.
func New(opts Options) (*Client, error) {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	c := &Client{
		baseURL:         opts.BaseURL,
		gatewayType:     opts.GatewayType,
		gatewayID:       opts.GatewayID,
		volumeID:        opts.VolumeID,
		privateKey:      opts.PrivateKey,
		volumePublicKey: opts.VolumePublicKey,
		httpClient:      opts.HTTPClient,
		session:         NewSession(opts.Authenticator, opts.GatewayType, opts.GatewayID),
		view:            newView(),
		verifiers:       cert.NewVerifierPool(),
		viewStore:       opts.ViewStore,
	}
	c.reloader = newViewReloader(c, opts.ViewReloadFreq)
	c.pending = newPendingQueue(c)
	return c, nil
}

// Start performs the first synchronous view load and launches the
// view-reload and pending-upload goroutines.
func (c *Client) Start(ctx context.Context) error {
	if err := c.reloader.Start(ctx); err != nil {
		return fmt.Errorf("msclient: initial view load: %w", err)
	}
	c.pending.Start()
	return nil
}

// Stop halts the background goroutines. In-flight RPCs are not cancelled.
func (c *Client) Stop() {
	c.pending.Stop()
	c.reloader.Stop()
}

// View exposes the held volume/certificate state for read-only use by
// the sync pipeline and coordinator.
func (c *Client) View() *view { return c.view }

// QueueUpdate enqueues a metadata update for the background uploader,
// coalescing with any not-yet-uploaded update for the same file.
func (c *Client) QueueUpdate(fileID uint64, upd EntryUpdate, deadline, deadlineDelta time.Duration) {
	c.pending.Enqueue(c.volumeID, fileID, upd, deadline, deadlineDelta)
}

// LastTiming returns the most recently observed MS response timing
// breakdown, for /stats reporting.
func (c *Client) LastTiming() Timing {
	c.lastTiming.Lock()
	defer c.lastTiming.Unlock()
	return c.lastTiming.t
}

// do executes one authenticated JSON RPC: marshal req (if non-nil),
// build the request, attach basic auth, issue it, status-check, parse
// timing headers, and unmarshal into resp (if non-nil). Mirrors the
// marshal -> request -> status-check -> unmarshal shape of a REST client
// `do()` helper.
func (c *Client) do(ctx context.Context, method, path string, req, resp any) (Timing, error) {
	var body io.Reader
	if req != nil {
		if err := validate.Struct(req); err != nil {
			return Timing{}, fmt.Errorf("msclient: validate %s: %w", path, err)
		}
		data, err := json.Marshal(req)
		if err != nil {
			return Timing{}, fmt.Errorf("msclient: marshal %s: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return Timing{}, fmt.Errorf("msclient: build request %s: %w", path, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	user, pass, err := c.session.BasicAuth(ctx)
	if err != nil {
		return Timing{}, err
	}
	httpReq.SetBasicAuth(user, pass)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Timing{}, fmt.Errorf("msclient: %s: %w", path, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return Timing{}, fmt.Errorf("msclient: read response %s: %w", path, err)
	}

	timing := parseTiming(httpResp.Header)
	c.lastTiming.Lock()
	c.lastTiming.t = timing
	c.lastTiming.Unlock()

	if httpResp.StatusCode == http.StatusUnauthorized || httpResp.StatusCode == http.StatusForbidden {
		c.session.Invalidate()
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		rpcErr := &RPCError{Op: path, Status: httpResp.StatusCode, Body: string(respBody)}
		return timing, rpcErr.classify()
	}

	if resp != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, resp); err != nil {
			return timing, fmt.Errorf("msclient: unmarshal response %s: %w", path, err)
		}
	}

	return timing, nil
}

// postSigned signs req (an empty-signature-then-sign-then-reinsert
// Signable) with the gateway's private key before POSTing it, and
// verifies resp's signature against the volume public key after.
func (c *Client) postSigned(ctx context.Context, path string, req cert.Signable, resp cert.Signable) (Timing, error) {
	c.writeMu.Lock(ctx)
	defer c.writeMu.Unlock()

	if err := cert.Sign(c.privateKey, req); err != nil {
		return Timing{}, fmt.Errorf("msclient: sign %s: %w", path, err)
	}

	timing, err := c.do(ctx, http.MethodPost, path, req, resp)
	if err != nil {
		return timing, err
	}

	if len(resp.GetSignature()) > 0 {
		if err := c.verifiers.Verify(c.volumePublicKey, resp); err != nil {
			return timing, ErrSignatureInvalid
		}
	}

	return timing, nil
}

func (c *Client) getVolumeMetadata(ctx context.Context) (*VolumeMetadata, error) {
	c.readMu.Lock(ctx)
	defer c.readMu.Unlock()

	var vm VolumeMetadata
	path := fmt.Sprintf("/VOLUME/%d", c.volumeID)
	if _, err := c.do(ctx, http.MethodGet, path, nil, &vm); err != nil {
		return nil, err
	}
	return &vm, nil
}

// Create issues the direct create RPC, returning the new entry's snapshot.
func (c *Client) Create(ctx context.Context, req CreateRequest) (*EntrySnapshot, error) {
	var entry EntrySnapshot
	if _, err := c.do(ctx, http.MethodPost, "/create", &req, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Mkdir issues the direct mkdir RPC.
func (c *Client) Mkdir(ctx context.Context, req MkdirRequest) (*EntrySnapshot, error) {
	var entry EntrySnapshot
	if _, err := c.do(ctx, http.MethodPost, "/mkdir", &req, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Delete issues the direct delete RPC.
func (c *Client) Delete(ctx context.Context, req DeleteRequest) error {
	_, err := c.do(ctx, http.MethodPost, "/delete", &req, nil)
	return err
}

// Update issues a direct (non-queued) metadata update, for callers that
// need a synchronous reply rather than deadline-batched delivery.
func (c *Client) Update(ctx context.Context, upd EntryUpdate) (*ReplyMsg, error) {
	msg := &UpdatesMsg{GatewayID: c.gatewayID, Entries: []EntryUpdate{upd}}
	var reply ReplyMsg
	if _, err := c.postSigned(ctx, "/update", msg, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// UpdateWrite issues update_write: an attribute update plus the list of
// blocks it touched, returning the new write_nonce the MS assigned.
func (c *Client) UpdateWrite(ctx context.Context, req UpdateWriteRequest) (uint64, error) {
	var reply UpdateWriteReply
	if _, err := c.do(ctx, http.MethodPost, "/update_write", &req, &reply); err != nil {
		return 0, err
	}
	return reply.WriteNonce, nil
}

// VerifyGatewayMessage verifies bytes against the named gateway's held
// certificate. A miss (certificate not present in the current view)
// kicks the view reloader to fire immediately, per spec.
func (c *Client) VerifyGatewayMessage(gatewayID uint64, msg cert.Signable) error {
	gc, ok := c.view.CertByID(gatewayID)
	if !ok {
		c.reloader.Kick()
		return fmt.Errorf("msclient: verify_gateway_message: %w", ErrNotFound)
	}

	pub, err := cert.ParsePublicKeyPEM(gc.PublicKeyPEM)
	if err != nil {
		return fmt.Errorf("msclient: verify_gateway_message: parse cert pubkey: %w", err)
	}

	if err := c.verifiers.Verify(pub, msg); err != nil {
		logger.Warn("msclient: peer message verification failed",
			logger.ErrorCode(int(gatewayID)))
		return ErrSignatureInvalid
	}
	return nil
}

func parseTiming(h http.Header) Timing {
	get := func(name string) float64 {
		v, _ := strconv.ParseFloat(h.Get(name), 64)
		return v
	}
	return Timing{
		VolumeMS:  get("X-Volume-Time"),
		GatewayMS: get("X-Gateway-Time"),
		TotalMS:   get("X-Total-Time"),
		ResolveMS: get("X-Resolve-Time"),
	}
}
