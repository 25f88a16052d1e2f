package replication

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TargetLookup resolves a gateway ID to the base URL of its httpapi
// replica surface, e.g. from the MS client's held certificate view.
type TargetLookup func(targetID uint64) (baseURL string, found bool)

// HTTPTransport is the default RGTransport: PUTs and DELETEs issued
// directly against each RG at the base URL its TargetLookup returns,
// under /replica/{volume}/{file}/... (pkg/httpapi's operator router does
// not serve these paths). Block and
// manifest payloads travel as the raw request body; a real deployment
// would also attach the request signature headers the MS client uses,
// but verification of gateway-to-gateway replica traffic is out of
// scope here (see the package doc on pkg/cert for the signing
// primitives this would reuse).
type HTTPTransport struct {
	client *http.Client
	lookup TargetLookup
}

// NewHTTPTransport builds an HTTPTransport. client defaults to a 30s
// timeout if nil.
func NewHTTPTransport(lookup TargetLookup, client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPTransport{client: client, lookup: lookup}
}

func (t *HTTPTransport) urlFor(targetID uint64, path string) (string, error) {
	base, ok := t.lookup(targetID)
	if !ok {
		return "", fmt.Errorf("replication: no known address for target %d", targetID)
	}
	return base + path, nil
}

func (t *HTTPTransport) do(ctx context.Context, method, url string, body []byte) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("replication: %s %s: status %d", method, url, resp.StatusCode)
	}
	return nil
}

func (t *HTTPTransport) PutBlock(ctx context.Context, targetID uint64, f FileSnapshot, blockID uint64, payload []byte) error {
	url, err := t.urlFor(targetID, blockPath(f, blockID))
	if err != nil {
		return err
	}
	return t.do(ctx, http.MethodPut, url, payload)
}

func (t *HTTPTransport) PutManifest(ctx context.Context, targetID uint64, f FileSnapshot, payload []byte) error {
	url, err := t.urlFor(targetID, manifestPath(f))
	if err != nil {
		return err
	}
	return t.do(ctx, http.MethodPut, url, payload)
}

func (t *HTTPTransport) DeleteBlock(ctx context.Context, targetID uint64, f FileSnapshot, blockID uint64) error {
	url, err := t.urlFor(targetID, blockPath(f, blockID))
	if err != nil {
		return err
	}
	return t.do(ctx, http.MethodDelete, url, nil)
}

func (t *HTTPTransport) DeleteManifest(ctx context.Context, targetID uint64, f FileSnapshot) error {
	url, err := t.urlFor(targetID, manifestPath(f))
	if err != nil {
		return err
	}
	return t.do(ctx, http.MethodDelete, url, nil)
}

func blockPath(f FileSnapshot, blockID uint64) string {
	return fmt.Sprintf("/replica/%d/%d/block/%d", f.VolumeID, f.FileID, blockID)
}

func manifestPath(f FileSnapshot) string {
	return fmt.Sprintf("/replica/%d/%d/manifest", f.VolumeID, f.FileID)
}
