package cmdutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// GetJSON issues a GET request against the target gateway's operator HTTP
// API and decodes the JSON body into out.
func GetJSON(path string, out any) error {
	url := ServerURL() + path
	resp, err := HTTPClient().Get(url)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %s", url, describeError(resp))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", url, err)
	}
	return nil
}

// PostJSON issues a POST request with no body against the target gateway's
// operator HTTP API and decodes the JSON response into out.
func PostJSON(path string, out any) error {
	url := ServerURL() + path
	resp, err := HTTPClient().Post(url, "application/json", nil)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("%s: %s", url, describeError(resp))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", url, err)
	}
	return nil
}

func describeError(resp *http.Response) string {
	body, err := io.ReadAll(resp.Body)
	if err != nil || len(body) == 0 {
		return resp.Status
	}

	var errBody struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &errBody) == nil && errBody.Error != "" {
		return fmt.Sprintf("%s: %s", resp.Status, errBody.Error)
	}
	return fmt.Sprintf("%s: %s", resp.Status, string(body))
}
