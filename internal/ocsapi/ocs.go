package ocsapi

import (
	"context"
	"fmt"

	"github.com/imroc/req/v3"
)

// ocsEnvelope is the wrapper every OCS endpoint nests its payload in.
type ocsEnvelope[T any] struct {
	OCS struct {
		Meta struct {
			Status     string `json:"status"`
			StatusCode int    `json:"statuscode"`
			Message    string `json:"message"`
		} `json:"meta"`
		Data T `json:"data"`
	} `json:"ocs"`
}

type capabilitiesData struct {
	Capabilities map[string]any `json:"capabilities"`
}

// CapabilitiesResult carries the raw capabilities document and the core
// version string extracted from it.
type CapabilitiesResult struct {
	Capabilities  map[string]any
	ServerVersion string
}

// Capabilities fetches the server capabilities document.
func (c *Client) Capabilities(ctx context.Context) (*CapabilitiesResult, error) {
	var envelope ocsEnvelope[capabilitiesData]

	res, err := c.http.R().
		SetContext(ctx).
		SetSuccessResult(&envelope).
		Get(capabilitiesPath)
	if err := handleAPIError(res, err, "capabilities"); err != nil {
		return nil, err
	}

	caps := envelope.OCS.Data.Capabilities
	return &CapabilitiesResult{
		Capabilities:  caps,
		ServerVersion: coreVersion(caps),
	}, nil
}

// coreVersion digs capabilities.core.status.version out of the raw
// capabilities document. Missing keys yield an empty string, not an
// error; not every server reports a core version.
func coreVersion(caps map[string]any) string {
	core, ok := caps["core"].(map[string]any)
	if !ok {
		return ""
	}
	status, ok := core["status"].(map[string]any)
	if !ok {
		return ""
	}
	v, _ := status["version"].(string)
	return v
}

// Identity is the server-side description of the authenticated user.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"display-name"`
}

// CurrentUser fetches the identity of the authenticated user.
func (c *Client) CurrentUser(ctx context.Context) (*Identity, error) {
	var envelope ocsEnvelope[Identity]

	res, err := c.http.R().
		SetContext(ctx).
		SetSuccessResult(&envelope).
		Get(currentUserPath)
	if err := handleAPIError(res, err, "current user"); err != nil {
		return nil, err
	}

	return &envelope.OCS.Data, nil
}

// handleAPIError folds transport errors and non-success statuses into a
// single error value.
func handleAPIError(res *req.Response, requestErr error, operation string) error {
	if requestErr != nil {
		return fmt.Errorf("http request error: %s: %w", operation, requestErr)
	}

	if res.IsErrorState() {
		return fmt.Errorf("api error: %s: %s", operation, res.Status)
	}

	return nil
}
