package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lightninglabs/tbtcswap"
)

const (
	defaultTimeout = 30 * time.Second

	// maxResponseSize limits the size of a response body we read.
	maxResponseSize = 1 << 20
)

// queryClient is a client of the tbtcswapd HTTP query surface.
type queryClient struct {
	server    string
	http      *http.Client
	userAgent string
}

func newQueryClient(server string, timeout time.Duration) *queryClient {
	return &queryClient{
		server:    strings.TrimSuffix(server, "/"),
		http:      &http.Client{Timeout: timeout},
		userAgent: tbtcswap.UserAgent("tbtccli"),
	}
}

// get requests the path and returns the indented json body. Responses with
// an error status are returned as error.
func (c *queryClient) get(ctx context.Context, elems ...string) (string,
	error) {

	path := ""
	for _, elem := range elems {
		path += "/" + url.PathEscape(elem)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, c.server+path, nil,
	)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return "", fmt.Errorf("%v: %v", resp.Status,
				errResp.Error)
		}

		return "", fmt.Errorf("%v", resp.Status)
	}

	var out bytes.Buffer
	if err := json.Indent(&out, body, "", "    "); err != nil {
		return "", fmt.Errorf("invalid response: %w", err)
	}

	return out.String(), nil
}
