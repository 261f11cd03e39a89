// Package httpc talks to a running gamepi server over HTTP.
// The CLI uses it to flash and query a station on another host.
package httpc

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/teslashibe/go-gamepi/pkg/catalog"
	"github.com/teslashibe/go-gamepi/pkg/flash"
)

// Default timeouts for HTTP operations.
const (
	DefaultTimeout         = 30 * time.Second
	DefaultConnectTimeout  = 10 * time.Second
	DefaultKeepAlive       = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
)

// NewHTTPClient creates an HTTP client with the specified timeout.
// A zero timeout waits indefinitely, which flash requests need.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   DefaultConnectTimeout,
				KeepAlive: DefaultKeepAlive,
			}).DialContext,
			MaxIdleConns:          10,
			MaxIdleConnsPerHost:   2,
			IdleConnTimeout:       DefaultIdleConnTimeout,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// Client is a gamepi API client.
type Client struct {
	baseURL string
	query   *http.Client
	flash   *http.Client
}

// New creates a client for the server at baseURL ("http://pi.local:5000").
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		query:   NewHTTPClient(DefaultTimeout),
		flash:   NewHTTPClient(0),
	}
}

// FlashResponse is the server's answer to a flash request.
type FlashResponse struct {
	StatusCode int
	Body       string
}

// OK reports whether the flash succeeded.
func (r *FlashResponse) OK() bool {
	return r.StatusCode == http.StatusOK
}

// Flash asks the server to flash game and waits for the result fragment.
func (c *Client) Flash(game string) (*FlashResponse, error) {
	resp, err := c.flash.PostForm(c.baseURL+"/flash", url.Values{"game": {game}})
	if err != nil {
		return nil, fmt.Errorf("flash request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read flash response: %w", err)
	}
	return &FlashResponse{StatusCode: resp.StatusCode, Body: string(body)}, nil
}

// Status returns the device status.
func (c *Client) Status() (*flash.Status, error) {
	var status flash.Status
	if err := c.getJSON("/api/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Games returns the server's catalog.
func (c *Client) Games() ([]catalog.Entry, error) {
	var payload struct {
		Games []catalog.Entry `json:"games"`
	}
	if err := c.getJSON("/api/games", &payload); err != nil {
		return nil, err
	}
	return payload.Games, nil
}

func (c *Client) getJSON(path string, v any) error {
	resp, err := c.query.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
