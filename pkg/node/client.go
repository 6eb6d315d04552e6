package node

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/lancscode/chatter/pkg/gossip"
)

// Client calls the HTTP endpoints of remote peers. It implements
// gossip.Transport; any non-2xx answer counts as a failed call.
type Client struct {
	http *http.Client
}

var _ gossip.Transport = (*Client)(nil)

// NewClient returns a Client whose calls are bounded by timeout.
func NewClient(timeout time.Duration) *Client {
	return &Client{http: &http.Client{Timeout: timeout}}
}

func (c *Client) RegisterPeer(ctx context.Context, hostport string, self gossip.Peer) error {
	return c.do(ctx, http.MethodPost, hostport, "/v1/peers", self, nil)
}

func (c *Client) ReceiveMessage(ctx context.Context, hostport string, msg gossip.Message) error {
	return c.do(ctx, http.MethodPost, hostport, "/v1/messages", msg, nil)
}

func (c *Client) KnownPeers(ctx context.Context, hostport string) ([]gossip.Peer, error) {
	var peers []gossip.Peer
	if err := c.do(ctx, http.MethodGet, hostport, "/v1/peers", nil, &peers); err != nil {
		return nil, err
	}
	return peers, nil
}

// Send asks the peer at hostport to originate content.
func (c *Client) Send(ctx context.Context, hostport, content string) (gossip.Message, error) {
	var msg gossip.Message
	err := c.do(ctx, http.MethodPost, hostport, "/chat", sendRequest{Content: content}, &msg)
	return msg, err
}

// History fetches up to limit recent messages rendered by the peer at hostport.
func (c *Client) History(ctx context.Context, hostport string, limit int) ([]gossip.Message, error) {
	var msgs []gossip.Message
	path := "/chat/history?limit=" + strconv.Itoa(limit)
	if err := c.do(ctx, http.MethodGet, hostport, path, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (c *Client) do(ctx context.Context, method, hostport, path string, in, out any) error {
	url := "http://" + NormalizeHostPort(hostport, DefaultPort) + path

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d: %s", method, url, resp.StatusCode, e.Error)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
