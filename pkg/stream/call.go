package stream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Sahoo999/meeting-ai/pkg/realtime"
)

type Call struct {
	client *Client
	Type   string
	ID     string
}

// CID is the platform's "<type>:<id>" call identifier.
func (c *Call) CID() string {
	return c.Type + ":" + c.ID
}

// End marks the call as ended for every participant.
func (c *Call) End(ctx context.Context) error {
	path := fmt.Sprintf("/api/v2/video/call/%s/%s/mark_ended", url.PathEscape(c.Type), url.PathEscape(c.ID))
	if err := c.client.do(ctx, http.MethodPost, path, struct{}{}); err != nil {
		return fmt.Errorf("end call %s: %w", c.CID(), err)
	}
	return nil
}

type ConnectOpenAIOptions struct {
	OpenAIAPIKey string
	AgentUserID  string
	// Model overrides the client default.
	Model string
}

// ConnectOpenAI asks the platform to join agentUserID to the call and bridge
// the call audio to an OpenAI realtime session. The returned session carries
// control messages for that bridge and stays open after ctx is done.
func (c *Call) ConnectOpenAI(ctx context.Context, opts ConnectOpenAIOptions) (*realtime.Session, error) {
	if strings.TrimSpace(opts.OpenAIAPIKey) == "" {
		return nil, fmt.Errorf("connect agent to %s: openai api key is required", c.CID())
	}
	token, err := c.client.UserToken(opts.AgentUserID, 0)
	if err != nil {
		return nil, fmt.Errorf("connect agent to %s: %w", c.CID(), err)
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = c.client.model
	}

	u := c.client.agentURL(c, model)
	header := http.Header{}
	header.Set("Authorization", token)
	header.Set("Stream-Auth-Type", "jwt")

	sess, err := realtime.Dial(ctx, u, realtime.DialOptions{
		Header:           header,
		Subprotocols:     realtime.Subprotocols(opts.OpenAIAPIKey),
		HandshakeTimeout: c.client.handshakeTimeout,
		MaxDuration:      c.client.maxSessionDuration,
		Logger:           c.client.logger.With("call_cid", c.CID(), "agent_user_id", opts.AgentUserID),
	})
	if err != nil {
		return nil, fmt.Errorf("connect agent to %s: %w", c.CID(), err)
	}
	return sess, nil
}

func (c *Client) agentURL(call *Call, model string) string {
	u := *c.baseURL
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/video/connect_agent"
	q := url.Values{}
	q.Set("call_type", call.Type)
	q.Set("call_id", call.ID)
	q.Set("api_key", c.APIKey())
	q.Set("stream-auth-type", "jwt")
	q.Set("model", model)
	u.RawQuery = q.Encode()
	return u.String()
}
