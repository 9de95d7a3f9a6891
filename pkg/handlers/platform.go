package handlers

import (
	"context"

	"github.com/Sahoo999/meeting-ai/pkg/realtime"
	"github.com/Sahoo999/meeting-ai/pkg/stream"
)

// AgentSession is a live realtime agent attached to a call.
type AgentSession interface {
	UpdateSession(ctx context.Context, update realtime.SessionUpdate) error
	Close() error
	Done() <-chan struct{}
}

// VideoPlatform is the subset of the video platform the webhook needs.
type VideoPlatform interface {
	VerifyWebhook(body []byte, signature string) bool
	ConnectAgent(ctx context.Context, callType, callID, agentUserID, openAIKey string) (AgentSession, error)
	EndCall(ctx context.Context, callType, callID string) error
}

// StreamPlatform adapts *stream.Client to VideoPlatform.
type StreamPlatform struct {
	Client *stream.Client
}

func (p StreamPlatform) VerifyWebhook(body []byte, signature string) bool {
	return p.Client.VerifyWebhook(body, signature)
}

func (p StreamPlatform) ConnectAgent(ctx context.Context, callType, callID, agentUserID, openAIKey string) (AgentSession, error) {
	sess, err := p.Client.Call(callType, callID).ConnectOpenAI(ctx, stream.ConnectOpenAIOptions{
		OpenAIAPIKey: openAIKey,
		AgentUserID:  agentUserID,
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (p StreamPlatform) EndCall(ctx context.Context, callType, callID string) error {
	return p.Client.Call(callType, callID).End(ctx)
}
