package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mitchellh/mapstructure"

	"github.com/statutehq/legiswire/wire"
)

// protocolVersion is the handshake revision this client speaks.
const protocolVersion = "2025-06-01"

// handshakeResult is what the gateway returns from initialize: the session
// identifier the push stream must carry, and the account's entitlement.
type handshakeResult struct {
	SessionID       string            `mapstructure:"sessionId"`
	ProtocolVersion string            `mapstructure:"protocolVersion"`
	Entitlement     *wire.Entitlement `mapstructure:"entitlement"`
}

// initialize performs the capability handshake. It runs before the push
// stream is opened, so the reply always comes back on the dispatch response.
func (c *clientImpl) initialize() (*handshakeResult, error) {
	params := map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]interface{}{
			"notifications": map[string]interface{}{
				"listChanged": true,
			},
		},
		"clientInfo": map[string]interface{}{
			"name":    c.clientName,
			"version": c.clientVersion,
		},
	}

	raw, err := c.roundTrip("initialize", params, c.connectionTimeout)
	if err != nil {
		return nil, err
	}

	var generic map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, decodeErr("invalid initialize result: %v", err)
	}
	var hs handshakeResult
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &hs,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build handshake decoder: %w", err)
	}
	if err := decoder.Decode(generic); err != nil {
		return nil, decodeErr("invalid initialize result: %v", err)
	}
	if hs.SessionID == "" {
		return nil, decodeErr("initialize result carries no session identifier")
	}

	c.logger.Debug("handshake complete",
		"session_id", hs.SessionID,
		"protocol_version", hs.ProtocolVersion)
	return &hs, nil
}

// teardownSession tells the gateway to release a session. Best effort only:
// every failure is logged at debug and swallowed.
func (c *clientImpl) teardownSession(sessionID string) {
	if sessionID == "" {
		return
	}

	ctx, cancel := clockwork.WithTimeout(context.Background(), c.clock, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.url, nil)
	if err != nil {
		c.logger.Debug("session teardown skipped", "error", err)
		return
	}
	req.Header.Set(wire.SessionHeader, sessionID)
	if err := c.applyAuth(req.Header); err != nil {
		c.logger.Debug("session teardown skipped", "error", err)
		return
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("session teardown failed", "error", err)
		return
	}
	resp.Body.Close()
}
