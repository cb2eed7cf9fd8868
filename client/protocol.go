package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mitchellh/mapstructure"

	"github.com/statutehq/legiswire/wire"
)

// call is the generic request path for public operations: it refuses outside
// the connected phase, then round-trips through the pending-call registry.
func (c *clientImpl) call(method string, params interface{}, timeout time.Duration) (json.RawMessage, error) {
	c.mu.RLock()
	connected := c.phase == PhaseConnected
	c.mu.RUnlock()
	if !connected {
		return nil, ErrNotConnected
	}
	return c.roundTrip(method, params, timeout)
}

// roundTrip registers a pending call, dispatches its envelope, and waits for
// settlement. The reply may come back on the dispatch response or on the push
// channel; both paths settle the same registry entry and the first one wins.
// The registry's timer guarantees the wait is bounded.
func (c *clientImpl) roundTrip(method string, params interface{}, timeout time.Duration) (json.RawMessage, error) {
	pc := c.registry.register(timeout)

	req := wire.NewRequest(pc.id, method, params)
	body, err := req.Marshal()
	if err != nil {
		c.registry.settle(pc.id, nil, err)
	} else {
		go c.sendAndSettle(pc.id, body, timeout)
	}

	st := <-pc.ch
	if st.err != nil {
		return nil, st.err
	}
	return st.result, nil
}

// sendAndSettle performs the HTTP dispatch off the caller's goroutine so that
// a direct reply and a racing push frame are handled uniformly through the
// registry. A reply arriving after the call has already settled is dropped by
// the registry's no-op contract.
func (c *clientImpl) sendAndSettle(id int64, body []byte, timeout time.Duration) {
	ctx, cancel := clockwork.WithTimeout(context.Background(), c.clock, timeout)
	defer cancel()

	respBody, err := c.dispatch(ctx, body)
	if err != nil {
		c.registry.settle(id, nil, transportErr("%v", err))
		return
	}
	if len(respBody) == 0 {
		// Accepted; the reply will arrive as a push-channel response frame.
		return
	}

	msg, err := wire.ParseMessage(respBody)
	if err != nil {
		c.registry.settle(id, nil, decodeErr("malformed dispatch reply: %v", err))
		return
	}
	c.settleFromMessage(msg)
}

// settleFromMessage settles whatever call the reply envelope correlates to.
func (c *clientImpl) settleFromMessage(msg *wire.Message) {
	if msg == nil {
		return
	}
	if msg.Error != nil {
		c.registry.settle(msg.ID, nil, &Error{
			Kind:    KindProtocolFault,
			Code:    msg.Error.Code,
			Message: msg.Error.Message,
		})
		return
	}
	c.registry.settle(msg.ID, msg.Result, nil)
}

// callDecoded runs a call and decodes its result object into out.
func (c *clientImpl) callDecoded(method string, params interface{}, timeout time.Duration, out interface{}) error {
	raw, err := c.call(method, params, timeout)
	if err != nil {
		return err
	}

	var generic map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return decodeErr("invalid %s result: %v", method, err)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to build result decoder: %w", err)
	}
	if err := decoder.Decode(generic); err != nil {
		return decodeErr("invalid %s result: %v", method, err)
	}
	return nil
}

func (c *clientImpl) extractTimeout(opts ...RequestOption) time.Duration {
	for _, opt := range opts {
		if t, ok := opt.(TimeoutOption); ok {
			return t.Duration
		}
	}
	return c.requestTimeout
}

// cursorParams builds list-operation params, omitting the params object
// entirely on the first page.
func cursorParams(cursor string) interface{} {
	if cursor == "" {
		return nil
	}
	return map[string]interface{}{"cursor": cursor}
}

// ListTools implements Client. Pagination is followed internally.
func (c *clientImpl) ListTools(opts ...RequestOption) ([]wire.Tool, error) {
	timeout := c.extractTimeout(opts...)

	var all []wire.Tool
	cursor := ""
	for {
		var page struct {
			Tools      []wire.Tool
			NextCursor string
		}
		if err := c.callDecoded("tools/list", cursorParams(cursor), timeout, &page); err != nil {
			return nil, fmt.Errorf("failed to list tools: %w", err)
		}
		all = append(all, page.Tools...)
		if page.NextCursor == "" {
			return all, nil
		}
		cursor = page.NextCursor
	}
}

// CallTool implements Client. The invocation is wrapped with timing, and the
// outcome is reported to the telemetry sink; reporting is fire-and-forget.
func (c *clientImpl) CallTool(name string, args map[string]interface{}, opts ...RequestOption) (interface{}, error) {
	timeout := c.extractTimeout(opts...)

	params := map[string]interface{}{"name": name}
	if args != nil {
		params["arguments"] = args
	}

	start := c.clock.Now()
	raw, err := c.call("tools/call", params, timeout)
	elapsed := c.clock.Since(start)
	if err != nil {
		c.report(func() { c.sink.RecordFailure(name, args, err.Error(), elapsed) })
		return nil, err
	}

	var result interface{}
	if uerr := json.Unmarshal(raw, &result); uerr != nil {
		derr := decodeErr("invalid tools/call result: %v", uerr)
		c.report(func() { c.sink.RecordFailure(name, args, derr.Error(), elapsed) })
		return nil, derr
	}

	c.report(func() { c.sink.RecordSuccess(name, args, result, elapsed) })
	return result, nil
}

// ListResources implements Client. Pagination is followed internally.
func (c *clientImpl) ListResources(opts ...RequestOption) ([]wire.Resource, error) {
	timeout := c.extractTimeout(opts...)

	var all []wire.Resource
	cursor := ""
	for {
		var page struct {
			Resources  []wire.Resource
			NextCursor string
		}
		if err := c.callDecoded("resources/list", cursorParams(cursor), timeout, &page); err != nil {
			return nil, fmt.Errorf("failed to list resources: %w", err)
		}
		all = append(all, page.Resources...)
		if page.NextCursor == "" {
			return all, nil
		}
		cursor = page.NextCursor
	}
}

// ReadResource implements Client.
func (c *clientImpl) ReadResource(uri string, opts ...RequestOption) (interface{}, error) {
	timeout := c.extractTimeout(opts...)

	raw, err := c.call("resources/read", map[string]interface{}{"uri": uri}, timeout)
	if err != nil {
		return nil, err
	}
	var result interface{}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, decodeErr("invalid resources/read result: %v", err)
	}
	return result, nil
}

// ListPrompts implements Client. Pagination is followed internally.
func (c *clientImpl) ListPrompts(opts ...RequestOption) ([]wire.Prompt, error) {
	timeout := c.extractTimeout(opts...)

	var all []wire.Prompt
	cursor := ""
	for {
		var page struct {
			Prompts    []wire.Prompt
			NextCursor string
		}
		if err := c.callDecoded("prompts/list", cursorParams(cursor), timeout, &page); err != nil {
			return nil, fmt.Errorf("failed to list prompts: %w", err)
		}
		all = append(all, page.Prompts...)
		if page.NextCursor == "" {
			return all, nil
		}
		cursor = page.NextCursor
	}
}

// GetPrompt implements Client.
func (c *clientImpl) GetPrompt(name string, args map[string]interface{}, opts ...RequestOption) (interface{}, error) {
	timeout := c.extractTimeout(opts...)

	params := map[string]interface{}{"name": name}
	if args != nil {
		params["arguments"] = args
	}
	raw, err := c.call("prompts/get", params, timeout)
	if err != nil {
		return nil, err
	}
	var result interface{}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, decodeErr("invalid prompts/get result: %v", err)
	}
	return result, nil
}

// report invokes a telemetry callback, isolating the caller from anything
// the sink does.
func (c *clientImpl) report(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Debug("telemetry sink panicked", "panic", r)
		}
	}()
	fn()
}
