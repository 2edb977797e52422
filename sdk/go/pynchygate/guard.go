package pynchygate

import "context"

// ToolFunc is the function signature that Wrap guards.
type ToolFunc func(ctx context.Context, action Action) (any, error)

// Wrap returns a ToolFunc that asks the gate before calling fn. If the gate
// does not allow the action, fn is not called and a *BlockedError is
// returned.
func (c *Client) Wrap(fn ToolFunc, opts ...WrapOption) ToolFunc {
	var w wrapConfig
	for _, o := range opts {
		o(&w)
	}

	return func(ctx context.Context, action Action) (any, error) {
		if action.Capability == "" {
			action.Capability = w.capability
		}
		if action.Operation == "" {
			action.Operation = w.operation
		}

		res := c.Evaluate(ctx, action)
		if !res.Allowed() {
			return nil, &BlockedError{Action: action, Result: res}
		}
		return fn(ctx, action)
	}
}
