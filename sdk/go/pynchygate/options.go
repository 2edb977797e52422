package pynchygate

// Option configures a Client at creation time.
type Option func(*clientConfig)

type clientConfig struct {
	configPath string
	auditPath  string
	addr       string
	workspace  string
	session    string
}

// WithConfig sets the path to the gate config YAML used in-process.
func WithConfig(path string) Option {
	return func(c *clientConfig) { c.configPath = path }
}

// WithAudit records in-process decisions to the audit database at path.
func WithAudit(path string) Option {
	return func(c *clientConfig) { c.auditPath = path }
}

// WithServer evaluates against a running gate server instead of in-process.
func WithServer(addr string) Option {
	return func(c *clientConfig) { c.addr = addr }
}

// WithWorkspace sets the workspace actions are attributed to.
func WithWorkspace(id string) Option {
	return func(c *clientConfig) { c.workspace = id }
}

// WithSession fixes the session id instead of generating one.
func WithSession(id string) Option {
	return func(c *clientConfig) { c.session = id }
}

// WrapOption configures a single Wrap call.
type WrapOption func(*wrapConfig)

type wrapConfig struct {
	capability string
	operation  string
}

// WrapCapability fills in the capability for actions that leave it empty.
func WrapCapability(name string) WrapOption {
	return func(w *wrapConfig) { w.capability = name }
}

// WrapOperation fills in the operation for actions that leave it empty.
func WrapOperation(op string) WrapOption {
	return func(w *wrapConfig) { w.operation = op }
}
