package preview

import (
	"fmt"
	"net/http"
	"time"

	"apex-preview/internal/bundler"
	"apex-preview/internal/sandbox"
)

// Strategy names accepted by NewStack.
const (
	StrategyInline    = "inline"
	StrategyDevServer = "devserver"
)

// FactoryConfig selects and configures the delivery strategy.
type FactoryConfig struct {
	Strategy string
	BaseURL  string
	Secret   string
	// PreviousSecret is accepted for verification during a key rotation.
	PreviousSecret string
	LinkTTL        time.Duration

	// Service builds inline bundles.
	Service *bundler.Service

	// WorkDir and DevServer configure the dev-server strategy.
	WorkDir   string
	DevServer sandbox.DevServerConfig

	// CheckOrigin guards the reload websocket; nil allows same-origin only.
	CheckOrigin func(*http.Request) bool
	Counter     Counter
}

// Stack is the wired preview subsystem.
type Stack struct {
	Host     *Host
	Registry *Registry
	Signer   *Signer
	Hub      *Hub
	// Runtime is set for the dev-server strategy.
	Runtime *sandbox.Runtime
}

// NewStack builds the registry, signer, hub, strategy and host.
func NewStack(cfg FactoryConfig) (*Stack, error) {
	signer, err := NewSigner(cfg.Secret, cfg.LinkTTL)
	if err != nil {
		return nil, err
	}
	signer.AcceptPrevious(cfg.PreviousSecret)
	st := &Stack{
		Registry: NewRegistry(),
		Signer:   signer,
		Hub:      NewHub(cfg.CheckOrigin),
	}

	var strategy Strategy
	switch cfg.Strategy {
	case "", StrategyInline:
		if cfg.Service == nil {
			return nil, fmt.Errorf("inline strategy requires a bundler service")
		}
		strategy = NewInlineStrategy(cfg.Service, st.Registry, signer, cfg.BaseURL)
	case StrategyDevServer:
		st.Runtime = sandbox.NewRuntime(sandbox.LocalBooter(cfg.WorkDir, "node", "npm"))
		strategy = NewDevServerStrategy(st.Runtime, sandbox.NewDevServer(cfg.DevServer), cfg.WorkDir)
	default:
		return nil, fmt.Errorf("unknown preview strategy %q", cfg.Strategy)
	}

	opts := []HostOption{WithHub(st.Hub)}
	if cfg.Counter != nil {
		opts = append(opts, WithCounter(cfg.Counter))
	}
	st.Host = NewHost(strategy, opts...)
	return st, nil
}

// Shutdown releases every surface and disconnects reload clients.
func (s *Stack) Shutdown() {
	s.Host.Shutdown()
}
