// Package client is the user-facing surface of the dynamic Kubernetes
// client. A Client learns the cluster's resource vocabulary from the
// discovery endpoints at construction and keeps it current through a
// CustomResourceDefinition watch, so resources defined after startup are
// usable without regeneration or restart.
package client

import (
	"context"

	"github.com/crossplane/function-sdk-go/logging"

	"github.com/novelcore/kubeclient/pkg/analyzer"
	"github.com/novelcore/kubeclient/pkg/convertor"
	"github.com/novelcore/kubeclient/pkg/executor"
	"github.com/novelcore/kubeclient/pkg/registry"
)

// Client composes the rule base, the URL convertor, the discovery
// analyzer, and the request executor behind resource-level operations.
// All synchronous operations are safe for concurrent use; watches run on
// their own goroutines.
type Client struct {
	exec     executor.Executor
	rules    *registry.RuleBase
	conv     *convertor.Convertor
	analyzer *analyzer.Analyzer
	log      logging.Logger

	includeKindParam bool
}

// Option customizes client construction
type Option func(*Client)

// WithLogger sets the logger threaded through every component
func WithLogger(log logging.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// WithKindListParameter appends a kind=<kind> query parameter to list
// URLs. The API server ignores it; off by default.
func WithKindListParameter() Option {
	return func(c *Client) {
		c.includeKindParam = true
	}
}

// NewForToken creates a client authenticating with a bearer token
func NewForToken(ctx context.Context, masterURL, token string, opts ...Option) (*Client, error) {
	return NewWithExecutor(ctx, executor.NewForToken(masterURL, token), opts...)
}

// NewForBasicAuth creates a client authenticating with HTTP basic auth
func NewForBasicAuth(ctx context.Context, masterURL, username, password string, opts ...Option) (*Client, error) {
	return NewWithExecutor(ctx, executor.NewForBasicAuth(masterURL, username, password), opts...)
}

// NewFromKubeconfig creates a client from a kubeconfig file's current
// context
func NewFromKubeconfig(ctx context.Context, path string, opts ...Option) (*Client, error) {
	exec, err := executor.NewFromKubeconfig(path)
	if err != nil {
		return nil, err
	}
	return NewWithExecutor(ctx, exec, opts...)
}

// NewWithExecutor creates a client over an existing executor and runs
// discovery to fill the rule base
func NewWithExecutor(ctx context.Context, exec executor.Executor, opts ...Option) (*Client, error) {
	c := &Client{
		exec:  exec,
		rules: registry.NewRuleBase(),
		log:   logging.NewNopLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.conv = convertor.NewConvertor(c.rules)
	c.analyzer = analyzer.NewAnalyzer(exec, c.rules, c.log)

	if err := c.analyzer.Discover(ctx); err != nil {
		return nil, err
	}

	return c, nil
}

// RuleBase exposes the client's rule base, e.g. for targeted lookups
func (c *Client) RuleBase() *registry.RuleBase {
	return c.rules
}

// Convertor exposes the client's URL convertor
func (c *Client) Convertor() *convertor.Convertor {
	return c.conv
}

// Analyzer exposes the client's discovery analyzer
func (c *Client) Analyzer() *analyzer.Analyzer {
	return c.analyzer
}

// Kinds returns the sorted short kinds the client currently knows
func (c *Client) Kinds() []string {
	return c.rules.Kinds()
}

// FullKinds returns the sorted fullKinds the client currently knows
func (c *Client) FullKinds() []string {
	return c.rules.FullKinds()
}

// KindDescriptors returns a snapshot of every known descriptor keyed by
// fullKind
func (c *Client) KindDescriptors() map[string]registry.KindDescriptor {
	return c.rules.Descriptors()
}
