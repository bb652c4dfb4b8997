package client

import (
	"context"
	"strings"

	"github.com/novelcore/kubeclient/pkg/watch"
)

// WatchResource streams change events of a single resource to the
// handler. The returned session lives until the stream closes or Stop is
// called; the handler's OnClose may re-establish it.
func (c *Client) WatchResource(ctx context.Context, kind, namespace, name string, handler watch.Handler) (*watch.Session, error) {
	url, err := c.conv.WatchOneURL(kind, namespace, name)
	if err != nil {
		return nil, err
	}

	return watch.Open(ctx, c.exec, sessionName(kind, namespace, name), url, handler, c.log)
}

// WatchResources streams change events of a whole collection, across all
// namespaces when namespace is empty
func (c *Client) WatchResources(ctx context.Context, kind, namespace string, handler watch.Handler) (*watch.Session, error) {
	url, err := c.conv.WatchAllURL(kind, namespace)
	if err != nil {
		return nil, err
	}

	return watch.Open(ctx, c.exec, sessionName(kind, namespace, ""), url, handler, c.log)
}

func sessionName(kind, namespace, name string) string {
	parts := []string{strings.ToLower(kind), namespace}
	if name != "" {
		parts = append(parts, name)
	}
	return strings.Join(parts, "-")
}
