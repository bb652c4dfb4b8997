package client

import (
	"context"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/novelcore/kubeclient/pkg/convertor"
	"github.com/novelcore/kubeclient/pkg/errors"
)

// CreateResource creates the resource described by the document. The
// status subtree is stripped before sending; the server owns status.
func (c *Client) CreateResource(ctx context.Context, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	url, err := c.conv.CreateURL(obj)
	if err != nil {
		return nil, err
	}

	return c.exec.Post(ctx, url, stripStatus(obj).Object)
}

// UpdateResource replaces the resource described by the document. The
// status subtree is stripped before sending.
func (c *Client) UpdateResource(ctx context.Context, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	fullKind, err := convertor.DocumentFullKind(obj)
	if err != nil {
		return nil, err
	}

	url, err := c.conv.UpdateURL(fullKind, convertor.DocumentNamespace(obj), convertor.DocumentName(obj))
	if err != nil {
		return nil, err
	}

	return c.exec.Put(ctx, url, stripStatus(obj).Object)
}

// UpdateResourceStatus replaces the status subresource with the
// document's status subtree
func (c *Client) UpdateResourceStatus(ctx context.Context, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	fullKind, err := convertor.DocumentFullKind(obj)
	if err != nil {
		return nil, err
	}

	url, err := c.conv.UpdateStatusURL(fullKind, convertor.DocumentNamespace(obj), convertor.DocumentName(obj))
	if err != nil {
		return nil, err
	}

	return c.exec.Put(ctx, url, obj.Object)
}

// GetResource fetches one resource. Pass an empty namespace for
// cluster-scoped kinds.
func (c *Client) GetResource(ctx context.Context, kind, namespace, name string) (*unstructured.Unstructured, error) {
	url, err := c.conv.GetURL(kind, namespace, name)
	if err != nil {
		return nil, err
	}

	return c.exec.Get(ctx, url)
}

// HasResource reports whether a resource exists; any error reads as false
func (c *Client) HasResource(ctx context.Context, kind, namespace, name string) bool {
	_, err := c.GetResource(ctx, kind, namespace, name)
	return err == nil
}

// DeleteResource deletes one resource and returns the server's view of it
func (c *Client) DeleteResource(ctx context.Context, kind, namespace, name string) (*unstructured.Unstructured, error) {
	url, err := c.conv.DeleteURL(kind, namespace, name)
	if err != nil {
		return nil, err
	}

	return c.exec.Delete(ctx, url)
}

// ListResources lists a kind, across all namespaces when namespace is
// empty, narrowed by the given options
func (c *Client) ListResources(ctx context.Context, kind, namespace string, opts convertor.ListOptions) (*unstructured.Unstructured, error) {
	if c.includeKindParam {
		opts.IncludeKind = true
	}

	url, err := c.conv.ListURLWithOptions(kind, namespace, opts)
	if err != nil {
		return nil, err
	}

	return c.exec.Get(ctx, url)
}

// BindingResource schedules a pod onto a host by POSTing a Binding
// document to the pod's binding subresource
func (c *Client) BindingResource(ctx context.Context, pod *unstructured.Unstructured, host string) (*unstructured.Unstructured, error) {
	if pod == nil {
		return nil, errors.InvalidInputError("pod document is nil")
	}

	name := convertor.DocumentName(pod)
	if name == "" {
		return nil, errors.InvalidInputError("pod document has no metadata.name")
	}

	binding := &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "v1",
		"kind":       "Binding",
		"metadata": map[string]interface{}{
			"name":      name,
			"namespace": convertor.DocumentNamespace(pod),
		},
		"target": map[string]interface{}{
			"apiVersion": "v1",
			"kind":       "Node",
			"name":       host,
		},
	}}

	url, err := c.conv.BindingURL(binding)
	if err != nil {
		return nil, err
	}

	return c.exec.Post(ctx, url, binding.Object)
}

// stripStatus returns the document without its status subtree. A document
// with a status is copied before removal; one without is returned as is.
func stripStatus(obj *unstructured.Unstructured) *unstructured.Unstructured {
	if _, ok := obj.Object["status"]; !ok {
		return obj
	}

	stripped := obj.DeepCopy()
	unstructured.RemoveNestedField(stripped.Object, "status")
	return stripped
}
