package convertor

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/novelcore/kubeclient/pkg/errors"
	"github.com/novelcore/kubeclient/pkg/registry"
)

const (
	// DefaultNamespace is assumed when a namespaced document omits
	// metadata.namespace
	DefaultNamespace = "default"
	// AllNamespaces selects every namespace for list and watch calls
	AllNamespaces = ""

	watchSegment = "watch"
	// Watch connections are effectively never timed out server-side;
	// reconnection is handled by the caller instead.
	watchQuery = "?watch=true&timeoutSeconds=315360000"

	queryKind          = "kind="
	queryLimit         = "limit="
	queryContinue      = "continue="
	queryFieldSelector = "fieldSelector="
	queryLabelSelector = "labelSelector="
)

// ListOptions narrows a list URL. Fields map one-to-one onto query
// parameters and are appended in a fixed order.
type ListOptions struct {
	// IncludeKind appends a kind=<kind> parameter. The API server does
	// not require it, so it stays off unless explicitly enabled.
	IncludeKind   bool
	Limit         int64
	Continue      string
	FieldSelector string
	LabelSelector string
}

// Convertor builds request URLs from rule base state. It performs no I/O;
// the only failures are registry misses and invalid arguments.
type Convertor struct {
	rules *registry.RuleBase
}

// NewConvertor creates a convertor over the given rule base
func NewConvertor(rules *registry.RuleBase) *Convertor {
	return &Convertor{rules: rules}
}

// RuleBase exposes the underlying rule base
func (c *Convertor) RuleBase() *registry.RuleBase {
	return c.rules
}

// CreateURL builds the collection URL a document is POSTed to
func (c *Convertor) CreateURL(obj *unstructured.Unstructured) (string, error) {
	fullKind, err := DocumentFullKind(obj)
	if err != nil {
		return "", err
	}

	d, err := c.rules.Descriptor(fullKind)
	if err != nil {
		return "", err
	}

	return d.APIPrefix + namespaceSegment(d.Namespaced, DocumentNamespace(obj)) + "/" + d.Plural, nil
}

// BindingURL builds the URL a Binding document is POSTed to:
// the pod subresource pods/<name>/binding in the document's namespace
func (c *Convertor) BindingURL(obj *unstructured.Unstructured) (string, error) {
	fullKind, err := DocumentFullKind(obj)
	if err != nil {
		return "", err
	}

	d, err := c.rules.Descriptor(fullKind)
	if err != nil {
		return "", err
	}

	name := DocumentName(obj)
	if name == "" {
		return "", errors.InvalidInputError("binding document has no metadata.name")
	}

	return d.APIPrefix + namespaceSegment(d.Namespaced, DocumentNamespace(obj)) +
		"/pods/" + name + "/binding", nil
}

// GetURL builds the URL of a single resource
func (c *Convertor) GetURL(kind, namespace, name string) (string, error) {
	return c.namedURL(kind, namespace, name)
}

// DeleteURL builds the URL a resource is DELETEd at
func (c *Convertor) DeleteURL(kind, namespace, name string) (string, error) {
	return c.namedURL(kind, namespace, name)
}

// UpdateURL builds the URL a resource is PUT to
func (c *Convertor) UpdateURL(kind, namespace, name string) (string, error) {
	return c.namedURL(kind, namespace, name)
}

// UpdateStatusURL builds the URL of the status subresource
func (c *Convertor) UpdateStatusURL(kind, namespace, name string) (string, error) {
	base, err := c.namedURL(kind, namespace, name)
	if err != nil {
		return "", err
	}
	return base + "/status", nil
}

// ListURL builds the collection URL of a kind, across all namespaces when
// namespace is empty
func (c *Convertor) ListURL(kind, namespace string) (string, error) {
	d, err := c.resolve(kind)
	if err != nil {
		return "", err
	}
	return d.APIPrefix + namespaceSegment(d.Namespaced, namespace) + "/" + d.Plural, nil
}

// ListURLWithOptions appends list query parameters in a fixed order:
// kind, limit, continue, fieldSelector, labelSelector
func (c *Convertor) ListURLWithOptions(kind, namespace string, opts ListOptions) (string, error) {
	base, err := c.ListURL(kind, namespace)
	if err != nil {
		return "", err
	}

	var params []string
	if opts.IncludeKind {
		params = append(params, queryKind+kind)
	}
	if opts.Limit > 0 {
		params = append(params, queryLimit+fmt.Sprintf("%d", opts.Limit))
	}
	if opts.Continue != "" {
		params = append(params, queryContinue+opts.Continue)
	}
	if opts.FieldSelector != "" {
		params = append(params, queryFieldSelector+opts.FieldSelector)
	}
	if opts.LabelSelector != "" {
		params = append(params, queryLabelSelector+opts.LabelSelector)
	}

	if len(params) == 0 {
		return base, nil
	}
	return base + "?" + strings.Join(params, "&"), nil
}

// WatchOneURL builds the streaming URL of a single resource
func (c *Convertor) WatchOneURL(kind, namespace, name string) (string, error) {
	if name == "" {
		return "", errors.InvalidInputError("resource name is required")
	}

	d, err := c.resolve(kind)
	if err != nil {
		return "", err
	}

	return d.APIPrefix + "/" + watchSegment +
		namespaceSegment(d.Namespaced, namespace) + "/" + d.Plural + "/" + name + watchQuery, nil
}

// WatchAllURL builds the streaming URL of a whole collection
func (c *Convertor) WatchAllURL(kind, namespace string) (string, error) {
	d, err := c.resolve(kind)
	if err != nil {
		return "", err
	}

	return d.APIPrefix + "/" + watchSegment +
		namespaceSegment(d.Namespaced, namespace) + "/" + d.Plural + watchQuery, nil
}

func (c *Convertor) namedURL(kind, namespace, name string) (string, error) {
	if name == "" {
		return "", errors.InvalidInputError("resource name is required")
	}

	d, err := c.resolve(kind)
	if err != nil {
		return "", err
	}

	return d.APIPrefix + namespaceSegment(d.Namespaced, namespace) + "/" + d.Plural + "/" + name, nil
}

// resolve normalizes the caller's kind input: a bare name is a shortKind
// looked up in the rule base, anything containing a dot is already a
// fullKind.
func (c *Convertor) resolve(kind string) (registry.KindDescriptor, error) {
	if kind == "" {
		return registry.KindDescriptor{}, errors.InvalidInputError("kind is required")
	}

	fullKind := kind
	if !strings.Contains(kind, ".") {
		var err error
		fullKind, err = c.rules.FullKindOf(kind)
		if err != nil {
			return registry.KindDescriptor{}, err
		}
	}

	return c.rules.Descriptor(fullKind)
}

func namespaceSegment(namespaced bool, namespace string) string {
	if namespaced && namespace != "" {
		return "/namespaces/" + namespace
	}
	return ""
}

// DocumentFullKind derives the fullKind of a resource document from its
// apiVersion and kind fields: "<group>.<kind>" for grouped resources,
// the bare kind for the core group.
func DocumentFullKind(obj *unstructured.Unstructured) (string, error) {
	if obj == nil {
		return "", errors.InvalidInputError("document is nil")
	}

	apiVersion := obj.GetAPIVersion()
	kind := obj.GetKind()
	if apiVersion == "" || kind == "" {
		return "", errors.InvalidInputError("document has no apiVersion or kind")
	}

	if idx := strings.Index(apiVersion, "/"); idx > 0 {
		return apiVersion[:idx] + "." + kind, nil
	}
	return kind, nil
}

// DocumentName reads metadata.name
func DocumentName(obj *unstructured.Unstructured) string {
	return obj.GetName()
}

// DocumentNamespace reads metadata.namespace, assuming the default
// namespace when absent
func DocumentNamespace(obj *unstructured.Unstructured) string {
	if ns := obj.GetNamespace(); ns != "" {
		return ns
	}
	return DefaultNamespace
}
