package client

import (
	"context"
	"time"

	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/novelcore/kubeclient/pkg/registry"
	"github.com/novelcore/kubeclient/pkg/watch"
)

// CRDFullKind is the fullKind of CustomResourceDefinition
const CRDFullKind = "apiextensions.k8s.io.CustomResourceDefinition"

// WatchCustomResourceDefinitions starts the bootstrap watch that keeps the
// rule base aligned with the cluster's CRDs: a created CRD's group/version
// is discovered and its kinds registered, a deleted CRD's kind is removed.
// The watch reconnects itself until the context is cancelled.
func (c *Client) WatchCustomResourceDefinitions(ctx context.Context) (*watch.Session, error) {
	w := &crdWatcher{client: c, ctx: ctx}
	return c.WatchResources(ctx, CRDFullKind, "", w)
}

// crdWatcher feeds CRD lifecycle events back into the rule base
type crdWatcher struct {
	client *Client
	ctx    context.Context
}

func (w *crdWatcher) OnAdded(obj *unstructured.Unstructured) {
	crd, ok := w.decode(obj)
	if !ok {
		return
	}

	if len(crd.Spec.Versions) == 0 {
		w.client.log.Info("CRD has no versions, skipping", "crd", crd.Name)
		return
	}

	// The first listed version is the one registered; the others stay
	// addressable by fullKind once their group is discovered separately.
	version := crd.Spec.Versions[0].Name
	url := w.client.exec.MasterURL() + "/apis/" + crd.Spec.Group + "/" + version

	if err := w.client.analyzer.RegisterKinds(w.ctx, url); err != nil {
		// Registration failures must not poison the control loop
		w.client.log.Info("Failed to register kinds for new CRD",
			"crd", crd.Name, "url", url, "error", err)
		return
	}

	w.client.log.Debug("Registered kinds for new CRD", "crd", crd.Name, "url", url)
}

func (w *crdWatcher) OnModified(_ *unstructured.Unstructured) {
	// schema changes don't move a kind between groups or scopes
}

func (w *crdWatcher) OnDeleted(obj *unstructured.Unstructured) {
	crd, ok := w.decode(obj)
	if !ok {
		return
	}

	shortKind := crd.Spec.Names.Kind
	fullKind := registry.FullKind(crd.Spec.Group, shortKind)

	w.client.rules.RemoveFullKind(shortKind, fullKind)
	w.client.log.Info("Unregistered kind for deleted CRD", "kind", shortKind, "fullKind", fullKind)
}

// OnClose re-establishes the CRD watch with bounded backoff. The retry is
// a flat loop; it runs on the closed session's reader goroutine and holds
// no locks while sleeping.
func (w *crdWatcher) OnClose(err error) {
	if w.ctx.Err() != nil {
		return
	}

	w.client.log.Info("CRD watch closed, reconnecting", "error", err)

	backoff := wait.Backoff{
		Duration: time.Second,
		Factor:   2.0,
		Jitter:   0.1,
		Steps:    5,
		Cap:      30 * time.Second,
	}

	for {
		next := &crdWatcher{client: w.client, ctx: w.ctx}
		_, werr := w.client.WatchResources(w.ctx, CRDFullKind, "", next)
		if werr == nil {
			return
		}
		w.client.log.Info("CRD watch reconnect failed", "error", werr)

		select {
		case <-w.ctx.Done():
			return
		case <-time.After(backoff.Step()):
		}
	}
}

func (w *crdWatcher) decode(obj *unstructured.Unstructured) (*apiextensionsv1.CustomResourceDefinition, bool) {
	crd := &apiextensionsv1.CustomResourceDefinition{}
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(obj.Object, crd); err != nil {
		w.client.log.Info("Watch delivered a document that is not a CRD", "error", err)
		return nil, false
	}
	return crd, true
}
