package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/crossplane/function-sdk-go/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/novelcore/kubeclient/pkg/errors"
	"github.com/novelcore/kubeclient/pkg/executor"
)

const apiextensionsGroupList = `{
  "kind": "APIGroupList",
  "groups": [
    {"name": "apiextensions.k8s.io",
     "versions": [{"groupVersion": "apiextensions.k8s.io/v1", "version": "v1"}],
     "preferredVersion": {"groupVersion": "apiextensions.k8s.io/v1", "version": "v1"}}
  ]
}`

const apiextensionsResourceList = `{
  "kind": "APIResourceList",
  "groupVersion": "apiextensions.k8s.io/v1",
  "resources": [
    {"name": "customresourcedefinitions", "singularName": "", "namespaced": false,
     "kind": "CustomResourceDefinition",
     "verbs": ["create", "delete", "get", "list", "watch"]}
  ]
}`

const widgetResourceList = `{
  "kind": "APIResourceList",
  "groupVersion": "example.com/v1",
  "resources": [
    {"name": "widgets", "singularName": "", "namespaced": true, "kind": "Widget",
     "verbs": ["create", "delete", "get", "list", "watch"]}
  ]
}`

func crdDoc() *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "apiextensions.k8s.io/v1",
		"kind":       "CustomResourceDefinition",
		"metadata":   map[string]interface{}{"name": "widgets.example.com"},
		"spec": map[string]interface{}{
			"group": "example.com",
			"names": map[string]interface{}{
				"plural":   "widgets",
				"singular": "widget",
				"kind":     "Widget",
				"listKind": "WidgetList",
			},
			"scope": "Namespaced",
			"versions": []interface{}{
				map[string]interface{}{"name": "v1", "served": true, "storage": true},
			},
		},
	}}
}

func crdServer(t *testing.T, watchLines ...string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	serve := func(path, body string) {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, body)
		})
	}
	serve("/api/v1", coreResourceList)
	serve("/apis", apiextensionsGroupList)
	serve("/apis/apiextensions.k8s.io/v1", apiextensionsResourceList)
	serve("/apis/example.com/v1", widgetResourceList)

	mux.HandleFunc("/apis/apiextensions.k8s.io/v1/watch/customresourcedefinitions",
		func(w http.ResponseWriter, r *http.Request) {
			flusher := w.(http.Flusher)
			for _, line := range watchLines {
				fmt.Fprintln(w, line)
				flusher.Flush()
			}
			<-r.Context().Done()
		})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newCRDTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	c, err := NewWithExecutor(context.Background(),
		executor.NewForToken(server.URL, "t"), WithLogger(logging.NewNopLogger()))
	require.NoError(t, err)
	return c
}

func TestCRDWatcherOnAddedRegistersKinds(t *testing.T) {
	server := crdServer(t)
	c := newCRDTestClient(t, server)

	w := &crdWatcher{client: c, ctx: context.Background()}
	w.OnAdded(crdDoc())

	widget, err := c.rules.Descriptor("example.com.Widget")
	require.NoError(t, err)
	assert.Equal(t, "widgets", widget.Plural)
	assert.Equal(t, server.URL+"/apis/example.com/v1", widget.APIPrefix)

	// A document of the new kind is immediately addressable
	url, err := c.conv.CreateURL(&unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "example.com/v1",
		"kind":       "Widget",
		"metadata":   map[string]interface{}{"name": "w1", "namespace": "default"},
	}})
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/apis/example.com/v1/namespaces/default/widgets", url)
}

func TestCRDWatcherOnDeletedRemovesKind(t *testing.T) {
	server := crdServer(t)
	c := newCRDTestClient(t, server)

	w := &crdWatcher{client: c, ctx: context.Background()}
	w.OnAdded(crdDoc())
	require.True(t, c.rules.HasFullKind("example.com.Widget"))

	w.OnDeleted(crdDoc())

	_, err := c.rules.Descriptor("example.com.Widget")
	assert.True(t, errors.IsErrorCode(err, errors.ErrorCodeUnknownKind))

	_, err = c.rules.FullKindOf("Widget")
	assert.True(t, errors.IsErrorCode(err, errors.ErrorCodeUnknownKind))
}

func TestCRDWatcherIgnoresRegistrationFailures(t *testing.T) {
	server := crdServer(t)
	c := newCRDTestClient(t, server)

	crd := crdDoc()
	require.NoError(t, unstructured.SetNestedField(crd.Object, "unserved.example.com", "spec", "group"))

	// Discovery of the unknown group 404s; the watcher must swallow it
	w := &crdWatcher{client: c, ctx: context.Background()}
	w.OnAdded(crd)

	assert.False(t, c.rules.HasFullKind("unserved.example.com.Widget"))
}

func TestCRDWatcherIgnoresMalformedDocuments(t *testing.T) {
	server := crdServer(t)
	c := newCRDTestClient(t, server)

	w := &crdWatcher{client: c, ctx: context.Background()}
	w.OnAdded(&unstructured.Unstructured{Object: map[string]interface{}{
		"kind": "CustomResourceDefinition",
		"spec": "not-an-object",
	}})

	w.OnAdded(&unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "apiextensions.k8s.io/v1",
		"kind":       "CustomResourceDefinition",
		"metadata":   map[string]interface{}{"name": "versionless.example.com"},
		"spec": map[string]interface{}{
			"group":    "versionless.example.com",
			"names":    map[string]interface{}{"plural": "things", "kind": "Thing"},
			"scope":    "Namespaced",
			"versions": []interface{}{},
		},
	}})
}

func TestWatchCustomResourceDefinitions(t *testing.T) {
	added := `{"type":"ADDED","object":` + mustJSON(crdDoc().Object) + `}`
	server := crdServer(t, added)
	c := newCRDTestClient(t, server)

	ctx, cancel := context.WithCancel(context.Background())
	session, err := c.WatchCustomResourceDefinitions(ctx)
	require.NoError(t, err)
	defer func() {
		cancel()
		session.Stop()
		<-session.Done()
	}()

	assert.Eventually(t, func() bool {
		return c.rules.HasFullKind("example.com.Widget")
	}, 5*time.Second, 10*time.Millisecond)
}

func mustJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}
