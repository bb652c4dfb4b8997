package watch

import (
	"context"
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

// recordingHandler funnels callbacks into channels so tests can assert
// delivery order without sharing state across goroutines
type recordingHandler struct {
	events chan string
	closed chan error
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		events: make(chan string, 32),
		closed: make(chan error, 1),
	}
}

func (h *recordingHandler) OnAdded(obj *unstructured.Unstructured) {
	h.events <- "ADDED:" + obj.GetName()
}

func (h *recordingHandler) OnModified(obj *unstructured.Unstructured) {
	h.events <- "MODIFIED:" + obj.GetName()
}

func (h *recordingHandler) OnDeleted(obj *unstructured.Unstructured) {
	h.events <- "DELETED:" + obj.GetName()
}

func (h *recordingHandler) OnClose(err error) {
	h.closed <- err
}

func (h *recordingHandler) collect(t *testing.T, n int) []string {
	t.Helper()
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		select {
		case ev := <-h.events:
			out = append(out, ev)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for event %d of %d", i+1, n)
		}
	}
	return out
}

func (h *recordingHandler) waitClosed(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.closed:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for OnClose")
		return nil
	}
}

func streamServer(t *testing.T, lines ...string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for _, line := range lines {
			fmt.Fprintln(w, line)
			flusher.Flush()
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func openSession(t *testing.T, server *httptest.Server, handler Handler) *Session {
	t.Helper()
	exec := executor.NewForToken(server.URL, "t")
	session, err := Open(context.Background(), exec, "test-session",
		server.URL+"/api/v1/watch/pods?watch=true&timeoutSeconds=315360000", handler, logging.NewNopLogger())
	require.NoError(t, err)
	return session
}

func TestEventsDeliveredInStreamOrder(t *testing.T) {
	server := streamServer(t,
		`{"type":"ADDED","object":{"kind":"Pod","metadata":{"name":"p1"}}}`,
		`{"type":"MODIFIED","object":{"kind":"Pod","metadata":{"name":"p1"}}}`,
		`{"type":"ADDED","object":{"kind":"Pod","metadata":{"name":"p2"}}}`,
		`{"type":"DELETED","object":{"kind":"Pod","metadata":{"name":"p1"}}}`,
	)

	handler := newRecordingHandler()
	session := openSession(t, server, handler)

	assert.Equal(t,
		[]string{"ADDED:p1", "MODIFIED:p1", "ADDED:p2", "DELETED:p1"},
		handler.collect(t, 4))

	// EOF after the last event closes the session
	err := handler.waitClosed(t)
	assert.True(t, errors.IsErrorCode(err, errors.ErrorCodeWatchClosed))

	select {
	case <-session.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish")
	}
}

func TestBookmarkAndUnknownEventsIgnored(t *testing.T) {
	server := streamServer(t,
		`{"type":"BOOKMARK","object":{"kind":"Pod","metadata":{"resourceVersion":"42"}}}`,
		``,
		`{"type":"UNKNOWN","object":{"kind":"Pod","metadata":{"name":"p0"}}}`,
		`{"type":"ADDED","object":{"kind":"Pod","metadata":{"name":"p1"}}}`,
	)

	handler := newRecordingHandler()
	openSession(t, server, handler)

	assert.Equal(t, []string{"ADDED:p1"}, handler.collect(t, 1))
	handler.waitClosed(t)
}

func TestErrorEventClosesWithAPIFailure(t *testing.T) {
	server := streamServer(t,
		`{"type":"ADDED","object":{"kind":"Pod","metadata":{"name":"p1"}}}`,
		`{"type":"ERROR","object":{"kind":"Status","status":"Failure","message":"too old resource version","reason":"Expired","code":410}}`,
		`{"type":"ADDED","object":{"kind":"Pod","metadata":{"name":"never-delivered"}}}`,
	)

	handler := newRecordingHandler()
	openSession(t, server, handler)

	assert.Equal(t, []string{"ADDED:p1"}, handler.collect(t, 1))

	err := handler.waitClosed(t)
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrorCodeAPIFailure))

	// nothing after the error event is delivered
	select {
	case ev := <-handler.events:
		t.Fatalf("unexpected event after ERROR: %s", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMalformedEventClosesWithParseError(t *testing.T) {
	server := streamServer(t,
		`{"type":"ADDED","object":{"kind":"Pod","metadata":{"name":"p1"}}}`,
		`{not json`,
	)

	handler := newRecordingHandler()
	openSession(t, server, handler)

	assert.Equal(t, []string{"ADDED:p1"}, handler.collect(t, 1))

	err := handler.waitClosed(t)
	assert.True(t, errors.IsErrorCode(err, errors.ErrorCodeParse))
}

func TestStopClosesTheStream(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		fmt.Fprintln(w, `{"type":"ADDED","object":{"kind":"Pod","metadata":{"name":"p1"}}}`)
		flusher.Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	handler := newRecordingHandler()
	session := openSession(t, server, handler)

	assert.Equal(t, []string{"ADDED:p1"}, handler.collect(t, 1))

	session.Stop()

	handler.waitClosed(t)
	select {
	case <-session.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish after Stop")
	}
}

func TestSessionMetadata(t *testing.T) {
	server := streamServer(t)

	handler := newRecordingHandler()
	session := openSession(t, server, handler)

	assert.Equal(t, "test-session", session.Name())
	assert.Contains(t, session.URL(), "watch=true")
	handler.waitClosed(t)
}
