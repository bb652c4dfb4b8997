package watch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/crossplane/function-sdk-go/logging"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/novelcore/kubeclient/pkg/errors"
	"github.com/novelcore/kubeclient/pkg/executor"
	"github.com/novelcore/kubeclient/pkg/metrics"
)

// Event verbs as they appear on the wire
const (
	EventAdded    = "ADDED"
	EventModified = "MODIFIED"
	EventDeleted  = "DELETED"
	EventBookmark = "BOOKMARK"
	EventError    = "ERROR"
)

const (
	initialScanBuffer = 64 * 1024
	// Single watch events can carry whole resource documents
	maxScanBuffer = 16 * 1024 * 1024
)

// Handler receives the events of one watch session. Callbacks are invoked
// from a single goroutine in stream order; no two callbacks of the same
// session ever run concurrently. OnClose fires exactly once, when the
// stream ends for any reason, and may re-establish the watch.
type Handler interface {
	OnAdded(obj *unstructured.Unstructured)
	OnModified(obj *unstructured.Unstructured)
	OnDeleted(obj *unstructured.Unstructured)
	OnClose(err error)
}

// event is the wire form of one watch notification
type event struct {
	Type   string          `json:"type"`
	Object json.RawMessage `json:"object"`
}

// Session is one long-lived watch connection. It owns the stream and the
// background reader; closing the session closes the stream, which makes
// the reader fire OnClose and exit.
type Session struct {
	name string
	url  string
	log  logging.Logger

	stream io.ReadCloser
	done   chan struct{}

	stopOnce sync.Once
}

// Open dials the watch URL and starts the reader goroutine. The stream is
// opened synchronously so the caller sees connection errors directly.
func Open(ctx context.Context, exec executor.Executor, name, url string, handler Handler, log logging.Logger) (*Session, error) {
	stream, err := exec.OpenStream(ctx, url)
	if err != nil {
		return nil, err
	}

	metrics.CountWatchSession()

	s := &Session{
		name:   name,
		url:    url,
		log:    log,
		stream: stream,
		done:   make(chan struct{}),
	}

	go s.run(handler)

	return s, nil
}

// Name returns the session name, <kind>-<namespace>[-<name>]
func (s *Session) Name() string {
	return s.name
}

// URL returns the watch URL the session is bound to
func (s *Session) URL() string {
	return s.url
}

// Done is closed once the reader has exited and OnClose has fired
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Stop closes the underlying stream. The reader observes the closed
// stream, fires OnClose, and exits; Stop does not wait for it.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.stream.Close()
	})
}

func (s *Session) run(handler Handler) {
	defer close(s.done)
	defer s.Stop()

	scanner := bufio.NewScanner(s.stream)
	scanner.Buffer(make([]byte, initialScanBuffer), maxScanBuffer)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		ev := event{}
		if err := json.Unmarshal(line, &ev); err != nil {
			s.log.Info("Watch event is not valid JSON", "session", s.name, "error", err)
			handler.OnClose(errors.ParseError(err, "malformed watch event"))
			return
		}

		metrics.CountWatchEvent(ev.Type)

		switch ev.Type {
		case EventAdded, EventModified, EventDeleted:
			obj, err := decodeObject(ev.Object)
			if err != nil {
				s.log.Info("Watch event object is not valid JSON", "session", s.name, "error", err)
				handler.OnClose(err)
				return
			}
			s.dispatch(handler, ev.Type, obj)

		case EventBookmark:
			// progress marker only

		case EventError:
			handler.OnClose(errorEvent(ev.Object))
			return

		default:
			s.log.Debug("Ignoring unknown watch event type", "session", s.name, "type", ev.Type)
		}
	}

	err := scanner.Err()
	if err != nil {
		s.log.Debug("Watch stream ended", "session", s.name, "error", err)
	}
	handler.OnClose(errors.WatchClosedError(err))
}

func (s *Session) dispatch(handler Handler, verb string, obj *unstructured.Unstructured) {
	switch verb {
	case EventAdded:
		handler.OnAdded(obj)
	case EventModified:
		handler.OnModified(obj)
	case EventDeleted:
		handler.OnDeleted(obj)
	}
}

func decodeObject(raw json.RawMessage) (*unstructured.Unstructured, error) {
	obj := map[string]interface{}{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, errors.ParseError(err, "malformed watch event object")
	}
	return &unstructured.Unstructured{Object: obj}, nil
}

func errorEvent(raw json.RawMessage) error {
	obj := map[string]interface{}{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return errors.New(errors.ErrorCodeAPIFailure, "watch stream reported an error")
	}

	pretty, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		pretty = []byte(fmt.Sprintf("%v", obj))
	}

	reason, _ := obj["reason"].(string)
	code := int64(0)
	if c, ok := obj["code"].(float64); ok {
		code = int64(c)
	}

	return errors.APIFailureError(string(pretty), reason, code)
}
