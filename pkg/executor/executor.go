package executor

import (
	"context"
	"io"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// Executor is the request contract every component talks to the API
// server through. Implementations carry the configured credential on every
// request and decode JSON responses, turning bodies whose status field is
// "Failure" into API_FAILURE errors regardless of HTTP status.
type Executor interface {
	// Get issues a GET and decodes the JSON response
	Get(ctx context.Context, url string) (*unstructured.Unstructured, error)

	// Post issues a POST with a JSON body and decodes the response
	Post(ctx context.Context, url string, body interface{}) (*unstructured.Unstructured, error)

	// Put issues a PUT with a JSON body and decodes the response
	Put(ctx context.Context, url string, body interface{}) (*unstructured.Unstructured, error)

	// Delete issues a DELETE and decodes the JSON response
	Delete(ctx context.Context, url string) (*unstructured.Unstructured, error)

	// OpenStream opens a long-lived GET whose body is handed to the
	// caller unread. Each call uses its own connection so a streaming
	// read never starves a synchronous request.
	OpenStream(ctx context.Context, url string) (io.ReadCloser, error)

	// MasterURL returns the API server base URL without trailing slash
	MasterURL() string
}
