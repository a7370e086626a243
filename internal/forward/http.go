package forward

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmhttp "github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/eventgateway/internal/event"
	"github.com/drblury/eventgateway/internal/runtime/ids"
	"github.com/drblury/eventgateway/internal/runtime/logging"
)

// EventIDHeader carries the forwarded event id.
const EventIDHeader = "X-Event-Id"

// HTTPPublisherFactory allows overriding the publisher creation for testing.
var HTTPPublisherFactory = func(cfg wmhttp.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return wmhttp.NewPublisher(cfg, logger)
}

// HTTPForwarder POSTs the payload to a function URL through the watermill
// HTTP publisher.
type HTTPForwarder struct {
	url       string
	publisher message.Publisher
}

type responseKey struct{}

// response is filled in by the round tripper so the outcome of a publish can
// be reported back to Forward.
type response struct {
	mu         sync.Mutex
	statusCode int
	requestID  string
}

type recordingTransport struct {
	base nethttp.RoundTripper
}

func (t recordingTransport) RoundTrip(req *nethttp.Request) (*nethttp.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return resp, err
	}
	if rec, ok := req.Context().Value(responseKey{}).(*response); ok {
		rec.mu.Lock()
		rec.statusCode = resp.StatusCode
		rec.requestID = resp.Header.Get("X-Amzn-Requestid")
		if rec.requestID == "" {
			rec.requestID = resp.Header.Get("X-Request-Id")
		}
		rec.mu.Unlock()
	}
	return resp, nil
}

// NewHTTPForwarder builds a forwarder for url. A nil client uses
// http.DefaultTransport.
func NewHTTPForwarder(url string, client *nethttp.Client, logger logging.ServiceLogger) (*HTTPForwarder, error) {
	if url == "" {
		return nil, errors.New("forward: function url is required")
	}
	if logger == nil {
		logger = logging.Nop()
	}

	base := nethttp.DefaultTransport
	var timeout time.Duration
	if client != nil {
		timeout = client.Timeout
		if client.Transport != nil {
			base = client.Transport
		}
	}

	publisher, err := HTTPPublisherFactory(wmhttp.PublisherConfig{
		MarshalMessageFunc: marshalEvent,
		Client:             &nethttp.Client{Transport: recordingTransport{base: base}, Timeout: timeout},
	}, logging.NewWatermillAdapter(logger))
	if err != nil {
		return nil, fmt.Errorf("forward: create http publisher: %w", err)
	}
	return &HTTPForwarder{url: url, publisher: publisher}, nil
}

func marshalEvent(url string, msg *message.Message) (*nethttp.Request, error) {
	req, err := nethttp.NewRequestWithContext(msg.Context(), nethttp.MethodPost, url, bytes.NewReader(msg.Payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(wmhttp.HeaderUUID, msg.UUID)
	if id := msg.Metadata.Get("event_id"); id != "" {
		req.Header.Set(EventIDHeader, id)
	}
	return req, nil
}

func (f *HTTPForwarder) Forward(ctx context.Context, payload []byte, ev event.Event) (Ack, error) {
	rec := &response{}
	msg := message.NewMessage(ids.New(), payload)
	msg.Metadata.Set("event_id", ev.ID)
	msg.SetContext(context.WithValue(ctx, responseKey{}, rec))

	// The publisher treats the topic as the target URL.
	err := f.publisher.Publish(f.url, msg)

	rec.mu.Lock()
	status, requestID := rec.statusCode, rec.requestID
	rec.mu.Unlock()

	if err != nil {
		return Ack{}, &ForwardError{Target: f.url, EventID: ev.ID, StatusCode: status, Err: err}
	}
	if status < 200 || status > 299 {
		return Ack{}, &ForwardError{Target: f.url, EventID: ev.ID, StatusCode: status, Err: errors.New("unexpected response status")}
	}
	return Ack{Target: f.url, StatusCode: status, RequestID: requestID}, nil
}

// Close releases the underlying publisher.
func (f *HTTPForwarder) Close() error {
	return f.publisher.Close()
}
