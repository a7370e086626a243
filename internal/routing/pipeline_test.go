package routing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/eventgateway/internal/event"
	"github.com/drblury/eventgateway/internal/forward"
	"github.com/drblury/eventgateway/internal/runtime/jsoncodec"
	"github.com/drblury/eventgateway/internal/runtime/logging/logtest"
)

var testRoute = Route{ParentNodeID: "P", ContentNodeType: "cm:content", FolderNodeType: "cm:folder"}

type recordingHandler struct {
	mu     sync.Mutex
	events []event.Event
	err    error
	panic  any
}

func (h *recordingHandler) OnReceive(_ context.Context, ev event.Event) error {
	h.mu.Lock()
	h.events = append(h.events, ev)
	h.mu.Unlock()
	if h.panic != nil {
		panic(h.panic)
	}
	return h.err
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

type recordingForwarder struct {
	mu       sync.Mutex
	payloads [][]byte
	err      error
	delay    time.Duration
}

func (f *recordingForwarder) Forward(_ context.Context, payload []byte, ev event.Event) (forward.Ack, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.payloads = append(f.payloads, payload)
	f.mu.Unlock()
	if f.err != nil {
		return forward.Ack{}, f.err
	}
	return forward.Ack{Target: "test", StatusCode: 202}, nil
}

func (f *recordingForwarder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

type fixture struct {
	pipeline  *Pipeline
	scoped    *recordingHandler
	general   *recordingHandler
	forwarder *recordingForwarder
	log       *logtest.Recorder
}

func newFixture(t *testing.T, opts ...PipelineOption) *fixture {
	t.Helper()
	f := &fixture{
		scoped:    &recordingHandler{},
		general:   &recordingHandler{},
		forwarder: &recordingForwarder{},
		log:       logtest.New(),
	}
	reg := NewRegistry()
	if err := reg.Register(RouteScoped, f.scoped); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Register(RouteGeneral, f.general); err != nil {
		t.Fatalf("Register: %v", err)
	}
	p, err := NewPipeline(testRoute, reg, f.forwarder, f.log, opts...)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	f.pipeline = p
	return f
}

func TestPipelineScopedContent(t *testing.T) {
	f := newFixture(t)
	payload := []byte(`{"type":"nodeCreated","resource":{"nodeType":"cm:content","primaryHierarchy":[{"id":"P"}]}}`)

	out := f.pipeline.Process(context.Background(), payload)

	if out.Handler != RouteScoped || out.Forwarded || out.Dropped {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if f.scoped.count() != 1 || f.general.count() != 0 {
		t.Fatalf("expected scoped once, got scoped=%d general=%d", f.scoped.count(), f.general.count())
	}
	if f.forwarder.count() != 0 {
		t.Fatal("content events must not be forwarded")
	}
	if got := f.scoped.events[0].Type; got != "nodeCreated" {
		t.Fatalf("expected handler to receive the event, got type %q", got)
	}
}

func TestPipelineGeneralContent(t *testing.T) {
	f := newFixture(t)
	payload := []byte(`{"id":"e2","resource":{"@type":"NodeResource","nodeType":"cm:content","primaryHierarchy":[{"id":"root"},{"id":"Q"}]}}`)

	out := f.pipeline.Process(context.Background(), payload)

	if out.Handler != RouteGeneral || f.general.count() != 1 || f.scoped.count() != 0 {
		t.Fatalf("expected general once, got %+v scoped=%d general=%d", out, f.scoped.count(), f.general.count())
	}
}

func TestPipelineForwardsFolders(t *testing.T) {
	f := newFixture(t)
	payload := []byte(`{"id":"e3","resource":{"nodeType":"cm:folder","primaryHierarchy":[]}}`)

	out := f.pipeline.Process(context.Background(), payload)

	if !out.Forwarded || out.Handler != "" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if f.scoped.count()+f.general.count() != 0 {
		t.Fatal("folder events must not reach content handlers")
	}
	if f.forwarder.count() != 1 {
		t.Fatalf("expected one forward, got %d", f.forwarder.count())
	}
	forwarded, err := event.Deserialize(f.forwarder.payloads[0])
	if err != nil {
		t.Fatalf("forwarded payload is not an event: %v", err)
	}
	if nt, _ := forwarded.Resource.NodeType(); nt != "cm:folder" || forwarded.ID != "e3" {
		t.Fatalf("unexpected forwarded event %+v", forwarded)
	}
	if len(f.log.Find("Sending the event to the function")) != 1 {
		t.Fatal("expected payload debug entry")
	}
}

func TestPipelineForwardKeepsEnvelope(t *testing.T) {
	f := newFixture(t)
	payload := []byte(`{"schema":1,"id":"e1","type":"org.alfresco.event.node.Created","principal":"admin",` +
		`"timestamp":"2019-04-04T12:00:00.000+0000",` +
		`"resource":{"@type":"NodeResource","nodeType":"cm:folder","aspectNames":["cm:auditable"],"primaryHierarchy":[]}}`)

	out := f.pipeline.Process(context.Background(), payload)

	if out.Dropped || !out.Forwarded {
		t.Fatalf("unexpected outcome %+v", out)
	}
	var sent map[string]any
	if err := jsoncodec.Unmarshal(f.forwarder.payloads[0], &sent); err != nil {
		t.Fatalf("forwarded payload is not JSON: %v", err)
	}
	if sent["principal"] != "admin" {
		t.Fatalf("expected principal to be forwarded, got %s", f.forwarder.payloads[0])
	}
	if sent["timestamp"] != "2019-04-04T12:00:00.000+0000" {
		t.Fatalf("expected timestamp as received, got %v", sent["timestamp"])
	}
	res, _ := sent["resource"].(map[string]any)
	if _, ok := res["aspectNames"]; !ok {
		t.Fatalf("expected resource fields to be forwarded, got %v", res)
	}
}

func TestPipelineWithoutParentRoutesGeneral(t *testing.T) {
	reg := NewRegistry()
	scoped, general := &recordingHandler{}, &recordingHandler{}
	if err := reg.Register(RouteScoped, scoped); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Register(RouteGeneral, general); err != nil {
		t.Fatalf("Register: %v", err)
	}
	route := Route{ContentNodeType: "cm:content", FolderNodeType: "cm:folder"}
	p, err := NewPipeline(route, reg, &recordingForwarder{}, logtest.New())
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	out := p.Process(context.Background(), []byte(`{"resource":{"nodeType":"cm:content","primaryHierarchy":[{}]}}`))

	if out.Handler != RouteGeneral || scoped.count() != 0 || general.count() != 1 {
		t.Fatalf("expected general route, got %+v scoped=%d", out, scoped.count())
	}
}

func TestPipelineForwardsFoldersUnderParent(t *testing.T) {
	f := newFixture(t)
	f.pipeline.Process(context.Background(), []byte(`{"resource":{"nodeType":"cm:folder","primaryHierarchy":[{"id":"P"}]}}`))

	if f.forwarder.count() != 1 || f.scoped.count() != 0 {
		t.Fatalf("expected forward only, got forwards=%d scoped=%d", f.forwarder.count(), f.scoped.count())
	}
}

func TestPipelineIgnoresOtherEvents(t *testing.T) {
	f := newFixture(t)
	payloads := []string{
		`{"resource":{"nodeType":"cm:thumbnail","primaryHierarchy":[{"id":"P"}]}}`,
		`{"resource":{"@type":"PermissionResource","id":"x"}}`,
	}
	for _, p := range payloads {
		out := f.pipeline.Process(context.Background(), []byte(p))
		if out.Handler != "" || out.Forwarded || out.Dropped {
			t.Fatalf("unexpected outcome %+v for %s", out, p)
		}
	}
	if f.scoped.count()+f.general.count()+f.forwarder.count() != 0 {
		t.Fatal("expected nothing to run")
	}
}

func TestPipelineDropsMalformedPayload(t *testing.T) {
	f := newFixture(t)

	out := f.pipeline.Process(context.Background(), []byte(`{not json`))

	if !out.Dropped {
		t.Fatalf("expected drop, got %+v", out)
	}
	if f.scoped.count()+f.general.count()+f.forwarder.count() != 0 {
		t.Fatal("malformed payloads must not be routed")
	}
	dropped := f.log.Find("Dropping malformed event")
	if len(dropped) != 1 || !errors.Is(dropped[0].Err, event.ErrMalformed) {
		t.Fatalf("expected one deserialization error entry, got %+v", f.log.Entries())
	}

	f.pipeline.Process(context.Background(), []byte(`{"resource":{"nodeType":"cm:content","primaryHierarchy":["P"]}}`))
	if f.scoped.count() != 1 {
		t.Fatal("expected the next message to be processed")
	}
}

func TestPipelineRecoversHandlerPanic(t *testing.T) {
	f := newFixture(t)
	f.scoped.panic = "nil map"
	payload := []byte(`{"id":"e4","resource":{"nodeType":"cm:content","primaryHierarchy":[{"id":"P"}]}}`)

	f.pipeline.Process(context.Background(), payload)

	failures := f.log.Find("Content handler failed")
	if len(failures) != 1 {
		t.Fatalf("expected one handler failure entry, got %+v", f.log.Entries())
	}
	var he *HandlerError
	if !errors.As(failures[0].Err, &he) || he.Handler != RouteScoped || he.EventID != "e4" {
		t.Fatalf("expected HandlerError for scoped/e4, got %v", failures[0].Err)
	}
	if failures[0].Fields["event_id"] != "e4" || failures[0].Fields["handler"] != RouteScoped {
		t.Fatalf("expected handler and event id fields, got %v", failures[0].Fields)
	}

	f.scoped.panic = nil
	f.pipeline.Process(context.Background(), payload)
	if f.scoped.count() != 2 {
		t.Fatalf("expected pipeline to keep processing, got %d calls", f.scoped.count())
	}
}

func TestPipelineLogsHandlerError(t *testing.T) {
	f := newFixture(t)
	f.general.err = errors.New("downstream unavailable")

	f.pipeline.Process(context.Background(), []byte(`{"resource":{"nodeType":"cm:content","primaryHierarchy":[]}}`))

	if len(f.log.Find("Content handler failed")) != 1 {
		t.Fatalf("expected handler failure entry, got %+v", f.log.Entries())
	}
}

func TestPipelineForwardFailureIsAcked(t *testing.T) {
	f := newFixture(t)
	f.forwarder.err = &forward.ForwardError{Target: "test", EventID: "e5", Err: errors.New("throttled")}

	msg := message.NewMessage("m1", []byte(`{"id":"e5","resource":{"nodeType":"cm:folder","primaryHierarchy":[]}}`))
	if err := f.pipeline.Handle(msg); err != nil {
		t.Fatalf("expected message to be acked, got %v", err)
	}
	if f.forwarder.count() != 1 {
		t.Fatalf("expected a single forward attempt, got %d", f.forwarder.count())
	}
	failures := f.log.Find("Failed to forward event")
	if len(failures) != 1 || failures[0].Fields["event_id"] != "e5" {
		t.Fatalf("expected forward failure entry with event id, got %+v", f.log.Entries())
	}
}

func TestPipelineAsyncForwardsDrainOnWait(t *testing.T) {
	f := newFixture(t, WithForwardConcurrency(2))
	f.forwarder.delay = 20 * time.Millisecond

	for i := 0; i < 5; i++ {
		f.pipeline.Process(context.Background(), []byte(`{"resource":{"nodeType":"cm:folder","primaryHierarchy":[]}}`))
	}
	f.pipeline.Wait()

	if f.forwarder.count() != 5 {
		t.Fatalf("expected all forwards to finish, got %d", f.forwarder.count())
	}
}

func TestPipelineAsyncForwardSurvivesCancel(t *testing.T) {
	f := newFixture(t, WithForwardConcurrency(1))
	f.forwarder.delay = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	f.pipeline.Process(ctx, []byte(`{"resource":{"nodeType":"cm:folder","primaryHierarchy":[]}}`))
	cancel()
	f.pipeline.Wait()

	if f.forwarder.count() != 1 {
		t.Fatal("expected forward to complete after the message context ended")
	}
}

func TestNewPipelineRequiresRoutes(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(RouteScoped, noopHandler); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := NewPipeline(testRoute, reg, &recordingForwarder{}, logtest.New()); err == nil {
		t.Fatal("expected missing general route to fail")
	}
	if _, err := NewPipeline(testRoute, NewRegistry(), nil, logtest.New()); err == nil {
		t.Fatal("expected missing forwarder to fail")
	}
}

func TestNewPipelineFreezesRegistry(t *testing.T) {
	f := newFixture(t)
	if err := f.pipeline.registry.Register("late", noopHandler); err == nil {
		t.Fatal("expected registrations after pipeline construction to fail")
	}
}
