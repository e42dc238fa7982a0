package events

import (
	"sync"
	"testing"
)

type recorderSink struct {
	mu sync.Mutex
	got []Event
}

func (r *recorderSink) Publish(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, e)
}

func TestBusFansOutToAllSinks(t *testing.T) {
	bus := NewBus()
	a, b := &recorderSink{}, &recorderSink{}
	bus.Register(a)
	bus.Register(b)

	bus.Publish(Event{Kind: KindTaskCompleted, SessionID: "s1", Fields: map[string]interface{}{"taskId": "t1"}})

	if len(a.got) != 1 || len(b.got) != 1 {
		t.Fatalf("expected both sinks to receive the event, got a=%d b=%d", len(a.got), len(b.got))
	}
	if a.got[0].Kind != KindTaskCompleted {
		t.Fatalf("got kind %q", a.got[0].Kind)
	}
}

type panickingSink struct{}

func (panickingSink) Publish(e Event) { panic("boom") }

func TestBusSwallowsSinkPanic(t *testing.T) {
	bus := NewBus()
	rec := &recorderSink{}
	bus.Register(panickingSink{})
	bus.Register(rec)

	bus.Publish(Event{Kind: KindError})

	if len(rec.got) != 1 {
		t.Fatal("expected the second sink to still receive the event despite the first panicking")
	}
}

func TestEventMarshalJSONIncludesFields(t *testing.T) {
	e := Event{Kind: KindWaveComplete, SessionID: "s1", Fields: map[string]interface{}{"wave": 2}}
	data, err := e.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty JSON")
	}
}
