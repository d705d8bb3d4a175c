package mqttbus

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/go-cmp/cmp"

	"snackloader/internal/livedata"
	"snackloader/internal/model"
)

type doneToken struct {
	err error
}

func (t *doneToken) Wait() bool                     { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Error() error                   { return t.err }
func (t *doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// pendingToken never completes.
type pendingToken struct{}

func (pendingToken) Wait() bool                     { return false }
func (pendingToken) WaitTimeout(time.Duration) bool { return false }
func (pendingToken) Error() error                   { return nil }
func (pendingToken) Done() <-chan struct{}          { return make(chan struct{}) }

type message struct {
	topic   string
	payload []byte
}

func (m message) Duplicate() bool   { return false }
func (m message) Qos() byte         { return 1 }
func (m message) Retained() bool    { return false }
func (m message) Topic() string     { return m.topic }
func (m message) MessageID() uint16 { return 1 }
func (m message) Payload() []byte   { return m.payload }
func (m message) Ack()              {}

type published struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

type fakeClient struct {
	mu           sync.Mutex
	handlers     map[string]mqtt.MessageHandler
	published    []published
	unsubscribed []string
	disconnected bool
	publishToken mqtt.Token
	subErr       error
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: make(map[string]mqtt.MessageHandler)}
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishToken != nil {
		return c.publishToken
	}
	c.published = append(c.published, published{Topic: topic, QoS: qos, Retained: retained, Payload: payload.([]byte)})
	return &doneToken{}
}

func (c *fakeClient) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subErr != nil {
		return &doneToken{err: c.subErr}
	}
	c.handlers[topic] = cb
	return &doneToken{}
}

func (c *fakeClient) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		delete(c.handlers, t)
	}
	c.unsubscribed = append(c.unsubscribed, topics...)
	return &doneToken{}
}

func (c *fakeClient) Disconnect(uint) {
	c.disconnected = true
}

func (c *fakeClient) deliver(topic, payload string) {
	c.mu.Lock()
	h := c.handlers[topic]
	c.mu.Unlock()
	if h != nil {
		h(nil, message{topic: topic, payload: []byte(payload)})
	}
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestTopic(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{prefix: "snackloader", want: "snackloader/temperature"},
		{prefix: "/home/feeder/", want: "home/feeder/temperature"},
		{prefix: "", want: "temperature"},
	}

	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			b := newBus(newFakeClient(), tt.prefix, discard)
			if diff := cmp.Diff(tt.want, b.Topic(livedata.PathEnvironment)); diff != "" {
				t.Errorf("Topic mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSubscribeDeliversPayloads(t *testing.T) {
	c := newFakeClient()
	b := newBus(c, "snackloader", discard)

	var got []string
	unsub, err := b.Subscribe(livedata.BowlPath(model.PetCat), func(p []byte) {
		got = append(got, string(p))
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	c.deliver("snackloader/petfeeder/cat/bowlWeight/weight", "12.5")
	c.deliver("snackloader/petfeeder/cat/bowlWeight/weight", "3")

	if err := unsub(); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	c.deliver("snackloader/petfeeder/cat/bowlWeight/weight", "99")

	if diff := cmp.Diff([]string{"12.5", "3"}, got); diff != "" {
		t.Errorf("payloads mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"snackloader/petfeeder/cat/bowlWeight/weight"}, c.unsubscribed); diff != "" {
		t.Errorf("unsubscribed mismatch (-want +got):\n%s", diff)
	}
}

func TestSubscribeError(t *testing.T) {
	c := newFakeClient()
	c.subErr = errors.New("not authorized")
	b := newBus(c, "snackloader", discard)

	if _, err := b.Subscribe(livedata.PathEnvironment, func([]byte) {}); err == nil {
		t.Fatal("expected error")
	}
}

func TestDispatchPublishesRetainedCommand(t *testing.T) {
	c := newFakeClient()
	b := newBus(c, "snackloader", discard)
	cmd := model.DispatchCommand{
		CommandID:   "c-1",
		Status:      model.DispatchCompleted,
		LastFedAtMs: 1700000000000,
		AmountGrams: 40,
		Run:         true,
	}

	if err := b.Dispatch(context.Background(), model.PetDog, cmd); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(c.published) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(c.published))
	}
	p := c.published[0]
	if diff := cmp.Diff("snackloader/dispenser/dog", p.Topic); diff != "" {
		t.Errorf("topic mismatch (-want +got):\n%s", diff)
	}
	if p.QoS != 1 || !p.Retained {
		t.Errorf("expected retained QoS 1, got qos=%d retained=%v", p.QoS, p.Retained)
	}

	var decoded map[string]any
	if err := json.Unmarshal(p.Payload, &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	want := map[string]any{
		"commandId": "c-1",
		"status":    "completed",
		"lastFed":   float64(1700000000000),
		"amount":    float64(40),
		"run":       true,
	}
	if diff := cmp.Diff(want, decoded); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatchHonorsContext(t *testing.T) {
	c := newFakeClient()
	c.publishToken = pendingToken{}
	b := newBus(c, "snackloader", discard)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := b.Dispatch(ctx, model.PetCat, model.DispatchCommand{Status: model.DispatchCompleted, AmountGrams: 10, Run: true})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestBusFeedsLiveState(t *testing.T) {
	c := newFakeClient()
	b := newBus(c, "snackloader", discard)
	state := livedata.NewState()

	sess, err := livedata.Bind(b, state, discard)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}

	c.deliver("snackloader/temperature", `{"temperature":25,"humidity":50}`)
	c.deliver("snackloader/settings/tempAdapt", `true`)
	c.deliver("snackloader/petfeeder/dog/bowlWeight/weight", `42`)

	if !state.AdaptationEnabled() {
		t.Error("expected adaptation enabled")
	}
	if diff := cmp.Diff(42.0, state.BowlWeight(model.PetDog)); diff != "" {
		t.Errorf("bowl weight mismatch (-want +got):\n%s", diff)
	}

	if err := sess.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(c.handlers) != 0 {
		t.Errorf("expected all topics unsubscribed, %d left", len(c.handlers))
	}
	if err := b.Close(); err != nil {
		t.Fatalf("close bus: %v", err)
	}
	if !c.disconnected {
		t.Error("expected disconnect")
	}
}
