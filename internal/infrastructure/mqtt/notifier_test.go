package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/crisisnet/meshcore/internal/domain/mesh"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	paho.Client
	sent []published
	err  error
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.sent = append(c.sent, published{topic, qos, retained, payload.([]byte)})
	return doneToken{err: c.err}
}

func TestNotifyPublishesRetainedAlert(t *testing.T) {
	client := &fakeClient{}
	n := NewNotifier(client, DefaultConfig(), nil)

	alert := mesh.EmergencyAlert{ID: "ALT-1", Message: "Bridge out on route 9", Severity: mesh.AlertCritical, SenderName: "Dr. Alia Kareem", Active: true}
	if err := n.Notify(context.Background(), alert); err != nil {
		t.Fatalf("notify failed: %v", err)
	}

	if len(client.sent) != 1 {
		t.Fatalf("expected one publish, got %d", len(client.sent))
	}
	msg := client.sent[0]
	if msg.topic != "mesh/alerts/critical" || msg.qos != 1 || !msg.retained {
		t.Errorf("unexpected publish: %+v", msg)
	}
	var decoded mesh.EmergencyAlert
	if err := json.Unmarshal(msg.payload, &decoded); err != nil || decoded.ID != "ALT-1" {
		t.Errorf("payload is not the alert: %s", msg.payload)
	}
}

func TestNotifyReturnsBrokerError(t *testing.T) {
	client := &fakeClient{err: errors.New("not connected")}
	n := NewNotifier(client, DefaultConfig(), nil)

	err := n.Notify(context.Background(), mesh.EmergencyAlert{ID: "ALT-2", Severity: mesh.AlertInfo})
	if err == nil {
		t.Fatal("expected broker error")
	}
}
