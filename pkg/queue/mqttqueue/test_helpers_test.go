package mqttqueue_test

import (
	"errors"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// --- Mocks for Paho MQTT Client ---
type mockToken struct {
	err  error
	done chan struct{}
}

// doneToken is a token that has already completed with err.
func doneToken(err error) *mockToken {
	ch := make(chan struct{})
	close(ch)
	return &mockToken{err: err, done: ch}
}

// pendingToken never completes.
func pendingToken() *mockToken {
	return &mockToken{done: make(chan struct{})}
}

func (m *mockToken) Wait() bool {
	<-m.done
	return true
}
func (m *mockToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-m.done:
		return true
	case <-time.After(d):
		return false
	}
}
func (m *mockToken) Done() <-chan struct{} { return m.done }
func (m *mockToken) Error() error          { return m.err }

type mockMqttMessage struct {
	topic     string
	payload   []byte
	messageID uint16
}

func (m *mockMqttMessage) Topic() string     { return m.topic }
func (m *mockMqttMessage) Payload() []byte   { return m.payload }
func (m *mockMqttMessage) MessageID() uint16 { return m.messageID }
func (m *mockMqttMessage) Duplicate() bool   { return false }
func (m *mockMqttMessage) Qos() byte         { return 1 }
func (m *mockMqttMessage) Retained() bool    { return false }
func (m *mockMqttMessage) Ack()              {}

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type mockMqttClient struct {
	mu               sync.Mutex
	opts             *mqtt.ClientOptions
	connectErr       error
	subscribeErr     error
	holdPublish      bool
	isConnected      bool
	disconnectCalled bool
	subscribedTopic  string
	unsubscribed     []string
	messageHandler   mqtt.MessageHandler
	published        []published
}

func (m *mockMqttClient) factory(opts *mqtt.ClientOptions) mqtt.Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts = opts
	return m
}

func (m *mockMqttClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isConnected
}
func (m *mockMqttClient) IsConnectionOpen() bool { return m.IsConnected() }
func (m *mockMqttClient) Connect() mqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connectErr != nil {
		return doneToken(m.connectErr)
	}
	m.isConnected = true
	return doneToken(nil)
}
func (m *mockMqttClient) Disconnect(_ uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.isConnected = false
	m.disconnectCalled = true
}
func (m *mockMqttClient) Subscribe(topic string, _ byte, callback mqtt.MessageHandler) mqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribedTopic = topic
	m.messageHandler = callback
	return doneToken(m.subscribeErr)
}
func (m *mockMqttClient) Unsubscribe(topics ...string) mqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unsubscribed = append(m.unsubscribed, topics...)
	return doneToken(nil)
}
func (m *mockMqttClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := payload.([]byte)
	if !ok {
		return doneToken(errors.New("unexpected payload type"))
	}
	m.published = append(m.published, published{topic: topic, qos: qos, payload: b})
	if m.holdPublish {
		return pendingToken()
	}
	return doneToken(nil)
}
func (m *mockMqttClient) SubscribeMultiple(_ map[string]byte, _ mqtt.MessageHandler) mqtt.Token {
	return doneToken(nil)
}
func (m *mockMqttClient) AddRoute(_ string, _ mqtt.MessageHandler) {}
func (m *mockMqttClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

func (m *mockMqttClient) deliver(topic string, payload []byte) {
	m.mu.Lock()
	handler := m.messageHandler
	m.mu.Unlock()
	handler(m, &mockMqttMessage{topic: topic, payload: payload, messageID: 1})
}

func (m *mockMqttClient) publishCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.published)
}
