package service_test

import (
	"context"
	"sync"

	"github.com/illmade-knight/go-rservice/pkg/message"
	"github.com/illmade-knight/go-rservice/pkg/worker"
)

// callLog records the order of calls across mocks.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// mockThread records lifecycle calls without running anything.
type mockThread struct {
	log     *callLog
	stopErr error
	work    worker.WorkFunc
	state   worker.State
}

func (m *mockThread) SetWork(work worker.WorkFunc) {
	m.log.add("SetWork")
	m.work = work
}

func (m *mockThread) Start(bool) error {
	m.log.add("Start")
	m.state = worker.StateRunning
	return nil
}

func (m *mockThread) Stop() error {
	m.log.add("Stop")
	if m.stopErr != nil {
		return m.stopErr
	}
	m.state = worker.StateIdle
	return nil
}

func (m *mockThread) State() worker.State { return m.state }
func (m *mockThread) IsRunning() bool     { return m.state != worker.StateIdle }

// mockQueue serves scripted receive results and records sends.
type mockQueue struct {
	log *callLog

	mu       sync.Mutex
	inbound  []receiveResult
	sent     []*message.Message
	emptyErr error
}

type receiveResult struct {
	msg *message.Message
	err error
}

func (m *mockQueue) Send(_ context.Context, msg *message.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mockQueue) Receive(ctx context.Context) (*message.Message, error) {
	m.mu.Lock()
	if len(m.inbound) > 0 {
		r := m.inbound[0]
		m.inbound = m.inbound[1:]
		m.mu.Unlock()
		return r.msg, r.err
	}
	m.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (m *mockQueue) ReceivingMessageCount(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inbound), nil
}

func (m *mockQueue) EmptyDownStream(context.Context) error {
	m.log.add("EmptyDownStream")
	if m.emptyErr != nil {
		return m.emptyErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inbound = nil
	return nil
}

func (m *mockQueue) Name() string               { return "mock" }
func (m *mockQueue) Open(context.Context) error { return nil }
func (m *mockQueue) Close() error               { return nil }

func (m *mockQueue) push(msg *message.Message) { m.pushResult(receiveResult{msg: msg}) }
func (m *mockQueue) pushErr(err error)         { m.pushResult(receiveResult{err: err}) }

func (m *mockQueue) pushResult(r receiveResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inbound = append(m.inbound, r)
}

func (m *mockQueue) sentMessages() []*message.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*message.Message(nil), m.sent...)
}
