package transport

import (
	"sync"

	"github.com/wsmesh/wsmesh/pki"
)

// MockTransport implements Transport for testing. Sends are recorded
// in memory and delivery events are injected with SimulateDelivery.
type MockTransport struct {
	mu      sync.Mutex
	sends   []MockSend
	handler DeliveryHandler
	localID uint32
	nextID  uint32
	sendErr error
}

// MockSend records one SendText call.
type MockSend struct {
	RequestID uint32
	Dest      uint32
	Payload   string
	Channel   uint8
	Mode      pki.Mode
}

// NewMockTransport creates a mock transport reporting the given local
// node id.
func NewMockTransport(localID uint32) *MockTransport {
	return &MockTransport{localID: localID}
}

// SendText implements Transport.SendText.
func (m *MockTransport) SendText(dest uint32, payload string, channel uint8, mode pki.Mode) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sendErr != nil {
		return 0, m.sendErr
	}

	m.nextID++
	m.sends = append(m.sends, MockSend{
		RequestID: m.nextID,
		Dest:      dest,
		Payload:   payload,
		Channel:   channel,
		Mode:      mode,
	})
	return m.nextID, nil
}

// RegisterDeliveryHandler implements Transport.RegisterDeliveryHandler.
func (m *MockTransport) RegisterDeliveryHandler(h DeliveryHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

// LocalNodeID implements Transport.LocalNodeID.
func (m *MockTransport) LocalNodeID() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.localID
}

// Close implements Transport.Close.
func (m *MockTransport) Close() error {
	return nil
}

// SimulateDelivery invokes the registered handler with a delivery
// event, as the radio callback context would.
func (m *MockTransport) SimulateDelivery(ev DeliveryEvent) {
	m.mu.Lock()
	handler := m.handler
	m.mu.Unlock()
	if handler != nil {
		handler(ev)
	}
}

// Sends returns a copy of all recorded sends.
func (m *MockTransport) Sends() []MockSend {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockSend, len(m.sends))
	copy(out, m.sends)
	return out
}

// SetSendError makes subsequent SendText calls fail with err.
func (m *MockTransport) SetSendError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// SetLocalID changes the reported local node id.
func (m *MockTransport) SetLocalID(id uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.localID = id
}
