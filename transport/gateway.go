package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wsmesh/wsmesh/pki"
)

// gateway frame types
const (
	frameSend     = "send"
	frameDelivery = "delivery"
	frameHello    = "hello"
)

// sendFrame is the outbound wire format to the radio gateway daemon.
type sendFrame struct {
	Type      string `json:"type"`
	RequestID uint32 `json:"request_id"`
	Dest      uint32 `json:"dest"`
	Channel   uint8  `json:"channel"`
	Mode      string `json:"mode"`
	Payload   string `json:"payload"`         // base64
	Nonce     string `json:"nonce,omitempty"` // base64, PKI mode only
}

// inFrame is the inbound wire format from the gateway. A single shape
// covers both frame types; unused fields stay zero.
type inFrame struct {
	Type      string   `json:"type"`
	RequestID uint32   `json:"request_id"`
	From      uint32   `json:"from"`
	Error     uint8    `json:"error"`
	SNR       *float64 `json:"snr"`
	NodeID    uint32   `json:"node_id"`
}

// GatewayTransport talks to the serial radio gateway daemon over UDP
// with JSON frames. Sends go out as "send" frames; the gateway pushes
// back a "hello" frame with the radio's own node id on connect and
// "delivery" frames as routing control packets arrive.
type GatewayTransport struct {
	conn    net.PacketConn
	gateway net.Addr

	localID atomic.Uint32
	nextReq atomic.Uint32

	handlerMu sync.RWMutex
	handler   DeliveryHandler

	// Optional end-to-end sealing. When a destination has a published
	// key and the send requests PKI mode, the payload is sealed before
	// it leaves the host.
	keyPair *pki.KeyPair
	keyring map[uint32][]byte

	ctx    context.Context
	cancel context.CancelFunc
}

// NewGatewayTransport dials the gateway daemon. keyPair and keyring
// may be nil, in which case PKI-mode sends go out unsealed and the
// gateway's radio does the encryption.
func NewGatewayTransport(gatewayAddr string, keyPair *pki.KeyPair, keyring map[uint32][]byte) (*GatewayTransport, error) {
	addr, err := net.ResolveUDPAddr("udp", gatewayAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve gateway %q: %w", gatewayAddr, err)
	}

	conn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		return nil, fmt.Errorf("bind gateway socket: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &GatewayTransport{
		conn:    conn,
		gateway: addr,
		keyPair: keyPair,
		keyring: keyring,
		ctx:     ctx,
		cancel:  cancel,
	}

	go t.readLoop()

	// Announce ourselves so the gateway replies with its hello frame.
	hello, _ := json.Marshal(inFrame{Type: frameHello})
	if _, err := conn.WriteTo(hello, addr); err != nil {
		conn.Close()
		cancel()
		return nil, fmt.Errorf("gateway hello: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewGatewayTransport",
		"gateway":  gatewayAddr,
	}).Info("Gateway transport connected")

	return t, nil
}

// SendText implements Transport.SendText.
func (t *GatewayTransport) SendText(dest uint32, payload string, channel uint8, mode pki.Mode) (uint32, error) {
	id := t.nextReq.Add(1)

	frame := sendFrame{
		Type:      frameSend,
		RequestID: id,
		Dest:      dest,
		Channel:   channel,
		Mode:      mode.String(),
	}

	body := []byte(payload)
	if mode == pki.ModePKI && t.keyPair != nil {
		if peerKey, ok := t.keyring[dest]; ok {
			sealed, nonce, err := pki.Seal(body, peerKey, t.keyPair)
			if err != nil {
				return 0, fmt.Errorf("%w: seal for !%08x: %v", ErrSendFailed, dest, err)
			}
			body = sealed
			frame.Nonce = base64.StdEncoding.EncodeToString(nonce[:])
		}
	}
	frame.Payload = base64.StdEncoding.EncodeToString(body)

	data, err := json.Marshal(frame)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	if _, err := t.conn.WriteTo(data, t.gateway); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	logrus.WithFields(logrus.Fields{
		"function":   "SendText",
		"request_id": id,
		"dest":       fmt.Sprintf("!%08x", dest),
		"mode":       mode.String(),
		"bytes":      len(body),
	}).Debug("Message handed to gateway")

	return id, nil
}

// RegisterDeliveryHandler implements Transport.RegisterDeliveryHandler.
func (t *GatewayTransport) RegisterDeliveryHandler(h DeliveryHandler) {
	t.handlerMu.Lock()
	defer t.handlerMu.Unlock()
	t.handler = h
}

// LocalNodeID implements Transport.LocalNodeID. Returns zero until the
// gateway's hello frame has arrived.
func (t *GatewayTransport) LocalNodeID() uint32 {
	return t.localID.Load()
}

// Close implements Transport.Close.
func (t *GatewayTransport) Close() error {
	t.cancel()
	return t.conn.Close()
}

// readLoop consumes frames from the gateway until the transport is
// closed. Malformed frames are logged and dropped, never propagated.
func (t *GatewayTransport) readLoop() {
	buffer := make([]byte, 4096)
	for {
		select {
		case <-t.ctx.Done():
			return
		default:
		}

		_ = t.conn.SetReadDeadline(time.Now().Add(250 * time.Millisecond))
		n, _, err := t.conn.ReadFrom(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if t.ctx.Err() != nil {
				return
			}
			logrus.WithFields(logrus.Fields{
				"function": "readLoop",
				"error":    err,
			}).Warn("Gateway read failed")
			continue
		}

		t.handleFrame(buffer[:n])
	}
}

func (t *GatewayTransport) handleFrame(data []byte) {
	var frame inFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleFrame",
			"bytes":    len(data),
			"error":    err,
		}).Warn("Dropping malformed gateway frame")
		return
	}

	switch frame.Type {
	case frameHello:
		t.localID.Store(frame.NodeID)
		logrus.WithFields(logrus.Fields{
			"function": "handleFrame",
			"node_id":  fmt.Sprintf("!%08x", frame.NodeID),
		}).Info("Gateway reported local node id")

	case frameDelivery:
		ev := DeliveryEvent{
			RequestID:  frame.RequestID,
			FromNodeID: frame.From,
			Code:       RoutingCode(frame.Error),
			At:         time.Now(),
		}
		if frame.SNR != nil {
			ev.SNR = *frame.SNR
			ev.HasSNR = true
		}

		t.handlerMu.RLock()
		handler := t.handler
		t.handlerMu.RUnlock()
		if handler == nil {
			logrus.WithFields(logrus.Fields{
				"function":   "handleFrame",
				"request_id": frame.RequestID,
			}).Debug("Delivery event with no handler registered")
			return
		}
		handler(ev)

	default:
		logrus.WithFields(logrus.Fields{
			"function": "handleFrame",
			"type":     frame.Type,
		}).Warn("Dropping gateway frame of unknown type")
	}
}
