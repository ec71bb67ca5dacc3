package comms

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const maxFrameSize = 64 << 20

var ErrFrameTooLarge = errors.New("frame too large")

// FrameConn carries whole frames in both directions. Writes are safe for
// concurrent use; reads are not.
type FrameConn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(payload []byte) error
	Close() error
}

// streamConn frames a byte stream with a big-endian uint32 length prefix.
type streamConn struct {
	conn net.Conn
	r    *bufio.Reader
	wmu  sync.Mutex
}

func NewStreamConn(c net.Conn) FrameConn {
	return &streamConn{conn: c, r: bufio.NewReader(c)}
}

func (s *streamConn) ReadFrame() ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(s.r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrameSize {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(s.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *streamConn) WriteFrame(payload []byte) error {
	if len(payload) > maxFrameSize {
		return ErrFrameTooLarge
	}
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[4:], payload)
	s.wmu.Lock()
	defer s.wmu.Unlock()
	_, err := s.conn.Write(buf)
	return err
}

func (s *streamConn) Close() error {
	return s.conn.Close()
}

// wsConn sends one frame per binary websocket message.
type wsConn struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func NewWebsocketConn(c *websocket.Conn) FrameConn {
	c.SetReadLimit(maxFrameSize)
	return &wsConn{conn: c}
}

func (w *wsConn) ReadFrame() ([]byte, error) {
	for {
		mt, data, err := w.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt == websocket.BinaryMessage || mt == websocket.TextMessage {
			return data, nil
		}
	}
}

func (w *wsConn) WriteFrame(payload []byte) error {
	w.wmu.Lock()
	defer w.wmu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.conn.WriteMessage(websocket.BinaryMessage, payload)
}

func (w *wsConn) Close() error {
	w.wmu.Lock()
	w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	w.wmu.Unlock()
	return w.conn.Close()
}

// codeFrame prefixes payload with a big-endian int32 code.
func codeFrame(code int, payload []byte) []byte {
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(int32(code)))
	copy(buf[4:], payload)
	return buf
}

func parseCodeFrame(frame []byte) (int, []byte, error) {
	if len(frame) < 4 {
		return 0, nil, fmt.Errorf("short frame of %d bytes", len(frame))
	}
	return int(int32(binary.BigEndian.Uint32(frame))), frame[4:], nil
}
