package sync

import (
	"bufio"
	"io"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a record to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message on a WebSocket
	pongWait = 60 * time.Second

	// Ping period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum record size accepted from a peer
	maxRecordSize = 512 * 1024 // 512KB

	// Per-session outbound buffer
	sendBufferSize = 256
)

// Conn abstracts one client connection as a sequence of wire records, so
// sessions run identically over the TCP line protocol and WebSocket.
type Conn interface {
	// ReadRecord blocks until the next complete record or an error.
	ReadRecord() ([]byte, error)
	// WriteRecord sends one record. Called only from the session writer.
	WriteRecord(payload []byte) error
	// Ping performs a transport keepalive probe, if the transport has one.
	Ping() error
	Close() error
	RemoteAddr() string
}

// lineConn frames records as newline-delimited JSON over a raw TCP stream.
type lineConn struct {
	conn    net.Conn
	scanner *bufio.Scanner
}

func newLineConn(conn net.Conn) *lineConn {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), maxRecordSize)
	return &lineConn{conn: conn, scanner: scanner}
}

func (l *lineConn) ReadRecord() ([]byte, error) {
	if !l.scanner.Scan() {
		if err := l.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	// The scanner reuses its buffer; hand out a copy.
	line := l.scanner.Bytes()
	record := make([]byte, len(line))
	copy(record, line)
	return record, nil
}

func (l *lineConn) WriteRecord(payload []byte) error {
	if err := l.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if _, err := l.conn.Write(payload); err != nil {
		return err
	}
	_, err := l.conn.Write([]byte{'\n'})
	return err
}

// Ping is a no-op: dead TCP peers surface on the next read or write.
func (l *lineConn) Ping() error {
	return nil
}

func (l *lineConn) Close() error {
	return l.conn.Close()
}

func (l *lineConn) RemoteAddr() string {
	return l.conn.RemoteAddr().String()
}

// wsConn frames one record per WebSocket text message.
type wsConn struct {
	conn *websocket.Conn
}

func newWSConn(conn *websocket.Conn) *wsConn {
	conn.SetReadLimit(maxRecordSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	return &wsConn{conn: conn}
}

func (w *wsConn) ReadRecord() ([]byte, error) {
	for {
		messageType, payload, err := w.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if messageType == websocket.TextMessage {
			return payload, nil
		}
	}
}

func (w *wsConn) WriteRecord(payload []byte) error {
	if err := w.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return w.conn.WriteMessage(websocket.TextMessage, payload)
}

func (w *wsConn) Ping() error {
	if err := w.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return w.conn.WriteMessage(websocket.PingMessage, nil)
}

func (w *wsConn) Close() error {
	return w.conn.Close()
}

func (w *wsConn) RemoteAddr() string {
	return w.conn.RemoteAddr().String()
}
