package smtp

import (
	"bufio"
	"fmt"
	"net"
)

const (
	AuthOK                  = 235
	ParameterSyntaxError    = 501
	BadSequenceOfCommands   = 503
	ParameterNotImplemented = 504
	AuthInvalid             = 535
)

// ReadWriter wraps a connection with line-oriented command reading and
// reply writing, matching the textual SMTP wire format.
type ReadWriter struct {
	conn net.Conn
	r    *bufio.Reader
}

func NewWriter(conn net.Conn) *ReadWriter {
	return &ReadWriter{
		conn: conn,
		r:    bufio.NewReader(conn),
	}
}

func (w *ReadWriter) ReadCommand() (*Command, error) {
	line, err := w.r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	return parseCommand(line)
}

func (w *ReadWriter) ReadLine() (string, error) {
	return w.r.ReadString('\n')
}

func (w *ReadWriter) Send(code int, format string, args ...interface{}) {
	line := fmt.Sprintf("%d %s", code, fmt.Sprintf(format, args...))
	fmt.Fprintf(w.conn, "%s\r\n", line)
}

func (w *ReadWriter) BeginBatch(code int) *BatchWriter {
	return &BatchWriter{code: code, conn: w.conn}
}

// BatchWriter accumulates multi-line replies (e.g. the EHLO extension
// list), holding back the last line so it can be sent with the
// terminating "code " prefix instead of "code-".
type BatchWriter struct {
	code     int
	lastLine string
	conn     net.Conn
}

func (w *BatchWriter) Send(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	if w.lastLine != "" {
		fmt.Fprintf(w.conn, "%d-%s\r\n", w.code, w.lastLine)
	}
	w.lastLine = line
}

func (w *BatchWriter) End() {
	if w.lastLine == "" {
		return
	}
	fmt.Fprintf(w.conn, "%d %s\r\n", w.code, w.lastLine)
	w.lastLine = ""
}
