package mcp

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// maxMessageBytes bounds a single line-delimited JSON-RPC message.
const maxMessageBytes = 8 << 20

// ErrMalformedMessage is returned by ReadMessage for lines that are not valid JSON-RPC.
// The transport stays usable; callers should answer with a parse error and continue.
var ErrMalformedMessage = errors.New("malformed json-rpc message")

// Transport handles MCP communication over line-delimited stdio.
type Transport struct {
	reader *bufio.Reader
	writer io.Writer
	mu     sync.Mutex
}

// NewTransport creates a new stdio transport
func NewTransport(r io.Reader, w io.Writer) *Transport {
	return &Transport{
		reader: bufio.NewReaderSize(r, 64*1024),
		writer: w,
	}
}

// ReadMessage reads the next JSON-RPC message, skipping blank lines.
// A final line without a trailing newline is still delivered before io.EOF.
func (t *Transport) ReadMessage() (*Request, error) {
	for {
		line, err := t.readLine()
		if len(bytes.TrimSpace(line)) == 0 {
			if err != nil {
				return nil, err
			}
			continue
		}

		var req Request
		if uerr := json.Unmarshal(line, &req); uerr != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, uerr)
		}
		if req.Method == "" {
			return nil, fmt.Errorf("%w: missing method", ErrMalformedMessage)
		}
		return &req, nil
	}
}

func (t *Transport) readLine() ([]byte, error) {
	var buf []byte
	for {
		chunk, err := t.reader.ReadSlice('\n')
		buf = append(buf, chunk...)
		if len(buf) > maxMessageBytes {
			return nil, fmt.Errorf("message exceeds %d bytes", maxMessageBytes)
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return buf, err
	}
}

// WriteResponse writes a JSON-RPC response to stdout
func (t *Transport) WriteResponse(resp *Response) error {
	return t.writeLine(resp)
}

// WriteNotification writes a JSON-RPC notification
func (t *Transport) WriteNotification(method string, params any) error {
	var paramsData json.RawMessage
	if params != nil {
		var err error
		paramsData, err = json.Marshal(params)
		if err != nil {
			return err
		}
	}
	return t.writeLine(Notification{JSONRPC: "2.0", Method: method, Params: paramsData})
}

func (t *Transport) writeLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	t.mu.Lock()
	defer t.mu.Unlock()
	_, err = t.writer.Write(data)
	return err
}
