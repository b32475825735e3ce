package assistant

import (
	"bufio"
	"bytes"
	"io"
)

// EventStream is the server-pushed event sequence for one turn.
// Recv blocks until the next event arrives and returns io.EOF once the
// sequence is exhausted. Recv honors the context the stream was opened
// with: cancelling it fails the pending read.
type EventStream interface {
	// Recv receives the next event.
	Recv() (*StreamEvent, error)

	// Close closes the stream.
	Close() error
}

// sseStream reads events off a server-sent-events response body.
type sseStream struct {
	reader *bufio.Reader
	closer io.Closer
}

func (s *sseStream) Recv() (*StreamEvent, error) {
	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, err
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		if !bytes.HasPrefix(line, []byte("data: ")) {
			continue
		}

		data := bytes.TrimPrefix(line, []byte("data: "))
		if string(data) == "[DONE]" {
			return nil, io.EOF
		}

		return decodeEvent(data)
	}
}

func (s *sseStream) Close() error {
	return s.closer.Close()
}
