package memcached

import (
	"bufio"
	"bytes"
	"errors"
	"io"

	"github.com/facebookgo/stackerr"
)

// Text protocol constants, in the Memcached tradition the teacher's
// conn.go was written against, trimmed to the operations the core
// actually exposes (no flags, exptime or CAS: spec Non-goals exclude
// TTL/expiry and admission control).
const (
	Separator = "\r\n"

	GetCommand    = "get"
	SetCommand    = "set"
	DeleteCommand = "delete"

	StoredResponse      = "STORED"
	DeletedResponse     = "DELETED"
	NotFoundResponse    = "NOT_FOUND"
	EndResponse         = "END"
	ValueResponse       = "VALUE"
	ErrorResponse       = "ERROR"
	ClientErrorResponse = "CLIENT_ERROR"
	ServerErrorResponse = "SERVER_ERROR"

	NoreplyToken = "noreply"

	// OutBufferSize sizes the per-connection write buffer.
	OutBufferSize = 4096
	// MaxCommandLength bounds a single command line, guarding against an
	// unbounded read on a misbehaving or hostile client.
	MaxCommandLength = 1024
	// MaxKeyLength mirrors the real protocol's key-length ceiling.
	MaxKeyLength = 250
)

var (
	ErrMoreFieldsRequired = errors.New("more fields required")
	ErrTooManyFields      = errors.New("too many fields")
	ErrInvalidKey         = errors.New("invalid key")
	ErrInvalidBytesField  = errors.New("invalid bytes field")
	ErrTooLargeItem       = errors.New("item larger than configured max")
	ErrBadDataBlock       = errors.New("data block did not end with separator")
	ErrCommandTooLong     = errors.New("command line exceeds maximum length")
)

// checkKey validates a key the way the real protocol does: non-empty, no
// embedded whitespace, bounded length.
func checkKey(key []byte) error {
	if len(key) == 0 {
		return stackerr.Wrap(ErrInvalidKey)
	}
	if len(key) > MaxKeyLength {
		return stackerr.Wrap(ErrInvalidKey)
	}
	if bytes.IndexByte(key, ' ') >= 0 {
		return stackerr.Wrap(ErrInvalidKey)
	}
	return nil
}

// parseKeyFields parses "<key> [noreply]", the shape shared by delete.
func parseKeyFields(fields [][]byte) (key []byte, noreply bool, clientErr error) {
	switch len(fields) {
	case 1:
	case 2:
		if !bytes.Equal(fields[1], []byte(NoreplyToken)) {
			return nil, false, stackerr.Wrap(ErrTooManyFields)
		}
		noreply = true
	case 0:
		return nil, false, stackerr.Wrap(ErrMoreFieldsRequired)
	default:
		return nil, false, stackerr.Wrap(ErrTooManyFields)
	}
	key = fields[0]
	if err := checkKey(key); err != nil {
		return nil, false, err
	}
	return key, noreply, nil
}

// parseSetFields parses "<key> <bytes> [noreply]".
func parseSetFields(fields [][]byte) (key []byte, size int, noreply bool, clientErr error) {
	if len(fields) < 2 {
		return nil, 0, false, stackerr.Wrap(ErrMoreFieldsRequired)
	}
	if len(fields) > 3 {
		return nil, 0, false, stackerr.Wrap(ErrTooManyFields)
	}
	key = fields[0]
	if err := checkKey(key); err != nil {
		return nil, 0, false, err
	}
	size, err := parseUint(fields[1])
	if err != nil {
		return nil, 0, false, stackerr.Wrap(ErrInvalidBytesField)
	}
	if len(fields) == 3 {
		if !bytes.Equal(fields[2], []byte(NoreplyToken)) {
			return nil, 0, false, stackerr.Wrap(ErrTooManyFields)
		}
		noreply = true
	}
	return key, size, noreply, nil
}

func parseUint(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, stackerr.Wrap(ErrInvalidBytesField)
	}
	n := 0
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, stackerr.Wrap(ErrInvalidBytesField)
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

// unwrap reports the innermost error message, stripping stackerr's frame
// so client-facing text stays on one line.
func unwrap(err error) error {
	type causer interface{ Cause() error }
	for {
		c, ok := err.(causer)
		if !ok {
			return err
		}
		cause := c.Cause()
		if cause == nil {
			return err
		}
		err = cause
	}
}

// reader buffers connection input and splits it into command lines and
// fixed-size data blocks, the way the teacher's (missing from this
// retrieval pack) reader.go did around bufio.Reader.
type reader struct {
	*bufio.Reader
}

func newReader(rwc io.Reader) reader {
	return reader{bufio.NewReaderSize(rwc, MaxCommandLength)}
}

// readCommand reads one line and splits it into a command token and its
// remaining whitespace-separated fields. err is set only for I/O faults;
// a malformed but fully-read line is reported as clientErr instead so the
// caller can recover and keep serving the connection.
func (r reader) readCommand() (command []byte, fields [][]byte, clientErr, err error) {
	line, err := r.ReadSlice('\n')
	if err != nil {
		if err == bufio.ErrBufferFull {
			// Resync the stream by discarding the rest of the oversized
			// line before reporting the client error.
			for err == bufio.ErrBufferFull {
				_, err = r.ReadSlice('\n')
			}
			if err != nil && err != io.EOF {
				return nil, nil, nil, stackerr.Wrap(err)
			}
			return nil, nil, stackerr.Wrap(ErrCommandTooLong), nil
		}
		if err == io.EOF {
			return nil, nil, nil, io.EOF
		}
		return nil, nil, nil, stackerr.Wrap(err)
	}
	line = bytes.TrimRight(line, "\r\n")
	parts := bytes.Fields(line)
	if len(parts) == 0 {
		return nil, nil, stackerr.Wrap(errors.New("empty command")), nil
	}
	return parts[0], parts[1:], nil, nil
}

// readDataBlock reads exactly n bytes plus the trailing separator.
func (r reader) readDataBlock(n int) (data []byte, clientErr, err error) {
	data = make([]byte, n)
	if _, err = io.ReadFull(r.Reader, data); err != nil {
		return nil, nil, stackerr.Wrap(err)
	}
	tail := make([]byte, len(Separator))
	if _, err = io.ReadFull(r.Reader, tail); err != nil {
		return nil, nil, stackerr.Wrap(err)
	}
	if string(tail) != Separator {
		return nil, stackerr.Wrap(ErrBadDataBlock), nil
	}
	return data, nil, nil
}

// discardCommand consumes and drops the remainder of a malformed set's
// data block, so a bad length field doesn't desync the stream for the
// commands that follow.
func (r reader) discardCommand(n int) error {
	_, err := r.Discard(n + len(Separator))
	if err != nil {
		return stackerr.Wrap(err)
	}
	return nil
}
