package memcached

import (
	"bufio"
	"fmt"
	"io"

	"github.com/facebookgo/stackerr"
	"github.com/skipor/memcached/log"
)

// ConnMeta holds what every connection on a listener shares: the handler
// it dispatches commands to and the per-item size ceiling it enforces
// before reading a data block.
type ConnMeta struct {
	Handler     *Handler
	MaxItemSize int
}

type conn struct {
	reader
	*bufio.Writer
	closer io.Closer
	*ConnMeta
	log log.Logger
}

func newConn(l log.Logger, m *ConnMeta, rwc io.ReadWriteCloser) *conn {
	return &conn{
		reader:   newReader(rwc),
		Writer:   bufio.NewWriterSize(rwc, OutBufferSize),
		closer:   rwc,
		ConnMeta: m,
		log:      l,
	}
}

// Serve runs the command loop for one already-accepted connection,
// blocking until the client disconnects or an unrecoverable error occurs.
func Serve(l log.Logger, m *ConnMeta, rwc io.ReadWriteCloser) {
	newConn(l, m, rwc).serve()
}

func (c *conn) serve() {
	c.log.Info("Serve connection.")
	defer func() {
		if r := recover(); r != nil {
			c.serverError(stackerr.Newf("panic: %v", r))
		}
		c.Close()
		c.log.Info("Connection closed.")
	}()

	err := c.loop()
	if err != nil {
		c.serverError(err)
	}
}

func (c *conn) Close() error {
	c.Flush()
	return c.closer.Close()
}

func (c *conn) loop() error {
	for {
		command, fields, clientErr, err := c.readCommand()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return stackerr.Wrap(err)
		}
		if clientErr == nil {
			c.log.Debugf("Command: %s.", command)
			switch string(command) {
			case GetCommand:
				clientErr, err = c.get(fields)
			case SetCommand:
				clientErr, err = c.set(fields)
			case DeleteCommand:
				clientErr, err = c.delete(fields)
			default:
				c.log.Error("Unexpected command: ", string(command))
				err = c.sendResponse(ErrorResponse)
			}
		}
		if clientErr != nil && err == nil {
			err = c.sendClientError(clientErr)
		}
		if err != nil {
			return err
		}
	}
}

func (c *conn) get(fields [][]byte) (clientErr, err error) {
	if len(fields) != 1 {
		if len(fields) == 0 {
			clientErr = stackerr.Wrap(ErrMoreFieldsRequired)
		} else {
			clientErr = stackerr.Wrap(ErrTooManyFields)
		}
		return
	}
	key := fields[0]
	if clientErr = checkKey(key); clientErr != nil {
		return
	}

	value, found, hErr := c.Handler.Get(string(key))
	if hErr != nil {
		err = stackerr.Wrap(hErr)
		return
	}
	if !found {
		err = c.sendResponse(EndResponse)
		return
	}
	c.WriteString(ValueResponse)
	c.WriteByte(' ')
	c.Write(key)
	fmt.Fprintf(c, " %d"+Separator, len(value))
	c.WriteString(value)
	c.WriteString(Separator)
	err = c.sendResponse(EndResponse)
	return
}

func (c *conn) set(fields [][]byte) (clientErr, err error) {
	key, size, noreply, clientErr := parseSetFields(fields)
	if clientErr != nil {
		return
	}
	c.log.Debugf("set %s (%d bytes)", key, size)

	if size > c.MaxItemSize {
		clientErr = stackerr.Wrap(ErrTooLargeItem)
		err = c.discardCommand(size)
		return
	}

	data, dataClientErr, dataErr := c.readDataBlock(size)
	if dataErr != nil {
		err = dataErr
		return
	}
	if dataClientErr != nil {
		clientErr = dataClientErr
		return
	}

	stored, hErr := c.Handler.Set(string(key), string(data))
	if hErr != nil {
		err = stackerr.Wrap(hErr)
		return
	}

	if noreply {
		err = c.Flush()
		return
	}
	if !stored {
		err = c.sendResponse(ServerErrorResponse + " item too large for stripe")
		return
	}
	err = c.sendResponse(StoredResponse)
	return
}

func (c *conn) delete(fields [][]byte) (clientErr, err error) {
	key, noreply, clientErr := parseKeyFields(fields)
	if clientErr != nil {
		return
	}
	c.log.Debugf("delete %s; noreply: %v", key, noreply)

	deleted, hErr := c.Handler.Delete(string(key))
	if hErr != nil {
		err = stackerr.Wrap(hErr)
		return
	}

	if noreply {
		err = c.Flush()
		return
	}
	response := NotFoundResponse
	if deleted {
		response = DeletedResponse
	}
	err = c.sendResponse(response)
	return
}

func (c *conn) serverError(err error) {
	c.log.Error("Server error: ", err)
	if err == io.ErrUnexpectedEOF {
		return
	}
	err = unwrap(err)
	c.sendResponse(fmt.Sprintf("%s %s", ServerErrorResponse, err))
}

func (c *conn) sendClientError(err error) error {
	c.log.Error("Client error: ", err)
	err = unwrap(err)
	return c.sendResponse(fmt.Sprintf("%s %s", ClientErrorResponse, err))
}

func (c *conn) sendResponse(res string) error {
	c.WriteString(res)
	c.WriteString(Separator)
	return c.Flush()
}

func (c *conn) Flush() error {
	return stackerr.Wrap(c.Writer.Flush())
}
