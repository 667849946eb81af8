package runtime

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/szaher/cppmcp/internal/rpc"
)

// StdioClientID is the rate-limit identity of the single stdio client.
const StdioClientID = "stdio"

// ServeStdio reads newline-delimited messages from in and writes responses
// to out, one per line. Messages are handled concurrently; writes are
// serialized. It returns after in reaches EOF and every in-flight message
// has been answered, or when ctx is done.
func ServeStdio(ctx context.Context, d *Dispatcher, in io.Reader, out io.Writer, maxLine int, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if maxLine <= 0 {
		maxLine = DefaultMaxBodyBytes
	}

	var mu sync.Mutex
	enc := json.NewEncoder(out)
	write := func(resp *rpc.Response) {
		mu.Lock()
		defer mu.Unlock()
		if err := enc.Encode(resp); err != nil {
			logger.Error("write response", "error", err)
		}
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	reader := bufio.NewReaderSize(in, 64*1024)
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, tooLong, err := readLine(reader, maxLine)
		if tooLong {
			write(rpc.NewErrorResponse(nil, rpc.ErrInvalidRequest("message exceeds size limit")))
		} else if len(bytes.TrimSpace(line)) > 0 {
			wg.Add(1)
			go func(msg []byte) {
				defer wg.Done()
				if resp := d.Handle(ctx, StdioClientID, msg); resp != nil {
					write(resp)
				}
			}(line)
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// readLine returns the next line without its terminator. Lines longer than
// limit are consumed and discarded, reporting tooLong.
func readLine(r *bufio.Reader, limit int) (line []byte, tooLong bool, err error) {
	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > limit+1 {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return bytes.TrimRight(line, "\r\n"), tooLong, err
	}
}
