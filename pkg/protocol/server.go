package protocol

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// maxLine bounds a single request line.
const maxLine = 1024 * 1024

// Serve reads newline-delimited requests from r and writes one response
// per line to w until r is exhausted or ctx is done. Successful
// notifications (requests without an id) get no response.
func Serve(ctx context.Context, h *Handler, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

	encoder := json.NewEncoder(w)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		resp := h.HandleRaw(ctx, []byte(line))
		if resp.ID == nil && resp.Error == nil {
			continue
		}
		if err := encoder.Encode(resp); err != nil {
			return fmt.Errorf("protocol: encode response: %w", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("protocol: read request: %w", err)
	}
	return nil
}
