package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"sync"

	"github.com/emersion/go-message/textproto"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/beam-cloud/salesmap/pkg/common"
	"github.com/beam-cloud/salesmap/pkg/types"
)

const maxBatchResponseBytes = 256 << 20

var errNoBoundary = errors.New("batch response has no multipart boundary")

// ChunkResult describes one completed chunk of a FetchMessages call
type ChunkResult struct {
	Index     int // zero-based
	Total     int
	Requested int
	Received  int
	Err       error // set when the chunk contributed nothing because of a failure
}

// Chunk splits ids into consecutive slices of at most size elements
func Chunk(ids []string, size int) [][]string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	chunks := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

// FetchMessages fetches full messages for ids, one chunk at a time. A failed
// chunk contributes no messages and does not stop later chunks. onChunk, if
// set, is called after every chunk.
func (c *GmailClient) FetchMessages(ctx context.Context, token string, ids []string, onChunk func(ChunkResult)) []types.RawMessage {
	chunks := Chunk(ids, c.ChunkSize)
	messages := make([]types.RawMessage, 0, len(ids))

	for i, chunk := range chunks {
		if ctx.Err() != nil {
			if onChunk != nil {
				onChunk(ChunkResult{Index: i, Total: len(chunks), Requested: len(chunk), Err: ctx.Err()})
			}
			continue
		}

		var (
			got []types.RawMessage
			err error
		)
		switch c.FetchMode {
		case FetchModeParallel:
			got, err = c.fetchParallel(ctx, token, chunk)
		default:
			got, err = c.fetchBatch(ctx, token, chunk)
		}
		if err != nil {
			log.Warn().Err(err).Int("chunk", i).Int("size", len(chunk)).Msg("chunk fetch failed")
		}

		messages = append(messages, got...)
		if onChunk != nil {
			onChunk(ChunkResult{Index: i, Total: len(chunks), Requested: len(chunk), Received: len(got), Err: err})
		}
	}

	return messages
}

// fetchParallel issues one GET per id concurrently. Individual failures are
// dropped; the chunk only errors when every request failed.
func (c *GmailClient) fetchParallel(ctx context.Context, token string, ids []string) ([]types.RawMessage, error) {
	var (
		mu       sync.Mutex
		messages = make([]types.RawMessage, 0, len(ids))
		lastErr  error
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		g.Go(func() error {
			msg, err := c.GetMessage(gctx, token, id)

			mu.Lock()
			defer mu.Unlock()
			if err != nil || msg.Payload == nil {
				if err != nil {
					lastErr = err
				}
				messagesDropped.Inc()
				return nil
			}
			messages = append(messages, *msg)
			return nil
		})
	}
	_ = g.Wait()

	if len(messages) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return messages, nil
}

// fetchBatch sends ids as one multipart/mixed batch request and parses the
// multipart response.
func (c *GmailClient) fetchBatch(ctx context.Context, token string, ids []string) ([]types.RawMessage, error) {
	base, err := url.Parse(c.APIBase)
	if err != nil {
		return nil, fmt.Errorf("parse api base: %w", err)
	}

	boundary := common.GenerateBoundary()
	body, err := encodeBatchRequest(boundary, base.Path, ids)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BatchURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mime.FormatMediaType("multipart/mixed", map[string]string{"boundary": boundary}))

	resp, err := c.do(ctx, req, token, "batch")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBatchResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read batch response: %w", err)
	}

	responseBoundary := ""
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil {
		responseBoundary = params["boundary"]
	}

	if resp.StatusCode/100 != 2 || responseBoundary == "" {
		cause := errNoBoundary
		if resp.StatusCode/100 != 2 {
			cause = &types.UpstreamError{Status: resp.StatusCode, Body: truncate(string(data), 512)}
		}

		messages, ok := parseMessageArray(data)
		if !ok {
			return nil, cause
		}
		return messages, nil
	}

	messages, dropped := parseBatchResponse(data, responseBoundary)
	if dropped > 0 {
		messagesDropped.Add(float64(dropped))
		log.Debug().Int("dropped", dropped).Int("parsed", len(messages)).Msg("dropped malformed batch segments")
	}
	return messages, nil
}

// encodeBatchRequest builds the multipart body of a batch request. Each part
// is an embedded HTTP GET for one message in full format.
func encodeBatchRequest(boundary, apiPath string, ids []string) ([]byte, error) {
	var buf bytes.Buffer

	mw := textproto.NewMultipartWriter(&buf)
	if err := mw.SetBoundary(boundary); err != nil {
		return nil, err
	}

	for i, id := range ids {
		var h textproto.Header
		h.Set("Content-Type", "application/http")
		h.Set("Content-ID", fmt.Sprintf("<item%d>", i+1))

		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, err
		}
		if _, err := fmt.Fprintf(part, "GET %s/users/me/messages/%s?format=full\r\n\r\n", apiPath, url.PathEscape(id)); err != nil {
			return nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// parseBatchResponse splits a multipart batch response on boundary. Every
// segment carries an outer part header block, then the embedded HTTP status
// line and headers, then the JSON body. Segments that don't decode to a
// message with a payload are dropped and counted.
func parseBatchResponse(body []byte, boundary string) ([]types.RawMessage, int) {
	normalized := bytes.ReplaceAll(body, []byte("\r\n"), []byte("\n"))
	segments := bytes.Split(normalized, []byte("--"+boundary))

	var (
		messages []types.RawMessage
		dropped  int
	)
	for _, segment := range segments {
		segment = bytes.TrimSpace(segment)
		if len(segment) == 0 || bytes.Equal(segment, []byte("--")) {
			continue
		}

		payload, ok := skipHeaderBlocks(segment, 2)
		if !ok {
			dropped++
			continue
		}

		var msg types.RawMessage
		if err := json.Unmarshal(payload, &msg); err != nil || msg.Payload == nil {
			dropped++
			continue
		}
		messages = append(messages, msg)
	}

	return messages, dropped
}

// skipHeaderBlocks drops n blank-line terminated header blocks from segment
func skipHeaderBlocks(segment []byte, n int) ([]byte, bool) {
	rest := segment
	for range n {
		idx := bytes.Index(rest, []byte("\n\n"))
		if idx < 0 {
			return nil, false
		}
		rest = rest[idx+2:]
	}
	rest = bytes.TrimSpace(rest)
	return rest, len(rest) > 0
}

// parseMessageArray accepts a plain JSON array of messages, the shape some
// proxies return instead of a multipart body.
func parseMessageArray(body []byte) ([]types.RawMessage, bool) {
	var raw []types.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(body), &raw); err != nil {
		return nil, false
	}

	messages := make([]types.RawMessage, 0, len(raw))
	for _, msg := range raw {
		if msg.Payload != nil {
			messages = append(messages, msg)
		}
	}
	return messages, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
