package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beam-cloud/salesmap/pkg/types"
)

var batchItemPattern = regexp.MustCompile(`GET /gmail/v1/users/me/messages/([^?\s]+)\?format=full`)

func messageJSON(id, text string) string {
	msg := types.RawMessage{
		ID:           id,
		InternalDate: "1700000000000",
		Payload:      &types.MessagePart{MimeType: "text/plain", Body: &types.PartBody{Data: b64(text)}},
	}
	data, _ := json.Marshal(msg)
	return string(data)
}

func batchSegment(boundary, status, body string) string {
	return "--" + boundary + "\r\n" +
		"Content-Type: application/http\r\n" +
		"Content-ID: <response-item>\r\n" +
		"\r\n" +
		"HTTP/1.1 " + status + "\r\n" +
		"Content-Type: application/json; charset=UTF-8\r\n" +
		"\r\n" +
		body + "\r\n"
}

func TestChunk(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e"}

	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, Chunk(ids, 2))
	assert.Equal(t, [][]string{ids}, Chunk(ids, 100))
	assert.Empty(t, Chunk(nil, 100))
}

func TestEncodeBatchRequest(t *testing.T) {
	body, err := encodeBatchRequest("b1", "/gmail/v1", []string{"m1", "m2"})
	require.NoError(t, err)

	text := string(body)
	assert.True(t, strings.HasPrefix(text, "--b1\r\n"))
	assert.Equal(t, 2, strings.Count(text, "Content-Type: application/http"))
	assert.Contains(t, text, "GET /gmail/v1/users/me/messages/m1?format=full\r\n")
	assert.Contains(t, text, "GET /gmail/v1/users/me/messages/m2?format=full\r\n")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(text), "--b1--"))
}

func TestParseBatchResponse_DropsMalformedSegments(t *testing.T) {
	body := batchSegment("resp", "200 OK", messageJSON("good", "Country from IP: France")) +
		batchSegment("resp", "200 OK", `{"id":"truncated","payload":{"mimeTy`) +
		"--resp--\r\n"

	messages, dropped := parseBatchResponse([]byte(body), "resp")
	require.Len(t, messages, 1)
	assert.Equal(t, "good", messages[0].ID)
	assert.Equal(t, 1, dropped)
}

func TestParseBatchResponse_DropsErrorSubResponses(t *testing.T) {
	body := batchSegment("resp", "404 Not Found", `{"error":{"code":404,"message":"Not Found"}}`) +
		batchSegment("resp", "200 OK", messageJSON("m2", "x")) +
		"--resp\r\nContent-Type: application/http\r\n\r\ngarbage without a second header block\r\n" +
		"--resp--"

	messages, dropped := parseBatchResponse([]byte(body), "resp")
	require.Len(t, messages, 1)
	assert.Equal(t, "m2", messages[0].ID)
	assert.Equal(t, 2, dropped)
}

func TestParseBatchResponse_LFOnly(t *testing.T) {
	body := strings.ReplaceAll(batchSegment("r", "200 OK", messageJSON("m1", "x"))+"--r--", "\r\n", "\n")

	messages, dropped := parseBatchResponse([]byte(body), "r")
	require.Len(t, messages, 1)
	assert.Zero(t, dropped)
}

// batchServer answers batch requests with one message per requested id,
// except ids listed in fail which get an error sub-response.
func batchServer(t *testing.T, calls *atomic.Int32, fail map[string]bool) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/batch/gmail/v1", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		assert.NoError(t, err)
		assert.Equal(t, "multipart/mixed", mediaType)
		assert.NotEmpty(t, params["boundary"])

		reqBody, _ := io.ReadAll(r.Body)
		var out strings.Builder
		for _, match := range batchItemPattern.FindAllStringSubmatch(string(reqBody), -1) {
			id := match[1]
			if fail[id] {
				out.WriteString(batchSegment("server_b", "500 Internal Server Error", `{"error":{"code":500}}`))
				continue
			}
			out.WriteString(batchSegment("server_b", "200 OK", messageJSON(id, "body of "+id)))
		}
		out.WriteString("--server_b--\r\n")

		w.Header().Set("Content-Type", "multipart/mixed; boundary=server_b")
		w.Write([]byte(out.String()))
	}))
}

func TestFetchMessages_BatchChunks(t *testing.T) {
	var calls atomic.Int32
	server := batchServer(t, &calls, map[string]bool{"m4": true})
	defer server.Close()

	var reports []ChunkResult
	client := newTestClient(server, WithChunkSize(2))
	messages := client.FetchMessages(context.Background(), "tok", []string{"m1", "m2", "m3", "m4", "m5"}, func(r ChunkResult) {
		reports = append(reports, r)
	})

	ids := make([]string, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"m1", "m2", "m3", "m5"}, ids)
	assert.Equal(t, int32(3), calls.Load())

	require.Len(t, reports, 3)
	assert.Equal(t, ChunkResult{Index: 1, Total: 3, Requested: 2, Received: 1}, reports[1])
	assert.Equal(t, "body of m5", ExtractText(&messages[3]))
}

func TestFetchMessages_FailedChunkIsLocal(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "upstream exploded", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "multipart/mixed; boundary=ok")
		fmt.Fprint(w, batchSegment("ok", "200 OK", messageJSON("m3", "x"))+"--ok--")
	}))
	defer server.Close()

	var reports []ChunkResult
	client := newTestClient(server, WithChunkSize(2))
	messages := client.FetchMessages(context.Background(), "tok", []string{"m1", "m2", "m3"}, func(r ChunkResult) {
		reports = append(reports, r)
	})

	require.Len(t, messages, 1)
	assert.Equal(t, "m3", messages[0].ID)

	require.Len(t, reports, 2)
	upstream, ok := types.AsUpstreamError(reports[0].Err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, upstream.Status)
	assert.NoError(t, reports[1].Err)
}

func TestFetchMessages_JSONArrayFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, "[%s, {\"id\":\"no-payload\"}]", messageJSON("m1", "x"))
	}))
	defer server.Close()

	messages := newTestClient(server).FetchMessages(context.Background(), "tok", []string{"m1", "no-payload"}, nil)
	require.Len(t, messages, 1)
	assert.Equal(t, "m1", messages[0].ID)
}

func TestFetchMessages_NoBoundaryNoJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("not what we asked for"))
	}))
	defer server.Close()

	var report ChunkResult
	messages := newTestClient(server).FetchMessages(context.Background(), "tok", []string{"m1"}, func(r ChunkResult) {
		report = r
	})
	assert.Empty(t, messages)
	assert.ErrorIs(t, report.Err, errNoBoundary)
}

func TestFetchMessages_Parallel(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/gmail/v1/users/me/messages/")
		mu.Lock()
		seen = append(seen, id)
		mu.Unlock()

		if id == "missing" {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}
		w.Write([]byte(messageJSON(id, "text")))
	}))
	defer server.Close()

	client := newTestClient(server, WithFetchMode(FetchModeParallel), WithChunkSize(2))
	messages := client.FetchMessages(context.Background(), "tok", []string{"a", "missing", "b"}, nil)

	ids := make([]string, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.ID)
	}
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
	assert.ElementsMatch(t, []string{"a", "missing", "b"}, seen)
}

func TestFetchMessages_ParallelAllFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer server.Close()

	var report ChunkResult
	client := newTestClient(server, WithFetchMode(FetchModeParallel))
	messages := client.FetchMessages(context.Background(), "tok", []string{"a", "b"}, func(r ChunkResult) {
		report = r
	})

	assert.Empty(t, messages)
	upstream, ok := types.AsUpstreamError(report.Err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, upstream.Status)
}
