package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beam-cloud/salesmap/pkg/sales"
	"github.com/beam-cloud/salesmap/pkg/types"
)

func captureOutput(t *testing.T, asJSON bool) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var out, errOut bytes.Buffer
	oldOut, oldErr := stdout, stderr
	stdout, stderr = &out, &errOut
	SetJSONOutput(asJSON)
	t.Cleanup(func() {
		stdout, stderr = oldOut, oldErr
		SetJSONOutput(false)
	})
	return &out, &errOut
}

func newMailServer(t *testing.T, bodies map[string]string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != 0 {
			http.Error(w, `{"error":"nope"}`, status)
			return
		}

		switch {
		case r.URL.Path == "/gmail/v1/users/me/messages":
			list := types.MessageList{ResultSizeEstimate: len(bodies)}
			for _, id := range []string{"m1", "m2", "m3"} {
				if _, ok := bodies[id]; ok {
					list.Messages = append(list.Messages, types.MessageRef{ID: id})
				}
			}
			if r.URL.Query().Get("maxResults") == "1" && len(list.Messages) > 1 {
				list.Messages = list.Messages[:1]
			}
			json.NewEncoder(w).Encode(list)

		case strings.HasPrefix(r.URL.Path, "/gmail/v1/users/me/messages/"):
			id := strings.TrimPrefix(r.URL.Path, "/gmail/v1/users/me/messages/")
			json.NewEncoder(w).Encode(types.RawMessage{
				ID:           id,
				InternalDate: "1700000000000",
				Payload: &types.MessagePart{
					MimeType: "text/plain",
					Body:     &types.PartBody{Data: base64.URLEncoding.EncodeToString([]byte(bodies[id]))},
				},
			})

		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testService(srv *httptest.Server) *sales.Service {
	return newScanService(types.AppConfig{
		Gmail: types.GmailConfig{
			APIBase:  srv.URL + "/gmail/v1",
			BatchURL: srv.URL + "/batch/gmail/v1",
		},
		Sales: types.SalesConfig{FetchMode: types.FetchModeParallel},
	}, nil)
}

func testSession() *types.Session {
	return &types.Session{
		ID:         "cli",
		Credential: types.Credential{AccessToken: "at"},
		CreatedAt:  time.Now(),
	}
}

func TestScan_JSON(t *testing.T) {
	srv := newMailServer(t, map[string]string{
		"m1": "Country from IP: Canada",
		"m2": "Country from IP: Canada",
		"m3": "Country from IP: Japan",
	}, 0)
	out, _ := captureOutput(t, true)

	require.NoError(t, scan(context.Background(), testService(srv), testSession(), nil))

	var result types.Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.Equal(t, "clips4sale", result.TemplateID)
	assert.Equal(t, 2, result.Aggregate["Canada"].Count)
	assert.Equal(t, 1, result.Aggregate["Japan"].Count)
	assert.Empty(t, result.Warnings)
}

func TestScan_Table(t *testing.T) {
	srv := newMailServer(t, map[string]string{
		"m1": "Country from IP: Canada",
		"m2": "Country from IP: Japan",
		"m3": "Country from IP: Japan",
	}, 0)
	out, _ := captureOutput(t, false)

	require.NoError(t, scan(context.Background(), testService(srv), testSession(), nil))

	text := out.String()
	assert.Contains(t, text, "COUNTRY")
	assert.Contains(t, text, "2023-11-14")
	assert.Contains(t, text, "3 sales across 2 countries")
	assert.Less(t, strings.Index(text, "Japan"), strings.Index(text, "Canada"))
}

func TestScan_NoCredential(t *testing.T) {
	srv := newMailServer(t, map[string]string{"m1": "x"}, 0)
	captureOutput(t, false)

	session := testSession()
	session.Credential = types.Credential{}

	err := scan(context.Background(), testService(srv), session, nil)
	assert.ErrorIs(t, err, types.ErrUnauthenticated)
}

func TestProbe(t *testing.T) {
	srv := newMailServer(t, map[string]string{
		"m1": "Hello\nCountry from IP: Germany\nBye",
		"m2": "Country from IP: France",
	}, 0)
	out, _ := captureOutput(t, false)

	require.NoError(t, probe(context.Background(), testService(srv), testSession(), nil))

	text := out.String()
	assert.Contains(t, text, "m1")
	assert.Contains(t, text, `Matched "Germany"`)
	assert.Contains(t, text, "2 messages")
}

func TestProbe_Upstream(t *testing.T) {
	srv := newMailServer(t, nil, http.StatusForbidden)
	captureOutput(t, false)

	err := probe(context.Background(), testService(srv), testSession(), nil)
	upstream, ok := types.AsUpstreamError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusForbidden, upstream.Status)

	assert.Contains(t, FormatError(err), "Access denied")
	assert.NotEmpty(t, GetErrorSuggestions(err))
}

func TestSortedCountries(t *testing.T) {
	rows := sortedCountries(types.CountryAggregate{
		"b": {Count: 1},
		"a": {Count: 1},
		"c": {Count: 5},
	})

	names := make([]string, len(rows))
	for i, r := range rows {
		names[i] = r.name
	}
	assert.Equal(t, []string{"c", "a", "b"}, names)
}

func TestFormatError(t *testing.T) {
	assert.Contains(t, FormatError(types.ErrUnauthenticated), "No usable credential")
	assert.Contains(t, FormatError(fmt.Errorf("%w: boom", types.ErrTokenUnavailable)), "refresh token")
	assert.Equal(t, "a: d", FormatError(fmt.Errorf("a: b: c: d")))
	assert.Equal(t, "", FormatError(nil))

	assert.Contains(t, FormatError(&types.UpstreamError{Status: 418, Body: "teapot"}), "status 418 (teapot)")
	assert.Nil(t, GetErrorSuggestions(&types.UpstreamError{Status: 418}))
	assert.NotEmpty(t, GetErrorSuggestions(types.ErrInvalidTemplate))
}

func TestPrintTemplates(t *testing.T) {
	out, _ := captureOutput(t, true)
	printTemplates(sales.BuiltinCatalog())

	var templates []types.Template
	require.NoError(t, json.Unmarshal(out.Bytes(), &templates))
	require.NotEmpty(t, templates)
	assert.Equal(t, "clips4sale", templates[0].ID)

	out, _ = captureOutput(t, false)
	printTemplates(sales.BuiltinCatalog())
	assert.Contains(t, out.String(), "clips4sale (default)")
}

func TestProgressReporter(t *testing.T) {
	_, errOut := captureOutput(t, false)

	p := newProgressReporter()
	p.Report(sales.Status{Stage: types.StageList, Message: "listing"})
	p.Report(sales.Status{Stage: types.StageList, Message: "listing"})
	p.Report(sales.Status{Stage: types.StageFetch, Message: "fetched", Done: 1, Total: 2})

	assert.Equal(t, 1, strings.Count(errOut.String(), "listing"))
	assert.Contains(t, errOut.String(), "fetched (1/2)")
}

func TestTruncateAndFormatMillis(t *testing.T) {
	assert.Equal(t, "héllo", Truncate("héllo", 5))
	assert.Equal(t, "hé...", Truncate("héllo world", 5))
	assert.Equal(t, "-", FormatMillis(0))
	assert.Equal(t, "2023-11-14", FormatMillis(1700000000000))
}
