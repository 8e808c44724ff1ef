package api_test

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/absmach/sparkpipe/historian"
	"github.com/absmach/sparkpipe/historian/api"
	"github.com/absmach/sparkpipe/historian/mocks"
	pkgerrors "github.com/absmach/sparkpipe/pkg/errors"
	"github.com/absmach/sparkpipe/pkg/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const contentType = "application/json"

type testRequest struct {
	method      string
	url         string
	contentType string
	body        string
}

func (tr testRequest) make(t *testing.T) *http.Response {
	t.Helper()
	req, err := http.NewRequest(tr.method, tr.url, strings.NewReader(tr.body))
	require.NoError(t, err)
	if tr.contentType != "" {
		req.Header.Set("Content-Type", tr.contentType)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { res.Body.Close() })

	return res
}

func newServer(t *testing.T) (*httptest.Server, *mocks.Service) {
	t.Helper()
	svc := mocks.NewService(t)
	ts := httptest.NewServer(api.MakeHandler(svc, slog.Default(), "test"))
	t.Cleanup(ts.Close)

	return ts, svc
}

func decode(t *testing.T, res *http.Response) map[string]any {
	t.Helper()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(data, &body), string(data))

	return body
}

func TestTopology(t *testing.T) {
	t.Parallel()

	cases := []struct {
		desc   string
		query  string
		device string
		topo   historian.Topology
		err    error
		status int
	}{
		{
			desc:   "whole tree",
			topo:   historian.Topology{Paths: []historian.MetricPath{{Path: "spBv1.0/g/n/d/t", Value: "1"}}},
			status: http.StatusOK,
		},
		{
			desc:   "narrowed",
			query:  "?device=plant1%2Fedge1%2FD1",
			device: "plant1/edge1/D1",
			topo:   historian.Topology{},
			status: http.StatusOK,
		},
		{
			desc:   "unknown device",
			query:  "?device=D404",
			device: "D404",
			err:    pkgerrors.ErrNotFound,
			status: http.StatusNotFound,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()
			ts, svc := newServer(t)
			svc.On("Topology", mock.Anything, tc.device).Return(tc.topo, tc.err).Once()

			res := testRequest{method: http.MethodGet, url: ts.URL + "/topology" + tc.query}.make(t)
			assert.Equal(t, tc.status, res.StatusCode)
			assert.Equal(t, contentType, res.Header.Get("Content-Type"))
		})
	}
}

func TestCurrentTime(t *testing.T) {
	t.Parallel()
	ts, svc := newServer(t)
	svc.On("CurrentTime", mock.Anything).Return("2024-05-01 08:00:00.000+0800", nil).Once()

	res := testRequest{method: http.MethodGet, url: ts.URL + "/time"}.make(t)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "2024-05-01 08:00:00.000+0800", decode(t, res)["time"])
}

func TestCurrentTagValue(t *testing.T) {
	t.Parallel()

	value := historian.TagValue{Device: "plant1/edge1/D1", Tag: "v", Value: "4.2", DataType: "float64", Status: "online"}

	cases := []struct {
		desc   string
		query  string
		call   bool
		err    error
		status int
	}{
		{desc: "found", query: "?device=D1&tag=v", call: true, status: http.StatusOK},
		{desc: "not found", query: "?device=D1&tag=v", call: true, err: pkgerrors.ErrNotFound, status: http.StatusNotFound},
		{desc: "missing device", query: "?tag=v", status: http.StatusBadRequest},
		{desc: "missing tag", query: "?device=D1", status: http.StatusBadRequest},
		{desc: "repeated parameter", query: "?device=D1&device=D2&tag=v", status: http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()
			ts, svc := newServer(t)
			if tc.call {
				svc.On("CurrentTagValue", mock.Anything, "D1", "v").Return(value, tc.err).Once()
			}

			res := testRequest{method: http.MethodGet, url: ts.URL + "/tags/current" + tc.query}.make(t)
			assert.Equal(t, tc.status, res.StatusCode)
			if tc.status == http.StatusOK {
				assert.Equal(t, "4.2", decode(t, res)["value"])
			}
		})
	}
}

func TestHistory(t *testing.T) {
	t.Parallel()

	req := historian.Request{Device: "D1", Tag: "v", Start: "2024-05-01 00:00:00", Bucket: "auto"}
	body := `{"device":"D1","tag":"v","start":"2024-05-01 00:00:00","bucket":"auto"}`
	result := historian.Result{
		Buckets:   []historian.BucketRow{{Bucket: "2024-05-01 00:00:00.000+0000", Value: 2.5, Count: 6}},
		Interval:  "1 minute",
		Aggregate: "avg",
	}

	cases := []struct {
		desc        string
		path        string
		method      string
		contentType string
		body        string
		result      historian.Result
		err         error
		call        bool
		status      int
		check       func(t *testing.T, body map[string]any)
	}{
		{
			desc:   "tag history",
			path:   "/tags/history",
			method: "TagHistory",
			body:   body,
			result: result,
			call:   true,
			status: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "1 minute", body["interval"])
				assert.Len(t, body["buckets"], 1)
			},
		},
		{
			desc:   "status with no rows",
			path:   "/status",
			method: "Status",
			body:   body,
			result: historian.Result{Message: query.NoResults},
			call:   true,
			status: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, query.NoResults, body["message"])
			},
		},
		{
			desc:   "validation error",
			path:   "/tags/history",
			method: "TagHistory",
			body:   body,
			err:    fmt.Errorf("%w: bad", pkgerrors.ErrQueryValidation),
			call:   true,
			status: http.StatusBadRequest,
			check: func(t *testing.T, body map[string]any) {
				assert.Contains(t, body["error"], "invalid query")
			},
		},
		{
			desc:        "wrong content type",
			path:        "/tags/history",
			contentType: "text/plain",
			body:        body,
			status:      http.StatusUnsupportedMediaType,
		},
		{
			desc:   "malformed body",
			path:   "/status",
			body:   `{"device":`,
			status: http.StatusBadRequest,
		},
		{
			desc:   "negative limit",
			path:   "/status",
			body:   `{"limit":-1}`,
			status: http.StatusBadRequest,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()
			ts, svc := newServer(t)
			if tc.call {
				svc.On(tc.method, mock.Anything, req).Return(tc.result, tc.err).Once()
			}
			ct := tc.contentType
			if ct == "" {
				ct = contentType
			}

			res := testRequest{method: http.MethodPost, url: ts.URL + tc.path, contentType: ct, body: tc.body}.make(t)
			assert.Equal(t, tc.status, res.StatusCode)
			if tc.check != nil {
				tc.check(t, decode(t, res))
			}
		})
	}
}

func TestCounts(t *testing.T) {
	t.Parallel()

	cases := []struct {
		desc   string
		path   string
		method string
	}{
		{desc: "status count", path: "/status/count", method: "StatusCount"},
		{desc: "tag history count", path: "/tags/history/count", method: "TagHistoryCount"},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()
			ts, svc := newServer(t)
			svc.On(tc.method, mock.Anything, historian.Request{Device: "D1"}).Return(uint64(42), nil).Once()

			res := testRequest{method: http.MethodPost, url: ts.URL + tc.path, contentType: contentType, body: `{"device":"D1"}`}.make(t)
			require.Equal(t, http.StatusOK, res.StatusCode)
			assert.InDelta(t, 42.0, decode(t, res)["count"], 0)
		})
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()
	ts, _ := newServer(t)

	res := testRequest{method: http.MethodGet, url: ts.URL + "/health"}.make(t)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}
