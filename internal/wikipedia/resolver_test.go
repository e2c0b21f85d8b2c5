package wikipedia

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"carimages/internal/fetch"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEndpoint = "https://wiki.test/w/api.php"

var _ fetch.Resolver = (*Resolver)(nil)

func pageResponse(title, source string) string {
	if source == "" {
		return `{"batchcomplete":"","query":{"pages":{"-1":{"ns":0,"title":"` + title + `","missing":""}}}}`
	}
	return `{"batchcomplete":"","query":{"pages":{"4242":{"pageid":4242,"ns":0,"title":"` + title +
		`","thumbnail":{"source":"` + source + `","width":1280,"height":853},"pageimage":"x.jpg"}}}}`
}

// mockWiki answers by title and records the order of queried titles.
type mockWiki struct {
	transport *httpmock.MockTransport
	queried   []string
	agents    []string
}

func newMockWiki(t *testing.T, responses map[string]httpmock.Responder) (*mockWiki, *Resolver) {
	t.Helper()
	m := &mockWiki{transport: httpmock.NewMockTransport()}
	m.transport.RegisterResponder(http.MethodGet, testEndpoint, func(req *http.Request) (*http.Response, error) {
		q := req.URL.Query()
		title := q.Get("titles")
		m.queried = append(m.queried, title)
		m.agents = append(m.agents, req.Header.Get("User-Agent"))
		if q.Get("prop") != "pageimages" || q.Get("pithumbsize") != "1280" || q.Get("format") != "json" {
			return httpmock.NewStringResponse(http.StatusBadRequest, "unexpected query "+req.URL.RawQuery), nil
		}
		if responder, ok := responses[title]; ok {
			return responder(req)
		}
		return httpmock.NewStringResponse(http.StatusOK, pageResponse(title, "")), nil
	})
	r := New(Options{
		Endpoint:  testEndpoint,
		UserAgent: "carimages-test/1.0 (test@example.org)",
		Client:    &http.Client{Transport: m.transport},
	})
	return m, r
}

func TestLookup_ReturnsThumbnail(t *testing.T) {
	m, r := newMockWiki(t, map[string]httpmock.Responder{
		"BMW_M1": httpmock.NewStringResponder(http.StatusOK, pageResponse("BMW M1", "https://upload.test/bmw-m1.jpg")),
	})

	got, err := r.Lookup(context.Background(), "BMW_M1")
	require.NoError(t, err)
	assert.Equal(t, "https://upload.test/bmw-m1.jpg", got)
	assert.Equal(t, []string{"carimages-test/1.0 (test@example.org)"}, m.agents)
}

func TestLookup_MissingThumbnail(t *testing.T) {
	_, r := newMockWiki(t, nil)

	_, err := r.Lookup(context.Background(), "No_Such_Car")
	assert.ErrorIs(t, err, ErrNoThumbnail)

	url, ok := r.Resolve(context.Background(), "No_Such_Car")
	assert.False(t, ok)
	assert.Empty(t, url)
}

func TestLookup_FailuresBecomeNotFound(t *testing.T) {
	cases := map[string]httpmock.Responder{
		"transport": httpmock.NewErrorResponder(errors.New("connection reset")),
		"status":    httpmock.NewStringResponder(http.StatusServiceUnavailable, "busy"),
		"malformed": httpmock.NewStringResponder(http.StatusOK, "<html>not json</html>"),
		"api error": httpmock.NewStringResponder(http.StatusOK, `{"error":{"code":"badvalue","info":"Unrecognized value"}}`),
		"no pages":  httpmock.NewStringResponder(http.StatusOK, `{"batchcomplete":""}`),
	}
	for name, responder := range cases {
		t.Run(name, func(t *testing.T) {
			_, r := newMockWiki(t, map[string]httpmock.Responder{"Topic": responder})
			url, ok := r.Resolve(context.Background(), "Topic")
			assert.False(t, ok)
			assert.Empty(t, url)
		})
	}
}

func TestLookup_APIErrorIsTyped(t *testing.T) {
	_, r := newMockWiki(t, map[string]httpmock.Responder{
		"Topic": httpmock.NewStringResponder(http.StatusOK, `{"error":{"code":"badvalue","info":"Unrecognized value"}}`),
	})
	_, err := r.Lookup(context.Background(), "Topic")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "badvalue", apiErr.Code)
}

func TestLookup_FirstPageWithThumbnailWins(t *testing.T) {
	body := `{"query":{"pages":{
		"300":{"pageid":300,"title":"C","thumbnail":{"source":"https://upload.test/c.jpg"}},
		"100":{"pageid":100,"title":"A"},
		"200":{"pageid":200,"title":"B","thumbnail":{"source":"https://upload.test/b.jpg"}}
	}}}`
	_, r := newMockWiki(t, map[string]httpmock.Responder{"A|B|C": httpmock.NewStringResponder(http.StatusOK, body)})

	got, err := r.Lookup(context.Background(), "A|B|C")
	require.NoError(t, err)
	assert.Equal(t, "https://upload.test/b.jpg", got)
}

func TestLookup_FormatVersion2AndProtocolRelative(t *testing.T) {
	body := `{"query":{"pages":[{"pageid":1,"title":"A","thumbnail":{"source":"//upload.test/a.jpg"}}]}}`
	_, r := newMockWiki(t, map[string]httpmock.Responder{"A": httpmock.NewStringResponder(http.StatusOK, body)})

	got, err := r.Lookup(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, "https://upload.test/a.jpg", got)
}

func TestResolveAny_StopsAtFirstSuccess(t *testing.T) {
	m, r := newMockWiki(t, map[string]httpmock.Responder{
		"B": httpmock.NewStringResponder(http.StatusOK, pageResponse("B", "https://upload.test/b.jpg")),
		"C": httpmock.NewStringResponder(http.StatusOK, pageResponse("C", "https://upload.test/c.jpg")),
	})

	got, ok := r.ResolveAny(context.Background(), []string{"A", "B", "C"})
	require.True(t, ok)
	assert.Equal(t, "https://upload.test/b.jpg", got)
	assert.Equal(t, []string{"A", "B"}, m.queried)
}

func TestResolveAny_AllFail(t *testing.T) {
	m, r := newMockWiki(t, nil)
	_, ok := r.ResolveAny(context.Background(), []string{"A", "B"})
	assert.False(t, ok)
	assert.Equal(t, []string{"A", "B"}, m.queried)

	_, ok = r.ResolveAny(context.Background(), nil)
	assert.False(t, ok)
}

func TestLookup_MemoizesDefiniteAnswers(t *testing.T) {
	flaky := 0
	m, r := newMockWiki(t, map[string]httpmock.Responder{
		"Found": httpmock.NewStringResponder(http.StatusOK, pageResponse("Found", "https://upload.test/f.jpg")),
		"Flaky": func(req *http.Request) (*http.Response, error) {
			flaky++
			if flaky == 1 {
				return nil, errors.New("timeout")
			}
			return httpmock.NewStringResponse(http.StatusOK, pageResponse("Flaky", "https://upload.test/flaky.jpg")), nil
		},
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _ = r.Lookup(ctx, "Found")
		_, _ = r.Lookup(ctx, "Gone")
	}
	_, err := r.Lookup(ctx, "Flaky")
	require.Error(t, err)
	got, err := r.Lookup(ctx, "Flaky")
	require.NoError(t, err)
	assert.Equal(t, "https://upload.test/flaky.jpg", got)

	assert.Equal(t, []string{"Found", "Gone", "Flaky", "Flaky"}, m.queried)
}

func TestLookup_EmptyTopic(t *testing.T) {
	m, r := newMockWiki(t, nil)
	_, err := r.Lookup(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrNoThumbnail)
	assert.Empty(t, m.queried)
}

func TestLookup_IntervalSpacesQueries(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, testEndpoint, httpmock.NewStringResponder(http.StatusOK, pageResponse("x", "")))
	r := New(Options{Endpoint: testEndpoint, Interval: 40 * time.Millisecond, Client: &http.Client{Transport: transport}})

	started := time.Now()
	_, ok := r.ResolveAny(context.Background(), []string{"A", "B", "C"})
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(started), 80*time.Millisecond)
}

func TestLookup_CancelledWhileWaiting(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, testEndpoint, httpmock.NewStringResponder(http.StatusOK, pageResponse("x", "")))
	r := New(Options{Endpoint: testEndpoint, Interval: time.Hour, Client: &http.Client{Transport: transport}})

	_, _ = r.Lookup(context.Background(), "A")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Lookup(ctx, "B")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoThumbnail))
}

func TestQueryURL(t *testing.T) {
	r := New(Options{ThumbSize: 640})
	got := r.queryURL("Ferrari 360 Modena")
	assert.True(t, strings.HasPrefix(got, DefaultEndpoint+"?"))
	for _, part := range []string{"action=query", "prop=pageimages", "pithumbsize=640", "titles=Ferrari+360+Modena", "format=json"} {
		assert.Contains(t, got, part)
	}
}
