package extractor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/summarize/internal/httpclient"
	"github.com/jmylchreest/summarize/internal/models"
)

func testExtractor(t *testing.T, srv *httptest.Server) *Extractor {
	t.Helper()
	cfg := httpclient.DefaultConfig()
	cfg.BaseClient = srv.Client()
	return New(Options{HTTPClient: httpclient.New(cfg)})
}

const articleHTML = `<!DOCTYPE html>
<html><head>
<title>Test Article</title>
<meta name="description" content="An article about things">
<meta property="og:site_name" content="Example News">
</head><body>
<nav>Home | About | Contact</nav>
<article>
<h1>Test Article</h1>
<p>` + "This is the body of the article. It needs to be long enough to pass the minimum article threshold, so here is a sufficiently verbose paragraph describing absolutely nothing of consequence in considerable detail, sentence after sentence, until the counter is satisfied." + `</p>
</article>
<footer>Copyright</footer>
</body></html>`

func TestExtractWebsite(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	e := testExtractor(t, srv)
	out, err := e.Extract(context.Background(), InputTarget{Kind: models.InputWebsite, URL: srv.URL}, Settings{Firecrawl: FirecrawlOff, Markdown: MarkdownOff})
	require.NoError(t, err)

	assert.Equal(t, "Test Article", out.Title)
	assert.Equal(t, "An article about things", out.Description)
	assert.Equal(t, "Example News", out.SiteName)
	assert.Contains(t, out.Content, "body of the article")
	assert.NotContains(t, out.Content, "Home | About")
	assert.NotContains(t, out.Content, "Copyright")
	assert.False(t, out.IsVideoOnly)
	assert.Positive(t, out.WordCount)
}

func TestAssetServingHTMLIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	e := testExtractor(t, srv)
	_, err := e.Extract(context.Background(),
		InputTarget{Kind: models.InputAsset, URL: srv.URL + "/paper.pdf"},
		Settings{Firecrawl: FirecrawlOff, Markdown: MarkdownOff})
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.ErrKindExtraction))
	assert.Contains(t, err.Error(), "served HTML")
}

func TestExtractReportsPostRedirectURL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(articleHTML))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e := testExtractor(t, srv)
	out, err := e.Extract(context.Background(), InputTarget{Kind: models.InputWebsite, URL: srv.URL + "/old"}, Settings{Firecrawl: FirecrawlOff})
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/new", out.URL)
}

func TestExtractVideoOnlyPage(t *testing.T) {
	page := `<!DOCTYPE html><html><head><title>Video Page</title></head><body>
<iframe src="https://www.youtube.com/embed/dQw4w9WgXcQ"></iframe>
</body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(page))
	}))
	defer srv.Close()

	e := testExtractor(t, srv)
	out, err := e.Extract(context.Background(), InputTarget{Kind: models.InputWebsite, URL: srv.URL}, Settings{Firecrawl: FirecrawlOff})
	require.NoError(t, err)

	assert.True(t, out.IsVideoOnly)
	require.NotNil(t, out.Video)
	assert.Equal(t, models.VideoYouTube, out.Video.Kind)
	assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", out.Video.URL)
}

func TestExtractNoContentIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body></body></html>"))
	}))
	defer srv.Close()

	e := testExtractor(t, srv)
	_, err := e.Extract(context.Background(), InputTarget{Kind: models.InputWebsite, URL: srv.URL}, Settings{Firecrawl: FirecrawlOff})
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.ErrKindExtraction))
}

func TestSettingsKeyIsStable(t *testing.T) {
	a := Settings{Firecrawl: FirecrawlAuto, Markdown: MarkdownOff}.Key()
	b := Settings{Firecrawl: FirecrawlAuto, Markdown: MarkdownOff}.Key()
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, Settings{Firecrawl: FirecrawlOff, Markdown: MarkdownOff}.Key())

	// Timeout does not participate in the key.
	c := Settings{Firecrawl: FirecrawlAuto, Markdown: MarkdownOff, Timeout: 123}.Key()
	assert.Equal(t, a, c)
}

func TestTruncate(t *testing.T) {
	text := strings.Repeat("word ", 100)
	out, truncated := truncate(text, 52)
	assert.True(t, truncated)
	assert.LessOrEqual(t, len(out), 52)
	assert.False(t, strings.HasSuffix(out, " wor"))

	out, truncated = truncate("short", 100)
	assert.False(t, truncated)
	assert.Equal(t, "short", out)
}

func TestParseTimedTextJSON(t *testing.T) {
	body := []byte(`{"events":[{"segs":[{"utf8":"hello "},{"utf8":"world"}]},{"segs":[{"utf8":"again"}]}]}`)
	text, err := parseTimedTextJSON(body)
	require.NoError(t, err)
	assert.Equal(t, "hello world again", text)

	_, err = parseTimedTextJSON([]byte(`{"events":[]}`))
	assert.Error(t, err)
}

func TestParseCaptionXML(t *testing.T) {
	raw := []byte(`<transcript><text start="0" dur="2">hello &amp; welcome</text><text start="2" dur="2">to the show</text></transcript>`)
	assert.Equal(t, "hello & welcome to the show", parseCaptionXML(raw))
}

func TestYouTubeResolverCaptionFallback(t *testing.T) {
	mux := http.NewServeMux()
	// timedtext endpoint returns an empty document, forcing the fallback.
	mux.HandleFunc("/api/timedtext", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"events":[]}`))
	})
	var captionURL string
	mux.HandleFunc("/watch", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>"captionTracks":[{"baseUrl":"` + captionURL + `","languageCode":"en"}]</html>`))
	})
	mux.HandleFunc("/caption", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<transcript><text>Transcript: hello</text></transcript>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	captionURL = srv.URL + "/caption"

	r := newYouTubeResolver(srv.Client(), "")
	r.watchBaseURL = srv.URL
	r.timedTextBaseURL = srv.URL

	var diags []string
	res, err := r.Resolve(context.Background(), "dQw4w9WgXcQ", &diags)
	require.NoError(t, err)
	assert.Equal(t, "captions", res.Source)
	assert.Equal(t, "Transcript: hello", res.Text)
	assert.NotEmpty(t, diags) // the failed api attempt is recorded
}
