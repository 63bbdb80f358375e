package provider

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katvier/naia/internal/fetch"
)

// stubFetcher serves canned results keyed by URL and records the order in
// which URLs were requested.
type stubFetcher struct {
	results  map[string]*fetch.Result
	headers  map[string]http.Header
	requests []string
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		results: make(map[string]*fetch.Result),
		headers: make(map[string]http.Header),
	}
}

func (stub *stubFetcher) serve(url string, body string) {
	stub.results[url] = &fetch.Result{Body: []byte(body), FinalURL: url, StatusCode: 200}
}

func (stub *stubFetcher) Fetch(_ context.Context, _ string, url string, headers http.Header) (*fetch.Result, error) {
	stub.requests = append(stub.requests, url)
	stub.headers[url] = headers

	if result, ok := stub.results[url]; ok {
		return result, nil
	}

	return nil, &fetch.NetworkError{URL: url, Cause: errors.New("no canned response")}
}

// encodeVOEPayload is the inverse of the VOE decode pipeline, used to build
// realistic page fixtures.
func encodeVOEPayload(document string) string {
	step := base64.StdEncoding.EncodeToString([]byte(document))
	step = shiftCodepoints(reverseString(step), 3)
	step = base64.StdEncoding.EncodeToString([]byte(step))
	step = rot13(step)

	// Sprinkle junk fragments the way the real payloads do.
	return step[:4] + "@$" + step[4:8] + "~@" + step[8:]
}

// encodeSpeedfilesPayload is the inverse of the SpeedFiles decode pipeline.
func encodeSpeedfilesPayload(url string) string {
	step := shiftCodepoints(swapCase(url), 3)
	step = hex.EncodeToString([]byte(step))
	step = reverseString(step)
	step = base64.StdEncoding.EncodeToString([]byte(step))
	step = swapCase(reverseString(step))

	return base64.StdEncoding.EncodeToString([]byte(step))
}

func Test_VOE_DecodesObfuscatedPayload(t *testing.T) {
	t.Parallel()

	document := `{"source":"https://cdn.voe.example/master.m3u8","direct_access_url":"https://cdn.voe.example/video.mp4"}`
	page := fmt.Sprintf(`<html><script type="application/json">["%s"]</script></html>`, encodeVOEPayload(document))

	link, err := newVOE(nil).Extract(context.Background(), Source{EmbedURL: "https://voe.example/e/abc", Body: []byte(page)}, newStubFetcher())
	require.Nil(t, err)
	assert.Equal(t, "https://cdn.voe.example/video.mp4", link.URL)
}

func Test_VOE_FollowsEmbedRedirect(t *testing.T) {
	t.Parallel()

	document := `{"source":"https://cdn.voe.example/master.m3u8"}`
	target := "https://mirror.voe.example/e/abc"

	fetcher := newStubFetcher()
	fetcher.serve(target, fmt.Sprintf(`<script type="application/json">["%s"]</script>`, encodeVOEPayload(document)))

	stub := fmt.Sprintf(`<script>window.location.href = '%s';</script>`, target)
	link, err := newVOE(nil).Extract(context.Background(), Source{EmbedURL: "https://voe.example/e/abc", Body: []byte(stub)}, fetcher)
	require.Nil(t, err)
	assert.Equal(t, "https://cdn.voe.example/master.m3u8", link.URL)
	assert.Equal(t, []string{target}, fetcher.requests)
}

func Test_VOE_FallsBackToLegacyHLS(t *testing.T) {
	t.Parallel()

	encoded := base64.StdEncoding.EncodeToString([]byte("https://cdn.voe.example/legacy.m3u8"))
	page := fmt.Sprintf(`<script>var sources = {'hls': '%s'};</script>`, encoded)

	link, err := newVOE(nil).Extract(context.Background(), Source{Body: []byte(page)}, newStubFetcher())
	require.Nil(t, err)
	assert.Equal(t, "https://cdn.voe.example/legacy.m3u8", link.URL)
}

func Test_VOE_ReportsParseErrorOnGarbage(t *testing.T) {
	t.Parallel()

	_, err := newVOE(nil).Extract(context.Background(), Source{Body: []byte("<html>nothing here</html>")}, newStubFetcher())

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, voeName, parseErr.Provider)
}

func Test_Doodstream_BuildsTokenisedStreamURL(t *testing.T) {
	t.Parallel()

	fetcher := newStubFetcher()
	fetcher.serve("https://dood.li/pass_md5/184-99/abctoken", "https://cdn.dood.example/stream~")

	extractor := newDoodstream("", nil)
	link, err := extractor.Extract(context.Background(), Source{
		EmbedURL: "https://dood.li/e/xyz",
		Body:     []byte(`<script>$.get('/pass_md5/184-99/abctoken', function(data) {})</script>`),
	}, fetcher)

	require.Nil(t, err)
	assert.True(t, strings.HasPrefix(link.URL, "https://cdn.dood.example/stream~"))
	assert.Contains(t, link.URL, "?token=abctoken&expiry=")

	// The follow-up request must present the referer the CDN checks.
	assert.Equal(t, "https://dood.li/", fetcher.headers["https://dood.li/pass_md5/184-99/abctoken"].Get("Referer"))
}

func Test_Doodstream_ReportsMissingEndpoint(t *testing.T) {
	t.Parallel()

	_, err := newDoodstream("", nil).Extract(context.Background(), Source{Body: []byte("<html></html>")}, newStubFetcher())

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}

func Test_Vidoza_ParsesSourcesCode(t *testing.T) {
	t.Parallel()

	page := `<script>var player = new Clappr.Player({sourcesCode: [{src: "https://str.vidoza.example/v.mp4", type: "video/mp4"}]});</script>`
	link, err := vidozaExtractor{}.Extract(context.Background(), Source{Body: []byte(page)}, nil)
	require.Nil(t, err)
	assert.Equal(t, "https://str.vidoza.example/v.mp4", link.URL)
}

func Test_Vidoza_ParsesLegacySourceTag(t *testing.T) {
	t.Parallel()

	page := `<video><source src="https://str.vidoza.example/old.mp4" type="video/mp4"></video>`
	link, err := vidozaExtractor{}.Extract(context.Background(), Source{Body: []byte(page)}, nil)
	require.Nil(t, err)
	assert.Equal(t, "https://str.vidoza.example/old.mp4", link.URL)
}

func Test_Streamtape_NormalisesEmbedToVideoPage(t *testing.T) {
	t.Parallel()

	fetcher := newStubFetcher()
	fetcher.serve("https://streamtape.com/v/abc", `<script>document.getElementById('botlink').innerHTML = "https://cdn.tape.example/get_video.mp4";</script>`)

	link, err := newStreamtape(nil).Extract(context.Background(), Source{
		EmbedURL: "https://streamtape.com/e/abc",
		Body:     []byte("<html>embed stub</html>"),
	}, fetcher)

	require.Nil(t, err)
	assert.Equal(t, "https://cdn.tape.example/get_video.mp4", link.URL)
	assert.Equal(t, []string{"https://streamtape.com/v/abc"}, fetcher.requests)
}

func Test_Streamtape_DetectsRemovedVideo(t *testing.T) {
	t.Parallel()

	_, err := newStreamtape(nil).Extract(context.Background(), Source{
		EmbedURL: "https://streamtape.com/v/abc",
		Body:     []byte("<h1>Video not found!</h1>"),
	}, newStubFetcher())

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Contains(t, parseErr.Reason, "removed")
}

func Test_Speedfiles_DecodesObfuscatedPayload(t *testing.T) {
	t.Parallel()

	url := "https://cdn.speedfiles.example/video.mp4"
	page := fmt.Sprintf(`<script>var _0x5opu234 = "%s";</script>`, encodeSpeedfilesPayload(url))

	link, err := speedfilesExtractor{}.Extract(context.Background(), Source{Body: []byte(page)}, nil)
	require.Nil(t, err)
	assert.Equal(t, url, link.URL)
}

func Test_Vidmoly_SelectsHighestQualitySource(t *testing.T) {
	t.Parallel()

	page := `jwplayer().setup({sources: [{file:"https://ml.example/480.mp4",label:"480p"},{file:"https://ml.example/1080.mp4",label:"1080p"}]});`
	link, err := vidmolyExtractor{}.Extract(context.Background(), Source{Body: []byte(page)}, nil)
	require.Nil(t, err)
	assert.Equal(t, "https://ml.example/1080.mp4", link.URL)
}

func Test_Luluvdo_RequestsPlayerDocumentForFileCode(t *testing.T) {
	t.Parallel()

	fetcher := newStubFetcher()
	playerURL := "https://luluvdo.com/dl?op=embed&file_code=f1l3c0d3&embed=1&referer=luluvdo.com&adb=0"
	fetcher.serve(playerURL, `{sources: [{file:"https://cdn.lulu.example/stream.m3u8"}]}`)

	headers := headersFor([2]string{"User-Agent", luluvdoUserAgent})
	link, err := newLuluvdo(headers).Extract(context.Background(), Source{
		EmbedURL: "https://luluvdo.com/e/f1l3c0d3",
	}, fetcher)

	require.Nil(t, err)
	assert.Equal(t, "https://cdn.lulu.example/stream.m3u8", link.URL)
	assert.Equal(t, luluvdoUserAgent, fetcher.headers[playerURL].Get("User-Agent"))
}
