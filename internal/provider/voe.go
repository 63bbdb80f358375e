package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"

	"github.com/katvier/naia/internal/fetch"
)

const voeName = "VOE"

var (
	voeRedirectExpr = regexp.MustCompile(`window\.location\.href\s*=\s*'(https://[^']+)'`)
	voePayloadExpr  = regexp.MustCompile(`(?s)<script type="application/json">\s*(\[".*?"\])\s*</script>`)
	voeLegacyExpr   = regexp.MustCompile(`'hls'\s*:\s*'([^']+)'`)

	// The junk fragments VOE sprinkles through its payload between the
	// rot13 and base64 stages.
	voeJunkPatterns = []string{"@$", "^^", "~@", "%?", "*~", "!!", "#&"}
)

type voeExtractor struct {
	headers http.Header
}

func newVOE(headers http.Header) *voeExtractor {
	return &voeExtractor{headers: headers}
}

// Extract follows VOE's embed redirect and unpacks the obfuscated JSON
// payload on the target page. The pipeline is rot13 -> junk substitution
// -> base64 -> codepoint shift -> reversal -> base64 -> JSON document
// carrying the stream URLs.
func (extractor *voeExtractor) Extract(ctx context.Context, src Source, fetcher fetch.Fetcher) (*DirectLink, error) {
	body := string(src.Body)

	// Embed pages are a stub which immediately bounces the browser to a
	// mirror domain; the payload lives on the target page.
	if redirect := voeRedirectExpr.FindStringSubmatch(body); redirect != nil {
		res, err := fetcher.Fetch(ctx, http.MethodGet, redirect[1], extractor.headers)
		if err != nil {
			return nil, err
		}

		body = string(res.Body)
	}

	payload := voePayloadExpr.FindStringSubmatch(body)
	if payload == nil {
		return extractor.extractLegacy(body)
	}

	var wrapped []string
	if err := json.Unmarshal([]byte(payload[1]), &wrapped); err != nil || len(wrapped) == 0 {
		return nil, newParseError(voeName, "obfuscated payload script is not a JSON string array")
	}

	decoded, err := decodeVOEPayload(wrapped[0])
	if err != nil {
		return nil, err
	}

	var document struct {
		Source          string `json:"source"`
		DirectAccessURL string `json:"direct_access_url"`
	}
	if err := json.Unmarshal([]byte(decoded), &document); err != nil {
		return nil, newParseError(voeName, "decoded payload is not a JSON document: %s", err.Error())
	}

	// Prefer the progressive MP4 over the HLS playlist when both exist.
	switch {
	case document.DirectAccessURL != "":
		return &DirectLink{URL: normalizeStreamURL(document.DirectAccessURL)}, nil
	case document.Source != "":
		return &DirectLink{URL: normalizeStreamURL(document.Source)}, nil
	default:
		return nil, newParseError(voeName, "decoded payload carries no stream URL")
	}
}

// extractLegacy handles the older page format where the HLS playlist is a
// bare base64 string assigned to an 'hls' key.
func (extractor *voeExtractor) extractLegacy(body string) (*DirectLink, error) {
	match := voeLegacyExpr.FindStringSubmatch(body)
	if match == nil {
		return nil, newParseError(voeName, "no payload script or legacy hls entry found")
	}

	decoded, err := base64Decode(match[1])
	if err != nil {
		return nil, newParseError(voeName, "legacy hls entry is not valid base64")
	}

	return &DirectLink{URL: normalizeStreamURL(decoded)}, nil
}

func decodeVOEPayload(obfuscated string) (string, error) {
	step := rot13(obfuscated)
	step = stripPatterns(step, voeJunkPatterns...)

	step, err := base64Decode(step)
	if err != nil {
		return "", newParseError(voeName, "payload failed first base64 stage")
	}

	step = shiftCodepoints(step, -3)
	step = reverseString(step)

	step, err = base64Decode(step)
	if err != nil {
		return "", newParseError(voeName, "payload failed second base64 stage")
	}

	return step, nil
}
