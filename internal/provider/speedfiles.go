package provider

import (
	"context"
	"regexp"
	"strings"

	"github.com/katvier/naia/internal/fetch"
)

const speedfilesName = "SpeedFiles"

var speedfilesPayloadExpr = regexp.MustCompile(`var\s+_0x[0-9a-zA-Z]+\s*=\s*"([^"]+)"`)

type speedfilesExtractor struct{}

// Extract unpacks SpeedFiles' obfuscated URL variable. The pipeline is
// base64 -> case swap -> reversal -> base64 -> reversal -> hex -> codepoint
// shift -> case swap, ending in the bare stream URL.
func (speedfilesExtractor) Extract(_ context.Context, src Source, _ fetch.Fetcher) (*DirectLink, error) {
	match := speedfilesPayloadExpr.FindStringSubmatch(string(src.Body))
	if match == nil {
		return nil, newParseError(speedfilesName, "no obfuscated payload variable found")
	}

	decoded, err := decodeSpeedfilesPayload(match[1])
	if err != nil {
		return nil, err
	}

	if !strings.HasPrefix(decoded, "http") {
		return nil, newParseError(speedfilesName, "payload decoded to a non-URL value")
	}

	return &DirectLink{URL: decoded}, nil
}

func decodeSpeedfilesPayload(obfuscated string) (string, error) {
	step, err := base64Decode(obfuscated)
	if err != nil {
		return "", newParseError(speedfilesName, "payload failed first base64 stage")
	}

	step = swapCase(step)
	step = reverseString(step)

	step, err = base64Decode(step)
	if err != nil {
		return "", newParseError(speedfilesName, "payload failed second base64 stage")
	}

	step = reverseString(step)

	step, err = hexDecode(step)
	if err != nil {
		return "", newParseError(speedfilesName, "payload failed hex stage")
	}

	step = shiftCodepoints(step, -3)
	step = swapCase(step)

	return step, nil
}
