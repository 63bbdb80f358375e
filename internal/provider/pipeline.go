package provider

import (
	"encoding/base64"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// The transform stages shared by the decode pipelines. Every provider
// pipeline is some ordering of these primitives followed by a structured
// parse; keeping them here means a new provider is usually just a new
// ordering, not new code.

// rot13 applies the ROT13 substitution to ASCII letters, leaving all
// other characters untouched.
func rot13(input string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return 'a' + (r-'a'+13)%26
		case r >= 'A' && r <= 'Z':
			return 'A' + (r-'A'+13)%26
		default:
			return r
		}
	}, input)
}

// stripPatterns removes every occurrence of each junk pattern from the
// input, in the order the patterns are given.
func stripPatterns(input string, patterns ...string) string {
	for _, pattern := range patterns {
		input = strings.ReplaceAll(input, pattern, "")
	}

	return input
}

// shiftCodepoints shifts every character in the input by the given
// (possibly negative) offset.
func shiftCodepoints(input string, offset int) string {
	return strings.Map(func(r rune) rune {
		return r + rune(offset)
	}, input)
}

// reverseString reverses the input rune-wise.
func reverseString(input string) string {
	runes := []rune(input)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}

	return string(runes)
}

// swapCase inverts the case of every letter in the input.
func swapCase(input string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsUpper(r):
			return unicode.ToLower(r)
		case unicode.IsLower(r):
			return unicode.ToUpper(r)
		default:
			return r
		}
	}, input)
}

// base64Decode decodes standard base64, tolerating payloads whose
// padding was lost in an earlier transform stage.
func base64Decode(input string) (string, error) {
	input = strings.TrimSpace(input)
	if pad := len(input) % 4; pad != 0 {
		input += strings.Repeat("=", 4-pad)
	}

	decoded, err := base64.StdEncoding.DecodeString(input)
	if err != nil {
		return "", err
	}

	return string(decoded), nil
}

// hexDecode decodes a hexadecimal string to its raw form.
func hexDecode(input string) (string, error) {
	decoded, err := hex.DecodeString(strings.TrimSpace(input))
	if err != nil {
		return "", err
	}

	return string(decoded), nil
}

// A jwplayer-style source entry as found in several providers player
// setup blocks: file URL plus an optional quality label such as "1080p".
type streamCandidate struct {
	URL   string
	Label string
}

var (
	jwplayerSourceExpr = regexp.MustCompile(`\{[^{}]*?file\s*:\s*"([^"]+)"[^{}]*?\}`)
	jwplayerFileExpr   = regexp.MustCompile(`file\s*:\s*"([^"]+)"`)
	jwplayerLabelExpr  = regexp.MustCompile(`label\s*:\s*"([^"]+)"`)
	qualityDigitsExpr  = regexp.MustCompile(`(\d{3,4})`)
)

// jwplayerSources scans a player setup block for its source entries.
func jwplayerSources(body string) []streamCandidate {
	var candidates []streamCandidate
	for _, block := range jwplayerSourceExpr.FindAllString(body, -1) {
		fileMatch := jwplayerFileExpr.FindStringSubmatch(block)
		if fileMatch == nil {
			continue
		}

		candidate := streamCandidate{URL: normalizeStreamURL(fileMatch[1])}
		if labelMatch := jwplayerLabelExpr.FindStringSubmatch(block); labelMatch != nil {
			candidate.Label = labelMatch[1]
		}

		candidates = append(candidates, candidate)
	}

	return candidates
}

// selectBest applies the quality rule: the candidate with the highest
// numeric quality label wins; candidates without a parseable label rank
// lowest, and the earliest candidate wins any tie. Nil when the list
// is empty.
func selectBest(candidates []streamCandidate) *streamCandidate {
	if len(candidates) == 0 {
		return nil
	}

	best := 0
	bestQuality := labelQuality(candidates[0].Label)
	for i := 1; i < len(candidates); i++ {
		if quality := labelQuality(candidates[i].Label); quality > bestQuality {
			best, bestQuality = i, quality
		}
	}

	return &candidates[best]
}

func labelQuality(label string) int {
	match := qualityDigitsExpr.FindStringSubmatch(label)
	if match == nil {
		return -1
	}

	quality, err := strconv.Atoi(match[1])
	if err != nil {
		return -1
	}

	return quality
}

// normalizeStreamURL fixes up protocol-relative and JSON-escaped URLs as
// they commonly appear inside player setup blocks.
func normalizeStreamURL(raw string) string {
	raw = strings.ReplaceAll(raw, `\/`, "/")
	if strings.HasPrefix(raw, "//") {
		return "https:" + raw
	}

	return raw
}
