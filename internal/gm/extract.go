package gm

import (
	"regexp"
	"strings"
)

var fencedJSON = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\}|\\[.*?\\])\\s*```")

// ExtractJSON はモデルの応答テキストからJSON部分を取り出します。
// ```json フェンス、最も外側の {...} / [...]、それ以外はトリムした全文の順に試します。
func ExtractJSON(text string) string {
	if strings.TrimSpace(text) == "" {
		return "{}"
	}
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if span := outermost(text); span != "" {
		return span
	}
	return strings.TrimSpace(text)
}

// outermost returns the span from the first opening bracket to the last
// matching closing bracket of the same kind.
func outermost(text string) string {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return ""
	}
	closer := "}"
	if text[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(text, closer)
	if end <= start {
		return ""
	}
	return text[start : end+1]
}
