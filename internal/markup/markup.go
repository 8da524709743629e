// Package markup strips the game's inline color tags from window text.
// Raw lines look like:
//
//	<color=#7AB2F4>user</color> <color=#FFFFFF>connected</color>
//
// Consumers piping text to chat bots or logs usually want the plain
// form; the tags are preserved on request since they carry the game's
// own highlighting.
package markup

import "regexp"

var (
	openTag  = regexp.MustCompile(`<color=[^>]*>`)
	closeTag = regexp.MustCompile(`</color>`)
)

// Strip removes color tags, leaving their contents. Removal repeats
// until stable: deleting a tag can splice surrounding bytes into a new
// tag, and window text is not ours to trust.
func Strip(s string) string {
	for {
		out := openTag.ReplaceAllString(s, "")
		out = closeTag.ReplaceAllString(out, "")
		if out == s {
			return out
		}
		s = out
	}
}

// StripAll strips every line in place and returns the slice.
func StripAll(lines []string) []string {
	for i, l := range lines {
		lines[i] = Strip(l)
	}
	return lines
}
