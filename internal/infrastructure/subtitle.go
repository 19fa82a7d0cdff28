package infrastructure

import (
	"fmt"
	"regexp"
	"strings"
)

var vttTimestamp = regexp.MustCompile(`(\d+):(\d+):(\d+)\.(\d+)`)

// VTTToSRT converts a WebVTT payload to SubRip text. The WEBVTT header,
// NOTE blocks and blank lines are dropped, cue timestamps switch from
// dot to comma millisecond separators, and cues get a 1-based sequence
// index. Cue text lines are preserved verbatim. Input with no cues
// yields an empty string rather than an error, so a broken subtitle
// never blocks the task.
func VTTToSRT(vtt string) string {
	lines := strings.Split(strings.TrimSpace(vtt), "\n")

	var cues []string
	for i := 0; i < len(lines); {
		line := strings.TrimSpace(lines[i])

		if line == "" || strings.HasPrefix(line, "WEBVTT") || strings.HasPrefix(line, "NOTE") {
			i++
			continue
		}

		if !strings.Contains(line, "-->") {
			i++
			continue
		}

		block := []string{
			fmt.Sprintf("%d", len(cues)+1),
			vttTimestamp.ReplaceAllString(line, "$1:$2:$3,$4"),
		}

		i++
		for i < len(lines) {
			text := strings.TrimSpace(lines[i])
			if text == "" || strings.Contains(text, "-->") {
				break
			}
			block = append(block, text)
			i++
		}
		cues = append(cues, strings.Join(block, "\n"))
	}

	if len(cues) == 0 {
		return ""
	}
	return strings.Join(cues, "\n\n") + "\n"
}
