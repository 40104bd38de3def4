package parser

import (
	"strings"
)

const markdownDecoration = " \t*#`-"

// CleanContent recovers source code from the raw text of one section.
// When the text holds a fenced code block, the first block's trimmed body is
// returned and everything around it (titles, prose) is dropped. Otherwise
// leading markdown decoration is stripped line by line and blank lines are
// removed. It never fails; noisy input yields noisy output.
func CleanContent(raw string) string {
	if blocks := fencedBlocks(raw); len(blocks) > 0 {
		return strings.TrimSpace(blocks[0].body)
	}

	var kept []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimLeft(line, markdownDecoration)
		line = strings.TrimRight(line, " \t\r")
		if line == "" {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
