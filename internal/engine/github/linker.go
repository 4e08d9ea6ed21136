package github

import (
	"regexp"
	"strconv"
)

// GitHub's closing-keyword syntax: "closes #12", "Fixes #34", etc.
// Case-insensitive, same fixed keyword set GitHub recognizes.
var issueLinkPattern = regexp.MustCompile(`(?i)\b(close[sd]?|fix(e[sd])?|resolve[sd]?)\s*:?\s+#(\d+)`)

// LinkedIssues extracts the set of issue numbers a PR body claims to
// close. Duplicates are collapsed; order follows first appearance.
func LinkedIssues(body string) []int64 {
	matches := issueLinkPattern.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[int64]bool, len(matches))
	var issues []int64
	for _, m := range matches {
		n, err := strconv.ParseInt(m[3], 10, 64)
		if err != nil || seen[n] {
			continue
		}
		seen[n] = true
		issues = append(issues, n)
	}
	return issues
}
