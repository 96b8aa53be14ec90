package validation

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// =============================================================================
// HTML TAG BALANCE
// =============================================================================

// voidElements never take a closing tag.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// optionalClosers may be auto-closed by parsers; leaving them open is
// not reported as an issue.
var optionalClosers = map[string]bool{
	"p": true, "li": true, "tr": true, "td": true, "th": true,
	"dd": true, "dt": true, "option": true, "thead": true, "tbody": true,
}

const maxTagIssues = 5

// tagBalanceIssues tokenizes the markup and reports unclosed or stray
// tags, capped so findings stay readable.
func tagBalanceIssues(content string) []string {
	z := html.NewTokenizer(strings.NewReader(content))
	var stack []string
	var issues []string

	for {
		switch z.Next() {
		case html.ErrorToken:
			for i := len(stack) - 1; i >= 0 && len(issues) < maxTagIssues; i-- {
				if !optionalClosers[stack[i]] {
					issues = append(issues, fmt.Sprintf("unclosed <%s>", stack[i]))
				}
			}
			return issues

		case html.StartTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if !voidElements[tag] {
				stack = append(stack, tag)
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			idx := -1
			for i := len(stack) - 1; i >= 0; i-- {
				if stack[i] == tag {
					idx = i
					break
				}
			}
			if idx < 0 {
				if len(issues) < maxTagIssues {
					issues = append(issues, fmt.Sprintf("stray </%s>", tag))
				}
				continue
			}
			for i := len(stack) - 1; i > idx; i-- {
				if !optionalClosers[stack[i]] && len(issues) < maxTagIssues {
					issues = append(issues, fmt.Sprintf("unclosed <%s>", stack[i]))
				}
			}
			stack = stack[:idx]
		}
	}
}
