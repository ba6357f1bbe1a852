// Package title expands per-occurrence title templates.
//
// Recognized tokens:
//
//	%yy  2-digit year          %y  full year
//	%mm  zero-padded month     %m  month number
//	%MM  3-letter month name   %M  full month name
//	%dd  zero-padded day       %d  day of month
//	%DD  3-letter weekday      %D  full weekday
//
// Anything else, including unknown %-sequences, is copied verbatim.
package title

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Tokens lists the recognized tokens. Longer tokens come before their prefixes so
// that "%yy" is never read as "%y" followed by "y".
var Tokens = []string{"%yy", "%y", "%mm", "%m", "%MM", "%M", "%dd", "%d", "%DD", "%D"}

// Render expands template for the instant now. now should already be in the
// task's timezone; Render does not convert it.
func Render(template string, now time.Time) string {
	if !strings.Contains(template, "%") {
		return template
	}
	return replacer(now).Replace(template)
}

func replacer(now time.Time) *strings.Replacer {
	y, m, d := now.Date()
	month := m.String()
	weekday := now.Weekday().String()
	// strings.Replacer tries old strings in argument order at each position.
	return strings.NewReplacer(
		"%yy", fmt.Sprintf("%02d", y%100),
		"%y", strconv.Itoa(y),
		"%mm", fmt.Sprintf("%02d", int(m)),
		"%m", strconv.Itoa(int(m)),
		"%MM", month[:3],
		"%M", month,
		"%dd", fmt.Sprintf("%02d", d),
		"%d", strconv.Itoa(d),
		"%DD", weekday[:3],
		"%D", weekday,
	)
}
