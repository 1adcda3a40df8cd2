package format

import (
	"fmt"
	"strings"
	"time"
)

// Duration formats d as "Xm Ys", "Ys" or "Nms" for sub-second values.
func Duration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	s := int(d.Seconds())
	if s >= 60 {
		return fmt.Sprintf("%dm %ds", s/60, s%60)
	}
	return fmt.Sprintf("%ds", s)
}

// Truncate shortens s to maxLen runes, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// Value previews an arbitrary value on one line. Nil prints as "-".
func Value(v any, maxLen int) string {
	if v == nil {
		return "-"
	}
	return Truncate(strings.Join(strings.Fields(fmt.Sprint(v)), " "), maxLen)
}

// List joins names with ", ", or "-" when empty.
func List(names []string) string {
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ", ")
}
