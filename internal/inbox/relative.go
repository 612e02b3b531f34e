// ABOUTME: Relative time labels for the conversation list, in Vietnamese
// ABOUTME: Buckets: just now, minutes, hours, days, then a dd/mm/yyyy date

package inbox

import (
	"fmt"
	"time"
)

// RelativeLabel describes how long before now t happened.
func RelativeLabel(now, t time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "vừa xong"
	case d < time.Hour:
		return fmt.Sprintf("%d phút trước", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d giờ trước", int(d/time.Hour))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%d ngày trước", int(d/(24*time.Hour)))
	default:
		return t.In(now.Location()).Format("02/01/2006")
	}
}
