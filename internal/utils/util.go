package utils

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var mdEscaper = strings.NewReplacer("*", "\\*", "_", "\\_", "`", "\\`", "~", "\\~", "|", "\\|")

func EscapeMd(s string) string {
	return mdEscaper.Replace(s)
}

// PrettyDuration renders m:ss or h:mm:ss.
func PrettyDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d / time.Second)
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

var (
	reDur   = regexp.MustCompile(`(?i)^(?:(\d+)h)?(?:(\d+)m)?(?:(\d+)s)?$`)
	reClock = regexp.MustCompile(`^(?:(\d+):)?(\d{1,2}):(\d{2})$`)
)

var ErrBadTimestamp = errors.New("invalid time, try 90, 1:30 or 1m30s")

// ParseTimestamp reads plain seconds, clock form (1:30, 1:02:03) or unit form (1h2m3s).
func ParseTimestamp(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrBadTimestamp
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return 0, ErrBadTimestamp
		}
		return time.Duration(n) * time.Second, nil
	}
	if m := reClock.FindStringSubmatch(s); m != nil {
		return hms(Atoi(m[1]), Atoi(m[2]), Atoi(m[3])), nil
	}
	if m := reDur.FindStringSubmatch(s); m != nil {
		return hms(Atoi(m[1]), Atoi(m[2]), Atoi(m[3])), nil
	}
	return 0, ErrBadTimestamp
}

func hms(h, m, s int) time.Duration {
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second
}

func Atoi(s string) int {
	if s == "" {
		return 0
	}
	v, _ := strconv.Atoi(s)
	return v
}

func ShuffleSlice[T any](a []T) {
	rand.Shuffle(len(a), func(i, j int) { a[i], a[j] = a[j], a[i] })
}
