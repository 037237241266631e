package activity

import (
	"fmt"
	"strconv"
	"strings"

	"backend-escapevim/internal/shared/apperr"
)

// FormatDuration renders elapsed seconds as HH:MM:SS. Hours are not capped.
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}

func ParseDuration(s string) (int64, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, apperr.ValidationError{Field: "duration", Message: "duration must be HH:MM:SS"}
	}
	var vals [3]int64
	for i, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil || v < 0 || len(p) < 2 {
			return 0, apperr.ValidationError{Field: "duration", Message: "duration must be HH:MM:SS"}
		}
		vals[i] = v
	}
	if vals[1] > 59 || vals[2] > 59 {
		return 0, apperr.ValidationError{Field: "duration", Message: "minutes and seconds must be below 60"}
	}
	return vals[0]*3600 + vals[1]*60 + vals[2], nil
}
