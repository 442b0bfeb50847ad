package extract

import (
	"strconv"
	"time"
)

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

func formatMillis(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func millis(v float64) time.Duration {
	return time.Duration(v * float64(time.Millisecond))
}
