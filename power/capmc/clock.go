package capmc

import "fmt"

// ParseClockUsec converts a capmc energy-counter timestamp of the form
// "2015-02-19 15:50:00.581552-06" into microseconds since local
// midnight (§4.1). The year/month/day fields are intentionally
// discarded, matching the original plugin's _time_str2num.
func ParseClockUsec(s string) (uint64, bool) {
	var year, month, day, hour, min, sec, usec, unk int
	n, _ := fmt.Sscanf(s, "%d-%d-%d %d:%d:%d.%d-%d",
		&year, &month, &day, &hour, &min, &sec, &usec, &unk)
	if n < 6 {
		return 0, false
	}
	total := uint64((hour*60+min)*60 + sec)
	total *= 1_000_000
	total += uint64(usec)
	return total, true
}
