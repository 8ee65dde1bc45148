package power

const usecPerDay = 24 * 60 * 60 * 1_000_000

// estimateWatts implements §4.2: convert successive (joules, time_usec)
// samples into an instantaneous wattage, tolerating a single midnight
// wrap of the wall-clock-derived timestamp. It returns the new watts
// estimate and whether one could be produced this tick; callers must
// store (joules, timeUsec) as the new "previous" sample regardless of
// the returned ok value.
func estimateWatts(prevJoules, prevTimeUsec, joules, timeUsec uint64) (watts uint64, ok bool) {
	if prevTimeUsec == 0 || timeUsec == 0 {
		return 0, false
	}
	if joules <= prevJoules {
		return 0, false
	}

	var deltaTime uint64
	if timeUsec > prevTimeUsec {
		deltaTime = timeUsec - prevTimeUsec
	} else if timeUsec+usecPerDay > prevTimeUsec {
		deltaTime = (timeUsec + usecPerDay) - prevTimeUsec
	} else {
		return 0, false
	}
	if deltaTime == 0 {
		return 0, false
	}

	deltaJoules := joules - prevJoules
	watts = (deltaJoules * 1_000_000) / deltaTime
	return watts, true
}
