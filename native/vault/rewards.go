package vault

import "math"

// calculateRewards converts elapsed time into the reward owed at the given
// rate and stake count. Negative elapsed time, or elapsed time beyond the
// policy window, rejects the whole operation; the multiplication chain fails
// on overflow instead of wrapping.
func calculateRewards(elapsedSeconds int64, ratePerSecond, stakedCount uint64, maxElapsedSeconds int64) (uint64, error) {
	if elapsedSeconds < 0 {
		return 0, ErrInvalidTimeElapsed
	}
	if maxElapsedSeconds > 0 && elapsedSeconds > maxElapsedSeconds {
		return 0, ErrInvalidTimeElapsed
	}

	elapsed := uint64(elapsedSeconds)
	if ratePerSecond != 0 && elapsed > math.MaxUint64/ratePerSecond {
		return 0, ErrMathOverflow
	}
	rewards := elapsed * ratePerSecond
	if stakedCount != 0 && rewards > math.MaxUint64/stakedCount {
		return 0, ErrMathOverflow
	}
	return rewards * stakedCount, nil
}
