package dsp

// minPitchLag is the number of leading lags skipped during the
// autocorrelation peak search. The first few lags carry spurious
// near-zero-lag peaks from broadband energy rather than voiced pitch.
const minPitchLag = 20

// DetectPitch estimates the fundamental frequency of a frame via
// autocorrelation. It computes the autocorrelation for every lag in
// [0, len(samples)), skips the first [minPitchLag] lags, and converts the
// lag of maximum correlation to Hz.
//
// Returns (pitch, true) when a voiced pitch is found, or (0, false) when no
// valid peak exists — silence, noise, or a frame too short for the search.
func DetectPitch(samples []float32, sampleRate int) (float64, bool) {
	n := len(samples)
	if n <= minPitchLag || sampleRate <= 0 {
		return 0, false
	}

	bestLag := 0
	bestCorr := 0.0
	for lag := minPitchLag; lag < n; lag++ {
		var corr float64
		for i := 0; i+lag < n; i++ {
			corr += float64(samples[i]) * float64(samples[i+lag])
		}
		if corr > bestCorr {
			bestCorr = corr
			bestLag = lag
		}
	}

	if bestLag == 0 {
		return 0, false
	}
	return float64(sampleRate) / float64(bestLag), true
}
