package audio

// Resample converts mono samples between rates with linear interpolation.
// Speech does not need better than this, and it keeps the playback path
// dependency free.
func Resample(input []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate || len(input) == 0 || fromRate <= 0 || toRate <= 0 {
		return input
	}

	ratio := float64(toRate) / float64(fromRate)
	outputLen := int(float64(len(input)) * ratio)
	output := make([]float32, outputLen)

	for i := 0; i < outputLen; i++ {
		srcPos := float64(i) / ratio
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))

		s1 := input[len(input)-1]
		if srcIdx < len(input) {
			s1 = input[srcIdx]
		}
		s2 := s1
		if srcIdx+1 < len(input) {
			s2 = input[srcIdx+1]
		}

		output[i] = s1 + (s2-s1)*frac
	}

	return output
}
