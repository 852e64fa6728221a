package vad

import "math"

// RMS returns the root-mean-square energy of samples already normalized to a
// 0..1 amplitude scale. An empty buffer has energy 0.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// RMSBytes returns the RMS energy of b, treating every byte as an amplitude
// where 0xFF is full scale.
func RMSBytes(b []byte) float64 {
	if len(b) == 0 {
		return 0
	}
	var sum float64
	for _, v := range b {
		a := float64(v) / 255
		sum += a * a
	}
	return math.Sqrt(sum / float64(len(b)))
}
