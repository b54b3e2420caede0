//go:build !race

package moderation

// raceDetectorEnabled is true when the binary was built with -race, which
// relaxes the latency assertion in TestPerformance (the race detector adds
// substantial per-access overhead).
const raceDetectorEnabled = false
