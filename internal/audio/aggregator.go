package audio

// Aggregator accumulates a session's audio chunks and decides when enough
// audio has arrived to justify a partial inference call.
//
// The threshold is chunk-count based: once ChunkThreshold chunks have arrived
// since the last drain, ShouldEmit reports true. Draining returns the entire
// sample history since session start, not a delta: the inference primitive
// carries no incremental decoder state between calls, so every partial is a
// re-transcription of everything heard so far. The cost of each partial
// therefore grows with session length; that trade-off is deliberate and
// load-tested rather than hidden.
//
// An Aggregator is not safe for concurrent use. Each session confines its
// aggregator to the single goroutine that runs its dispatch loop, which keeps
// the buffer single-writer and single-drainer without locking.
type Aggregator struct {
	samples      []float32 // full history since session start
	pendingSince int       // chunks appended since the last drain
	totalSamples int64
	threshold    int
}

// NewAggregator creates an aggregator that signals emission every
// chunkThreshold chunks.
func NewAggregator(chunkThreshold int) *Aggregator {
	if chunkThreshold <= 0 {
		chunkThreshold = 1
	}
	return &Aggregator{threshold: chunkThreshold}
}

// Append adds one chunk of samples to the buffer.
func (a *Aggregator) Append(samples []float32) {
	a.samples = append(a.samples, samples...)
	a.pendingSince++
	a.totalSamples += int64(len(samples))
}

// ShouldEmit reports whether enough chunks have accumulated since the last
// drain to justify a partial inference call. It never mutates the buffer.
func (a *Aggregator) ShouldEmit() bool {
	return a.pendingSince >= a.threshold
}

// DrainForInference returns a copy of the entire sample history and resets
// the pending-chunk counter. The history itself is retained so the next
// partial (and the final) also cover all audio received since session start.
func (a *Aggregator) DrainForInference() []float32 {
	a.pendingSince = 0
	out := make([]float32, len(a.samples))
	copy(out, a.samples)
	return out
}

// HasAudio reports whether any samples have been received at all.
func (a *Aggregator) HasAudio() bool {
	return a.totalSamples > 0
}

// TotalSamples returns the running count of samples ever received.
func (a *Aggregator) TotalSamples() int64 {
	return a.totalSamples
}

// PendingChunks returns how many chunks arrived since the last drain.
func (a *Aggregator) PendingChunks() int {
	return a.pendingSince
}
