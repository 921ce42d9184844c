package proxy

import "testing"

// jitterBounds returns the allowed delay band for a nominal delay under
// the given cap.
func jitterBounds(nominal, maxDelay float64) (float64, float64) {
	jitter := jitterMax - jitterRange*(nominal-backoffBase)/(maxDelay-backoffBase)
	return nominal * (1 - jitter), nominal * (1 + jitter)
}

func TestBackoff_GrowsExponentiallyThenCaps(t *testing.T) {
	b := NewBackoff(60)

	nominals := []float64{2, 4, 8, 16, 32, 60, 60, 60}
	for i, nominal := range nominals {
		delay := b.Next()
		lo, hi := jitterBounds(nominal, 60)
		if delay < lo || delay > hi {
			t.Errorf("attempt %d: delay %.3f outside [%.3f, %.3f]", i+1, delay, lo, hi)
		}
	}

	if got := b.Attempts(); got != len(nominals) {
		t.Errorf("Attempts() = %d, want %d", got, len(nominals))
	}
}

func TestBackoff_JitterNarrowsTowardCap(t *testing.T) {
	// First attempt sits in the widest band, 25% around 2s.
	b := NewBackoff(60)
	if delay := b.Next(); delay < 1.5 || delay > 2.5 {
		t.Errorf("first delay %.3f outside [1.5, 2.5]", delay)
	}

	// Drive to the cap; capped delays use the narrowest band, 10% around 60s.
	for i := 0; i < 10; i++ {
		b.Next()
	}
	if delay := b.Next(); delay < 54 || delay > 66 {
		t.Errorf("capped delay %.3f outside [54, 66]", delay)
	}
}

func TestBackoff_CapIsSticky(t *testing.T) {
	b := NewBackoff(60)

	// Enough attempts that 2^n would overflow any sensible delay. The
	// sticky flag must keep returning the capped band instead.
	for i := 0; i < 100; i++ {
		b.Next()
	}
	delay := b.Next()
	if delay < 54 || delay > 66 {
		t.Errorf("delay after many attempts %.3f outside [54, 66]", delay)
	}
}

func TestBackoff_Reset(t *testing.T) {
	b := NewBackoff(60)
	for i := 0; i < 8; i++ {
		b.Next()
	}

	b.Reset()

	if got := b.Attempts(); got != 0 {
		t.Errorf("Attempts() after Reset = %d, want 0", got)
	}
	if delay := b.Next(); delay < 1.5 || delay > 2.5 {
		t.Errorf("delay after Reset %.3f outside [1.5, 2.5]", delay)
	}
}

func TestBackoff_CustomCap(t *testing.T) {
	b := NewBackoff(10)

	nominals := []float64{2, 4, 8, 10, 10}
	for i, nominal := range nominals {
		delay := b.Next()
		lo, hi := jitterBounds(nominal, 10)
		if delay < lo || delay > hi {
			t.Errorf("attempt %d: delay %.3f outside [%.3f, %.3f]", i+1, delay, lo, hi)
		}
	}
}

func TestBackoff_InvalidCapFallsBackToDefault(t *testing.T) {
	b := NewBackoff(0)

	// With the default 60s cap the sixth attempt is the first capped one.
	for i := 0; i < 5; i++ {
		b.Next()
	}
	delay := b.Next()
	if delay < 54 || delay > 66 {
		t.Errorf("capped delay %.3f outside [54, 66]", delay)
	}
}
