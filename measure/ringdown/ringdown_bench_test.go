package ringdown

import (
	"context"
	"fmt"
	"testing"
)

func BenchmarkRun(b *testing.B) {
	ts := pulseSeries(b, 1000, ringdownTrain(), 0.01)

	for _, workers := range []int{1, 4} {
		r, err := NewRunner(ringdownConfig(), WithWorkers(workers))
		if err != nil {
			b.Fatal(err)
		}
		b.Run(fmt.Sprintf("workers=%d", workers), func(b *testing.B) {
			b.ReportAllocs()
			for b.Loop() {
				if _, err := r.Run(context.Background(), ts); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkFitWindow(b *testing.B) {
	ts := pulseSeries(b, 1000, ringdownTrain(), 0.01)
	groups, err := GroupPeaks(ts, ringdownConfig().Group)
	if err != nil {
		b.Fatal(err)
	}
	aligned, err := AlignGroups(groups)
	if err != nil {
		b.Fatal(err)
	}
	iso, err := IsolatePeaks(aligned, ringdownConfig().Isolate)
	if err != nil {
		b.Fatal(err)
	}
	w := iso.Windows[0][0]

	b.ResetTimer()

	for b.Loop() {
		if res := FitWindow(context.Background(), w, FitConfig{A: 1}); res.Err != nil {
			b.Fatal(res.Err)
		}
	}
}
