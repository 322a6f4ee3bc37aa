package repository

import "testing"

func TestBackoffCapsAt3600Seconds(t *testing.T) {
	cases := []struct {
		retryCount int
		wantSec    int
	}{
		{0, 1},
		{1, 2},
		{4, 16},
		{12, 3600}, // 2^12 = 4096 > 3600, caps
		{30, 3600}, // overflow guard
	}
	for _, c := range cases {
		got := backoff(c.retryCount).Seconds()
		if int(got) != c.wantSec {
			t.Errorf("backoff(%d) = %v, want %ds", c.retryCount, got, c.wantSec)
		}
	}
}
