package resilience

import (
	"errors"
	"testing"
	"time"
)

func newGroup(cfg CircuitBreakerConfig, names ...string) *FallbackGroup[string] {
	fg := NewFallbackGroup[string](cfg)
	for _, n := range names {
		fg.Add(n, n)
	}
	return fg
}

func TestFallbackGroup_Order(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		failing map[string]bool
		want    string
		wantErr bool
	}{
		{name: "primary succeeds", want: "s3"},
		{name: "fallback used", failing: map[string]bool{"s3": true}, want: "local"},
		{name: "all fail", failing: map[string]bool{"s3": true, "local": true}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fg := newGroup(CircuitBreakerConfig{MaxFailures: 3}, "s3", "local")

			var tried []string
			got, err := ExecuteWithResult(fg, func(v string) (string, error) {
				tried = append(tried, v)
				if tc.failing[v] {
					return "", errTest
				}
				return v, nil
			})
			if tc.wantErr {
				if !errors.Is(err, ErrAllFailed) || !errors.Is(err, errTest) {
					t.Fatalf("err = %v, want ErrAllFailed joined with errTest", err)
				}
				if len(tried) != 2 {
					t.Errorf("tried %v, want both backends", tried)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("result = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestFallbackGroup_SkipsOpenBreaker(t *testing.T) {
	t.Parallel()
	fg := newGroup(CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour}, "s3", "local")

	_ = fg.Execute(func(v string) error {
		if v == "s3" {
			return errTest
		}
		return nil
	})

	var tried []string
	if err := fg.Execute(func(v string) error {
		tried = append(tried, v)
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tried) != 1 || tried[0] != "local" {
		t.Errorf("tried %v, want only local while s3 is open", tried)
	}
}

func TestFallbackGroup_NeutralErrorsKeepBreakerClosed(t *testing.T) {
	t.Parallel()
	fg := newGroup(CircuitBreakerConfig{
		MaxFailures: 1,
		Neutral:     func(err error) bool { return errors.Is(err, errMissing) },
	}, "s3", "local")

	for range 3 {
		err := fg.Execute(func(string) error { return errMissing })
		if !errors.Is(err, errMissing) {
			t.Fatalf("err = %v, want errMissing", err)
		}
	}
	for _, e := range fg.entries {
		if e.breaker.State() != StateClosed {
			t.Errorf("%s breaker = %v, want closed", e.name, e.breaker.State())
		}
	}
}

func TestFallbackGroup_Empty(t *testing.T) {
	t.Parallel()
	fg := NewFallbackGroup[string](CircuitBreakerConfig{})
	if fg.Len() != 0 {
		t.Fatalf("Len = %d, want 0", fg.Len())
	}
	if err := fg.Execute(func(string) error { return nil }); !errors.Is(err, ErrAllFailed) {
		t.Errorf("err = %v, want ErrAllFailed", err)
	}
}
