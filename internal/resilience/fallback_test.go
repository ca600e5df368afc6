package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestFallbackGroup_PreferredStrategyWins(t *testing.T) {
	g := NewFallbackGroup("ws", "ws", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{TripAfter: 3},
	})
	g.Add("http", "http")

	var used string
	err := g.Execute(func(v string) error {
		used = v
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if used != "ws" {
		t.Fatalf("used = %q, want ws", used)
	}
}

func TestFallbackGroup_FailoverInOrder(t *testing.T) {
	g := NewFallbackGroup("ws", "ws", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{TripAfter: 3},
	})
	g.Add("http-post", "http-post")
	g.Add("http-get", "http-get")

	var tried []string
	err := g.Execute(func(v string) error {
		tried = append(tried, v)
		if v == "http-get" {
			return nil
		}
		return errBackend
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := []string{"ws", "http-post", "http-get"}
	if len(tried) != len(want) {
		t.Fatalf("tried = %v, want %v", tried, want)
	}
	for i := range want {
		if tried[i] != want[i] {
			t.Fatalf("tried = %v, want %v", tried, want)
		}
	}
}

func TestFallbackGroup_AllFail(t *testing.T) {
	g := NewFallbackGroup("ws", "ws", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{TripAfter: 3},
	})
	g.Add("http", "http")

	err := g.Execute(func(string) error { return errBackend })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("Execute = %v, want ErrAllFailed", err)
	}
}

func TestFallbackGroup_OpenBreakerSkipsEntry(t *testing.T) {
	g := NewFallbackGroup("ws", "ws", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{
			TripAfter: 2,
			Cooldown:  time.Hour,
		},
	})
	g.Add("http", "http")

	// Trip the preferred entry's breaker.
	for range 2 {
		_ = g.Execute(func(v string) error {
			if v == "ws" {
				return errBackend
			}
			return nil
		})
	}

	var used string
	err := g.Execute(func(v string) error {
		used = v
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if used != "http" {
		t.Fatalf("used = %q, want http (ws breaker should be open)", used)
	}
}

func TestExecuteWithResult_PreferredResult(t *testing.T) {
	g := NewFallbackGroup(1, "first", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{TripAfter: 3},
	})
	g.Add("second", 2)

	got, err := ExecuteWithResult(g, func(v int) (string, error) {
		if v == 1 {
			return "from-first", nil
		}
		return "from-second", nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}
	if got != "from-first" {
		t.Fatalf("result = %q, want from-first", got)
	}
}

func TestExecuteWithResult_Failover(t *testing.T) {
	g := NewFallbackGroup(1, "first", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{TripAfter: 3},
	})
	g.Add("second", 2)

	got, err := ExecuteWithResult(g, func(v int) (string, error) {
		if v == 1 {
			return "", errBackend
		}
		return "from-second", nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}
	if got != "from-second" {
		t.Fatalf("result = %q, want from-second", got)
	}
}

func TestExecuteWithResult_AllFail(t *testing.T) {
	g := NewFallbackGroup(1, "only", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{TripAfter: 3},
	})

	_, err := ExecuteWithResult(g, func(int) (string, error) {
		return "", errBackend
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("ExecuteWithResult = %v, want ErrAllFailed", err)
	}
}
