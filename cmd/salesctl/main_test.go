package main

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	salesync "github.com/smartmart/salesync/components/salesync"
)

// flakyBackend fails its stats fetch a configured number of times before
// recovering, or permanently with a fixed error.
type flakyBackend struct {
	statsFailures int32
	statsErr      error
	statsCalls    int32
}

func (b *flakyBackend) FetchProducts(context.Context, string) ([]salesync.Product, error) {
	return nil, nil
}

func (b *flakyBackend) FetchCategories(context.Context) ([]salesync.Category, error) {
	return nil, nil
}

func (b *flakyBackend) FetchStats(context.Context, int, string) (salesync.RawStats, error) {
	atomic.AddInt32(&b.statsCalls, 1)
	if b.statsErr != nil {
		return salesync.RawStats{}, b.statsErr
	}
	if atomic.AddInt32(&b.statsFailures, -1) >= 0 {
		return salesync.RawStats{}, salesync.UnreachableError(errors.New("connection refused"))
	}
	price := decimal.NewFromInt(50)
	return salesync.RawStats{Sales: map[string]salesync.RawPeriod{
		"1": {Orders: 1, TotalPrice: price},
	}}, nil
}

func (b *flakyBackend) FetchYears(context.Context) ([]int, error) {
	return []int{2024}, nil
}

func (b *flakyBackend) UpdateSale(context.Context, int, map[string]any) (salesync.Sale, error) {
	return salesync.Sale{}, errors.New("not supported")
}

func TestLoadSupervisedRetriesTransientFailures(t *testing.T) {
	backend := &flakyBackend{statsFailures: 2}
	coordinator := salesync.NewCoordinator(salesync.CoordinatorOptions{Backend: backend})

	snap, err := loadSupervised(context.Background(), coordinator, salesync.Filter{Year: 2024}, 3, nil)
	if err != nil {
		t.Fatalf("expected recovery within the budget, got %v", err)
	}
	if !snap.Stats.Total.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected recovered stats, got %s", snap.Stats.Total)
	}
	if got := atomic.LoadInt32(&backend.statsCalls); got != 3 {
		t.Fatalf("expected 3 stats attempts, got %d", got)
	}
}

func TestLoadSupervisedStopsAtBudgetAndKeepsPartialSnapshot(t *testing.T) {
	backend := &flakyBackend{statsFailures: 100}
	coordinator := salesync.NewCoordinator(salesync.CoordinatorOptions{Backend: backend})

	snap, err := loadSupervised(context.Background(), coordinator, salesync.Filter{Year: 2024}, 2, nil)
	if !salesync.IsKind(err, salesync.KindNetworkUnreachable) {
		t.Fatalf("expected the last failure back, got %v", err)
	}
	if got := atomic.LoadInt32(&backend.statsCalls); got != 2 {
		t.Fatalf("budget of 2 must bound the attempts, got %d", got)
	}
	if snap.Generation == 0 {
		t.Fatalf("expected the partial snapshot for degraded rendering")
	}
	if !snap.Stats.Zeroed() {
		t.Fatalf("expected zeroed stats in the partial snapshot")
	}
}

func TestLoadSupervisedDoesNotRetryValidation(t *testing.T) {
	backend := &flakyBackend{statsErr: salesync.ValidationFailure(422, "year", "bad year")}
	coordinator := salesync.NewCoordinator(salesync.CoordinatorOptions{Backend: backend})

	_, err := loadSupervised(context.Background(), coordinator, salesync.Filter{Year: 2024}, 3, nil)
	if !salesync.IsKind(err, salesync.KindValidation) {
		t.Fatalf("expected validation failure, got %v", err)
	}
	if got := atomic.LoadInt32(&backend.statsCalls); got != 1 {
		t.Fatalf("deterministic rejections must not be retried, got %d attempts", got)
	}
}

func TestWriteSummaryHonorsEstimateToggle(t *testing.T) {
	stats := salesync.Aggregate(salesync.RawStats{
		Sales: map[string]salesync.RawPeriod{
			"1": {Orders: 1, TotalPrice: decimal.NewFromInt(100)},
		},
	}, salesync.Filter{Year: 2024})

	var plain strings.Builder
	writeSummary(&plain, stats, false)
	if strings.Contains(plain.String(), "estimated") {
		t.Fatalf("estimate row must be off by default: %s", plain.String())
	}

	var estimated strings.Builder
	writeSummary(&estimated, stats, true)
	if !strings.Contains(estimated.String(), "Profit (estimated)") {
		t.Fatalf("expected estimate row: %s", estimated.String())
	}
	if !strings.Contains(estimated.String(), "30.00") {
		t.Fatalf("expected the 30%% estimate value: %s", estimated.String())
	}
}

func TestCoerceValue(t *testing.T) {
	if v := coerceValue("5"); v != 5 {
		t.Fatalf("expected int 5, got %#v", v)
	}
	if v := coerceValue("42.5"); v != 42.5 {
		t.Fatalf("expected float 42.5, got %#v", v)
	}
	if v := coerceValue("2024-03-05"); v != "2024-03-05" {
		t.Fatalf("expected string passthrough, got %#v", v)
	}
}
