package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/psp/internal/domain"
	"github.com/vladislavdragonenkov/psp/internal/storage/memory"
)

func seedRepo() domain.ServiceRepository {
	return memory.NewServiceRepository(
		domain.Service{
			ID: "d1", Code: "courier", Type: domain.ServiceTypeDelivery, Name: "Courier",
			Provider: "courier", Status: 1, Position: 20,
			Prices: []domain.ServicePrice{{Currency: "EUR", AmountMinor: 495}},
			Texts:  []domain.ServiceText{{Locale: "en", Title: "Courier delivery"}},
			Media:  []domain.ServiceMedia{{Kind: "logo", URL: "https://cdn.example.com/courier.svg"}},
		},
		domain.Service{ID: "d2", Code: "pickup", Type: domain.ServiceTypeDelivery, Name: "Pickup point", Provider: "pickup", Status: 1, Position: 10},
		domain.Service{ID: "d3", Code: "drone", Type: domain.ServiceTypeDelivery, Name: "Drone", Provider: "drone", Status: 0, Position: 5},
		domain.Service{ID: "p1", Code: "ideal", Type: domain.ServiceTypePayment, Name: "iDEAL", Provider: "redirect", Status: 1, Position: 1},
	)
}

func TestSearch_ActiveDeliveryOrderedByPosition(t *testing.T) {
	repo := seedRepo()

	filter := domain.Filter{
		Conditions: []domain.Condition{
			domain.Compare{Op: domain.OpGt, Key: "status", Value: 0},
			domain.Compare{Op: domain.OpEq, Key: "type", Value: "delivery"},
		},
		Sort:  []domain.SortKey{{Key: "position"}},
		Limit: 10,
	}

	result, total, err := repo.Search(context.Background(), filter)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 matches, got %d", total)
	}
	if len(result) != 2 || result[0].Code != "pickup" || result[1].Code != "courier" {
		t.Fatalf("unexpected order: %v", result)
	}
}

func TestSearch_DefaultSortIsPositionThenCode(t *testing.T) {
	repo := memory.NewServiceRepository(
		domain.Service{ID: "a", Code: "bbb", Type: domain.ServiceTypePayment, Provider: "x", Position: 10},
		domain.Service{ID: "b", Code: "aaa", Type: domain.ServiceTypePayment, Provider: "x", Position: 10},
		domain.Service{ID: "c", Code: "zzz", Type: domain.ServiceTypePayment, Provider: "x", Position: 5},
	)

	result, _, err := repo.Search(context.Background(), domain.Filter{})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	got := []string{result[0].Code, result[1].Code, result[2].Code}
	want := []string{"zzz", "aaa", "bbb"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected default order: %v, want %v", got, want)
		}
	}
}

func TestSearch_ServicePrefixedKeys(t *testing.T) {
	repo := seedRepo()

	filter := domain.Filter{
		Conditions: []domain.Condition{
			domain.Compare{Op: domain.OpEq, Key: "service.code", Value: "ideal"},
		},
	}
	result, total, err := repo.Search(context.Background(), filter)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if total != 1 || result[0].ID != "p1" {
		t.Fatalf("prefixed key must resolve: total=%d result=%v", total, result)
	}
}

func TestSearch_SubstringAndPrefixOperators(t *testing.T) {
	repo := seedRepo()

	contains := domain.Filter{Conditions: []domain.Condition{
		domain.Compare{Op: domain.OpContains, Key: "name", Value: "POINT"},
	}}
	_, total, err := repo.Search(context.Background(), contains)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if total != 1 {
		t.Fatalf("contains must be case-insensitive, got %d matches", total)
	}

	prefix := domain.Filter{Conditions: []domain.Condition{
		domain.Compare{Op: domain.OpPrefix, Key: "code", Value: "pick"},
	}}
	_, total, err = repo.Search(context.Background(), prefix)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if total != 1 {
		t.Fatalf("prefix must match pickup, got %d matches", total)
	}
}

func TestSearch_NotCombinator(t *testing.T) {
	repo := seedRepo()

	filter := domain.Filter{Conditions: []domain.Condition{
		domain.Not(domain.Compare{Op: domain.OpEq, Key: "type", Value: "payment"}),
	}}
	_, total, err := repo.Search(context.Background(), filter)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected 3 non-payment services, got %d", total)
	}
}

func TestSearch_TotalIgnoresPageWindow(t *testing.T) {
	repo := seedRepo()

	result, total, err := repo.Search(context.Background(), domain.Filter{Offset: 3, Limit: 5})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if total != 4 {
		t.Fatalf("total must count all matches, got %d", total)
	}
	if len(result) != 1 {
		t.Fatalf("expected the last page to hold 1 record, got %d", len(result))
	}

	// Окно за пределами выборки даёт пустую страницу, не ошибку.
	result, total, err = repo.Search(context.Background(), domain.Filter{Offset: 100, Limit: 5})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if total != 4 || len(result) != 0 {
		t.Fatalf("expected empty page with total 4, got total=%d len=%d", total, len(result))
	}
}

func TestSearch_UnknownFieldAndSortKey(t *testing.T) {
	repo := seedRepo()

	badField := domain.Filter{Conditions: []domain.Condition{
		domain.Compare{Op: domain.OpEq, Key: "weight", Value: 1},
	}}
	if _, _, err := repo.Search(context.Background(), badField); err == nil {
		t.Fatal("expected error for unknown condition field")
	}

	badSort := domain.Filter{Sort: []domain.SortKey{{Key: "weight"}}}
	if _, _, err := repo.Search(context.Background(), badSort); err == nil {
		t.Fatal("expected error for unknown sort key")
	}
}

func TestSearch_RelatedDomainsStrippedUnlessRequested(t *testing.T) {
	repo := seedRepo()

	filter := domain.Filter{Conditions: []domain.Condition{
		domain.Compare{Op: domain.OpEq, Key: "code", Value: "courier"},
	}}
	result, _, err := repo.Search(context.Background(), filter)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(result[0].Prices) != 0 || len(result[0].Texts) != 0 || len(result[0].Media) != 0 {
		t.Fatalf("related domains must be stripped by default: %+v", result[0])
	}

	filter.Uses = []string{domain.RelatedPrice, domain.RelatedMedia}
	result, _, err = repo.Search(context.Background(), filter)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(result[0].Prices) != 1 || len(result[0].Media) != 1 {
		t.Fatalf("requested related domains must be present: %+v", result[0])
	}
	if len(result[0].Texts) != 0 {
		t.Fatalf("text was not requested: %+v", result[0].Texts)
	}
}

func TestFindByCodeAndGet(t *testing.T) {
	repo := seedRepo()
	ctx := context.Background()

	svc, err := repo.FindByCode(ctx, "pickup")
	if err != nil || svc.ID != "d2" {
		t.Fatalf("find failed: svc=%+v err=%v", svc, err)
	}

	svc, err = repo.Get(ctx, "p1")
	if err != nil || svc.Code != "ideal" {
		t.Fatalf("get failed: svc=%+v err=%v", svc, err)
	}

	if _, err := repo.FindByCode(ctx, "missing"); !errors.Is(err, domain.ErrServiceNotFound) {
		t.Fatalf("expected ErrServiceNotFound, got %v", err)
	}
	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, domain.ErrServiceNotFound) {
		t.Fatalf("expected ErrServiceNotFound, got %v", err)
	}
}
