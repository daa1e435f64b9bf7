package provider_test

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/psp/internal/domain"
	"github.com/vladislavdragonenkov/psp/internal/provider"
	"github.com/vladislavdragonenkov/psp/internal/storage/memory"
)

func makeResolver(services ...domain.Service) *provider.Resolver {
	repo := memory.NewServiceRepository(services...)
	registry := provider.NewRegistry()
	registry.Register(provider.CodeBankTransfer, provider.NewBankTransfer)
	registry.Register(provider.CodeRedirect, provider.NewRedirect)
	return provider.NewResolver(repo, registry, nil)
}

func TestResolverGetProvider(t *testing.T) {
	r := makeResolver(domain.Service{
		ID: "s1", Code: "banktransfer", Type: domain.ServiceTypePayment,
		Provider: provider.CodeBankTransfer, Status: 1,
	})

	prov, err := r.GetProvider(context.Background(), "s1")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if prov.Service().Code != "banktransfer" {
		t.Fatalf("provider bound to wrong service: %s", prov.Service().Code)
	}

	if _, err := r.GetProvider(context.Background(), "missing"); !errors.Is(err, domain.ErrServiceNotFound) {
		t.Fatalf("expected ErrServiceNotFound, got %v", err)
	}
}

func TestResolverGetProviderByCode(t *testing.T) {
	r := makeResolver(domain.Service{
		ID: "s1", Code: "cardgate", Type: domain.ServiceTypePayment,
		Provider: provider.CodeRedirect, Status: 1,
	})

	prov, err := r.GetProviderByCode(context.Background(), "cardgate")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if prov.Service().ID != "s1" {
		t.Fatalf("provider bound to wrong service: %s", prov.Service().ID)
	}
}

func TestResolverGetProvider_UnknownProviderCode(t *testing.T) {
	r := makeResolver(domain.Service{
		ID: "s1", Code: "legacy", Type: domain.ServiceTypePayment,
		Provider: "discontinued", Status: 1,
	})

	if _, err := r.GetProvider(context.Background(), "s1"); !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestResolverGetProviders_PreservesSearchOrder(t *testing.T) {
	r := makeResolver(
		domain.Service{ID: "s1", Code: "cardgate", Type: domain.ServiceTypePayment, Provider: provider.CodeRedirect, Status: 1, Position: 20},
		domain.Service{ID: "s2", Code: "banktransfer", Type: domain.ServiceTypePayment, Provider: provider.CodeBankTransfer, Status: 1, Position: 10},
		domain.Service{ID: "s3", Code: "courier", Type: domain.ServiceTypeDelivery, Provider: "courier", Status: 1, Position: 5},
	)

	b := r.Builder().
		Compare(domain.OpGt, "status", 0).
		Type(domain.ServiceTypePayment).
		SortBy("position")

	resolved, err := r.GetProviders(context.Background(), b)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(resolved) != 2 {
		t.Fatalf("expected 2 providers, got %d", len(resolved))
	}
	if resolved[0].ServiceID != "s2" || resolved[1].ServiceID != "s1" {
		t.Fatalf("expected order [s2 s1], got [%s %s]", resolved[0].ServiceID, resolved[1].ServiceID)
	}
}

func TestResolverGetProviders_SkipsUnresolvable(t *testing.T) {
	r := makeResolver(
		domain.Service{ID: "s1", Code: "banktransfer", Type: domain.ServiceTypePayment, Provider: provider.CodeBankTransfer, Status: 1, Position: 10},
		domain.Service{ID: "s2", Code: "legacy", Type: domain.ServiceTypePayment, Provider: "discontinued", Status: 1, Position: 20},
	)

	resolved, err := r.GetProviders(context.Background(), r.Builder().Type(domain.ServiceTypePayment))
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(resolved) != 1 || resolved[0].ServiceID != "s1" {
		t.Fatalf("expected only s1 to resolve, got %+v", resolved)
	}
}

func TestResolverGetProviders_Deterministic(t *testing.T) {
	r := makeResolver(
		domain.Service{ID: "s1", Code: "a", Type: domain.ServiceTypePayment, Provider: provider.CodeBankTransfer, Status: 1, Position: 30},
		domain.Service{ID: "s2", Code: "b", Type: domain.ServiceTypePayment, Provider: provider.CodeBankTransfer, Status: 1, Position: 10},
		domain.Service{ID: "s3", Code: "c", Type: domain.ServiceTypePayment, Provider: provider.CodeBankTransfer, Status: 1, Position: 20},
	)

	var previous []string
	for i := 0; i < 5; i++ {
		resolved, err := r.GetProviders(context.Background(), r.Builder().Type(domain.ServiceTypePayment))
		if err != nil {
			t.Fatalf("resolve failed: %v", err)
		}
		ids := make([]string, 0, len(resolved))
		for _, res := range resolved {
			ids = append(ids, res.ServiceID)
		}
		if previous != nil {
			for j := range ids {
				if ids[j] != previous[j] {
					t.Fatalf("resolution order is not deterministic: %v vs %v", ids, previous)
				}
			}
		}
		previous = ids
	}
	if previous[0] != "s2" || previous[1] != "s3" || previous[2] != "s1" {
		t.Fatalf("expected position order [s2 s3 s1], got %v", previous)
	}
}
