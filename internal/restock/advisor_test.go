package restock

import (
	"testing"

	"civlily/backend/internal/domain"
)

func advisorFixture() (map[string]domain.Product, []domain.StockEntry) {
	products := map[string]domain.Product{
		"p-rice": {ID: "p-rice", Name: "Rice 5kg", Category: "grocery", Active: true},
		"p-soap": {ID: "p-soap", Name: "Washing Soap", Category: "household", Active: true},
		"p-full": {ID: "p-full", Name: "Drinking Water", Category: "beverage", Active: true},
		"p-dead": {ID: "p-dead", Name: "Discontinued", Category: "snack", Active: false},
	}
	stocks := []domain.StockEntry{
		{BranchID: "b-main", ProductID: "p-rice", Quantity: 4},
		{BranchID: "b-east", ProductID: "p-rice", Quantity: 40},
		{BranchID: "b-west", ProductID: "p-rice", Quantity: 16},
		{BranchID: "b-main", ProductID: "p-soap", Quantity: 2},
		{BranchID: "b-east", ProductID: "p-soap", Quantity: 6},
		{BranchID: "b-main", ProductID: "p-full", Quantity: 50},
		{BranchID: "b-main", ProductID: "p-dead", Quantity: 0},
	}
	return products, stocks
}

func TestSuggestFlagsOnlyLowActiveProducts(t *testing.T) {
	advisor := NewAdvisor(10)
	products, stocks := advisorFixture()

	suggestions := advisor.Suggest("b-main", products, stocks)
	if len(suggestions) != 2 {
		t.Fatalf("expected 2 suggestions, got %d: %+v", len(suggestions), suggestions)
	}

	// Sorted by quantity ascending, so the soap at 2 comes first.
	if suggestions[0].ProductID != "p-soap" || suggestions[1].ProductID != "p-rice" {
		t.Fatalf("unexpected ordering %+v", suggestions)
	}
}

func TestSuggestRaisesThresholdByCategory(t *testing.T) {
	advisor := NewAdvisor(10)
	products, stocks := advisorFixture()

	suggestions := advisor.Suggest("b-main", products, stocks)
	for _, suggestion := range suggestions {
		switch suggestion.ProductID {
		case "p-rice":
			if suggestion.Threshold != 15 {
				t.Fatalf("grocery threshold should be 15, got %d", suggestion.Threshold)
			}
			if suggestion.RecommendedQty != 26 {
				t.Fatalf("expected recommended 26, got %d", suggestion.RecommendedQty)
			}
		case "p-soap":
			if suggestion.Threshold != 10 {
				t.Fatalf("default threshold should be 10, got %d", suggestion.Threshold)
			}
		}
	}
}

func TestSuggestPicksRichestDonorAboveThreshold(t *testing.T) {
	advisor := NewAdvisor(10)
	products, stocks := advisorFixture()

	suggestions := advisor.Suggest("b-main", products, stocks)
	for _, suggestion := range suggestions {
		switch suggestion.ProductID {
		case "p-rice":
			if suggestion.DonorBranchID != "b-east" || suggestion.DonorQuantity != 40 {
				t.Fatalf("expected b-east(40) as donor, got %s(%d)", suggestion.DonorBranchID, suggestion.DonorQuantity)
			}
		case "p-soap":
			// 6 at b-east is below the threshold, so no branch can donate.
			if suggestion.DonorBranchID != "" {
				t.Fatalf("expected no donor, got %s", suggestion.DonorBranchID)
			}
		}
	}
}

func TestSuggestTreatsMissingEntriesAsZero(t *testing.T) {
	advisor := NewAdvisor(10)
	products := map[string]domain.Product{
		"p-new": {ID: "p-new", Name: "New Product", Active: true},
	}

	suggestions := advisor.Suggest("b-remote", products, nil)
	if len(suggestions) != 1 {
		t.Fatalf("expected 1 suggestion, got %d", len(suggestions))
	}
	if suggestions[0].Quantity != 0 || suggestions[0].RecommendedQty != 20 {
		t.Fatalf("unexpected suggestion %+v", suggestions[0])
	}
}
