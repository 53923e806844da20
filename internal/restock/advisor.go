package restock

import (
	"sort"
	"strings"

	"civlily/backend/internal/domain"
)

// Suggestion flags a ledger entry that has fallen below its restock
// threshold. When another branch holds a surplus of the same product the
// suggestion names it as a transfer donor.
type Suggestion struct {
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	BranchID       string `json:"branch_id"`
	Quantity       int    `json:"quantity"`
	Threshold      int    `json:"threshold"`
	RecommendedQty int    `json:"recommended_qty"`
	DonorBranchID  string `json:"donor_branch_id,omitempty"`
	DonorQuantity  int    `json:"donor_quantity,omitempty"`
}

type Advisor struct {
	defaultThreshold int
}

func NewAdvisor(defaultThreshold int) *Advisor {
	if defaultThreshold < 1 {
		defaultThreshold = 10
	}
	return &Advisor{defaultThreshold: defaultThreshold}
}

// Suggest scans the full ledger and reports which products at branchID sit
// below their threshold. Products with no entry count as zero.
func (a *Advisor) Suggest(branchID string, products map[string]domain.Product, stocks []domain.StockEntry) []Suggestion {
	byProduct := make(map[string]map[string]int, len(products))
	for _, entry := range stocks {
		branchQty := byProduct[entry.ProductID]
		if branchQty == nil {
			branchQty = make(map[string]int, 4)
			byProduct[entry.ProductID] = branchQty
		}
		branchQty[entry.BranchID] = entry.Quantity
	}

	suggestions := make([]Suggestion, 0, 16)
	for productID, product := range products {
		if !product.Active {
			continue
		}
		threshold := a.thresholdFor(product)
		current := byProduct[productID][branchID]
		if current >= threshold {
			continue
		}

		donorID := ""
		donorQty := 0
		for otherBranch, qty := range byProduct[productID] {
			if otherBranch == branchID {
				continue
			}
			// A donor must itself stay above the threshold after helping.
			if qty > donorQty && qty > threshold {
				donorID = otherBranch
				donorQty = qty
			}
		}

		suggestions = append(suggestions, Suggestion{
			ProductID:      productID,
			ProductName:    product.Name,
			BranchID:       branchID,
			Quantity:       current,
			Threshold:      threshold,
			RecommendedQty: threshold*2 - current,
			DonorBranchID:  donorID,
			DonorQuantity:  donorQty,
		})
	}

	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Quantity == suggestions[j].Quantity {
			return suggestions[i].ProductName < suggestions[j].ProductName
		}
		return suggestions[i].Quantity < suggestions[j].Quantity
	})
	return suggestions
}

// thresholdFor raises the floor for fast-moving categories.
func (a *Advisor) thresholdFor(product domain.Product) int {
	threshold := a.defaultThreshold
	switch strings.ToLower(product.Category) {
	case "grocery", "beverage":
		threshold += 5
	case "snack", "dairy":
		threshold += 3
	}
	return threshold
}
