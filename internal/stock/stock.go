package stock

import (
	"strings"

	"onboardline/internal/domain"
)

type Level struct {
	Available int `json:"available" yaml:"available"`
	Threshold int `json:"threshold" yaml:"threshold"`
}

type Item struct {
	Name string
	Level
}

// Inventory is an ordered stock table. Lookups take the first item whose name
// contains the requested model.
type Inventory struct {
	Items []Item
	// Related items are reported whenever they are out of stock.
	Related []string
}

// Demo returns the built-in inventory.
func Demo() Inventory {
	return Inventory{
		Items: []Item{
			{Name: "qwen2.5 laptop bundle", Level: Level{Available: 2, Threshold: 3}},
			{Name: "standard laptop", Level: Level{Available: 10, Threshold: 3}},
			{Name: "usb-c dock", Level: Level{Available: 0, Threshold: 2}},
			{Name: "monitor-27", Level: Level{Available: 1, Threshold: 2}},
		},
		Related: []string{"usb-c dock", "monitor-27"},
	}
}

func (inv Inventory) find(name string) (Item, bool) {
	for _, it := range inv.Items {
		if it.Name == name {
			return it, true
		}
	}
	return Item{}, false
}

// Check classifies the requested model. Unknown models report themselves as
// missing so that IT gets notified.
func (inv Inventory) Check(model string) domain.StockCheck {
	key := strings.ToLower(strings.TrimSpace(model))
	var match *Item
	if key != "" {
		for i := range inv.Items {
			if strings.Contains(strings.ToLower(inv.Items[i].Name), key) {
				match = &inv.Items[i]
				break
			}
		}
	}
	if match == nil {
		return domain.StockCheck{Model: model, StockStatus: domain.StockUnknown, MissingItems: []string{model}}
	}

	res := domain.StockCheck{Model: match.Name, StockStatus: domain.StockOK, MissingItems: []string{}}
	switch {
	case match.Available <= 0:
		res.StockStatus = domain.StockOutOfStock
		res.MissingItems = append(res.MissingItems, match.Name)
	case match.Available < match.Threshold:
		res.StockStatus = domain.StockLow
		res.MissingItems = append(res.MissingItems, match.Name)
	}
	for _, name := range inv.Related {
		if name == match.Name {
			continue
		}
		if it, ok := inv.find(name); ok && it.Available <= 0 {
			res.MissingItems = append(res.MissingItems, name)
		}
	}
	return res
}
