package stock

import (
	"reflect"
	"testing"

	"onboardline/internal/domain"
)

func TestDemoInventoryCheck(t *testing.T) {
	inv := Demo()
	tests := []struct {
		model   string
		status  domain.StockStatus
		name    string
		missing []string
	}{
		{"qwen2.5", domain.StockLow, "qwen2.5 laptop bundle", []string{"qwen2.5 laptop bundle", "usb-c dock"}},
		{"Standard Laptop", domain.StockOK, "standard laptop", []string{"usb-c dock"}},
		{"usb-c dock", domain.StockOutOfStock, "usb-c dock", []string{"usb-c dock"}},
		{"monitor", domain.StockLow, "monitor-27", []string{"monitor-27", "usb-c dock"}},
		{"Quantum Laptop", domain.StockUnknown, "Quantum Laptop", []string{"Quantum Laptop"}},
		{"", domain.StockUnknown, "", []string{""}},
	}
	for _, tt := range tests {
		got := inv.Check(tt.model)
		if got.StockStatus != tt.status || got.Model != tt.name || !reflect.DeepEqual(got.MissingItems, tt.missing) {
			t.Errorf("Check(%q) = %+v", tt.model, got)
		}
	}
}

func TestCheckIsDeterministic(t *testing.T) {
	inv := Demo()
	if !reflect.DeepEqual(inv.Check("qwen2.5"), inv.Check("qwen2.5")) {
		t.Fatalf("repeated checks differ")
	}
}
