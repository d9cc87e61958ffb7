package common

import "testing"

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"BTCUSDT", "BTCUSDT", true},
		{"btc/usdt", "BTCUSDT", true},
		{"ETH-USDT", "ETHUSDT", true},
		{"sol_usdt", "SOLUSDT", true},
		{"doge", "DOGEUSDT", true},
		{"X", "X", false},
		{"USDT", "USDT", false},
		{"TUSDT", "TUSDT", false},
		{"SDTUSDT", "SDTUSDT", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := NormalizeSymbol(tt.in)
			if got != tt.want || ok != tt.wantOK {
				t.Fatalf("NormalizeSymbol(%q)=(%q,%v), want (%q,%v)", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
