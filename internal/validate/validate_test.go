package validate

import "testing"

func TestStationCode(t *testing.T) {
	cases := []struct {
		code string
		ok   bool
	}{
		{"EST-001", true},
		{"EST-1234", true},
		{"EST-12", false},
		{"EST-12345", false},
		{"est-001", false},
		{"EST001", false},
		{"", false},
	}

	for _, tc := range cases {
		err := StationCode(tc.code)
		if tc.ok && err != nil {
			t.Errorf("StationCode(%q) = %v, want nil", tc.code, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("StationCode(%q) = nil, want error", tc.code)
		}
	}
}

func TestInvoiceNumber(t *testing.T) {
	cases := []struct {
		number string
		ok     bool
	}{
		{"INV-100", true},
		{"inv-100", true},
		{"INV-ABC123", true},
		{"INV-1", false},
		{"INV-", false},
		{"100", false},
		{"INV-0123456789ABC", false},
	}

	for _, tc := range cases {
		err := InvoiceNumber(tc.number)
		if tc.ok && err != nil {
			t.Errorf("InvoiceNumber(%q) = %v, want nil", tc.number, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("InvoiceNumber(%q) = nil, want error", tc.number)
		}
	}
}
