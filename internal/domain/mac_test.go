package domain

import "testing"

func TestNormalizeMAC(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"AA:BB:CC:DD:EE:FF", "aa:bb:cc:dd:ee:ff", false},
		{"aa-bb-cc-dd-ee-01", "aa:bb:cc:dd:ee:01", false},
		{"a:b:c:d:e:f", "0a:0b:0c:0d:0e:0f", false},
		{"  de:ad:be:ef:00:01 ", "de:ad:be:ef:00:01", false},
		{"00:00:00:00:00:00", "", true},
		{"ff:ff:ff:ff:ff:ff", "", true},
		{"aa:bb:cc:dd:ee", "", true},
		{"aa:bb:cc:dd:ee:ff:00:11", "", true},
		{"aa:bb:cc:dd:ee:zz", "", true},
		{"aabb.ccdd.eeff", "", true},
		{"aa::bb:cc:dd:ee:ff", "", true},
		{"<incomplete>", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := NormalizeMAC(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("NormalizeMAC(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}
