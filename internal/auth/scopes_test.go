package auth

import "testing"

func TestValidateScopes(t *testing.T) {
	if err := ValidateScopes([]string{"bot:read", "usage:read"}); err != nil {
		t.Errorf("ValidateScopes(valid) = %v", err)
	}
	if err := ValidateScopes(nil); err != nil {
		t.Errorf("ValidateScopes(nil) = %v", err)
	}
	if err := ValidateScopes([]string{"bot:read", "admin"}); err == nil {
		t.Error("ValidateScopes accepted unknown scope admin")
	}
}

func TestAllScopesAreValid(t *testing.T) {
	valid := ValidScopes()
	if len(valid) != len(AllScopes()) {
		t.Errorf("ValidScopes has %d entries, AllScopes %d", len(valid), len(AllScopes()))
	}
}

func TestHasAllScopes(t *testing.T) {
	tests := []struct {
		name     string
		granted  []string
		required []Scope
		want     bool
	}{
		{"empty requirement", nil, nil, true},
		{"empty requirement with grants", []string{"bot:read"}, nil, true},
		{"exact single", []string{"bookings:read"}, []Scope{ScopeBookingsRead}, true},
		{"superset", []string{"bookings:read", "bookings:write", "bot:read"}, []Scope{ScopeBookingsRead, ScopeBotRead}, true},
		{"missing one", []string{"bookings:read"}, []Scope{ScopeBookingsRead, ScopeBookingsWrite}, false},
		{"write does not imply read", []string{"bookings:write"}, []Scope{ScopeBookingsRead}, false},
		{"no grants", nil, []Scope{ScopeUsageRead}, false},
		{"no wildcard", []string{"*"}, []Scope{ScopeBotRead}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasAllScopes(tt.granted, tt.required); got != tt.want {
				t.Errorf("HasAllScopes(%v, %v) = %v, want %v", tt.granted, tt.required, got, tt.want)
			}
		})
	}
}
