package perm

import "testing"

// TestTransition exercises the full (permission, relation, kind) table.
func TestTransition(t *testing.T) {
	tests := []struct {
		name     string
		perm     Permission
		rel      Relation
		kind     AccessKind
		wantPerm Permission
		wantOK   bool
	}{
		// Self reads preserve every live permission.
		{"self read reserved", Reserved, SelfAccess, Read, Reserved, true},
		{"self read active", Active, SelfAccess, Read, Active, true},
		{"self read frozen", Frozen, SelfAccess, Read, Frozen, true},
		{"self read disabled", Disabled, SelfAccess, Read, Disabled, false},

		// Self writes activate mutable tags and reject the rest.
		{"self write reserved", Reserved, SelfAccess, Write, Active, true},
		{"self write active", Active, SelfAccess, Write, Active, true},
		{"self write frozen", Frozen, SelfAccess, Write, Frozen, false},
		{"self write disabled", Disabled, SelfAccess, Write, Disabled, false},

		// Foreign reads observe without degrading anything.
		{"foreign read reserved", Reserved, ForeignAccess, Read, Reserved, true},
		{"foreign read active", Active, ForeignAccess, Read, Active, true},
		{"foreign read frozen", Frozen, ForeignAccess, Read, Frozen, true},
		{"foreign read disabled", Disabled, ForeignAccess, Read, Disabled, true},

		// Foreign writes demote unwritten tags and disable the rest.
		{"foreign write reserved", Reserved, ForeignAccess, Write, Frozen, true},
		{"foreign write active", Active, ForeignAccess, Write, Disabled, true},
		{"foreign write frozen", Frozen, ForeignAccess, Write, Disabled, true},
		{"foreign write disabled", Disabled, ForeignAccess, Write, Disabled, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Transition(tt.perm, tt.rel, tt.kind)
			if got != tt.wantPerm || ok != tt.wantOK {
				t.Errorf("Transition(%v, %v, %v) = (%v, %v), want (%v, %v)",
					tt.perm, tt.rel, tt.kind, got, ok, tt.wantPerm, tt.wantOK)
			}
		})
	}
}

// TestTransitionIdempotentReads checks read-read stability: a second read
// never changes state, whatever the relation.
func TestTransitionIdempotentReads(t *testing.T) {
	for _, rel := range []Relation{SelfAccess, ForeignAccess} {
		for _, p := range []Permission{Reserved, Active, Frozen} {
			first, ok := Transition(p, rel, Read)
			if !ok {
				t.Fatalf("read (%v) on %v unexpectedly rejected", rel, p)
			}
			second, ok := Transition(first, rel, Read)
			if !ok || second != first {
				t.Errorf("second read (%v) on %v changed state: %v -> %v", rel, p, first, second)
			}
		}
	}
}

// TestInherit checks that reborrow seeds are limited by the parent.
func TestInherit(t *testing.T) {
	tests := []struct {
		name   string
		seed   Permission
		parent Permission
		want   Permission
	}{
		{"reserved from active parent", Reserved, Active, Reserved},
		{"reserved from reserved parent", Reserved, Reserved, Reserved},
		{"reserved from frozen parent", Reserved, Frozen, Frozen},
		{"frozen from frozen parent", Frozen, Frozen, Frozen},
		{"frozen from active parent", Frozen, Active, Frozen},
		{"reserved from disabled parent", Reserved, Disabled, Disabled},
		{"frozen from disabled parent", Frozen, Disabled, Disabled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Inherit(tt.seed, tt.parent); got != tt.want {
				t.Errorf("Inherit(%v, %v) = %v, want %v", tt.seed, tt.parent, got, tt.want)
			}
		})
	}
}

// TestPermissionString pins the names used in UB diagnoses.
func TestPermissionString(t *testing.T) {
	tests := []struct {
		perm Permission
		want string
	}{
		{Reserved, "Reserved"},
		{Active, "Active"},
		{Frozen, "Frozen"},
		{Disabled, "Disabled"},
		{Permission(99), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.perm.String(); got != tt.want {
			t.Errorf("Permission(%d).String() = %q, want %q", tt.perm, got, tt.want)
		}
	}
}

// TestInitialRead checks which seed permissions demand an initializing read.
func TestInitialRead(t *testing.T) {
	for _, tt := range []struct {
		perm Permission
		want bool
	}{
		{Reserved, true},
		{Active, true},
		{Frozen, true},
		{Disabled, false},
	} {
		if got := tt.perm.InitialRead(); got != tt.want {
			t.Errorf("%v.InitialRead() = %v, want %v", tt.perm, got, tt.want)
		}
	}
}
