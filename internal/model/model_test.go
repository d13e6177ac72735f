package model

import (
	"errors"
	"regexp"
	"testing"
)

// crockfordBase32 matches valid ULID strings (26 chars, Crockford Base32 alphabet).
var crockfordBase32 = regexp.MustCompile(`^[0123456789ABCDEFGHJKMNPQRSTVWXYZ]{26}$`)

func TestNewIDFormat(t *testing.T) {
	id := NewID()
	if !crockfordBase32.MatchString(id) {
		t.Errorf("NewID() = %q, does not match Crockford Base32 ULID format", id)
	}
}

func TestNewIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if seen[id] {
			t.Fatalf("NewID() produced duplicate: %s", id)
		}
		seen[id] = true
	}
}

func TestValidTransition(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{StatusCreated, StatusAdmitted, true},
		{StatusCreated, StatusSkipped, true},
		{StatusCreated, StatusDone, false},
		{StatusAdmitted, StatusInitialized, true},
		{StatusAdmitted, StatusFailed, true},
		{StatusInitialized, StatusSimulated, true},
		{StatusInitialized, StatusFailed, true},
		{StatusSimulated, StatusPersisted, true},
		{StatusPersisted, StatusDone, true},
		{StatusPersisted, StatusFailed, false},
		{StatusDone, StatusCreated, false},
		{StatusFailed, StatusAdmitted, false},
		{StatusSkipped, StatusAdmitted, false},
	}
	for _, c := range cases {
		if got := ValidTransition(c.from, c.to); got != c.want {
			t.Errorf("ValidTransition(%q, %q) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestLeakSpecValidate(t *testing.T) {
	peak := 10
	cases := []struct {
		name string
		spec LeakSpec
		want error
	}{
		{"abrupt node", LeakSpec{Type: LeakAbrupt, NodeID: "J1", Diameter: 0.05, End: 10}, nil},
		{"incipient pipe", LeakSpec{Type: LeakIncipient, PipeID: "P1", Diameter: 0.05, Peak: &peak, End: 20}, nil},
		{"incipient without peak", LeakSpec{Type: LeakIncipient, NodeID: "J1"}, ErrLeakNoPeak},
		{"missing target", LeakSpec{Type: LeakAbrupt}, ErrLeakTarget},
		{"both targets", LeakSpec{Type: LeakAbrupt, NodeID: "J1", PipeID: "P1"}, ErrLeakTargets},
		{"bad type", LeakSpec{Type: "gradual", NodeID: "J1"}, ErrLeakType},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.spec.Validate()
			if c.want == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, c.want) {
				t.Fatalf("Validate() = %v, want %v", err, c.want)
			}
		})
	}
}

func TestParsePrecision(t *testing.T) {
	cases := []struct {
		in   string
		want Precision
		ok   bool
	}{
		{"16", PrecisionFloat16, true},
		{"32", PrecisionFloat32, true},
		{"64", PrecisionFloat64, true},
		{"csv", PrecisionCSV, true},
		{"8", PrecisionFloat16, false},
		{"double", PrecisionFloat16, false},
	}
	for _, c := range cases {
		got, ok := ParsePrecision(c.in)
		if got != c.want || ok != c.ok {
			t.Errorf("ParsePrecision(%q) = (%v, %v), want (%v, %v)", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestSensorMaskSet(t *testing.T) {
	m := NewSensorMask()
	m.Set(SensorPressure)["J1"] = true
	m.Set(SensorPressure)["J1"] = true
	if len(m.Pressure) != 1 {
		t.Errorf("duplicate insert should collapse, got %d entries", len(m.Pressure))
	}
	if m.Set("temperature") != nil {
		t.Error("unknown sensor type should return nil set")
	}
}
