package measure_test

import (
	"math"
	"testing"

	"github.com/HammerLabML/atmn/internal/measure"
	"github.com/HammerLabML/atmn/internal/model"
)

func sampleTable() *measure.Table {
	t := measure.NewTable([]int64{0, 1800, 3600}, []string{"J1", "J2", "P1"})
	for c := range t.Columns {
		for r := range t.Times {
			t.Values[c][r] = float64(c*10 + r)
		}
	}
	return t
}

func TestSelect(t *testing.T) {
	tbl := sampleTable()
	sel := tbl.Select(map[string]bool{"J2": true, "ghost": true})
	if len(sel.Columns) != 1 || sel.Columns[0] != "J2" {
		t.Fatalf("columns = %v, want [J2]", sel.Columns)
	}
	if sel.Values[0][2] != 12 {
		t.Errorf("J2[2] = %v, want 12", sel.Values[0][2])
	}
	if sel.Rows() != 3 {
		t.Errorf("rows = %d, want 3", sel.Rows())
	}
}

func TestSelectOrdered(t *testing.T) {
	tbl := sampleTable()
	sel, err := tbl.SelectOrdered([]string{"P1", "J1"})
	if err != nil {
		t.Fatalf("SelectOrdered: %v", err)
	}
	if sel.Columns[0] != "P1" || sel.Columns[1] != "J1" {
		t.Errorf("columns = %v, want requested order", sel.Columns)
	}
	if _, err := tbl.SelectOrdered([]string{"ghost"}); err == nil {
		t.Error("missing column should error")
	}
}

func TestCSVRoundTrip(t *testing.T) {
	dir := t.TempDir()
	tbl := sampleTable()
	if err := measure.Write(dir, "pressure", tbl, model.PrecisionCSV); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := measure.Read(dir, "pressure")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	assertTablesEqual(t, got, tbl, 0)
}

func TestArrowRoundTripPrecision(t *testing.T) {
	cases := []struct {
		precision model.Precision
		tolerance float64
	}{
		{model.PrecisionFloat64, 0},
		{model.PrecisionFloat32, 1e-6},
		{model.PrecisionFloat16, 1e-2},
	}
	for _, c := range cases {
		t.Run(string(c.precision), func(t *testing.T) {
			dir := t.TempDir()
			tbl := sampleTable()
			if err := measure.Write(dir, "flow", tbl, c.precision); err != nil {
				t.Fatalf("Write: %v", err)
			}
			got, err := measure.Read(dir, "flow")
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			assertTablesEqual(t, got, tbl, c.tolerance)
		})
	}
}

func assertTablesEqual(t *testing.T, got, want *measure.Table, tolerance float64) {
	t.Helper()
	if got.Rows() != want.Rows() || len(got.Columns) != len(want.Columns) {
		t.Fatalf("shape = (%d, %d), want (%d, %d)", got.Rows(), len(got.Columns), want.Rows(), len(want.Columns))
	}
	for r := range want.Times {
		if got.Times[r] != want.Times[r] {
			t.Fatalf("time[%d] = %d, want %d", r, got.Times[r], want.Times[r])
		}
	}
	for c := range want.Columns {
		if got.Columns[c] != want.Columns[c] {
			t.Fatalf("column %d = %q, want %q", c, got.Columns[c], want.Columns[c])
		}
		for r := range want.Times {
			diff := math.Abs(got.Values[c][r] - want.Values[c][r])
			rel := diff
			if want.Values[c][r] != 0 {
				rel = diff / math.Abs(want.Values[c][r])
			}
			if rel > tolerance {
				t.Errorf("%s[%d] = %v, want %v (tolerance %v)", want.Columns[c], r, got.Values[c][r], want.Values[c][r], tolerance)
			}
		}
	}
}
