package measure

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/float16"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/HammerLabML/atmn/internal/model"
)

// valueType maps a precision selector to the Arrow value type.
func valueType(p model.Precision) (arrow.DataType, error) {
	switch p {
	case model.PrecisionFloat16:
		return arrow.FixedWidthTypes.Float16, nil
	case model.PrecisionFloat32:
		return arrow.PrimitiveTypes.Float32, nil
	case model.PrecisionFloat64:
		return arrow.PrimitiveTypes.Float64, nil
	default:
		return nil, fmt.Errorf("no arrow type for precision %q", p)
	}
}

// WriteArrow writes the table as a single-record Arrow IPC file with the
// value columns stored at the given precision.
func WriteArrow(path string, t *Table, p model.Precision) error {
	dt, err := valueType(p)
	if err != nil {
		return err
	}

	fields := make([]arrow.Field, 0, len(t.Columns)+1)
	fields = append(fields, arrow.Field{Name: "time", Type: arrow.PrimitiveTypes.Int64})
	for _, c := range t.Columns {
		fields = append(fields, arrow.Field{Name: c, Type: dt})
	}
	schema := arrow.NewSchema(fields, nil)

	mem := memory.NewGoAllocator()
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	b.Field(0).(*array.Int64Builder).AppendValues(t.Times, nil)
	for c := range t.Columns {
		switch builder := b.Field(c + 1).(type) {
		case *array.Float16Builder:
			for _, v := range t.Values[c] {
				builder.Append(float16.New(float32(v)))
			}
		case *array.Float32Builder:
			for _, v := range t.Values[c] {
				builder.Append(float32(v))
			}
		case *array.Float64Builder:
			builder.AppendValues(t.Values[c], nil)
		default:
			return fmt.Errorf("unexpected builder type %T", builder)
		}
	}

	rec := b.NewRecord()
	defer rec.Release()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w, err := ipc.NewFileWriter(f, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err != nil {
		return fmt.Errorf("ipc writer: %w", err)
	}
	if err := w.Write(rec); err != nil {
		w.Close()
		return fmt.Errorf("write record: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close ipc writer: %w", err)
	}
	return f.Close()
}

// ReadArrow reads a table from an Arrow IPC file, widening values back to
// float64.
func ReadArrow(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r, err := ipc.NewFileReader(f, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, fmt.Errorf("ipc reader %s: %w", path, err)
	}
	defer r.Close()

	schema := r.Schema()
	if schema.NumFields() == 0 || schema.Field(0).Name != "time" {
		return nil, fmt.Errorf("%s: missing time column", path)
	}
	columns := make([]string, schema.NumFields()-1)
	for i := range columns {
		columns[i] = schema.Field(i + 1).Name
	}

	t := &Table{Columns: columns, Values: make([][]float64, len(columns))}
	for i := 0; i < r.NumRecords(); i++ {
		rec, err := r.Record(i)
		if err != nil {
			return nil, fmt.Errorf("%s: record %d: %w", path, i, err)
		}
		times, ok := rec.Column(0).(*array.Int64)
		if !ok {
			return nil, fmt.Errorf("%s: time column is %T", path, rec.Column(0))
		}
		t.Times = append(t.Times, times.Int64Values()...)
		for c := range columns {
			vals, err := float64Values(rec.Column(c + 1))
			if err != nil {
				return nil, fmt.Errorf("%s: column %q: %w", path, columns[c], err)
			}
			t.Values[c] = append(t.Values[c], vals...)
		}
	}
	return t, nil
}

func float64Values(col arrow.Array) ([]float64, error) {
	switch arr := col.(type) {
	case *array.Float16:
		out := make([]float64, arr.Len())
		for i := range out {
			out[i] = float64(arr.Value(i).Float32())
		}
		return out, nil
	case *array.Float32:
		out := make([]float64, arr.Len())
		for i := range out {
			out[i] = float64(arr.Value(i))
		}
		return out, nil
	case *array.Float64:
		out := make([]float64, arr.Len())
		copy(out, arr.Float64Values())
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", col)
	}
}

// Write persists the table under dir as name.csv (precision csv) or
// name.arrow (floating-point precisions).
func Write(dir, name string, t *Table, p model.Precision) error {
	if p == model.PrecisionCSV {
		return WriteCSV(filepath.Join(dir, name+".csv"), t)
	}
	return WriteArrow(filepath.Join(dir, name+".arrow"), t, p)
}

// Read loads a table written by Write, preferring the CSV form when both
// exist.
func Read(dir, name string) (*Table, error) {
	csvPath := filepath.Join(dir, name+".csv")
	if _, err := os.Stat(csvPath); err == nil {
		return ReadCSV(csvPath)
	}
	return ReadArrow(filepath.Join(dir, name+".arrow"))
}
