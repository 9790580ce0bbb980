package mapping

import (
	"testing"
	"time"
)

// --- Transform: базовый перенос ---

func TestTransform_OneToOne(t *testing.T) {
	mappings := []FieldMapping{
		{SourceField: "VIN", TargetField: "vin", FieldType: TypeString, Order: 1},
		{SourceField: "Make", TargetField: "make", FieldType: TypeString, Order: 2},
		{SourceField: "Model", TargetField: "model", FieldType: TypeString, Order: 3},
		{SourceField: "Year", TargetField: "year", FieldType: TypeInteger, Order: 4},
		{SourceField: "Price", TargetField: "price", FieldType: TypeInteger, Order: 5},
	}
	record := map[string]string{
		"VIN": "1HGBH41JXMN109186", "Make": "Honda", "Model": "Civic",
		"Year": "2021", "Price": "25000",
	}

	out, err := New(mappings).Transform(record)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}

	if out["vin"] != "1HGBH41JXMN109186" {
		t.Errorf("vin = %v", out["vin"])
	}
	if out["make"] != "Honda" || out["model"] != "Civic" {
		t.Errorf("make/model = %v/%v", out["make"], out["model"])
	}
	if out["year"] != int64(2021) {
		t.Errorf("year = %v (%T), want int64(2021)", out["year"], out["year"])
	}
	if out["price"] != int64(25000) {
		t.Errorf("price = %v (%T), want int64(25000)", out["price"], out["price"])
	}
}

func TestTransform_AbsentSourceOmitted(t *testing.T) {
	mappings := []FieldMapping{
		{SourceField: "Trim", TargetField: "series", Order: 1},
	}

	out, err := New(mappings).Transform(map[string]string{"VIN": "A"})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if _, ok := out["series"]; ok {
		t.Error("absent source without default must be omitted from output")
	}
}

func TestTransform_DefaultValueCoerced(t *testing.T) {
	mappings := []FieldMapping{
		{SourceField: "Certified", TargetField: "certified", FieldType: TypeBoolean, DefaultValue: "no", Order: 1},
	}

	out, err := New(mappings).Transform(map[string]string{})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if out["certified"] != false {
		t.Errorf("certified = %v, want false (coerced default)", out["certified"])
	}
}

// --- Эвристическое извлечение ---

func TestTransform_OdometerExtraction(t *testing.T) {
	mappings := []FieldMapping{
		{SourceField: "Mileage", TargetField: "odometer", FieldType: TypeInteger, Order: 1},
	}

	out, err := New(mappings).Transform(map[string]string{"Mileage": "Mileage: 45,231 mi"})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if out["odometer"] != int64(45231) {
		t.Errorf("odometer = %v (%T), want int64(45231)", out["odometer"], out["odometer"])
	}
}

func TestTransform_PriceRange(t *testing.T) {
	mappings := []FieldMapping{
		{SourceField: "Price", TargetField: "price", FieldType: TypeDecimal, Order: 1},
	}

	// 5 вне правдоподобного диапазона, 24999 — первое правдоподобное
	out, err := New(mappings).Transform(map[string]string{"Price": "5 units at $24,999 each"})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if out["price"] != float64(24999) {
		t.Errorf("price = %v, want 24999", out["price"])
	}
}

func TestTransform_YearWindow(t *testing.T) {
	mappings := []FieldMapping{
		{SourceField: "Desc", TargetField: "year", FieldType: TypeInteger, Order: 1},
	}

	out, err := New(mappings).Transform(map[string]string{"Desc": "stock 8841 great 2019 sedan"})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if out["year"] != int64(2019) {
		t.Errorf("year = %v, want 2019 (first 4-digit run in [1900,2030])", out["year"])
	}
}

func TestTransform_NoDigitsResolvesNull(t *testing.T) {
	mappings := []FieldMapping{
		{SourceField: "Price", TargetField: "price", FieldType: TypeDecimal, Order: 1},
	}

	out, err := New(mappings).Transform(map[string]string{"Price": "call for price"})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	value, ok := out["price"]
	if !ok {
		t.Fatal("price must be present (resolved to null, not omitted)")
	}
	if value != nil {
		t.Errorf("price = %v, want nil", value)
	}
}

// --- Автоопределение типа ---

func TestDetectType(t *testing.T) {
	tests := []struct {
		target string
		value  string
		want   FieldType
	}{
		{"msrp", "x", TypeDecimal},
		{"dealer_discount", "x", TypeDecimal},
		{"consumer_rebate", "x", TypeDecimal},
		{"year", "x", TypeInteger},
		{"odometer", "x", TypeInteger},
		{"certified", "x", TypeBoolean},
		{"created_at_date", "x", TypeDate},
		{"stock_number", "12345", TypeInteger},
		{"some_field", "123.45", TypeDecimal},
		{"some_field", "$5000", TypeDecimal},
		{"make", "Honda", TypeString},
	}
	for _, tt := range tests {
		t.Run(tt.target+"/"+tt.value, func(t *testing.T) {
			if got := detectType(tt.target, tt.value); got != tt.want {
				t.Errorf("detectType(%q, %q) = %s, want %s", tt.target, tt.value, got, tt.want)
			}
		})
	}
}

// --- Булево приведение ---

func TestCoerceBoolean(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"true", true}, {"TRUE", true}, {"1", true}, {"Yes", true},
		{"false", false}, {"0", false}, {"NO", false},
		{"maybe", nil},
		{"definitely not a bool", false}, // длиннее 10 символов
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := coerceBoolean(tt.in); got != tt.want {
				t.Errorf("coerceBoolean(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

// --- Многозначные поля ---

func TestTransform_MultiValueFeatures(t *testing.T) {
	mappings := []FieldMapping{
		{SourceField: "Features", TargetField: "features", Order: 1},
	}

	out, err := New(mappings).Transform(map[string]string{
		"Features": "Leather Seats|Sunroof|Backup Camera",
	})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}

	want := `{"Leather Seats","Sunroof","Backup Camera"}`
	if out["features"] != want {
		t.Errorf("features = %q, want %q", out["features"], want)
	}
}

func TestTransform_MultiValueCommaFallback(t *testing.T) {
	mappings := []FieldMapping{
		{SourceField: "Options", TargetField: "options", Order: 1},
	}

	out, err := New(mappings).Transform(map[string]string{"Options": "Nav, Tow Package"})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}

	want := `{"Nav","Tow Package"}`
	if out["options"] != want {
		t.Errorf("options = %q, want %q", out["options"], want)
	}
}

// --- Очистка ---

func TestCleanValue(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"<b>Honda</b>", "bHondab"},
		{"Civic   EX", "Civic EX"},
		{"$25,000.00", "$25,000.00"},
		{"  spaced  ", "spaced"},
	}
	for _, tt := range tests {
		if got := cleanValue(tt.in); got != tt.want {
			t.Errorf("cleanValue(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// --- Операции трансформации ---

func TestApplyOps(t *testing.T) {
	got, err := ApplyOps("  honda  ", []string{"trim", "uppercase"})
	if err != nil {
		t.Fatalf("ApplyOps() error = %v", err)
	}
	if got != "HONDA" {
		t.Errorf("ApplyOps() = %v, want HONDA", got)
	}
}

func TestApplyOps_Replace(t *testing.T) {
	got, err := ApplyOps("AB-123-CD", []string{`replace:[^0-9]+:`})
	if err != nil {
		t.Fatalf("ApplyOps() error = %v", err)
	}
	if got != "123" {
		t.Errorf("ApplyOps() = %v, want 123", got)
	}
}

func TestApplyOps_DateReparse(t *testing.T) {
	got, err := ApplyOps("2024-03-15", []string{"date"})
	if err != nil {
		t.Fatalf("ApplyOps() error = %v", err)
	}
	ts, ok := got.(time.Time)
	if !ok {
		t.Fatalf("ApplyOps() = %T, want time.Time", got)
	}
	if ts.Year() != 2024 || ts.Month() != time.March || ts.Day() != 15 {
		t.Errorf("ApplyOps() date = %v", ts)
	}
}

func TestApplyOps_UnknownOp(t *testing.T) {
	if _, err := ApplyOps("x", []string{"rot13"}); err == nil {
		t.Error("ApplyOps() expected error for unknown op")
	}
}

// --- Normalize: duck-typed вход ---

func TestNormalize_KeyCasing(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
	}{
		{"camelCase", map[string]any{"sourceField": "VIN", "targetField": "vin", "fieldType": "string", "order": 1}},
		{"snake_case", map[string]any{"source_field": "VIN", "target_field": "vin", "field_type": "string", "order": 1}},
		{"PascalCase", map[string]any{"SourceField": "VIN", "TargetField": "vin", "FieldType": "String", "Order": 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Normalize(tt.raw)
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if m.SourceField != "VIN" || m.TargetField != "vin" || m.FieldType != TypeString {
				t.Errorf("Normalize() = %+v", m)
			}
		})
	}
}

func TestNormalize_MissingTarget(t *testing.T) {
	if _, err := Normalize(map[string]any{"sourceField": "VIN"}); err == nil {
		t.Error("Normalize() expected error for missing targetField")
	}
}

func TestNormalize_BadOp(t *testing.T) {
	raw := map[string]any{"sourceField": "a", "targetField": "b", "transformationRule": []any{"replace:["}}
	if _, err := Normalize(raw); err == nil {
		t.Error("Normalize() expected error for invalid regex in transformationRule")
	}
}
