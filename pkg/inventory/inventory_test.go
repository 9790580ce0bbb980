package inventory

import (
	"context"
	"database/sql"
	"testing"

	"github.com/motorlane/feedbridge/pkg/mapping"

	_ "modernc.org/sqlite"
)

// newTestStore — in-memory sqlite хранилище с созданной схемой.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	dialect, err := NewDialect("sqlite")
	if err != nil {
		t.Fatalf("NewDialect() error = %v", err)
	}

	store := NewStore(db, dialect)
	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	return store
}

func countRows(t *testing.T, store *Store) int {
	t.Helper()
	var n int
	if err := store.DB().QueryRow("SELECT COUNT(1) FROM " + TableName).Scan(&n); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return n
}

func TestApply_InsertThenUpdate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	record := map[string]any{
		"vin": "1HGBH41JXMN109186", "make": "Honda", "model": "Civic",
		"year": int64(2021), "price": 25000.0,
	}

	outcome, err := store.Apply(ctx, "dealer-1", record, DupUpsert)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if outcome != OutcomeInserted {
		t.Errorf("first Apply() = %s, want inserted", outcome)
	}

	record["price"] = 23500.0
	outcome, err = store.Apply(ctx, "dealer-1", record, DupUpsert)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if outcome != OutcomeUpdated {
		t.Errorf("second Apply() = %s, want updated", outcome)
	}

	if n := countRows(t, store); n != 1 {
		t.Errorf("row count = %d, want 1", n)
	}

	var price float64
	if err := store.DB().QueryRow("SELECT price FROM " + TableName).Scan(&price); err != nil {
		t.Fatalf("read price: %v", err)
	}
	if price != 23500.0 {
		t.Errorf("price = %v, want 23500", price)
	}
}

func TestApply_SkipPolicy(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	record := map[string]any{"vin": "ABC123", "make": "Ford"}

	if outcome, err := store.Apply(ctx, "d1", record, DupSkip); err != nil || outcome != OutcomeInserted {
		t.Fatalf("first Apply() = %v, %v; want inserted, nil", outcome, err)
	}

	record["make"] = "Chevrolet"
	outcome, err := store.Apply(ctx, "d1", record, DupSkip)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if outcome != OutcomeSkipped {
		t.Errorf("second Apply() = %s, want skipped", outcome)
	}

	var make string
	if err := store.DB().QueryRow("SELECT make FROM " + TableName).Scan(&make); err != nil {
		t.Fatalf("read make: %v", err)
	}
	if make != "Ford" {
		t.Errorf("make = %q, skip policy must not modify the existing row", make)
	}
}

func TestApply_UpdatePolicyMergesOnlyPresentFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	full := map[string]any{"vin": "XYZ", "make": "Honda", "model": "Civic", "color": "Blue"}
	if _, err := store.Apply(ctx, "d1", full, DupUpsert); err != nil {
		t.Fatalf("seed Apply() error = %v", err)
	}

	partial := map[string]any{"vin": "XYZ", "color": "Red"}
	outcome, err := store.Apply(ctx, "d1", partial, DupUpdate)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if outcome != OutcomeUpdated {
		t.Errorf("Apply() = %s, want updated", outcome)
	}

	var make, color string
	if err := store.DB().QueryRow("SELECT make, color FROM " + TableName).Scan(&make, &color); err != nil {
		t.Fatalf("read row: %v", err)
	}
	if make != "Honda" {
		t.Errorf("make = %q, update policy must not null out absent fields", make)
	}
	if color != "Red" {
		t.Errorf("color = %q, want Red", color)
	}
}

func TestApply_ReimportIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rows := []map[string]any{
		{"vin": "VIN1", "make": "Honda"},
		{"vin": "VIN2", "make": "Ford"},
		{"vin": "VIN3", "make": "Toyota"},
	}

	var inserted, updated int
	for _, r := range rows {
		if outcome, err := store.Apply(ctx, "d1", r, DupUpdate); err != nil {
			t.Fatalf("Apply() error = %v", err)
		} else if outcome == OutcomeInserted {
			inserted++
		}
	}
	if inserted != 3 {
		t.Fatalf("first pass inserted = %d, want 3", inserted)
	}

	inserted = 0
	for _, r := range rows {
		outcome, err := store.Apply(ctx, "d1", r, DupUpdate)
		if err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
		switch outcome {
		case OutcomeInserted:
			inserted++
		case OutcomeUpdated:
			updated++
		}
	}
	if inserted != 0 || updated != 3 {
		t.Errorf("second pass inserted = %d, updated = %d; want 0, 3", inserted, updated)
	}
	if n := countRows(t, store); n != 3 {
		t.Errorf("row count = %d, want 3", n)
	}
}

func TestApply_DealerScoping(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	record := map[string]any{"vin": "SAME-VIN", "make": "Honda"}
	if _, err := store.Apply(ctx, "dealer-a", record, DupUpsert); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	outcome, err := store.Apply(ctx, "dealer-b", record, DupUpsert)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if outcome != OutcomeInserted {
		t.Errorf("same vin for another dealer = %s, want inserted", outcome)
	}
	if n := countRows(t, store); n != 2 {
		t.Errorf("row count = %d, want 2 (key is vin+dealer)", n)
	}
}

func TestApply_NoVIN(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Apply(context.Background(), "d1", map[string]any{"make": "Honda"}, DupUpsert); err == nil {
		t.Error("Apply() expected error for record without vin")
	}
}

func TestApply_CamelCaseTargetNames(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	record := map[string]any{"vin": "CAMEL1", "stockNumber": "S-42", "newUsed": "used"}
	if _, err := store.Apply(ctx, "d1", record, DupUpsert); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	var stock, newUsed string
	err := store.DB().QueryRow("SELECT stock_number, new_used FROM " + TableName).Scan(&stock, &newUsed)
	if err != nil {
		t.Fatalf("read row: %v", err)
	}
	if stock != "S-42" || newUsed != "used" {
		t.Errorf("stock_number = %q, new_used = %q", stock, newUsed)
	}
}

// --- Export / фильтры ---

func seedExportRows(t *testing.T, store *Store) {
	t.Helper()
	ctx := context.Background()
	rows := []map[string]any{
		{"vin": "V1", "make": "Honda", "model": "Civic", "price": 20000.0, "year": int64(2020)},
		{"vin": "V2", "make": "Honda", "model": "Accord", "price": 30000.0, "year": int64(2022)},
		{"vin": "V3", "make": "Ford", "model": "F-150", "price": 45000.0, "year": int64(2023)},
	}
	for _, r := range rows {
		if _, err := store.Apply(ctx, "d1", r, DupUpsert); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	// Чужой дилер не должен попадать в выборку
	if _, err := store.Apply(ctx, "d2", map[string]any{"vin": "V9", "make": "Honda"}, DupUpsert); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func exportMappings() []mapping.FieldMapping {
	return []mapping.FieldMapping{
		{SourceField: "vin", TargetField: "VIN", Order: 1},
		{SourceField: "make", TargetField: "Make", Order: 2},
		{SourceField: "price", TargetField: "Price", Order: 3},
	}
}

func TestExport_DealerScoped(t *testing.T) {
	store := newTestStore(t)
	seedExportRows(t, store)

	records, err := store.Export(context.Background(), "d1", exportMappings(), nil)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Export() returned %d records, want 3", len(records))
	}
	for _, r := range records {
		if r["VIN"] == "V9" {
			t.Error("Export() leaked another dealer's row")
		}
	}
}

func TestExport_Filters(t *testing.T) {
	store := newTestStore(t)
	seedExportRows(t, store)
	ctx := context.Background()

	tests := []struct {
		name    string
		filters []Filter
		want    int
	}{
		{"equals", []Filter{{Field: "make", Operator: OpEquals, Value: "Honda"}}, 2},
		{"not_equals", []Filter{{Field: "make", Operator: OpNotEquals, Value: "Honda"}}, 1},
		{"contains", []Filter{{Field: "model", Operator: OpContains, Value: "cc"}}, 1},
		{"greater_than", []Filter{{Field: "price", Operator: OpGreaterThan, Value: "25000"}}, 2},
		{"less_than", []Filter{{Field: "price", Operator: OpLessThan, Value: "25000"}}, 1},
		{"between", []Filter{{Field: "year", Operator: OpBetween, Value: "2021", Value2: "2023"}}, 2},
		{"combined", []Filter{
			{Field: "make", Operator: OpEquals, Value: "Honda"},
			{Field: "price", Operator: OpGreaterThan, Value: "25000"},
		}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := store.Export(ctx, "d1", exportMappings(), tt.filters)
			if err != nil {
				t.Fatalf("Export() error = %v", err)
			}
			if len(records) != tt.want {
				t.Errorf("Export() returned %d records, want %d", len(records), tt.want)
			}
		})
	}
}

func TestExport_RejectsUnknownColumn(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Export(context.Background(), "d1", exportMappings(),
		[]Filter{{Field: "price; DROP TABLE x", Operator: OpEquals, Value: "1"}})
	if err == nil {
		t.Error("Export() expected error for non-column filter field")
	}

	badMappings := []mapping.FieldMapping{{SourceField: "nonexistent", TargetField: "X", Order: 1}}
	if _, err := store.Export(context.Background(), "d1", badMappings, nil); err == nil {
		t.Error("Export() expected error for non-column source field")
	}
}

func TestFilter_Validate(t *testing.T) {
	tests := []struct {
		name    string
		f       Filter
		wantErr bool
	}{
		{"equals ok", Filter{Field: "make", Operator: OpEquals, Value: "Honda"}, false},
		{"between ok", Filter{Field: "year", Operator: OpBetween, Value: "2020", Value2: "2022"}, false},
		{"between missing value2", Filter{Field: "year", Operator: OpBetween, Value: "2020"}, true},
		{"bad operator", Filter{Field: "make", Operator: "like"}, true},
		{"bad field", Filter{Field: "no_such_col", Operator: OpEquals}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.f.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
