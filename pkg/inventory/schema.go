package inventory

import (
	"context"
	"fmt"
)

// EnsureSchema создает целевую таблицу если ее нет.
// Поддерживается только для sqlite (локальные базы и тесты); в остальных
// диалектах таблицей владеет DBA дилера.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s.dialect.Name() != "sqlite" {
		return fmt.Errorf("schema management is only supported for sqlite, target is %s", s.dialect.Name())
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  dealer_id TEXT NOT NULL,
  vin TEXT NOT NULL,
  make TEXT,
  model TEXT,
  series TEXT,
  stock_number TEXT,
  new_used TEXT,
  body_style TEXT,
  certified INTEGER,
  color TEXT,
  interior_color TEXT,
  engine_type TEXT,
  displacement TEXT,
  features TEXT,
  odometer INTEGER,
  price REAL,
  other_price REAL,
  transmission TEXT,
  msrp REAL,
  dealer_discount REAL,
  consumer_rebate REAL,
  dealer_accessories TEXT,
  total_customer_savings REAL,
  total_dealer_rebate REAL,
  photo_url_list TEXT,
  year INTEGER,
  reference_dealer_id TEXT,
  UNIQUE (vin, dealer_id)
)`, TableName)

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create inventory table: %w", err)
	}
	return nil
}
