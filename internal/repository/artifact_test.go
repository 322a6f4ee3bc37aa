package repository

import (
	"testing"
	"time"
)

// fakeRow stubs pgx.Row/pgx.Rows for scanArtifactRow so the scan mapping
// can be exercised without a live database connection.
type fakeRow struct {
	values []any
}

func (f fakeRow) Scan(dest ...any) error {
	for i, d := range dest {
		switch v := d.(type) {
		case *string:
			*v = f.values[i].(string)
		case **string:
			*v = f.values[i].(*string)
		case *[]byte:
			if f.values[i] != nil {
				*v = f.values[i].([]byte)
			}
		case *int:
			*v = f.values[i].(int)
		case *int64:
			*v = f.values[i].(int64)
		case *bool:
			*v = f.values[i].(bool)
		case *time.Time:
			*v = f.values[i].(time.Time)
		case **time.Time:
			*v = f.values[i].(*time.Time)
		}
	}
	return nil
}

func strPtr(s string) *string { return &s }

func TestScanArtifactRowMapsNullableColumns(t *testing.T) {
	now := time.Now()
	values := []any{
		"id-1", "orig.pdf", "123456789012_CS101_CIA1.pdf", "123456789012", "CS101", "CIA1",
		int(1), "hash", int64(100), "application/pdf", (*string)(nil), []byte(nil),
		(*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil),
		"PENDING", strPtr("fp-1"), now, (*time.Time)(nil), (*time.Time)(nil), (*time.Time)(nil),
		strPtr("staff-1"), []byte("[]"), (*string)(nil), int(0), false, false,
	}

	a, err := scanArtifactRow(fakeRow{values: values})
	if err != nil {
		t.Fatalf("scanArtifactRow: %v", err)
	}
	if a.ID != "id-1" || a.RegisterNumber != "123456789012" {
		t.Fatalf("unexpected artifact: %+v", a)
	}
	if a.DiskPath != "" {
		t.Errorf("expected empty disk path for NULL column, got %q", a.DiskPath)
	}
	if a.UploadedByStaffID != "staff-1" {
		t.Errorf("expected staff id populated, got %q", a.UploadedByStaffID)
	}
	if a.IdempotencyKey != "fp-1" {
		t.Errorf("expected idempotency key populated, got %q", a.IdempotencyKey)
	}
	if a.ErrorMessage != "" {
		t.Errorf("expected empty error message for NULL column, got %q", a.ErrorMessage)
	}
}
