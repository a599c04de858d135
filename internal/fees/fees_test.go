package fees

import (
	"testing"
	"time"
)

func TestLateFee_NotOverdue(t *testing.T) {
	due := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		now  time.Time
	}{
		{"well before due", due.Add(-48 * time.Hour)},
		{"exactly at due", due},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := LateFee(tc.now, due); got != 0 {
				t.Errorf("expected zero fee, got %d", got)
			}
		})
	}
}

func TestLateFee_HourlyAccrual(t *testing.T) {
	due := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	// 3.5 hours overdue rounds up to 4 billable hours.
	now := time.Date(2025, 1, 1, 3, 30, 0, 0, time.UTC)
	if got := LateFee(now, due); got != 6000 {
		t.Errorf("3.5h overdue: expected 6000, got %d", got)
	}

	// One second past an hour boundary starts the next hour.
	now = due.Add(time.Hour + time.Second)
	if got := LateFee(now, due); got != 2*HourlyLateFeeCents {
		t.Errorf("1h1s overdue: expected %d, got %d", 2*HourlyLateFeeCents, got)
	}
}

func TestLateFee_Cap(t *testing.T) {
	due := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC) // 216 hours late
	if got := LateFee(now, due); got != LateFeeCapCents {
		t.Errorf("expected cap %d, got %d", LateFeeCapCents, got)
	}
}

func TestLateFee_Monotonic(t *testing.T) {
	due := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var prev int64
	for h := 0; h < 300; h += 7 {
		now := due.Add(time.Duration(h) * time.Hour)
		fee := LateFee(now, due)
		if fee < prev {
			t.Fatalf("fee decreased from %d to %d at %dh overdue", prev, fee, h)
		}
		if fee > LateFeeCapCents {
			t.Fatalf("fee %d exceeds cap at %dh overdue", fee, h)
		}
		prev = fee
	}
}

func TestLateFeeFromReturnDate(t *testing.T) {
	now := time.Date(2025, 1, 1, 3, 30, 0, 0, time.UTC)

	cases := []struct {
		name       string
		returnDate string
		want       int64
	}{
		{"calendar date", "2025-01-01", 6000},
		{"rfc3339", "2025-01-01T00:00:00Z", 6000},
		{"not yet due", "2025-02-01", 0},
		{"empty", "", 0},
		{"garbage", "next tuesday", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := LateFeeFromReturnDate(now, tc.returnDate); got != tc.want {
				t.Errorf("LateFeeFromReturnDate(%q) = %d, want %d", tc.returnDate, got, tc.want)
			}
		})
	}
}

func TestExtensionAmount(t *testing.T) {
	if got := ExtensionAmount(25000, 3000); got != 28000 {
		t.Errorf("expected 28000, got %d", got)
	}
	if got := ExtensionAmount(25000, 0); got != 25000 {
		t.Errorf("expected 25000, got %d", got)
	}
}

func TestSurchargeTotals(t *testing.T) {
	// $100.00 base.
	if got := CardSurchargeTotal(10000); got != 10320 {
		t.Errorf("card total for 10000 = %d, want 10320", got)
	}
	if got := WalletSurchargeTotal(10000); got != 10398 {
		t.Errorf("wallet total for 10000 = %d, want 10398", got)
	}
	// Surcharge totals always exceed the base amount.
	for _, amount := range []int64{50, 500, 123456} {
		if CardSurchargeTotal(amount) <= amount {
			t.Errorf("card total %d not greater than base %d", CardSurchargeTotal(amount), amount)
		}
		if WalletSurchargeTotal(amount) <= amount {
			t.Errorf("wallet total %d not greater than base %d", WalletSurchargeTotal(amount), amount)
		}
	}
}
