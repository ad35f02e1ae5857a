package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSubscriptionsMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_subscriptions.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no subscriptions migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS subscriptions",
		"CHECK (platform IN ('ios', 'web'))",
		"CHECK (status IN ('active', 'expired', 'cancelled', 'trial', 'pending'))",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_subscriptions_user_id",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_subscriptions_original_transaction_id",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_subscriptions_stripe_subscription_id",
		"DROP TABLE IF EXISTS subscriptions",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestReceiptsMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_receipts.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no receipts migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS receipts",
		"CHECK (environment IN ('sandbox', 'production'))",
		"CHECK (verification_status IN ('pending', 'verified', 'failed'))",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_receipts_transaction_id",
		"DROP TABLE IF EXISTS receipts",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}
