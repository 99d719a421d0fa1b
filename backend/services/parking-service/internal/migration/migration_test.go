package migration

import (
	"strings"
	"testing"
)

func TestSchemaCoversRepositories(t *testing.T) {
	ddl := Schema()
	for _, table := range []string{"sites", "fee_policies", "lanes", "blacklist", "members", "parking_sessions", "session_discounts", "audit_logs"} {
		if !strings.Contains(ddl, "CREATE TABLE IF NOT EXISTS "+table+" (") {
			t.Fatalf("schema is missing table %s", table)
		}
	}
	if !strings.Contains(ddl, "WHERE status IN ('RUNNING', 'PAYMENT_PENDING')") {
		t.Fatalf("schema is missing the open session index")
	}
}
