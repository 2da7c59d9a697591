package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SOURCE_DOMAIN", "corp.test")
	t.Setenv("SOURCE_ADMIN_EMAIL", "admin@corp.test")
	t.Setenv("SOURCE_SERVICE_ACCOUNT_KEY", "/etc/idsync/sa.json")
	t.Setenv("TARGET_API_TOKEN", "token")
	t.Setenv("SYNC_GROUPS", "eng@corp.test,ops@corp.test")
	t.Setenv("SYNC_GROUPS_FILE", "")
}

func TestLoadAppliesDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Target.GroupPrefix != "GoogleSCIM_" {
		t.Errorf("GroupPrefix = %q", cfg.Target.GroupPrefix)
	}
	if cfg.Sync.ManagedIDPattern != `^[0-9]{21}$` {
		t.Errorf("ManagedIDPattern = %q", cfg.Sync.ManagedIDPattern)
	}
	if cfg.Sync.EnrollmentGroupEmail != "credential-enrolled@corp.test" {
		t.Errorf("EnrollmentGroupEmail = %q", cfg.Sync.EnrollmentGroupEmail)
	}
	if len(cfg.Sync.Groups) != 2 {
		t.Errorf("Groups = %v", cfg.Sync.Groups)
	}
	if cfg.Server.Addr() != "0.0.0.0:8080" {
		t.Errorf("Addr = %q", cfg.Server.Addr())
	}
}

func TestLoadGroupsFromYAMLFile(t *testing.T) {
	setRequiredEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "groups.yaml")
	content := "groups:\n  - eng@corp.test\n  - sales@corp.test\n  - ops@corp.test\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SYNC_GROUPS_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Sync.Groups) != 3 {
		t.Fatalf("Groups = %v, want 3 entries", cfg.Sync.Groups)
	}
	if cfg.Sync.Groups[1] != "sales@corp.test" {
		t.Errorf("Groups[1] = %q", cfg.Sync.Groups[1])
	}
}

func TestValidateReportsMissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SOURCE_DOMAIN", "")
	t.Setenv("TARGET_API_TOKEN", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	err = cfg.Validate()
	if err == nil {
		t.Fatal("Validate passed with missing required values")
	}
	if !strings.Contains(err.Error(), "SOURCE_DOMAIN") || !strings.Contains(err.Error(), "TARGET_API_TOKEN") {
		t.Errorf("error does not name missing keys: %v", err)
	}
}

func TestValidateRejectsNonEmailGroup(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SYNC_GROUPS", "eng@corp.test,not-an-email")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate accepted a group without an @")
	}
}

func TestValidateRejectsBadManagedPattern(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SYNC_MANAGED_ID_PATTERN", "([0-9]")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate accepted an invalid pattern")
	}
}

func TestSplitListTrimsAndDropsEmpty(t *testing.T) {
	got := splitList(" a@b.c , ,d@e.f,")
	if len(got) != 2 || got[0] != "a@b.c" || got[1] != "d@e.f" {
		t.Errorf("splitList = %v", got)
	}
}
