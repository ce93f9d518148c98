package main

import "testing"

func TestGetIdentity_Defaults(t *testing.T) {
	t.Setenv("USER_NAME", "")
	t.Setenv("USER_ID", "")
	t.Setenv("GROUP_ID", "")

	userName, uid, gid := getIdentity()
	if userName != "sandboxuser" {
		t.Errorf("expected default username sandboxuser, got %q", userName)
	}
	if uid != 1000 || gid != 1000 {
		t.Errorf("expected default 1000:1000, got %d:%d", uid, gid)
	}
}

func TestGetIdentity_FromEnv(t *testing.T) {
	t.Setenv("USER_NAME", "alice")
	t.Setenv("USER_ID", "501")
	t.Setenv("GROUP_ID", "20")

	userName, uid, gid := getIdentity()
	if userName != "alice" {
		t.Errorf("expected username alice, got %q", userName)
	}
	if uid != 501 {
		t.Errorf("expected UID 501, got %d", uid)
	}
	if gid != 20 {
		t.Errorf("expected GID 20, got %d", gid)
	}
}

func TestGetIdentity_RejectsZeroUID(t *testing.T) {
	t.Setenv("USER_NAME", "root")
	t.Setenv("USER_ID", "0")
	t.Setenv("GROUP_ID", "1000")
	_, uid, _ := getIdentity()
	if uid == 0 {
		t.Error("UID 0 should fall back to default, not run as root")
	}
}

func TestGetIdentity_RejectsNegativeIDs(t *testing.T) {
	t.Setenv("USER_ID", "-5")
	t.Setenv("GROUP_ID", "-5")
	_, uid, gid := getIdentity()
	if uid < 1 || gid < 1 {
		t.Errorf("negative IDs should fall back to default, got %d:%d", uid, gid)
	}
}

func TestEnvInt(t *testing.T) {
	tests := []struct {
		name     string
		envVal   string
		fallback int
		expected int
	}{
		{"empty", "", 42, 42},
		{"valid", "100", 42, 100},
		{"invalid", "abc", 42, 42},
		{"zero", "0", 42, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_ENV_INT", tt.envVal)
			if got := envInt("TEST_ENV_INT", tt.fallback); got != tt.expected {
				t.Errorf("envInt(%q, %d) = %d, want %d", tt.envVal, tt.fallback, got, tt.expected)
			}
		})
	}
}

func TestEnvOr(t *testing.T) {
	t.Setenv("TEST_ENV_OR", "")
	if got := envOr("TEST_ENV_OR", "fallback"); got != "fallback" {
		t.Errorf("envOr empty = %q, want fallback", got)
	}
	t.Setenv("TEST_ENV_OR", "set")
	if got := envOr("TEST_ENV_OR", "fallback"); got != "set" {
		t.Errorf("envOr set = %q, want set", got)
	}
}
