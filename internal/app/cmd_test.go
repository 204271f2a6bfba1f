package app

import (
	"strings"
	"testing"

	"golang.org/x/time/rate"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want Command
	}{
		{"引数なしはserve", nil, CommandServe},
		{"serve指定", []string{"serve"}, CommandServe},
		{"migrate指定", []string{"migrate"}, CommandMigrate},
		{"healthcheck指定", []string{"healthcheck"}, CommandHealthcheck},
		{"未知のコマンドはserve", []string{"worker"}, CommandServe},
		{"後続の引数は無視", []string{"migrate", "extra"}, CommandMigrate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseCommand(tt.args); got != tt.want {
				t.Errorf("ParseCommand(%v) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}

func TestPerMinute(t *testing.T) {
	if got := perMinute(120); got != rate.Limit(2.0) {
		t.Errorf("perMinute(120) = %v, want 2.0", got)
	}
	if got := perMinute(10); got != rate.Limit(10.0/60.0) {
		t.Errorf("perMinute(10) = %v, want %v", got, rate.Limit(10.0/60.0))
	}
}

func TestMaskDatabaseURL(t *testing.T) {
	masked := maskDatabaseURL("postgres://eventgate:supersecret@db:5432/eventgate")
	if strings.Contains(masked, "supersecret") {
		t.Errorf("masked URL still contains the password: %s", masked)
	}

	if got := maskDatabaseURL("short"); got != "***" {
		t.Errorf("maskDatabaseURL(short) = %q, want ***", got)
	}
}
