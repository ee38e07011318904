package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func withEnv(t *testing.T, vars map[string]string) {
	t.Helper()
	old := Env
	Env = vars
	t.Cleanup(func() { Env = old })
}

func TestGetEnv(t *testing.T) {
	withEnv(t, map[string]string{"APP_NAME": "memberfox"})

	assert.Equal(t, "memberfox", GetEnv("APP_NAME", "fallback"))
	assert.Equal(t, "fallback", GetEnv("DOES_NOT_EXIST_XYZ", "fallback"))
}

func TestIsStaging(t *testing.T) {
	tests := []struct {
		name     string
		vars     map[string]string
		expected bool
	}{
		{"Prod default", map[string]string{}, false},
		{"Dev", map[string]string{"APP_ENV": "dev"}, false},
		{"Staging", map[string]string{"APP_ENV": "staging"}, true},
		{"Mail disabled in prod", map[string]string{"APP_ENV": "prod", "MAIL_DISABLED": "true"}, true},
		{"Mail explicitly enabled", map[string]string{"MAIL_DISABLED": "false"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withEnv(t, tt.vars)
			assert.Equal(t, tt.expected, IsStaging())
		})
	}
}
