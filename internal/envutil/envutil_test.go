package envutil

import "testing"

func TestGetEnvOrFallback(t *testing.T) {
	t.Setenv("VROOMSCOPE_TEST_SET", "value")
	t.Setenv("VROOMSCOPE_TEST_EMPTY", "")

	tests := []struct {
		key  string
		want string
	}{
		{"VROOMSCOPE_TEST_SET", "value"},
		{"VROOMSCOPE_TEST_EMPTY", "fallback"},
	}
	for _, tt := range tests {
		if got := GetEnvOrFallback(tt.key, "fallback"); got != tt.want {
			t.Fatalf("%s: expected %q, got %q", tt.key, tt.want, got)
		}
	}
}
