package middleware

import (
	"testing"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected string
	}{
		// Static routes - no normalization
		{
			name:     "root path",
			path:     "/",
			expected: "/",
		},
		{
			name:     "search endpoint",
			path:     "/search",
			expected: "/search",
		},
		{
			name:     "establishments collection",
			path:     "/establishments",
			expected: "/establishments",
		},
		{
			name:     "auth login",
			path:     "/auth/login",
			expected: "/auth/login",
		},
		{
			name:     "auth refresh",
			path:     "/auth/refresh",
			expected: "/auth/refresh",
		},
		{
			name:     "auth logout",
			path:     "/auth/logout",
			expected: "/auth/logout",
		},
		{
			name:     "auth logout all",
			path:     "/auth/logout_all",
			expected: "/auth/logout_all",
		},
		{
			name:     "subscriptions checkout",
			path:     "/subscriptions/checkout",
			expected: "/subscriptions/checkout",
		},
		{
			name:     "stripe webhook",
			path:     "/internal/stripe",
			expected: "/internal/stripe",
		},
		{
			name:     "health endpoint",
			path:     "/health",
			expected: "/health",
		},
		{
			name:     "ready endpoint",
			path:     "/ready",
			expected: "/ready",
		},
		{
			name:     "metrics endpoint",
			path:     "/metrics",
			expected: "/metrics",
		},

		// Establishment patterns
		{
			name:     "establishment by id",
			path:     "/establishments/123",
			expected: "/establishments/{id}",
		},
		{
			name:     "establishment by uuid",
			path:     "/establishments/550e8400-e29b-41d4-a716-446655440000",
			expected: "/establishments/{id}",
		},
		{
			name:     "establishment rank breakdown",
			path:     "/establishments/123/rank",
			expected: "/establishments/{id}/rank",
		},
		{
			name:     "establishment rank breakdown by uuid",
			path:     "/establishments/550e8400-e29b-41d4-a716-446655440000/rank",
			expected: "/establishments/{id}/rank",
		},

		// Edge cases
		{
			name:     "trailing slash on collection",
			path:     "/establishments/",
			expected: "/establishments/",
		},
		{
			name:     "unknown route",
			path:     "/unknown/path",
			expected: "/unknown/path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := normalizePath(tt.path)
			if result != tt.expected {
				t.Errorf("normalizePath(%q) = %q, want %q", tt.path, result, tt.expected)
			}
		})
	}
}

func TestNormalizePath_CardinalityControl(t *testing.T) {
	// Test that different IDs normalize to the same pattern
	paths := []string{
		"/establishments/1",
		"/establishments/2",
		"/establishments/999",
		"/establishments/550e8400-e29b-41d4-a716-446655440000",
		"/establishments/abc-def-ghi",
	}

	expected := "/establishments/{id}"
	seen := make(map[string]bool)

	for _, path := range paths {
		result := normalizePath(path)
		if result != expected {
			t.Errorf("normalizePath(%q) = %q, want %q", path, result, expected)
		}
		seen[result] = true
	}

	// Should all normalize to the same pattern (low cardinality)
	if len(seen) != 1 {
		t.Errorf("Expected all paths to normalize to single pattern, got %d patterns: %v", len(seen), seen)
	}
}
