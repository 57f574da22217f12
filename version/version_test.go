package version

import "testing"

func TestBuildProjectVersion(t *testing.T) {
	tests := []struct {
		build, commit, want string
	}{
		{"v1.2.3", "f80cf83aa", "1.2.3+f80cf83"},
		{"1.0.0", "abc", "1.0.0+abc"},
		{"unknown", "f80cf83", "unknown"},
		{"v1.0.0", "unknown", "unknown"},
	}
	for _, tt := range tests {
		if got := buildProjectVersion(tt.build, tt.commit); got != tt.want {
			t.Errorf("buildProjectVersion(%q, %q) = %q, want %q", tt.build, tt.commit, got, tt.want)
		}
	}
}
