package version

import "testing"

func TestGet(t *testing.T) {
	v := Get()
	if v == "" {
		t.Fatal("Get() returned empty version")
	}
	if v != "dev" && (v[0] < '0' || v[0] > '9') {
		t.Errorf("Get() = %q, want a semantic version or dev", v)
	}
}
