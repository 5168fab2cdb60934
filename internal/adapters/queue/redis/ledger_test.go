package redis

import (
	"strings"
	"testing"
)

func TestMetaKey(t *testing.T) {
	a := metaKey("/in/a.mp4")
	b := metaKey("/in/b.mp4")

	if !strings.HasPrefix(a, failuresMetaPrefix) {
		t.Errorf("metaKey() = %q, missing prefix", a)
	}
	if a == b {
		t.Error("distinct paths share a key")
	}
	if a != metaKey("/in/a.mp4") {
		t.Error("metaKey() is not stable")
	}
	if len(a) != len(failuresMetaPrefix)+40 {
		t.Errorf("unexpected key length %d", len(a))
	}
}
