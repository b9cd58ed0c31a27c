package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestStylesDisabledForNonTerminal(t *testing.T) {
	st := newStyles(&bytes.Buffer{})
	if st.enabled {
		t.Fatal("styles must be disabled for non-terminal writers")
	}
	if got := st.errPrefix(); got != "ERROR:" {
		t.Errorf("errPrefix = %q", got)
	}
	kv := st.kv("library", "/books")
	if strings.Contains(kv, "\x1b[") {
		t.Errorf("kv carries ANSI escapes when disabled: %q", kv)
	}
	if !strings.Contains(kv, "library:") || !strings.Contains(kv, "/books") {
		t.Errorf("kv = %q", kv)
	}
}
