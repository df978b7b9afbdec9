package sanitize

import "testing"

func TestTextStripsTagsAndCollapsesWhitespace(t *testing.T) {
	got := Text("  <b>paid</b>   at\n counter &lt;script&gt;x&lt;/script&gt; ")
	if got != "paid at counter x" {
		t.Fatalf("unexpected result %q", got)
	}
}

func TestTextPtrNil(t *testing.T) {
	if TextPtr(nil) != nil {
		t.Fatal("expected nil passthrough")
	}
}
