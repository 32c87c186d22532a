package telegram

import "testing"

func TestFormatMessageInlineMarkup(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"**bold** and `code`", "<b>bold</b> and <code>code</code>"},
		{"*italic*", "<i>italic</i>"},
		{"~~gone~~", "<s>gone</s>"},
		{"plain text", "plain text"},
		{"line one\nline two", "line one\nline two"},
		{"a & b", "a &amp; b"},
		{"x < y", "x &lt; y"},
	}
	for _, tt := range tests {
		if got := FormatMessage(tt.in); got != tt.want {
			t.Errorf("FormatMessage(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatMessageHeading(t *testing.T) {
	got := FormatMessage("# Title\n\nBody text")
	want := "<b>Title</b>\n\nBody text"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFormatMessageList(t *testing.T) {
	got := FormatMessage("- first\n- second")
	want := "• first\n• second"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFormatMessageCodeBlock(t *testing.T) {
	got := FormatMessage("```\nx := a < b\n```")
	want := "<pre>x := a &lt; b\n</pre>"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFormatMessageLink(t *testing.T) {
	got := FormatMessage("[docs](https://example.com/x)")
	want := `<a href="https://example.com/x">docs</a>`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFormatMessageAutoLink(t *testing.T) {
	got := FormatMessage("see https://example.com now")
	want := `see <a href="https://example.com">https://example.com</a> now`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFormatMessageBlockquote(t *testing.T) {
	got := FormatMessage("> quoted")
	want := "<blockquote>quoted\n\n</blockquote>"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFormatMessageTable(t *testing.T) {
	got := FormatMessage("| a | b |\n|---|---|\n| 1 | 22 |")
	want := "<pre>| a | b  |\n|---|----|\n| 1 | 22 |\n</pre>"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFormatMessageEmptyAndRawHTML(t *testing.T) {
	if got := FormatMessage(""); got != "" {
		t.Errorf("empty input must stay empty, got %q", got)
	}
	// Raw HTML renders to nothing, so the source comes back untouched
	// rather than a blank message.
	if got := FormatMessage("<div>"); got != "<div>" {
		t.Errorf("raw html fallback = %q", got)
	}
}

func TestTransportMessageLimitLeavesFormattingRoom(t *testing.T) {
	tr := &chatTransport{}
	if tr.MaxMessageLen() >= 4096 {
		t.Errorf("limit %d leaves no room for html markup under telegram's 4096 cap", tr.MaxMessageLen())
	}
	cb := &callbackTransport{}
	if cb.MaxMessageLen() != tr.MaxMessageLen() {
		t.Error("both transports must agree on the message limit")
	}
}
