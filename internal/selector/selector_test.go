package selector

import (
	"strings"
	"testing"

	"github.com/probelight/qa-recorder/internal/dom"
)

func TestBuildPrefersID(t *testing.T) {
	t.Parallel()
	el := dom.NewElement("button").SetAttr("id", "login-btn")
	got := Build(el)
	if got == nil || *got != "#login-btn" {
		t.Errorf("Build = %v, want #login-btn", deref(got))
	}
}

func TestBuildAttributePriority(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		el   *dom.Element
		want string
	}{
		{
			"data-testid wins over id",
			dom.NewElement("button").SetAttr("data-testid", "submit-login").SetAttr("id", "login-btn"),
			`button[data-testid="submit-login"]`,
		},
		{
			"data-purpose wins over name",
			dom.NewElement("input").SetAttr("data-purpose", "search").SetAttr("name", "q"),
			`input[data-purpose="search"]`,
		},
		{
			"name when no test id",
			dom.NewElement("input").SetAttr("name", "email"),
			`input[name="email"]`,
		},
		{
			"aria-label",
			dom.NewElement("button").SetAttr("aria-label", "Close dialog"),
			`button[aria-label="Close dialog"]`,
		},
		{
			"role as last attribute resort",
			dom.NewElement("div").SetAttr("role", "tab"),
			`div[role="tab"]`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Build(tt.el)
			if got == nil || *got != tt.want {
				t.Errorf("Build = %v, want %s", deref(got), tt.want)
			}
		})
	}
}

func TestBuildEscapesAttributeValues(t *testing.T) {
	t.Parallel()
	el := dom.NewElement("button").SetAttr("data-testid", `a"b`)
	got := Build(el)
	if got == nil || *got != `button[data-testid="a\"b"]` {
		t.Errorf("Build = %v", deref(got))
	}

	idEl := dom.NewElement("div").SetAttr("id", "a.b:c")
	got = Build(idEl)
	if got == nil || *got != `#a\.b\:c` {
		t.Errorf("Build = %v", deref(got))
	}
}

func TestBuildPositionalFallback(t *testing.T) {
	t.Parallel()
	body := dom.NewElement("body")
	section := body.AppendChild(dom.NewElement("section"))
	section.AppendChild(dom.NewElement("div"))
	div := section.AppendChild(dom.NewElement("div"))
	span := div.AppendChild(dom.NewElement("span"))

	got := Build(span)
	want := "section:nth-of-type(1) > div:nth-of-type(2) > span:nth-of-type(1)"
	if got == nil || *got != want {
		t.Errorf("Build = %v, want %s", deref(got), want)
	}
}

func TestBuildPositionalDepthCap(t *testing.T) {
	t.Parallel()
	// Six levels below body; only the innermost four appear.
	cur := dom.NewElement("body")
	for i := 0; i < 6; i++ {
		cur = cur.AppendChild(dom.NewElement("div"))
	}
	got := Build(cur)
	if got == nil {
		t.Fatal("expected a positional selector")
	}
	if n := strings.Count(*got, "div:nth-of-type"); n != 4 {
		t.Errorf("expected 4 segments, got %d (%s)", n, *got)
	}
}

func TestBuildBodyHasNoSelector(t *testing.T) {
	t.Parallel()
	if got := Build(dom.NewElement("body")); got != nil {
		t.Errorf("body should have no selector, got %s", *got)
	}
	if got := Build(nil); got != nil {
		t.Errorf("nil element should have no selector, got %s", *got)
	}
}

func TestLabelForInputs(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		el   *dom.Element
		want string
	}{
		{"aria-label first", dom.NewElement("input").SetAttr("aria-label", "Email").SetAttr("placeholder", "you@example.com"), "Email"},
		{"placeholder second", dom.NewElement("input").SetAttr("placeholder", "you@example.com").SetAttr("name", "email"), "you@example.com"},
		{"name last", dom.NewElement("textarea").SetAttr("name", "comment"), "comment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Label(tt.el)
			if got == nil || *got != tt.want {
				t.Errorf("Label = %v, want %s", deref(got), tt.want)
			}
		})
	}
}

func TestLabelForSelectPrefersSelectedOption(t *testing.T) {
	t.Parallel()
	sel := dom.NewElement("select").SetAttr("aria-label", "Color")
	sel.Options = []string{"Red", "Green"}
	sel.SelectedIndex = 0
	got := Label(sel)
	if got == nil || *got != "Red" {
		t.Errorf("Label = %v, want Red", deref(got))
	}

	sel.SelectedIndex = -1
	got = Label(sel)
	if got == nil || *got != "Color" {
		t.Errorf("Label = %v, want Color", deref(got))
	}
}

func TestLabelUsesTrimmedText(t *testing.T) {
	t.Parallel()
	el := dom.NewElement("button")
	el.Text = "  Sign in  "
	got := Label(el)
	if got == nil || *got != "Sign in" {
		t.Errorf("Label = %v, want Sign in", deref(got))
	}
}

func TestLabelEmptyBecomesNil(t *testing.T) {
	t.Parallel()
	el := dom.NewElement("div")
	el.Text = "   "
	if got := Label(el); got != nil {
		t.Errorf("whitespace-only label should be nil, got %q", *got)
	}
	if got := Label(nil); got != nil {
		t.Errorf("nil element label should be nil")
	}
}

func TestLabelTruncatedTo160(t *testing.T) {
	t.Parallel()
	el := dom.NewElement("p")
	el.Text = strings.Repeat("x", 500)
	got := Label(el)
	if got == nil {
		t.Fatal("expected label")
	}
	if len([]rune(*got)) != MaxLabelLen {
		t.Errorf("expected %d runes, got %d", MaxLabelLen, len([]rune(*got)))
	}
}

func deref(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}
