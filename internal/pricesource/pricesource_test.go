package pricesource

import "testing"

func TestIsSupportedQuote(t *testing.T) {
	cases := []struct {
		code string
		want bool
	}{
		{"USD", true},
		{"usd", true},
		{"eur", true},
		{"BTC", true},
		{"xyz", false},
		{"", false},
	}
	for _, c := range cases {
		if got := IsSupportedQuote(c.code); got != c.want {
			t.Errorf("IsSupportedQuote(%q) = %v, want %v", c.code, got, c.want)
		}
	}
}

func TestSupportedQuotesIsACopy(t *testing.T) {
	quotes := SupportedQuotes()
	if len(quotes) == 0 {
		t.Fatal("no supported quotes")
	}
	quotes[0] = "XXX"
	if SupportedQuotes()[0] == "XXX" {
		t.Fatal("SupportedQuotes leaked internal slice")
	}
}
