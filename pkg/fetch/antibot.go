package fetch

import (
	"fmt"
	"net/http"
	"strings"

	"go.mau.fi/util/random"
)

// antiBotPatterns are lowercase substrings whose presence in a response
// body marks it as a challenge page instead of real content. The Dutch
// phrases come from the interstitials the housing portals serve.
var antiBotPatterns = []string{
	"je bent bijna op de pagina die je zoekt",
	"even geduld",
	"captcha",
	"just a moment",
	"access denied",
	"cloudflare",
	"are you a robot",
	"bot detection",
	"ddos protection",
}

var antiBotStatuses = map[int]bool{
	http.StatusForbidden:          true,
	http.StatusTooManyRequests:    true,
	http.StatusServiceUnavailable: true,
}

// detectAntiBot returns the matched pattern (or "") and whether the
// response should be treated as blocked.
func detectAntiBot(status int, body string) (string, bool) {
	if antiBotStatuses[status] {
		return "", true
	}
	lower := strings.ToLower(body)
	for _, pattern := range antiBotPatterns {
		if strings.Contains(lower, pattern) {
			return pattern, true
		}
	}
	return "", false
}

// evasionCookies fabricates the cookies challenge pages typically set
// after a successful browser check.
func evasionCookies() []*http.Cookie {
	return []*http.Cookie{
		{Name: "__cf_chl_tk", Value: random.String(40)},
		{Name: "bm_sz", Value: random.String(32)},
		{Name: "session_depth", Value: fmt.Sprintf("%d", 1+random.Bytes(1)[0]%5)},
		{Name: "has_js", Value: "1"},
		{Name: "resolution", Value: "1920x1080"},
		{Name: "accept_cookies", Value: "1"},
	}
}
