package fetch

// Profile is one consistent browser identity: user agent plus the
// client-hint headers real browsers send alongside it. A profile stays
// stable within one attempt and rotates across retries.
type Profile struct {
	Name      string
	UserAgent string
	Headers   map[string]string
}

var profiles = []Profile{
	{
		Name:      "chrome-windows",
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		Headers: map[string]string{
			"Accept":             "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
			"Accept-Language":    "nl-NL,nl;q=0.9,en-US;q=0.8,en;q=0.7",
			"Sec-Ch-Ua":          `"Chromium";v="124", "Google Chrome";v="124", "Not-A.Brand";v="99"`,
			"Sec-Ch-Ua-Mobile":   "?0",
			"Sec-Ch-Ua-Platform": `"Windows"`,
			"Sec-Fetch-Dest":     "document",
			"Sec-Fetch-Mode":     "navigate",
			"Sec-Fetch-Site":     "cross-site",
			"Sec-Fetch-User":     "?1",
			"Upgrade-Insecure-Requests": "1",
			"DNT":     "1",
			"Referer": "https://www.google.com/",
		},
	},
	{
		Name:      "safari-mac",
		UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
		Headers: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			"Accept-Language": "nl-NL,nl;q=0.9",
			"Sec-Fetch-Dest":  "document",
			"Sec-Fetch-Mode":  "navigate",
			"Sec-Fetch-Site":  "cross-site",
			"Referer":         "https://www.google.com/",
		},
	},
	{
		Name:      "chrome-linux",
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
		Headers: map[string]string{
			"Accept":             "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
			"Accept-Language":    "nl,en-US;q=0.8,en;q=0.6",
			"Sec-Ch-Ua":          `"Chromium";v="123", "Google Chrome";v="123", "Not-A.Brand";v="99"`,
			"Sec-Ch-Ua-Mobile":   "?0",
			"Sec-Ch-Ua-Platform": `"Linux"`,
			"Sec-Fetch-Dest":     "document",
			"Sec-Fetch-Mode":     "navigate",
			"Sec-Fetch-Site":     "none",
			"Upgrade-Insecure-Requests": "1",
			"Referer": "https://www.google.com/",
		},
	},
	{
		Name:      "firefox-windows",
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
		Headers: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
			"Accept-Language": "nl,en-US;q=0.7,en;q=0.3",
			"Sec-Fetch-Dest":  "document",
			"Sec-Fetch-Mode":  "navigate",
			"Sec-Fetch-Site":  "cross-site",
			"Upgrade-Insecure-Requests": "1",
			"DNT":     "1",
			"Referer": "https://www.google.com/",
		},
	},
	{
		Name:      "edge-windows",
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.0.0",
		Headers: map[string]string{
			"Accept":             "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
			"Accept-Language":    "nl-NL,nl;q=0.9,en;q=0.8",
			"Sec-Ch-Ua":          `"Chromium";v="124", "Microsoft Edge";v="124", "Not-A.Brand";v="99"`,
			"Sec-Ch-Ua-Mobile":   "?0",
			"Sec-Ch-Ua-Platform": `"Windows"`,
			"Sec-Fetch-Dest":     "document",
			"Sec-Fetch-Mode":     "navigate",
			"Sec-Fetch-Site":     "cross-site",
			"Referer":            "https://www.bing.com/",
		},
	},
	{
		Name:      "chrome-mac",
		UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		Headers: map[string]string{
			"Accept":             "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
			"Accept-Language":    "nl-NL,nl;q=0.9,en-US;q=0.8",
			"Sec-Ch-Ua":          `"Chromium";v="124", "Google Chrome";v="124", "Not-A.Brand";v="99"`,
			"Sec-Ch-Ua-Mobile":   "?0",
			"Sec-Ch-Ua-Platform": `"macOS"`,
			"Sec-Fetch-Dest":     "document",
			"Sec-Fetch-Mode":     "navigate",
			"Sec-Fetch-Site":     "cross-site",
			"Referer":            "https://duckduckgo.com/",
		},
	},
}

// Profiles returns the built-in browser profile table.
func Profiles() []Profile {
	return profiles
}
