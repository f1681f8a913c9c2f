package listing

import "strings"

// Levenshtein returns the edit distance between a and b.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

// Ratio returns a 0..1 similarity based on edit distance, 1 for equal
// strings. Comparison is case-insensitive.
func Ratio(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 1
	}
	return 1 - float64(Levenshtein(a, b))/float64(longest)
}

// SuggestCity returns the known city closest to input, if any is at
// least 60% similar. Used to correct typos in /setcities and to map
// query URLs back to a city.
func SuggestCity(input string, known []string) (string, bool) {
	best := ""
	bestRatio := 0.0
	for _, city := range known {
		if r := Ratio(input, city); r > bestRatio {
			best, bestRatio = city, r
		}
	}
	if bestRatio < 0.6 {
		return "", false
	}
	return best, true
}

// SimilarityScore rates how likely two listings describe the same
// property: 0.4 price ratio + 0.4 area ratio + 0.2 distance factor.
// A side missing price or area contributes a neutral 0.5 ratio; the
// distance factor is max(0, 1 - meters/100), or 1.0 when no geometry
// is available (pass a negative distance).
func SimilarityScore(priceA, priceB, areaA, areaB int, distanceMeters float64) float64 {
	price := 0.5
	if priceA > 0 && priceB > 0 {
		price = float64(min(priceA, priceB)) / float64(max(priceA, priceB))
	}
	area := 0.5
	if areaA > 0 && areaB > 0 {
		area = float64(min(areaA, areaB)) / float64(max(areaA, areaB))
	}
	distance := 1.0
	if distanceMeters >= 0 {
		distance = max(0, 1-distanceMeters/100)
	}
	return 0.4*price + 0.4*area + 0.2*distance
}
