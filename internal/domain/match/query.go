package match

import "strings"

// fallbackQuery is searched when a segment's text has no usable keywords.
const fallbackQuery = "abstract background"

var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(
		"the a an and or but in on at to for of with by from is are was were " +
			"be been being have has had do does did will would could should may " +
			"might must shall can need this that these those i you he she it we " +
			"they what which who whom whose where when why how all each every " +
			"both few more most other some such no nor not only own same so " +
			"than too very just also now here there then once") {
		stopwords[w] = struct{}{}
	}
}

// SearchQuery reduces segment text to a short, concrete search phrase: up to
// two content words, stopwords and short fillers dropped.
func SearchQuery(text string) string {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.TrimFunc(w, func(r rune) bool {
			return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
		})
		if len(w) <= 3 {
			continue
		}
		if _, skip := stopwords[w]; skip {
			continue
		}
		words = append(words, w)
		if len(words) == 2 {
			break
		}
	}
	if len(words) == 0 {
		return fallbackQuery
	}
	return strings.Join(words, " ")
}
