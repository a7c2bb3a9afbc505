// Package match implements answer normalization and fuzzy comparison for
// guessed track titles and artists.
//
// Comparison proceeds in three stages, cheapest first:
//
//  1. Substring containment: the normalized target is contained in the
//     normalized guess or vice versa.
//
//  2. Token overlap: both sides are split into sets of tokens longer than
//     two code points; the guess is accepted when the overlap ratio against
//     either side's cardinality reaches the token threshold.
//
//  3. Dice coefficient: bigram-multiset similarity between the normalized
//     strings, accepted at or above the configured threshold.
//
// [Unified] answers the single-box text mode question "does this free-form
// guess identify the track at all", trying the guess against both the title
// and the artist. [Detailed] scores the artist and title sides independently
// and is used for buzzer-mode host verification and for text-mode scoring.
//
// All functions are pure and safe for concurrent use.
package match

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// Acceptance thresholds. The unified match is slightly more lenient on the
// Dice rule because free-form guesses tend to carry extra words.
const (
	tokenOverlapThreshold = 0.7
	unifiedDiceThreshold  = 0.65
	detailedDiceThreshold = 0.7

	minTokenLen = 3 // code points; shorter tokens carry no signal
)

var (
	// bracketRe matches one balanced bracket group per kind, non-greedy.
	// A single ReplaceAll pass removes "(prod. Rumak)" style annotations.
	bracketRe = regexp.MustCompile(`\([^()]*\)|\[[^\[\]]*\]|\{[^{}]*\}`)

	// noiseRe matches filler tokens that appear in catalog titles but never
	// in what a player would type.
	noiseRe = regexp.MustCompile(`(?i)\b(?:official video|produced by|lyrics?|audio|remaster(?:ed)?|hd|hq|mv)\b|(?i)\b(?:feat|ft|prod)\.?`)
)

// Normalize reduces s to a canonical comparable form: bracketed groups and
// noise tokens removed, Unicode case folding applied, every code point that
// is not a letter, number, or whitespace replaced with a space, and runs of
// whitespace collapsed. Normalize is idempotent and maps "" to "".
func Normalize(s string) string {
	s = bracketRe.ReplaceAllString(s, " ")
	s = noiseRe.ReplaceAllString(s, " ")
	// cases.Caser carries internal state, so a fresh one is used per call.
	s = cases.Fold().String(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// Result reports which sides of a detailed guess were accepted.
type Result struct {
	ArtistCorrect bool
	TitleCorrect  bool
}

// Unified reports whether a free-form guess identifies the track named by
// (title, artist). A guess that normalizes to the empty string never matches.
func Unified(guess, title, artist string) bool {
	g := Normalize(guess)
	if g == "" {
		return false
	}
	return sideMatch(g, Normalize(title), unifiedDiceThreshold) ||
		sideMatch(g, Normalize(artist), unifiedDiceThreshold)
}

// Detailed matches the artist and title guesses independently against their
// targets. An empty guess on one side falls back to the other side's guess,
// so a single combined string such as "Taco Hemingway Deszcz na betonie"
// can satisfy both sides.
//
// When the target title textually contains the target artist, a stripped
// title (title minus artist) is accepted as an alternative target for the
// title side; catalogs routinely prefix titles with the artist name.
func Detailed(guessArtist, guessTitle, targetArtist, targetTitle string) Result {
	ga := Normalize(guessArtist)
	gt := Normalize(guessTitle)
	ta := Normalize(targetArtist)
	tt := Normalize(targetTitle)

	artistGuess := ga
	if artistGuess == "" {
		artistGuess = gt
	}
	titleGuess := gt
	if titleGuess == "" {
		titleGuess = ga
	}

	var res Result
	res.ArtistCorrect = sideMatch(artistGuess, ta, detailedDiceThreshold)
	res.TitleCorrect = sideMatch(titleGuess, tt, detailedDiceThreshold)

	if !res.TitleCorrect && ta != "" && strings.Contains(tt, ta) {
		if stripped := strippedTitle(tt, ta); stripped != "" {
			res.TitleCorrect = sideMatch(titleGuess, stripped, detailedDiceThreshold)
		}
	}
	return res
}

// sideMatch applies the acceptance rules for one already-normalized guess
// against one already-normalized target.
func sideMatch(guess, target string, diceThreshold float64) bool {
	if guess == "" || target == "" {
		return false
	}
	if guess == target {
		return true
	}
	if strings.Contains(guess, target) || strings.Contains(target, guess) {
		return true
	}
	if tokenOverlap(tokenSet(guess), tokenSet(target)) >= tokenOverlapThreshold {
		return true
	}
	return Dice(guess, target) >= diceThreshold
}

// strippedTitle removes the artist's normalized form from the normalized
// title and re-collapses whitespace.
func strippedTitle(title, artist string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(title, artist, " ")), " ")
}

// tokenSet splits a normalized string into the set of tokens longer than
// two code points.
func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(s) {
		if utf8.RuneCountInString(tok) >= minTokenLen {
			set[tok] = struct{}{}
		}
	}
	return set
}

// tokenOverlap returns the shared-token ratio against the smaller side's
// cardinality, or 0 when either side is empty.
func tokenOverlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			shared++
		}
	}
	ratio := float64(shared) / float64(min(len(a), len(b)))
	return ratio
}

// Dice computes the Sørensen–Dice bigram similarity of two strings in [0, 1].
// Bigrams are taken over code points of the whole string, spaces included,
// as multisets. Strings shorter than two code points compare by equality.
func Dice(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) < 2 || len(rb) < 2 {
		if a == b && a != "" {
			return 1
		}
		return 0
	}

	ba := bigrams(ra)
	bb := bigrams(rb)

	shared := 0
	for bg, na := range ba {
		if nb, ok := bb[bg]; ok {
			shared += min(na, nb)
		}
	}
	return 2 * float64(shared) / float64(len(ra)-1+len(rb)-1)
}

// bigrams builds the bigram multiset of a rune sequence.
func bigrams(rs []rune) map[[2]rune]int {
	m := make(map[[2]rune]int, len(rs))
	for i := 0; i+1 < len(rs); i++ {
		m[[2]rune{rs[i], rs[i+1]}]++
	}
	return m
}
