// Package speech turns finger counts into spoken audio: a number-to-word
// table, text-to-speech synthesizers and a disk cache in front of them.
package speech

import "errors"

// ErrNoWord is returned for numbers outside the word table.
var ErrNoWord = errors.New("no word for number")

// words maps every count the counter can produce to its English word.
var words = [...]string{
	"zero", "one", "two", "three", "four", "five",
	"six", "seven", "eight", "nine", "ten",
}

// MaxNumber is the largest number with a word.
const MaxNumber = len(words) - 1

// Word returns the English word for n. The second result is false when n is
// outside 0..MaxNumber.
func Word(n int) (string, bool) {
	if n < 0 || n > MaxNumber {
		return "", false
	}
	return words[n], true
}
