package query

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Parser is a parsing strategy. It consumes a prefix of input and returns the
// remaining input together with its output. When it does not match, ok is
// false and rest holds the slice at which matching stopped; the output is the
// zero value.
//
// Parsers are plain functions, so any func(string) (string, T, bool) can be
// converted to a Parser and composed with the combinators in this file.
type Parser[T any] func(input string) (rest string, out T, ok bool)

// Parse runs the parser against input.
func (p Parser[T]) Parse(input string) (string, T, bool) {
	return p(input)
}

// Tuple holds the outputs of two sequenced parsers.
type Tuple[A, B any] struct {
	First  A
	Second B
}

// Literal matches expected as an exact prefix.
func Literal(expected string) Parser[struct{}] {
	return func(input string) (string, struct{}, bool) {
		if strings.HasPrefix(input, expected) {
			return input[len(expected):], struct{}{}, true
		}
		return input, struct{}{}, false
	}
}

// Char matches one character for which pred returns true and yields it.
// A byte that is not valid UTF-8 is offered to pred as utf8.RuneError and
// consumed on its own.
func Char(pred func(rune) bool) Parser[rune] {
	return func(input string) (string, rune, bool) {
		r, size := utf8.DecodeRuneInString(input)
		if size == 0 || !pred(r) {
			return input, 0, false
		}
		return input[size:], r, true
	}
}

// AnyChar matches any single character.
var AnyChar = Char(func(rune) bool { return true })

// WhitespaceChar matches a single whitespace character.
var WhitespaceChar = Char(unicode.IsSpace)

// Space0 matches a possibly empty run of whitespace.
var Space0 = ZeroOrMore(WhitespaceChar)

// Space1 matches a run of at least one whitespace character.
var Space1 = OneOrMore(WhitespaceChar)

// Identifier matches a letter followed by any run of letters and hyphens.
var Identifier = Recognize(Pair(
	Char(unicode.IsLetter),
	ZeroOrMore(Char(func(r rune) bool { return unicode.IsLetter(r) || r == '-' })),
))

// Keyword matches an identifier equal to word, ignoring case.
func Keyword(word string) Parser[string] {
	return Pred(Identifier, func(id string) bool {
		return strings.EqualFold(id, word)
	})
}

// Pair runs first then second on the remaining input and yields both outputs.
func Pair[A, B any](first Parser[A], second Parser[B]) Parser[Tuple[A, B]] {
	return func(input string) (string, Tuple[A, B], bool) {
		next, a, ok := first(input)
		if !ok {
			return next, Tuple[A, B]{}, false
		}
		rest, b, ok := second(next)
		if !ok {
			return rest, Tuple[A, B]{}, false
		}
		return rest, Tuple[A, B]{First: a, Second: b}, true
	}
}

// Left sequences two parsers and keeps the output of the first.
func Left[A, B any](first Parser[A], second Parser[B]) Parser[A] {
	return Map(Pair(first, second), func(t Tuple[A, B]) A { return t.First })
}

// Right sequences two parsers and keeps the output of the second.
func Right[A, B any](first Parser[A], second Parser[B]) Parser[B] {
	return Map(Pair(first, second), func(t Tuple[A, B]) B { return t.Second })
}

// Map transforms the output of p with fn.
func Map[A, B any](p Parser[A], fn func(A) B) Parser[B] {
	return func(input string) (string, B, bool) {
		rest, a, ok := p(input)
		if !ok {
			var zero B
			return rest, zero, false
		}
		return rest, fn(a), true
	}
}

// Pred keeps the output of p only when pred accepts it. A rejected output
// fails at the original input.
func Pred[A any](p Parser[A], pred func(A) bool) Parser[A] {
	return func(input string) (string, A, bool) {
		rest, a, ok := p(input)
		if ok && pred(a) {
			return rest, a, true
		}
		var zero A
		return input, zero, false
	}
}

// AndThen runs p and feeds its output to next to choose the parser for the
// remaining input.
func AndThen[A, B any](p Parser[A], next func(A) Parser[B]) Parser[B] {
	return func(input string) (string, B, bool) {
		rest, a, ok := p(input)
		if !ok {
			var zero B
			return rest, zero, false
		}
		return next(a)(rest)
	}
}

// ZeroOrMore applies p as many times as it matches. It never fails.
func ZeroOrMore[A any](p Parser[A]) Parser[[]A] {
	return func(input string) (string, []A, bool) {
		var out []A
		for {
			next, a, ok := p(input)
			// a match that consumes nothing would repeat forever
			if !ok || len(next) == len(input) {
				return input, out, true
			}
			input = next
			out = append(out, a)
		}
	}
}

// OneOrMore is ZeroOrMore that fails when p does not match at least once.
func OneOrMore[A any](p Parser[A]) Parser[[]A] {
	many := ZeroOrMore(p)
	return func(input string) (string, []A, bool) {
		rest, out, _ := many(input)
		if len(out) == 0 {
			return input, nil, false
		}
		return rest, out, true
	}
}

// Either tries first and, only if it fails, second on the same input. When
// both fail, rest is the failure point of whichever got further, with ties
// going to first.
func Either[A any](first, second Parser[A]) Parser[A] {
	return func(input string) (string, A, bool) {
		firstRest, a, ok := first(input)
		if ok {
			return firstRest, a, true
		}
		secondRest, a, ok := second(input)
		if ok {
			return secondRest, a, true
		}
		if len(firstRest) <= len(secondRest) {
			return firstRest, a, false
		}
		return secondRest, a, false
	}
}

// Recognize runs p and yields the exact slice of input it consumed instead
// of its output.
func Recognize[A any](p Parser[A]) Parser[string] {
	return func(input string) (string, string, bool) {
		rest, _, ok := p(input)
		if !ok {
			return rest, "", false
		}
		return rest, input[:len(input)-len(rest)], true
	}
}
