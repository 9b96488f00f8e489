// Package query implements the memento request grammar and its canonical
// serialization.
//
// Requests are single lines of text:
//
//	<GET: ("key")>
//	<ADD: ("key", "value")>
//
// Command names are case-insensitive and whitespace may appear around every
// punctuation mark, so "<  add :  ( \"k\" , \"v\" ) >" parses the same as the
// compact form. Keys and values are the bytes between double quotes; they
// cannot themselves contain a double quote, and there is no escape syntax.
//
// The grammar is assembled from small parsing strategies. A Parser consumes a
// prefix of its input and reports the remainder, or reports the slice where it
// stopped matching. Strategies are composed with Pair, Left, Right, Map, Pred,
// ZeroOrMore, OneOrMore and Either:
//
//	key := query.Right(query.Literal("("),
//		query.Right(query.Space0,
//			query.Left(query.QuotedString, query.Pair(query.Space0, query.Literal(")")))))
//
// Parse turns a line into a Query; Serialize turns a Query back into the
// canonical line, and the two are exact inverses for quote-free text:
//
//	q, _, err := query.Parse(`<get:("user:1")>`)
//	// q == query.Get{Key: "user:1"}
//	query.Serialize(q) // "<GET: (\"user:1\")>\n"
package query
