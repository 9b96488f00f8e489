package query

// QuotedString matches a double-quoted run of characters and yields the text
// between the quotes byte for byte.
var QuotedString = Right(
	Literal(`"`),
	Left(
		Recognize(ZeroOrMore(Char(func(r rune) bool { return r != '"' }))),
		Literal(`"`),
	),
)

// KeyArg matches ( "key" ).
var KeyArg = Right(
	Literal("("),
	Right(Space0, Left(QuotedString, Pair(Space0, Literal(")")))),
)

// KeyValueArgs matches ( "key" , "value" ).
var KeyValueArgs = Right(
	Literal("("),
	Right(Space0, Pair(
		Left(QuotedString, Pair(Pair(Space0, Literal(",")), Space0)),
		Left(QuotedString, Pair(Space0, Literal(")"))),
	)),
)

// GetQuery matches <GET: ( "key" )>.
var GetQuery = Map(command("get", KeyArg), func(key string) Query {
	return Get{Key: key}
})

// AddQuery matches <ADD: ( "key" , "value" )>.
var AddQuery = Map(command("add", KeyValueArgs), func(kv Tuple[string, string]) Query {
	return Add{Key: kv.First, Value: kv.Second}
})

// QueryParser is the full request grammar. GET is tried before ADD.
var QueryParser = Either(GetQuery, AddQuery)

// command frames args as < ws* name ws* : ws* args ws* >.
func command[T any](name string, args Parser[T]) Parser[T] {
	head := Right(
		Literal("<"),
		Right(Space0, Left(Keyword(name), Pair(Space0, Pair(Literal(":"), Space0)))),
	)
	return Right(head, Left(args, Pair(Space0, Literal(">"))))
}

// Parse parses one request line. On success it returns the query and the
// input left unconsumed after the closing '>'. When no grammar alternative
// matches it returns a *ParseError.
//
// Example:
//
//	q, rest, err := query.Parse(`<ADD: ("user:1", "alice")>`)
//	// q == query.Add{Key: "user:1", Value: "alice"}, rest == ""
func Parse(line string) (Query, string, error) {
	rest, q, ok := QueryParser(line)
	if !ok {
		return nil, rest, &ParseError{Input: line, Rest: rest}
	}
	return q, rest, nil
}
