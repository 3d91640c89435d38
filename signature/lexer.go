package signature

// ---------------------------------------------------------------------------
// Lexer: tokenizer for the signature front-end
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenError

	TokenWord     // d, dd, double, int32, x
	TokenNumber   // 8 (alignment)
	TokenQuestion // ?
	TokenStar     // *
	TokenLBrace   // {
	TokenRBrace   // }
	TokenColon    // :
	TokenArrow    // ->
	TokenEquals   // =
	TokenAt       // @
	TokenComma    // ,
	TokenBang     // !
)

var tokenNames = map[TokenType]string{
	TokenEOF:      "end of input",
	TokenError:    "error",
	TokenWord:     "word",
	TokenNumber:   "number",
	TokenQuestion: "'?'",
	TokenStar:     "'*'",
	TokenLBrace:   "'{'",
	TokenRBrace:   "'}'",
	TokenColon:    "':'",
	TokenArrow:    "'->'",
	TokenEquals:   "'='",
	TokenAt:       "'@'",
	TokenComma:    "','",
	TokenBang:     "'!'",
}

// String implements the Stringer interface.
func (t TokenType) String() string {
	if s, ok := tokenNames[t]; ok {
		return s
	}
	return "unknown"
}

// Token is one lexical unit with its byte offset in the input.
type Token struct {
	Type    TokenType
	Literal string
	Pos     int
}

// Lexer tokenizes signature text. Signatures are ASCII, so the lexer works
// on bytes.
type Lexer struct {
	input string
	pos   int
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

func (l *Lexer) peekByte(off int) byte {
	if l.pos+off >= len(l.input) {
		return 0
	}
	return l.input[l.pos+off]
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) {
		switch l.input[l.pos] {
		case ' ', '\t', '\n', '\r':
			l.pos++
		default:
			return
		}
	}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()

	start := l.pos
	if start >= len(l.input) {
		return Token{Type: TokenEOF, Pos: start}
	}

	single := func(t TokenType) Token {
		l.pos++
		return Token{Type: t, Literal: l.input[start:l.pos], Pos: start}
	}

	ch := l.input[start]
	switch {
	case ch == '?':
		return single(TokenQuestion)
	case ch == '*':
		return single(TokenStar)
	case ch == '{':
		return single(TokenLBrace)
	case ch == '}':
		return single(TokenRBrace)
	case ch == ':':
		return single(TokenColon)
	case ch == '=':
		return single(TokenEquals)
	case ch == '@':
		return single(TokenAt)
	case ch == ',':
		return single(TokenComma)
	case ch == '!':
		return single(TokenBang)
	case ch == '-' && l.peekByte(1) == '>':
		l.pos += 2
		return Token{Type: TokenArrow, Literal: "->", Pos: start}
	case isDigit(ch):
		for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
			l.pos++
		}
		return Token{Type: TokenNumber, Literal: l.input[start:l.pos], Pos: start}
	case isLetter(ch):
		for l.pos < len(l.input) && (isLetter(l.input[l.pos]) || isDigit(l.input[l.pos])) {
			l.pos++
		}
		return Token{Type: TokenWord, Literal: l.input[start:l.pos], Pos: start}
	}

	l.pos++
	return Token{Type: TokenError, Literal: l.input[start:l.pos], Pos: start}
}

func isLetter(ch byte) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z' || ch == '_'
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}
