package signature

import "fmt"

// ---------------------------------------------------------------------------
// Parser: recursive descent over the front-end syntax
// ---------------------------------------------------------------------------
//
// Beyond canonical text the front-end accepts
//
//	whitespace and commas between items    "d, d -> d"
//	field names                            "{x=d y=d}"
//	alignment annotations                  "{d@8 i@4}"
//	long type names                        "double, double -> double"
//	'->' instead of ':'
//	'throws' instead of a trailing '!'
//
// and collapses aggregates whose only member is another aggregate.

type parser struct {
	text      string
	lexer     *Lexer
	curToken  Token
	peekToken Token
}

func newParser(text string) *parser {
	p := &parser{text: text, lexer: NewLexer(text)}
	p.nextToken()
	p.nextToken()
	return p
}

func (p *parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

func (p *parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

func (p *parser) errorf(format string, args ...any) error {
	return &Error{Text: p.text, Pos: p.curToken.Pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) atThrows() bool {
	return p.curTokenIs(TokenWord) && p.curToken.Literal == "throws"
}

func (p *parser) parse() (*Signature, error) {
	sig := &Signature{}

	args, err := p.parseList(func() bool {
		return p.curTokenIs(TokenColon) || p.curTokenIs(TokenArrow) || p.curTokenIs(TokenEOF)
	})
	if err != nil {
		return nil, err
	}
	sig.Args = args

	if !p.curTokenIs(TokenColon) && !p.curTokenIs(TokenArrow) {
		return nil, p.errorf("expected ':' between arguments and results, got %s", p.curToken.Type)
	}
	p.nextToken()

	results, err := p.parseList(func() bool {
		return p.curTokenIs(TokenEOF) || p.curTokenIs(TokenBang) || p.atThrows()
	})
	if err != nil {
		return nil, err
	}
	sig.Results = results

	if p.curTokenIs(TokenBang) || p.atThrows() {
		sig.Raises = true
		p.nextToken()
	}
	if !p.curTokenIs(TokenEOF) {
		return nil, p.errorf("unexpected %s after signature", p.curToken.Type)
	}
	return sig, nil
}

// parseList parses items until stop reports true.
func (p *parser) parseList(stop func() bool) ([]Type, error) {
	var result []Type
	for {
		for p.curTokenIs(TokenComma) {
			p.nextToken()
		}
		if stop() {
			return result, nil
		}
		if p.curTokenIs(TokenEOF) {
			return nil, p.errorf("unexpected end of signature")
		}
		items, err := p.parseItem()
		if err != nil {
			return nil, err
		}
		result = append(result, items...)
	}
}

// parseItem parses an optional field name, one or more types, and an
// optional alignment annotation. Names and alignment are dropped.
func (p *parser) parseItem() ([]Type, error) {
	if p.curTokenIs(TokenWord) && p.peekToken.Type == TokenEquals {
		p.nextToken()
		p.nextToken()
	}

	types, err := p.parseTypes()
	if err != nil {
		return nil, err
	}

	if p.curTokenIs(TokenAt) {
		p.nextToken()
		if !p.curTokenIs(TokenNumber) {
			return nil, p.errorf("expected alignment after '@', got %s", p.curToken.Type)
		}
		p.nextToken()
	}
	return types, nil
}

// parseTypes parses one type, or a run of adjacent codes such as "dd".
func (p *parser) parseTypes() ([]Type, error) {
	switch p.curToken.Type {
	case TokenStar:
		p.nextToken()
		inner, err := p.parseTypes()
		if err != nil {
			return nil, err
		}
		elem := inner[0]
		return append([]Type{{Kind: KindPointer, Elem: &elem}}, inner[1:]...), nil

	case TokenLBrace:
		p.nextToken()
		members, err := p.parseList(func() bool { return p.curTokenIs(TokenRBrace) })
		if err != nil {
			return nil, err
		}
		if len(members) == 0 {
			return nil, p.errorf("empty aggregate")
		}
		p.nextToken()
		for len(members) == 1 && members[0].Kind == KindAggregate {
			members = members[0].Members
		}
		return []Type{{Kind: KindAggregate, Members: members}}, nil

	case TokenQuestion:
		p.nextToken()
		return []Type{{Kind: KindScalar, Code: '?'}}, nil

	case TokenWord:
		word := p.curToken.Literal
		if code, ok := aliases[word]; ok {
			p.nextToken()
			return []Type{{Kind: KindScalar, Code: code}}, nil
		}
		types := make([]Type, 0, len(word))
		for i := 0; i < len(word); i++ {
			if !isCode(word[i]) {
				return nil, &Error{Text: p.text, Pos: p.curToken.Pos + i, Msg: fmt.Sprintf("unknown type %q", word)}
			}
			types = append(types, Type{Kind: KindScalar, Code: word[i]})
		}
		p.nextToken()
		return types, nil
	}

	return nil, p.errorf("expected type, got %s", p.curToken.Type)
}
