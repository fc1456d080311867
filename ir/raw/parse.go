package raw

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfmerge/scanner"
)

var ErrUnexpectedEndobj = errors.New("unexpected endobj")

// TokenReader wraps a scanner with a pushback buffer so the object parser can
// look ahead for "stream" and "endobj".
type TokenReader struct {
	s   scanner.Scanner
	buf []scanner.Token
}

func NewTokenReader(s scanner.Scanner) *TokenReader { return &TokenReader{s: s} }

func (r *TokenReader) Next() (scanner.Token, error) {
	if l := len(r.buf); l > 0 {
		t := r.buf[l-1]
		r.buf = r.buf[:l-1]
		return t, nil
	}
	return r.s.Next()
}

func (r *TokenReader) Unread(tok scanner.Token) { r.buf = append(r.buf, tok) }

// SetStreamLength forwards a /Length hint to the scanner for the next stream payload.
func (r *TokenReader) SetStreamLength(n int64) { r.s.SetNextStreamLength(n) }

// ParseObject reads one direct object (not the "N G obj" header).
func (r *TokenReader) ParseObject() (Object, error) {
	tok, err := r.Next()
	if err != nil {
		return nil, err
	}
	switch tok.Type {
	case scanner.TokenName:
		return NameObj{Val: tok.Str}, nil
	case scanner.TokenNumber:
		if tok.IsInt {
			return NumberObj{I: tok.Int, IsInt: true}, nil
		}
		return NumberObj{F: tok.Float}, nil
	case scanner.TokenBoolean:
		return BoolObj{V: tok.Bool}, nil
	case scanner.TokenNull:
		return NullObj{}, nil
	case scanner.TokenString:
		return StringObj{Bytes: tok.Bytes, Hex: tok.Hex}, nil
	case scanner.TokenRef:
		return RefObj{R: ObjectRef{Num: int(tok.Int), Gen: tok.Gen}}, nil
	case scanner.TokenArray:
		return r.parseArray()
	case scanner.TokenDict:
		return r.parseDict()
	case scanner.TokenKeyword:
		if tok.Str == "endobj" {
			return nil, ErrUnexpectedEndobj
		}
	}
	return nil, fmt.Errorf("unexpected %s token %q at %d", tok.Type, tok.Str, tok.Pos)
}

func (r *TokenReader) parseArray() (Object, error) {
	arr := &ArrayObj{}
	for {
		tok, err := r.Next()
		if err != nil {
			return nil, fmt.Errorf("array: %w", err)
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "]" {
			return arr, nil
		}
		r.Unread(tok)
		item, err := r.ParseObject()
		if err != nil {
			return nil, err
		}
		arr.Append(item)
	}
}

func (r *TokenReader) parseDict() (Object, error) {
	d := Dict()
	for {
		tok, err := r.Next()
		if err != nil {
			return nil, fmt.Errorf("dict: %w", err)
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == ">>" {
			return d, nil
		}
		if tok.Type != scanner.TokenName {
			if tok.Type == scanner.TokenKeyword && tok.Str == "endobj" {
				r.Unread(tok)
				return d, fmt.Errorf("dict: %w (missing >>?)", ErrUnexpectedEndobj)
			}
			return nil, fmt.Errorf("expected name in dict, got %s at %d", tok.Type, tok.Pos)
		}
		val, err := r.ParseObject()
		if err != nil {
			return nil, err
		}
		// A null value is equivalent to an absent key.
		if _, isNull := val.(NullObj); isNull {
			continue
		}
		d.Set(NameObj{Val: tok.Str}, val)
	}
}

// ParseIndirect reads "N G obj <object> [stream] endobj" starting at the scanner's
// position. lengthOf resolves a dictionary's /Length (which may be indirect);
// it may be nil when the caller cannot resolve references yet.
func (r *TokenReader) ParseIndirect(lengthOf func(*DictObj) int64) (ObjectRef, Object, error) {
	numTok, err := r.Next()
	if err != nil {
		return ObjectRef{}, nil, err
	}
	genTok, err := r.Next()
	if err != nil {
		return ObjectRef{}, nil, err
	}
	objTok, err := r.Next()
	if err != nil {
		return ObjectRef{}, nil, err
	}
	if numTok.Type != scanner.TokenNumber || !numTok.IsInt || genTok.Type != scanner.TokenNumber || !genTok.IsInt ||
		objTok.Type != scanner.TokenKeyword || objTok.Str != "obj" {
		return ObjectRef{}, nil, fmt.Errorf("expected object header at %d", numTok.Pos)
	}
	ref := ObjectRef{Num: int(numTok.Int), Gen: int(genTok.Int)}

	obj, err := r.ParseObject()
	if err != nil {
		// obj may hold a partial dictionary when only the closing >> was missing.
		return ref, obj, fmt.Errorf("object %d %d: %w", ref.Num, ref.Gen, err)
	}
	if dict, ok := obj.(*DictObj); ok {
		hint := int64(-1)
		if lengthOf != nil {
			hint = lengthOf(dict)
		}
		r.SetStreamLength(hint)
		tok, err := r.Next()
		if err == nil {
			if tok.Type == scanner.TokenStream {
				obj = NewStream(dict, tok.Bytes)
			} else {
				r.Unread(tok)
			}
		}
		r.SetStreamLength(-1)
	}
	return ref, obj, nil
}
