// Package transform holds the body transforms applied before publishing.
//
// Transforms are pure and deterministic. They obscure rather than protect:
// neither is a cipher.
package transform

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
)

// Transformer rewrites a message body.
type Transformer interface {
	Transform(body string) string
}

// Func adapts a function to Transformer.
type Func func(string) string

// Transform calls f.
func (f Func) Transform(body string) string {
	return f(body)
}

// ShiftByOne replaces every code point with its successor ("Hello" → "Ifmmp").
var ShiftByOne Transformer = Func(shiftByOne)

// Base64 encodes the UTF-8 bytes of the body with standard padding.
var Base64 Transformer = Func(func(body string) string {
	return base64.StdEncoding.EncodeToString([]byte(body))
})

// Identity returns the body unchanged.
var Identity Transformer = Func(func(body string) string { return body })

var registry = map[string]Transformer{
	"shift":  ShiftByOne,
	"base64": Base64,
	"none":   Identity,
}

// ByName returns the transform registered under name.
func ByName(name string) (Transformer, error) {
	t, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown transform %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return t, nil
}

// Names lists the registered transform names.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func shiftByOne(body string) string {
	var b strings.Builder
	b.Grow(len(body))
	for _, r := range body {
		b.WriteRune(r + 1)
	}
	return b.String()
}
