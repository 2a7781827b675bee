// Package codec holds the value conversions used by the command layer:
// flattening of keyed collections into field/value argument runs, JSON
// encoding of outgoing arguments and lenient JSON decoding of replies.
package codec
