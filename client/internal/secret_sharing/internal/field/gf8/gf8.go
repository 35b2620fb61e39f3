// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package gf8 implements arithmetic in the field with characteristic 2^8 (GF(2^8)),
// using the AES reduction polynomial x^8 + x^4 + x^3 + x + 1.
package gf8

import (
	"errors"
)

// ErrDivideByZero is returned when dividing by, or inverting, the zero element.
var ErrDivideByZero = errors.New("gf8: division by zero")

// irreducible polynomial (x^8 + x^4 + x^3 + x + 1)
// (x^8 + x^4 + x^3 + x + 1) = {0x01 0x1B}
// we deal with uint8 so we only need 0x1B
const irreduciblePolynomial = 0x1B

// generator is a primitive element of the field; its powers enumerate every non-zero element.
const generator = 0x03

var (
	// expTable[i] = generator^i. The table is doubled so that the sum of two logarithms
	// can index it without a modular reduction.
	expTable [510]byte
	// logTable[e] = i such that generator^i = e. logTable[0] is unused.
	logTable [256]int
)

func init() {
	var e byte = 1
	for i := 0; i < 255; i++ {
		expTable[i] = e
		expTable[i+255] = e
		logTable[e] = i
		e = multiply(e, generator)
	}
}

// multiply is the reference carry-less multiplication with modular reduction. It is only
// used to build the exp/log tables and to verify them.
func multiply(x, y byte) byte {
	var product uint8 = 0

	// Similar steps to:
	// https://en.wikipedia.org/wiki/Finite_field_arithmetic#Multiplication
	// This code avoids branching by negating values (ex:`-foo`)
	// negating values produces a mask of either all zeros or ones
	// which allows AND operations without branching.
	for i := 7; i >= 0; i-- {
		// if MSB in current product is set, mod is irreduciblePolynomial, else 0
		mod := (-(product >> 7)) & irreduciblePolynomial

		// multiply coefficient x[i] with every coefficient in y
		xiTimesY := -((x >> i) & 1) & y

		// reduce the multiplication by irreduciblePolynomial if MSB in product was
		// set and left shift product
		product = xiTimesY ^ mod ^ (product << 1)
	}
	return product
}

// Add returns a + b. Addition and subtraction are the same operation (xor) in GF(2^8).
func Add(a, b byte) byte {
	return a ^ b
}

// Sub returns a - b.
func Sub(a, b byte) byte {
	return a ^ b
}

// Mul returns a * b.
func Mul(a, b byte) byte {
	if a == 0 || b == 0 {
		return 0
	}
	return expTable[logTable[a]+logTable[b]]
}

// Inverse returns the multiplicative inverse of a.
func Inverse(a byte) (byte, error) {
	if a == 0 {
		return 0, ErrDivideByZero
	}
	return expTable[255-logTable[a]], nil
}

// Div returns a / b, or ErrDivideByZero if b is zero.
func Div(a, b byte) (byte, error) {
	if b == 0 {
		return 0, ErrDivideByZero
	}
	if a == 0 {
		return 0, nil
	}
	return expTable[logTable[a]+255-logTable[b]], nil
}
