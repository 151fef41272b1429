// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package attr

import (
	"crypto/rand"
	"encoding/hex"
	"io"

	"github.com/google/uuid"
)

// IDLen is the standard length of stanza identifiers in bytes.
const IDLen = 16

// RandomID generates a new random identifier of length IDLen. If the OS's
// entropy pool isn't initialized, or we can't generate random numbers for some
// other reason, panic.
func RandomID() string {
	return randomID(rand.Reader)
}

// SessionID returns a new random session identifier.
func SessionID() string {
	return uuid.NewString()
}

func randomID(r io.Reader) string {
	u, err := uuid.NewRandomFromReader(r)
	if err != nil {
		panic(err)
	}
	return hex.EncodeToString(u[:])[:IDLen]
}
