/*
	Tiny, sortable, unique-enough IDs for temp file names.

	These are not cryptographic and not globally unique; they only need to
	dodge collisions between concurrent invocations on one host.  The time
	prefix keeps stray leftovers roughly sorted by age, which is handy when
	eyeballing a work directory after a crash.
*/
package guid

import (
	"crypto/rand"
	"encoding/base32"
	"encoding/binary"
	"strings"
	"time"
)

const size = 10

var encoding = base32.HexEncoding

func New() string {
	var b [6]byte
	binary.BigEndian.PutUint32(b[0:4], uint32(time.Now().Unix()))
	if _, err := rand.Read(b[4:6]); err != nil {
		panic(err)
	}
	s := encoding.EncodeToString(b[:])
	return strings.ToLower(s[:size])
}
