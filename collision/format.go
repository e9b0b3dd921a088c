package collision

import (
	"bufio"
	"io"
	"strconv"
)

const lineEnd = "\r\n"

// WriteBlock writes one flush block: the step, then the collision, atom and
// particle counts of every recorded step, one line each, space separated.
// Atom counts have two decimals. Lines end with CRLF.
func WriteBlock(w io.Writer, step int, t *Tracker) error {
	bw := bufio.NewWriter(w)

	bw.WriteString(strconv.Itoa(step))
	bw.WriteString(lineEnd)

	for i, n := range t.NumCollisions {
		if i > 0 {
			bw.WriteByte(' ')
		}
		bw.WriteString(strconv.FormatInt(int64(n), 10))
	}
	bw.WriteString(lineEnd)

	for i, n := range t.NumAtoms {
		if i > 0 {
			bw.WriteByte(' ')
		}
		bw.WriteString(strconv.FormatFloat(n, 'f', 2, 64))
	}
	bw.WriteString(lineEnd)

	for i, n := range t.NumParticles {
		if i > 0 {
			bw.WriteByte(' ')
		}
		bw.WriteString(strconv.FormatInt(int64(n), 10))
	}
	bw.WriteString(lineEnd)

	return bw.Flush()
}
