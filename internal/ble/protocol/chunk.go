package protocol

import "unicode/utf8"

// DefaultMTU is the ATT MTU assumed before negotiation.
const DefaultMTU = 23

// attWriteOverhead is the opcode and handle header of an ATT write.
const attWriteOverhead = 3

// MaxWritePayload returns the largest value that fits one write at mtu.
func MaxWritePayload(mtu int) int {
	if mtu <= attWriteOverhead {
		mtu = DefaultMTU
	}
	return mtu - attWriteOverhead
}

// Chunk splits b into consecutive pieces of at most max bytes. Returns nil
// for empty input or a non-positive max.
func Chunk(b []byte, max int) [][]byte {
	if len(b) == 0 || max <= 0 {
		return nil
	}
	chunks := make([][]byte, 0, (len(b)+max-1)/max)
	for len(b) > 0 {
		n := max
		if n > len(b) {
			n = len(b)
		}
		chunks = append(chunks, b[:n:n])
		b = b[n:]
	}
	return chunks
}

// ChunkText splits text into chunks that each fit within maxBytes.
// It prefers splitting at word boundaries (spaces) and never splits
// in the middle of a UTF-8 character. Returns nil for empty text.
func ChunkText(text string, maxBytes int) []string {
	if len(text) == 0 || maxBytes <= 0 {
		return nil
	}
	if len(text) <= maxBytes {
		return []string{text}
	}

	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxBytes {
			chunks = append(chunks, text)
			break
		}

		// Start the split at maxBytes and walk back to the start of a rune
		// so no UTF-8 sequence is cut.
		split := maxBytes
		for split > 0 && !utf8.RuneStart(text[split]) {
			split--
		}
		if split == 0 {
			// Rune wider than maxBytes; emit it whole.
			_, size := utf8.DecodeRuneInString(text)
			split = size
		}

		// Prefer a word boundary: walk back from split to the last space.
		bestSpace := -1
		for i := split; i > 0; i-- {
			if text[i-1] == ' ' {
				bestSpace = i
				break
			}
		}

		if bestSpace > 0 {
			// Space stays with the first chunk so reassembly is exact.
			chunks = append(chunks, text[:bestSpace])
			text = text[bestSpace:]
		} else {
			// No space in range; forced split at the rune boundary.
			chunks = append(chunks, text[:split])
			text = text[split:]
		}
	}
	return chunks
}
