// Package chunk splits reply text into bounded-size, sentence-respecting
// chunks for incremental speech synthesis and playback.
//
// Synthesis latency grows with input length, so the pipeline speaks a long
// reply as a sequence of short chunks. Chunks must sound natural, which means
// boundaries fall only on sentence terminators — a sentence is never split in
// the middle, even when it alone exceeds the size limit.
package chunk

import "strings"

// DefaultMaxLen is the default upper bound on chunk length in bytes.
const DefaultMaxLen = 120

// Split breaks text into ordered chunks of at most maxLen bytes. Sentences
// (delimited by '.', '!' or '?', terminator kept attached) are greedily
// accumulated; when appending the next sentence would exceed maxLen the
// current buffer is sealed and a new one starts with that sentence. A trailing
// fragment without a terminator is sealed as the final chunk if non-empty.
//
// A single sentence longer than maxLen is emitted as one oversized chunk:
// never split mid-sentence is deliberate policy. maxLen values < 1 fall back
// to [DefaultMaxLen]. Inter-sentence whitespace is normalised to one space.
func Split(text string, maxLen int) []string {
	if maxLen < 1 {
		maxLen = DefaultMaxLen
	}

	sentences := tokenize(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	var buf strings.Builder
	for _, s := range sentences {
		if buf.Len() == 0 {
			buf.WriteString(s)
			continue
		}
		if buf.Len()+1+len(s) <= maxLen {
			buf.WriteByte(' ')
			buf.WriteString(s)
			continue
		}
		chunks = append(chunks, buf.String())
		buf.Reset()
		buf.WriteString(s)
	}
	if buf.Len() > 0 {
		chunks = append(chunks, buf.String())
	}
	return chunks
}

// tokenize splits text into sentences, keeping each terminator run attached to
// its sentence. Consecutive terminators ("?!", "...") stay together. The
// trailing text after the last terminator, if any, becomes a final fragment.
func tokenize(text string) []string {
	var out []string
	var cur strings.Builder
	inTerminator := false

	flush := func() {
		s := strings.TrimSpace(cur.String())
		cur.Reset()
		if s != "" {
			out = append(out, s)
		}
	}

	for _, r := range text {
		switch r {
		case '.', '!', '?':
			cur.WriteRune(r)
			inTerminator = true
		default:
			if inTerminator {
				flush()
				inTerminator = false
			}
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}
