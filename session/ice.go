package session

import "strconv"

// iceCandidate is one parsed "<mlineIndex>/<candidate>" line.
type iceCandidate struct {
	mlineIndex int
	candidate  string
}

// parseICELine parses a single line of the form "<mlineIndex>/<candidate>"
// (no trailing CRLF). ok is false if the index is missing, unparsable or
// negative, or the candidate is empty (spec.md §4.3/§4.4).
func parseICELine(line string) (mlineIndex int, candidate string, ok bool) {
	slash := -1
	for i := 0; i < len(line); i++ {
		if line[i] == '/' {
			slash = i
			break
		}
	}
	if slash <= 0 {
		return 0, "", false
	}

	idx, err := strconv.Atoi(line[:slash])
	if err != nil || idx < 0 {
		return 0, "", false
	}

	cand := line[slash+1:]
	if cand == "" {
		return 0, "", false
	}

	return idx, cand, true
}

// parseICEBody splits body into \r\n-terminated lines and parses each one
// with parseICELine. An unterminated final line, or any malformed line,
// fails the whole body: "no partial application of earlier candidates in
// that body" (spec.md §8).
func parseICEBody(body []byte) ([]iceCandidate, bool) {
	s := string(body)
	var out []iceCandidate
	pos := 0
	for pos < len(s) {
		end := indexCRLF(s[pos:])
		if end < 0 {
			return nil, false
		}
		line := s[pos : pos+end]
		idx, cand, ok := parseICELine(line)
		if !ok {
			return nil, false
		}
		out = append(out, iceCandidate{mlineIndex: idx, candidate: cand})
		pos += end + 2
	}
	return out, true
}

func indexCRLF(s string) int {
	for i := 0; i+1 < len(s); i++ {
		if s[i] == '\r' && s[i+1] == '\n' {
			return i
		}
	}
	return -1
}
