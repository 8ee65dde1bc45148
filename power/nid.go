package power

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const nidWidth = 5

// NodeName formats a numeric node id as the "nid"+zero-pad(n,5) name
// convention used throughout the site power agent's protocol (§GLOSSARY).
func NodeName(nid int) string {
	return fmt.Sprintf("nid%0*d", nidWidth, nid)
}

// ParseNID extracts the numeric portion of a "nidNNNNN" style node
// name, skipping leading zeros. Returns an error if the name does not
// start with the literal "nid" prefix.
func ParseNID(name string) (int, error) {
	if len(name) < 4 || name[0] != 'n' || name[1] != 'i' || name[2] != 'd' {
		return 0, fmt.Errorf("power: invalid node name %q: missing nid prefix", name)
	}
	digits := name[3:]
	j := 0
	for j < len(digits)-1 && digits[j] == '0' {
		j++
	}
	n, err := strconv.Atoi(digits[j:])
	if err != nil {
		return 0, fmt.Errorf("power: invalid node name %q: %w", name, err)
	}
	return n, nil
}

// RangeString compresses a set of integers into compact comma/dash
// notation (e.g. "2,5-9,12"), the nid range syntax the site power
// agent's --nids flag expects (§6). No third-party hostlist library
// appears anywhere in the retrieved corpus for this narrow HPC-only
// format, so this is a small hand-rolled compressor rather than a
// wrapped dependency (see DESIGN.md).
func RangeString(nids []int) string {
	if len(nids) == 0 {
		return ""
	}
	sorted := append([]int(nil), nids...)
	sort.Ints(sorted)

	var b strings.Builder
	start := sorted[0]
	prev := sorted[0]
	first := true
	flush := func(end int) {
		if !first {
			b.WriteByte(',')
		}
		first = false
		if start == end {
			fmt.Fprintf(&b, "%d", start)
		} else {
			fmt.Fprintf(&b, "%d-%d", start, end)
		}
	}
	for _, n := range sorted[1:] {
		if n == prev {
			continue // dedupe
		}
		if n == prev+1 {
			prev = n
			continue
		}
		flush(prev)
		start, prev = n, n
	}
	flush(prev)
	return b.String()
}

// BuildFullRange compresses the nids of every node in the table into
// one range string (§4.1 "full nid range string"). It is the caller's
// responsibility to invalidate any cached copy on configuration reload.
func BuildFullRange(nodes []*Node) string {
	nids := make([]int, 0, len(nodes))
	for _, n := range nodes {
		nid, err := ParseNID(n.Name)
		if err != nil {
			continue
		}
		nids = append(nids, nid)
	}
	return RangeString(nids)
}
