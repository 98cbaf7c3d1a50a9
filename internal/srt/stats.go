package srt

import (
	"fmt"
	"strings"
)

// Stats mirrors the subset of SRT_TRACEBSTATS counters
// original_source/src/receiver.cpp / sender.cpp render via their
// COMMON/SNDR_O/RCVR_O leveled macros. The underlying transport library is
// out of scope (spec.md §1); this struct holds the counters this package
// itself can observe plus room for whatever srtgo's own bstats call
// contributes once wired at the call site.
type Stats struct {
	PacketsReceived uint64
	BytesReceived   uint64
	PacketsSent     uint64
	BytesSent       uint64
	PacketsLost     uint64
	PacketsRetrans  uint64
}

// Render produces a level-gated, sep-joined "key:value" rendering, grounded
// on GetStatistics's COMMON(level,x)/RCVR_O/SNDR_O macros: level ≥ 1 emits
// totals, level ≥ 2 additionally includes byte-level counters.
func (s Stats) Render(level int, sep string) string {
	if level < 1 {
		return ""
	}
	var parts []string
	parts = append(parts,
		fmt.Sprintf("pktRecvTotal:%d", s.PacketsReceived),
		fmt.Sprintf("pktSentTotal:%d", s.PacketsSent),
	)
	if level >= 2 {
		parts = append(parts,
			fmt.Sprintf("byteRecvTotal:%d", s.BytesReceived),
			fmt.Sprintf("byteSentTotal:%d", s.BytesSent),
			fmt.Sprintf("pktLossTotal:%d", s.PacketsLost),
			fmt.Sprintf("pktRetransTotal:%d", s.PacketsRetrans),
		)
	}
	return strings.Join(parts, sep)
}
