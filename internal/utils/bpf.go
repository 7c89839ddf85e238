// Package utils holds helpers shared by the capture drivers.
package utils

import (
	"fmt"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"golang.org/x/net/bpf"
)

// CompileBPF compiles a tcpdump expression for link into the raw program
// accepted by SO_ATTACH_FILTER. An empty filter compiles to nil.
func CompileBPF(filter string, link layers.LinkType, snapLen int) ([]bpf.RawInstruction, error) {
	if filter == "" {
		return nil, nil
	}
	prog, err := pcap.CompileBPFFilter(link, snapLen, filter)
	if err != nil {
		return nil, fmt.Errorf("compile BPF filter %q: %w", filter, err)
	}

	raw := make([]bpf.RawInstruction, 0, len(prog))
	for _, ins := range prog {
		raw = append(raw, bpf.RawInstruction{Op: ins.Code, Jt: ins.Jt, Jf: ins.Jf, K: ins.K})
	}
	// Reject programs the kernel verifier would refuse to load.
	if _, ok := bpf.Disassemble(raw); !ok {
		return nil, fmt.Errorf("compile BPF filter %q: program contains unsupported instructions", filter)
	}
	return raw, nil
}
