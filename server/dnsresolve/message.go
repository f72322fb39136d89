package dnsresolve

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

const (
	typeA  = 1
	typeMX = 15
	classIN = 1

	maxPointerDepth = 10
)

// buildQuery encodes a single-question DNS query: a 12-byte header
// followed by QNAME/QTYPE/QCLASS. No third-party DNS library is used
// anywhere in this package -- the wire format is built and parsed by
// hand, per the spec.
func buildQuery(id uint16, name string, qtype uint16) []byte {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint16(buf[0:2], id)
	binary.BigEndian.PutUint16(buf[2:4], 0x0100) // standard query, recursion desired
	binary.BigEndian.PutUint16(buf[4:6], 1)      // QDCOUNT
	// ANCOUNT, NSCOUNT, ARCOUNT all zero

	buf = append(buf, encodeName(name)...)

	tail := make([]byte, 4)
	binary.BigEndian.PutUint16(tail[0:2], qtype)
	binary.BigEndian.PutUint16(tail[2:4], classIN)
	return append(buf, tail...)
}

func encodeName(name string) []byte {
	name = strings.TrimSuffix(name, ".")
	var out []byte
	for _, label := range strings.Split(name, ".") {
		if label == "" {
			continue
		}
		out = append(out, byte(len(label)))
		out = append(out, label...)
	}
	return append(out, 0)
}

type header struct {
	id      uint16
	flags   uint16
	qdcount uint16
	ancount uint16
}

func parseHeader(buf []byte) (header, error) {
	if len(buf) < 12 {
		return header{}, errors.New("dns: response shorter than header")
	}
	return header{
		id:      binary.BigEndian.Uint16(buf[0:2]),
		flags:   binary.BigEndian.Uint16(buf[2:4]),
		qdcount: binary.BigEndian.Uint16(buf[4:6]),
		ancount: binary.BigEndian.Uint16(buf[6:8]),
	}, nil
}

// readName decodes a domain name starting at offset, following
// compression pointers (a label byte whose top two bits are both set)
// up to maxPointerDepth hops. It returns the decoded name and the
// cursor position the *enclosing* reader should resume at: that is
// the byte right after either the terminating zero length or the
// 2-byte pointer that was followed, whichever came first -- never the
// end of the name reached after following a pointer chain.
func readName(buf []byte, offset int) (string, int, error) {
	var labels []string
	pos := offset
	resumeAt := -1
	depth := 0

	for {
		if pos < 0 || pos >= len(buf) {
			return "", 0, errors.New("dns: name read out of bounds")
		}
		length := int(buf[pos])

		if length == 0 {
			if resumeAt == -1 {
				resumeAt = pos + 1
			}
			break
		}

		if length&0xC0 == 0xC0 {
			if pos+1 >= len(buf) {
				return "", 0, errors.New("dns: truncated compression pointer")
			}
			if resumeAt == -1 {
				resumeAt = pos + 2
			}
			depth++
			if depth > maxPointerDepth {
				return "", 0, errors.New("dns: compression pointer chain too deep")
			}
			offsetBits := int(length&0x3F) << 8
			pos = offsetBits | int(buf[pos+1])
			continue
		}

		pos++
		if pos+length > len(buf) {
			return "", 0, errors.New("dns: label overruns buffer")
		}
		labels = append(labels, string(buf[pos:pos+length]))
		pos += length
	}

	return strings.Join(labels, "."), resumeAt, nil
}

type resourceRecord struct {
	name     string
	rrType   uint16
	rdataPos int
	rdLength int
}

// walkAnswers skips the echoed question and returns, for each answer
// record, its type and the offset and length of its RDATA, so the
// caller can branch on rrType without decoding records it doesn't
// care about.
func walkAnswers(buf []byte, h header) ([]resourceRecord, error) {
	_, cursor, err := readName(buf, 12)
	if err != nil {
		return nil, err
	}
	cursor += 4 // QTYPE + QCLASS

	var records []resourceRecord
	for i := 0; i < int(h.ancount); i++ {
		_, next, err := readName(buf, cursor)
		if err != nil {
			return nil, err
		}
		cursor = next
		if cursor+10 > len(buf) {
			return nil, errors.New("dns: truncated resource record")
		}
		rrType := binary.BigEndian.Uint16(buf[cursor : cursor+2])
		rdLength := int(binary.BigEndian.Uint16(buf[cursor+8 : cursor+10]))
		rdataPos := cursor + 10
		if rdataPos+rdLength > len(buf) {
			return nil, errors.New("dns: resource data overruns buffer")
		}
		records = append(records, resourceRecord{
			rrType:   rrType,
			rdataPos: rdataPos,
			rdLength: rdLength,
		})
		cursor = rdataPos + rdLength
	}
	return records, nil
}

// bestMX parses all MX records in the response and returns the
// exchange host with the lowest preference value, or "" if none.
func bestMX(buf []byte, h header) (string, error) {
	records, err := walkAnswers(buf, h)
	if err != nil {
		return "", err
	}

	best := ""
	bestPref := -1
	for _, rr := range records {
		if rr.rrType != typeMX {
			continue
		}
		if rr.rdLength < 2 {
			continue
		}
		pref := int(binary.BigEndian.Uint16(buf[rr.rdataPos : rr.rdataPos+2]))
		host, _, err := readName(buf, rr.rdataPos+2)
		if err != nil {
			continue
		}
		if bestPref == -1 || pref < bestPref {
			bestPref = pref
			best = host
		}
	}
	return best, nil
}

// firstA parses the response for the first A record and returns its
// dotted-quad rendering, or "" if none.
func firstA(buf []byte, h header) (string, error) {
	records, err := walkAnswers(buf, h)
	if err != nil {
		return "", err
	}

	for _, rr := range records {
		if rr.rrType != typeA || rr.rdLength != 4 {
			continue
		}
		ip := buf[rr.rdataPos : rr.rdataPos+4]
		return fmt.Sprintf("%d.%d.%d.%d", ip[0], ip[1], ip[2], ip[3]), nil
	}
	return "", nil
}
