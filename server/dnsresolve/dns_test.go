package dnsresolve

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildMXResponse hand-assembles a synthetic DNS response with two MX
// answers, both using a compression pointer back to the question name,
// mirroring what a real resolver would send.
func buildMXResponse(t *testing.T, id uint16, domain string, answers []struct {
	pref int
	host string
}) []byte {
	t.Helper()

	buf := make([]byte, 12)
	binary.BigEndian.PutUint16(buf[0:2], id)
	binary.BigEndian.PutUint16(buf[2:4], 0x8180)
	binary.BigEndian.PutUint16(buf[4:6], 1)
	binary.BigEndian.PutUint16(buf[6:8], uint16(len(answers)))

	buf = append(buf, encodeName(domain)...)
	buf = append(buf, 0, typeMX, 0, classIN)

	for _, a := range answers {
		// Name: a compression pointer to offset 12 (the question name).
		buf = append(buf, 0xC0, 12)
		buf = append(buf, 0, typeMX, 0, classIN) // TYPE, CLASS
		buf = append(buf, 0, 0, 0, 60)           // TTL
		hostEnc := encodeName(a.host)
		rdata := make([]byte, 2)
		binary.BigEndian.PutUint16(rdata, uint16(a.pref))
		rdata = append(rdata, hostEnc...)
		rdlen := make([]byte, 2)
		binary.BigEndian.PutUint16(rdlen, uint16(len(rdata)))
		buf = append(buf, rdlen...)
		buf = append(buf, rdata...)
	}
	return buf
}

func TestBestMXPicksLowestPreference(t *testing.T) {
	buf := buildMXResponse(t, 0x1234, "example.", []struct {
		pref int
		host string
	}{
		{pref: 20, host: "b.example"},
		{pref: 10, host: "a.example"},
	})

	h, err := parseHeader(buf)
	require.NoError(t, err)

	host, err := bestMX(buf, h)
	require.NoError(t, err)
	require.Equal(t, "a.example", host)
}

func TestParsingIsIdempotent(t *testing.T) {
	buf := buildMXResponse(t, 0x1234, "example.", []struct {
		pref int
		host string
	}{
		{pref: 20, host: "b.example"},
		{pref: 10, host: "a.example"},
	})

	h, err := parseHeader(buf)
	require.NoError(t, err)

	host1, err := bestMX(buf, h)
	require.NoError(t, err)
	host2, err := bestMX(buf, h)
	require.NoError(t, err)
	require.Equal(t, host1, host2)
}

func TestReadNameFollowsCompressionPointer(t *testing.T) {
	buf := []byte{}
	buf = append(buf, encodeName("mail.example.com")...) // offset 0
	pointerOffset := len(buf)
	buf = append(buf, 0xC0, 0x00) // pointer back to offset 0
	buf = append(buf, 0xFF)       // trailing byte the cursor must not swallow

	name, resume, err := readName(buf, pointerOffset)
	require.NoError(t, err)
	require.Equal(t, "mail.example.com", name)
	// The cursor must stop right after the 2-byte pointer, not at the
	// end of the name it points to.
	require.Equal(t, pointerOffset+2, resume)
}

func TestReadNameCapsPointerChainDepth(t *testing.T) {
	buf := make([]byte, 0, 64)
	// A chain of pointers, each pointing to the previous one, deeper
	// than the allowed cap.
	buf = append(buf, 0) // offset 0: root name
	for i := 0; i < maxPointerDepth+5; i++ {
		target := len(buf) - 2
		if i == 0 {
			target = 0
		}
		hi := byte(0xC0 | (target >> 8))
		lo := byte(target & 0xFF)
		buf = append(buf, hi, lo)
	}

	_, _, err := readName(buf, len(buf)-2)
	require.Error(t, err)
}

func TestFirstAFormatsDottedQuad(t *testing.T) {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint16(buf[4:6], 1)
	binary.BigEndian.PutUint16(buf[6:8], 1)
	buf = append(buf, encodeName("example.")...)
	buf = append(buf, 0, typeA, 0, classIN)

	buf = append(buf, 0xC0, 12)
	buf = append(buf, 0, typeA, 0, classIN)
	buf = append(buf, 0, 0, 0, 60)
	buf = append(buf, 0, 4)
	buf = append(buf, 93, 184, 216, 34)

	h, err := parseHeader(buf)
	require.NoError(t, err)
	addr, err := firstA(buf, h)
	require.NoError(t, err)
	require.Equal(t, "93.184.216.34", addr)
}
