// SPDX-License-Identifier: GPL-2.0-or-later

package netchan

// Out-of-band packets bypass the channel entirely. They are marked by
// four 0xff bytes where the sequence would be, the payload after the
// marker starts with a one byte code.

var oobMarker = []byte{0xff, 0xff, 0xff, 0xff}

// IsOutOfBand reports whether a received datagram is connectionless.
func IsOutOfBand(packet []byte) bool {
	if len(packet) < len(oobMarker) {
		return false
	}
	for i, m := range oobMarker {
		if packet[i] != m {
			return false
		}
	}
	return true
}

// OutOfBand frames payload as a connectionless packet.
func OutOfBand(payload []byte) []byte {
	out := make([]byte, 0, len(oobMarker)+len(payload))
	out = append(out, oobMarker...)
	return append(out, payload...)
}

// OutOfBandString frames a text command like "getchallenge\n".
func OutOfBandString(s string) []byte {
	return OutOfBand([]byte(s))
}

// OutOfBandPayload strips the marker. Callers check IsOutOfBand first.
func OutOfBandPayload(packet []byte) []byte {
	return packet[len(oobMarker):]
}
