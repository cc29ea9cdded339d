package channel

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/Carmen-Shannon/oxy-anim/engine/w3d"
)

// CompressAdaptiveDelta encodes dense per-frame samples into an adaptive-delta payload.
//
// The encoder is closed-loop: every packet is quantized against the values the decoder will actually
// reconstruct, so errors do not accumulate across frames. For each packet the filter giving the smallest
// maximum error is chosen.
//
// Parameters:
//   - vectorLen: floats per frame (1 or 4)
//   - values: numFrames*vectorLen samples laid out frame after frame
//
// Returns:
//   - []byte: the payload (anchors followed by interleaved packets)
//   - float32: the channel scale
//   - error: error if the vector length or sample count is invalid
func CompressAdaptiveDelta(vectorLen int, values []float32) ([]byte, float32, error) {
	if !validVectorLen(vectorLen) {
		return nil, 0, ErrInvalidVectorLen
	}
	if len(values) == 0 || len(values)%vectorLen != 0 {
		return nil, 0, ErrEmptyChannel
	}
	numFrames := len(values) / vectorLen

	var maxDelta float32
	for f := 1; f < numFrames; f++ {
		for vi := 0; vi < vectorLen; vi++ {
			d := float32(math.Abs(float64(values[f*vectorLen+vi] - values[(f-1)*vectorLen+vi])))
			if d > maxDelta {
				maxDelta = d
			}
		}
	}
	scale := float32(1)
	if maxDelta > 0 {
		scale = maxDelta / 7
	}

	data := make([]byte, adaptiveDeltaPayloadSize(vectorLen, numFrames))
	for vi := 0; vi < vectorLen; vi++ {
		binary.LittleEndian.PutUint32(data[vi*4:], math.Float32bits(values[vi]))
	}

	groups := (numFrames - 1 + deltaGroupFrames - 1) / deltaGroupFrames
	for vi := 0; vi < vectorLen; vi++ {
		recon := values[vi]
		for g := 0; g < groups; g++ {
			first := 1 + g*deltaGroupFrames
			last := min(first+deltaGroupFrames-1, numFrames-1)
			target := make([]float32, 0, deltaGroupFrames)
			for f := first; f <= last; f++ {
				target = append(target, values[f*vectorLen+vi])
			}

			packet := data[vectorLen*4+(g*vectorLen+vi)*deltaPacketSize:]
			recon = encodePacket(packet[:deltaPacketSize], recon, target, scale)
		}
	}
	return data, scale, nil
}

// encodePacket writes the best packet for target starting from the reconstructed value start and returns
// the reconstructed value after the packet's last frame.
func encodePacket(packet []byte, start float32, target []float32, scale float32) float32 {
	var best, nibbles [deltaGroupFrames]int
	bestFilter := 0
	bestErr := float32(math.MaxFloat32)
	bestEnd := start

	for f := 0; f < filterTableSize; f++ {
		step := filterTable[f] * scale
		if step == 0 {
			continue
		}
		recon := start
		var maxErr float32
		for i, want := range target {
			n := quantizeNibble((want - recon) / step)
			nibbles[i] = n
			recon += float32(n) * step
			if e := float32(math.Abs(float64(want - recon))); e > maxErr {
				maxErr = e
			}
		}
		if maxErr < bestErr {
			bestErr = maxErr
			bestFilter = f
			best = nibbles
			bestEnd = recon
		}
	}

	packet[0] = byte(bestFilter)
	for i := range target {
		v := byte(best[i]) & 0x0F
		if i&1 != 0 {
			v <<= 4
		}
		packet[1+i/2] |= v
	}
	return bestEnd
}

// quantizeNibble rounds x to the nearest value representable by a signed nibble.
func quantizeNibble(x float32) int {
	r := math.Round(float64(x))
	switch {
	case math.IsNaN(r):
		return 0
	case r < -8:
		return -8
	case r > 7:
		return 7
	}
	return int(r)
}

// NewAdaptiveDeltaChannel compresses dense samples into an adaptive-delta Motion channel.
//
// Parameters:
//   - pivot: the animated pivot index
//   - typ: what the channel animates
//   - vectorLen: floats per frame (1 or 4)
//   - values: numFrames*vectorLen samples starting at frame 0
//
// Returns:
//   - Motion: the compressed channel
//   - error: error if the input is invalid
func NewAdaptiveDeltaChannel(pivot int, typ w3d.ChannelType, vectorLen int, values []float32) (Motion, error) {
	data, scale, err := CompressAdaptiveDelta(vectorLen, values)
	if err != nil {
		return nil, fmt.Errorf("failed to compress channel: %w", err)
	}
	return newAdaptiveDeltaChannel(pivot, typ, vectorLen, len(values)/vectorLen, scale, data)
}
