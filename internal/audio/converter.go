package audio

import (
	"fmt"
)

// BytesToSamples converts raw little-endian 16-bit PCM bytes to samples.
func BytesToSamples(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("PCM data length must be even (16-bit samples), got %d", len(data))
	}

	samples := make([]int16, len(data)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples, nil
}

// SamplesToBytes converts samples to raw little-endian 16-bit PCM bytes.
func SamplesToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, sample := range samples {
		data[i*2] = byte(sample)
		data[i*2+1] = byte(sample >> 8)
	}
	return data
}

// Resample converts samples from inputRate to outputRate using linear
// interpolation. Good enough for speech; swap in a sinc-based resampler
// if music quality is ever needed.
func Resample(samples []int16, inputRate, outputRate int) []int16 {
	if inputRate == outputRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(outputRate) / float64(inputRate)
	outputLength := int(float64(len(samples)) * ratio)
	output := make([]int16, outputLength)

	for i := 0; i < outputLength; i++ {
		srcPos := float64(i) / ratio

		idx0 := int(srcPos)
		idx1 := idx0 + 1
		if idx1 >= len(samples) {
			idx1 = len(samples) - 1
		}

		fraction := srcPos - float64(idx0)
		output[i] = int16(float64(samples[idx0])*(1.0-fraction) + float64(samples[idx1])*fraction)
	}

	return output
}

// DownmixMono averages interleaved multi-channel samples into mono.
// Returns the input unchanged when channels <= 1.
func DownmixMono(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}

	frames := len(samples) / channels
	mono := make([]int16, frames)
	for i := 0; i < frames; i++ {
		sum := 0
		for c := 0; c < channels; c++ {
			sum += int(samples[i*channels+c])
		}
		mono[i] = int16(sum / channels)
	}
	return mono
}

// Normalize converts a buffer to the target sample rate and channel
// count. The framer assumes every buffer it receives went through this.
func Normalize(buf *Buffer, targetRate, targetChannels int) *Buffer {
	if buf == nil {
		return nil
	}

	samples := buf.Samples
	channels := buf.Channels

	if channels > targetChannels && targetChannels == 1 {
		samples = DownmixMono(samples, channels)
		channels = targetChannels
	}

	if buf.SampleRate != targetRate {
		samples = Resample(samples, buf.SampleRate, targetRate)
	}

	return &Buffer{
		Samples:    samples,
		SampleRate: targetRate,
		Channels:   channels,
	}
}
