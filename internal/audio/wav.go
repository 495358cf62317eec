package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

var ErrBadWAV = errors.New("audio: malformed wav data")

type wavFormat struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// parseWAV returns the format and PCM payload of a RIFF/WAVE file.
func parseWAV(data []byte) (wavFormat, []byte, error) {
	reader := bytes.NewReader(data)

	var header [12]byte
	if _, err := io.ReadFull(reader, header[:]); err != nil {
		return wavFormat{}, nil, fmt.Errorf("%w: short header", ErrBadWAV)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return wavFormat{}, nil, fmt.Errorf("%w: not a RIFF/WAVE file", ErrBadWAV)
	}

	var format wavFormat
	haveFormat := false
	for {
		var chunkID [4]byte
		if _, err := io.ReadFull(reader, chunkID[:]); err != nil {
			return wavFormat{}, nil, fmt.Errorf("%w: no data chunk", ErrBadWAV)
		}
		var chunkSize uint32
		if err := binary.Read(reader, binary.LittleEndian, &chunkSize); err != nil {
			return wavFormat{}, nil, fmt.Errorf("%w: truncated chunk header", ErrBadWAV)
		}

		switch string(chunkID[:]) {
		case "fmt ":
			if chunkSize < 16 {
				return wavFormat{}, nil, fmt.Errorf("%w: fmt chunk too small", ErrBadWAV)
			}
			var fmtChunk struct {
				AudioFormat   uint16
				NumChannels   uint16
				SampleRate    uint32
				ByteRate      uint32
				BlockAlign    uint16
				BitsPerSample uint16
			}
			if err := binary.Read(reader, binary.LittleEndian, &fmtChunk); err != nil {
				return wavFormat{}, nil, fmt.Errorf("%w: truncated fmt chunk", ErrBadWAV)
			}
			if fmtChunk.AudioFormat != 1 {
				return wavFormat{}, nil, fmt.Errorf("%w: only PCM is supported", ErrBadWAV)
			}
			format = wavFormat{
				SampleRate: int(fmtChunk.SampleRate),
				Channels:   int(fmtChunk.NumChannels),
				BitDepth:   int(fmtChunk.BitsPerSample),
			}
			haveFormat = true
			if extra := int64(chunkSize) - 16; extra > 0 {
				if _, err := reader.Seek(extra, io.SeekCurrent); err != nil {
					return wavFormat{}, nil, err
				}
			}
		case "data":
			if !haveFormat {
				return wavFormat{}, nil, fmt.Errorf("%w: data before fmt", ErrBadWAV)
			}
			if int64(chunkSize) > int64(reader.Len()) {
				return wavFormat{}, nil, fmt.Errorf("%w: data chunk truncated", ErrBadWAV)
			}
			payload := make([]byte, chunkSize)
			if _, err := io.ReadFull(reader, payload); err != nil {
				return wavFormat{}, nil, fmt.Errorf("%w: %v", ErrBadWAV, err)
			}
			return format, payload, nil
		default:
			skip := int64(chunkSize) + int64(chunkSize%2)
			if _, err := reader.Seek(skip, io.SeekCurrent); err != nil {
				return wavFormat{}, nil, err
			}
		}
	}
}

// synthTone renders one second of a two-beep alarm pattern as signed 16-bit
// little-endian PCM in the given format.
func synthTone(format wavFormat, freq float64) []byte {
	frames := format.SampleRate
	out := make([]byte, 0, frames*format.Channels*2)
	beep := format.SampleRate / 5
	for i := 0; i < frames; i++ {
		var sample int16
		inBeep := i < beep || (i >= 2*beep && i < 3*beep)
		if inBeep {
			v := math.Sin(2 * math.Pi * freq * float64(i) / float64(format.SampleRate))
			sample = int16(v * 0.6 * math.MaxInt16)
		}
		for c := 0; c < format.Channels; c++ {
			out = binary.LittleEndian.AppendUint16(out, uint16(sample))
		}
	}
	return out
}
