package prep

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Clip is a decoded mono waveform.
type Clip struct {
	// Samples are normalized to [-1, 1].
	Samples []float32

	// SampleRate is the native rate of the source file.
	SampleRate int
}

// ReadWAV decodes a 16-bit PCM RIFF/WAVE stream into a mono Clip.
// Stereo input is downmixed by averaging the channels. Any sample rate
// is accepted; resampling to the content encoder's rate happens later.
func ReadWAV(r io.ReadSeeker) (*Clip, error) {
	var riff [4]byte
	if err := binary.Read(r, binary.LittleEndian, &riff); err != nil {
		return nil, fmt.Errorf("prep: read RIFF id: %w", err)
	}
	if string(riff[:]) != "RIFF" {
		return nil, errors.New("prep: not a RIFF file")
	}
	var fileSize uint32
	if err := binary.Read(r, binary.LittleEndian, &fileSize); err != nil {
		return nil, fmt.Errorf("prep: read file size: %w", err)
	}
	var wave [4]byte
	if err := binary.Read(r, binary.LittleEndian, &wave); err != nil {
		return nil, fmt.Errorf("prep: read WAVE id: %w", err)
	}
	if string(wave[:]) != "WAVE" {
		return nil, errors.New("prep: not a WAVE file")
	}

	var (
		channels   uint16
		sampleRate uint32
		fmtFound   bool
		samples    []float32
		dataFound  bool
	)
	for {
		var chunkID [4]byte
		if err := binary.Read(r, binary.LittleEndian, &chunkID); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return nil, fmt.Errorf("prep: read chunk id: %w", err)
		}
		var chunkSize uint32
		if err := binary.Read(r, binary.LittleEndian, &chunkSize); err != nil {
			return nil, fmt.Errorf("prep: read chunk size: %w", err)
		}

		switch string(chunkID[:]) {
		case "fmt ":
			var format, bits uint16
			var byteRate uint32
			var blockAlign uint16
			for _, v := range []any{&format, &channels, &sampleRate, &byteRate, &blockAlign, &bits} {
				if err := binary.Read(r, binary.LittleEndian, v); err != nil {
					return nil, fmt.Errorf("prep: read fmt chunk: %w", err)
				}
			}
			if format != 1 || bits != 16 {
				return nil, fmt.Errorf("prep: unsupported format %d/%d-bit (want 16-bit PCM)", format, bits)
			}
			if channels != 1 && channels != 2 {
				return nil, fmt.Errorf("prep: unsupported channel count %d", channels)
			}
			if chunkSize > 16 {
				if _, err := r.Seek(int64(chunkSize-16), io.SeekCurrent); err != nil {
					return nil, fmt.Errorf("prep: skip extra fmt bytes: %w", err)
				}
			}
			fmtFound = true

		case "data":
			if !fmtFound {
				return nil, errors.New("prep: data chunk before fmt chunk")
			}
			raw := make([]int16, int(chunkSize)/2)
			if err := binary.Read(r, binary.LittleEndian, raw); err != nil {
				return nil, fmt.Errorf("prep: read PCM data: %w", err)
			}
			if channels == 2 {
				samples = make([]float32, len(raw)/2)
				for i := range samples {
					samples[i] = (float32(raw[2*i]) + float32(raw[2*i+1])) / 2 / 32768
				}
			} else {
				samples = make([]float32, len(raw))
				for i, s := range raw {
					samples[i] = float32(s) / 32768
				}
			}
			dataFound = true

		default:
			// Skip unknown chunks, keeping the even-byte alignment RIFF
			// requires.
			skip := int64(chunkSize)
			if chunkSize%2 != 0 {
				skip++
			}
			if _, err := r.Seek(skip, io.SeekCurrent); err != nil {
				return nil, fmt.Errorf("prep: skip chunk %q: %w", chunkID, err)
			}
		}
		if fmtFound && dataFound {
			break
		}
	}
	if !dataFound {
		return nil, errors.New("prep: missing data chunk")
	}
	return &Clip{Samples: samples, SampleRate: int(sampleRate)}, nil
}

// ReadWAVFile opens and decodes a WAV file.
func ReadWAVFile(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadWAV(f)
}
