package vincent

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/vchimishuk/chub/cue"
)

const (
	sectorSize    = 2048
	rawSectorSize = 2352

	mode1Header     = 16
	mode2Header     = 24
	mode2FormHeader = 8
)

var (
	errAudioOnly = errors.New("vincent: audio-only discs have no data track")
	errWhence    = errors.New("vincent: invalid whence")
	errNegative  = errors.New("vincent: negative position")
)

// layout returns the stored size of a sector and the offset of its user
// data for a track type
func layout(dataType cue.TrackDataType) (int64, int64, bool) {
	switch dataType {
	case cue.DataTypeMode1_2048:
		return sectorSize, 0, true
	case cue.DataTypeMode1_2352:
		return rawSectorSize, mode1Header, true
	case cue.DataTypeMode2_2336:
		return rawSectorSize - mode1Header, mode2FormHeader, true
	case cue.DataTypeMode2_2352:
		return rawSectorSize, mode2Header, true
	}
	return 0, 0, false
}

func firstDataTrack(sheet *cue.Sheet) (string, cue.TrackDataType, error) {
	for _, file := range sheet.Files {
		for _, track := range file.Tracks {
			if _, _, ok := layout(track.DataType); ok {
				return file.Name, track.DataType, nil
			}
		}
	}
	return "", cue.DataTypeAudio, errAudioOnly
}

// sectorReader presents the 2048 byte user data of every sector in r as
// one contiguous stream
type sectorReader struct {
	r       io.ReadSeeker
	stored  int64
	header  int64
	sectors int64
	pos     int64
}

func newSectorReader(r io.ReadSeeker, size int64, dataType cue.TrackDataType) (*sectorReader, error) {
	stored, header, ok := layout(dataType)
	if !ok {
		return nil, errAudioOnly
	}
	return &sectorReader{
		r:       r,
		stored:  stored,
		header:  header,
		sectors: size / stored,
	}, nil
}

func (s *sectorReader) size() int64 {
	return s.sectors * sectorSize
}

func (s *sectorReader) Read(p []byte) (int, error) {
	var n int
	for n < len(p) {
		if s.pos >= s.size() {
			if n == 0 {
				return 0, io.EOF
			}
			break
		}

		sector, off := s.pos/sectorSize, s.pos%sectorSize
		if _, err := s.r.Seek(sector*s.stored+s.header+off, io.SeekStart); err != nil {
			return n, err
		}

		chunk := p[n:]
		if rem := sectorSize - off; int64(len(chunk)) > rem {
			chunk = chunk[:rem]
		}

		m, err := io.ReadFull(s.r, chunk)
		n += m
		s.pos += int64(m)
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				err = io.EOF
			}
			return n, err
		}
	}
	return n, nil
}

func (s *sectorReader) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset += s.pos
	case io.SeekEnd:
		offset += s.size()
	default:
		return 0, errWhence
	}
	if offset < 0 {
		return 0, errNegative
	}
	s.pos = offset
	return offset, nil
}

// Disc is the user data of the first data track of a cue sheet
type Disc struct {
	*sectorReader
	f *os.File
}

// OpenDisc parses the cue sheet in file and opens its first data track
func OpenDisc(file string) (*Disc, error) {
	sheet, err := cue.ParseFile(file)
	if err != nil {
		return nil, err
	}

	name, dataType, err := firstDataTrack(sheet)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(filepath.Dir(file), name))
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	r, err := newSectorReader(f, info.Size(), dataType)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &Disc{
		sectorReader: r,
		f:            f,
	}, nil
}

// Size returns the number of bytes of user data
func (d *Disc) Size() int64 {
	return d.size()
}

// Close closes the track file
func (d *Disc) Close() error {
	return d.f.Close()
}
