package tim

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const scanWindow = 4096

// Position locates a TIM file embedded in a larger stream
type Position struct {
	Offset int64
	Size   int64
}

type scanner struct {
	r   io.ReadSeeker
	buf []byte
	pos int64
	end int64
}

func readFull(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

func (s *scanner) seek(pos int64) error {
	s.pos = pos
	_, err := s.r.Seek(pos, io.SeekStart)
	return err
}

// next returns the offset of the next tag, reading fixed windows and
// backing up so a tag that straddles two windows is still found.
func (s *scanner) next() (int64, bool, error) {
	for {
		n := int64(len(s.buf))
		if s.end >= 0 {
			if s.pos >= s.end {
				return 0, false, nil
			}
			if s.end-s.pos < n {
				n = s.end - s.pos
			}
		}

		got, err := io.ReadFull(s.r, s.buf[:n])
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		default:
			return 0, false, err
		}

		if got < len(Tag) {
			return 0, false, nil
		}

		if i := bytes.Index(s.buf[:got], []byte(Tag)); i >= 0 {
			offset := s.pos + int64(i)
			return offset, true, s.seek(offset)
		}

		if int64(got) < n {
			return 0, false, nil
		}

		if err := s.seek(s.pos + int64(got) - int64(len(Tag)-1)); err != nil {
			return 0, false, err
		}
	}
}

// check validates the headers of a candidate at offset and returns its
// total size. The stream is left after the image block header.
func (s *scanner) check(offset int64) (int64, bool, error) {
	if err := s.seek(offset + 4); err != nil {
		return 0, false, err
	}

	var flag [4]byte
	if err := readFull(s.r, flag[:]); err != nil {
		return 0, false, ignoreEOF(err)
	}

	var block [blockHeaderSize]byte
	var palSize uint32

	switch flag[0] {
	case flagHasPalette | Mode4Bit, flagHasPalette | Mode8Bit:
		if err := readFull(s.r, block[:]); err != nil {
			return 0, false, ignoreEOF(err)
		}
		palSize = binary.LittleEndian.Uint32(block[0:])
		w := uint64(binary.LittleEndian.Uint16(block[8:]))
		h := uint64(binary.LittleEndian.Uint16(block[10:]))
		if uint64(palSize) != w*h*2+blockHeaderSize {
			return 0, false, nil
		}
		if _, err := s.r.Seek(int64(palSize)-blockHeaderSize, io.SeekCurrent); err != nil {
			return 0, false, err
		}
	case Mode16Bit, Mode24Bit:
	default:
		return 0, false, nil
	}

	if err := readFull(s.r, block[:]); err != nil {
		return 0, false, ignoreEOF(err)
	}
	imgSize := binary.LittleEndian.Uint32(block[0:])
	w := uint64(binary.LittleEndian.Uint16(block[8:]))
	h := uint64(binary.LittleEndian.Uint16(block[10:]))
	if uint64(imgSize) != w*2*h+blockHeaderSize {
		return 0, false, nil
	}

	s.pos = offset + 8 + int64(palSize) + blockHeaderSize
	return 8 + int64(palSize) + int64(imgSize), true, nil
}

// A candidate cut short by the end of the stream is just not a match
func ignoreEOF(err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return nil
	}
	return err
}

// FindContainers scans r from its current position for embedded TIM files
// and returns their offsets and sizes. At most limit bytes are scanned
// when limit is positive. A candidate whose block sizes do not agree with
// its dimensions is skipped. Scanning resumes after the image block header
// of every match.
func FindContainers(r io.ReadSeeker, limit int64) ([]Position, error) {
	start, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}

	s := scanner{
		r:   r,
		buf: make([]byte, scanWindow),
		pos: start,
		end: -1,
	}
	if limit > 0 {
		s.end = start + limit
	}

	var positions []Position
	for {
		offset, ok, err := s.next()
		if err != nil {
			return positions, err
		}
		if !ok {
			return positions, nil
		}

		size, ok, err := s.check(offset)
		if err != nil {
			return positions, err
		}
		if !ok {
			if err := s.seek(offset + 1); err != nil {
				return positions, err
			}
			continue
		}

		positions = append(positions, Position{Offset: offset, Size: size})

		if err := s.seek(s.pos); err != nil {
			return positions, err
		}
	}
}

// FindContainersInBytes is FindContainers over an in-memory buffer
func FindContainersInBytes(b []byte, limit int64) ([]Position, error) {
	return FindContainers(bytes.NewReader(b), limit)
}
