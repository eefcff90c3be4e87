package codec

import "fmt"

const maxOpusFrameBytes = 1275

// opusFrameDuration returns the duration of one frame, in units of 0.5 ms,
// for a TOC configuration number.
func opusFrameDuration(config byte) int {
	switch {
	case config < 12:
		return [...]int{20, 40, 80, 120}[config&3]
	case config < 16:
		return [...]int{20, 40}[config&1]
	default:
		return [...]int{5, 10, 20, 40}[config&3]
	}
}

// frameLength decodes a one or two byte frame length at p[0].
func frameLength(p []byte) (length, used int, err error) {
	if len(p) == 0 {
		return 0, 0, fmt.Errorf("%w: truncated frame length", ErrCorrupt)
	}
	if p[0] < 252 {
		return int(p[0]), 1, nil
	}
	if len(p) < 2 {
		return 0, 0, fmt.Errorf("%w: truncated frame length", ErrCorrupt)
	}
	return int(p[1])*4 + int(p[0]), 2, nil
}

// ValidateOpusPacket checks a packet against the TOC framing rules of
// RFC 6716 section 3.
func ValidateOpusPacket(p []byte) error {
	if len(p) == 0 {
		return fmt.Errorf("%w: empty opus packet", ErrCorrupt)
	}
	toc := p[0]
	body := p[1:]
	switch toc & 0x3 {
	case 0:
		if len(body) > maxOpusFrameBytes {
			return fmt.Errorf("%w: opus frame of %d bytes", ErrCorrupt, len(body))
		}
	case 1:
		if len(body)%2 != 0 {
			return fmt.Errorf("%w: odd payload for two equal frames", ErrCorrupt)
		}
		if len(body)/2 > maxOpusFrameBytes {
			return fmt.Errorf("%w: opus frame of %d bytes", ErrCorrupt, len(body)/2)
		}
	case 2:
		n1, used, err := frameLength(body)
		if err != nil {
			return err
		}
		rest := len(body) - used
		if n1 > rest || n1 > maxOpusFrameBytes || rest-n1 > maxOpusFrameBytes {
			return fmt.Errorf("%w: bad frame lengths %d/%d", ErrCorrupt, n1, rest-n1)
		}
	case 3:
		return validateOpusCode3(toc, body)
	}
	return nil
}

func validateOpusCode3(toc byte, body []byte) error {
	if len(body) == 0 {
		return fmt.Errorf("%w: missing frame count", ErrCorrupt)
	}
	count := int(body[0] & 0x3F)
	vbr := body[0]&0x80 != 0
	padded := body[0]&0x40 != 0
	body = body[1:]
	if count == 0 {
		return fmt.Errorf("%w: zero frame count", ErrCorrupt)
	}
	if count*opusFrameDuration(toc>>3) > 240 {
		return fmt.Errorf("%w: %d frames exceed 120 ms", ErrCorrupt, count)
	}

	if padded {
		pad := 0
		for {
			if len(body) == 0 {
				return fmt.Errorf("%w: truncated padding length", ErrCorrupt)
			}
			b := body[0]
			body = body[1:]
			if b == 255 {
				pad += 254
				continue
			}
			pad += int(b)
			break
		}
		if pad > len(body) {
			return fmt.Errorf("%w: padding exceeds packet", ErrCorrupt)
		}
		body = body[:len(body)-pad]
	}

	if !vbr {
		if len(body)%count != 0 || len(body)/count > maxOpusFrameBytes {
			return fmt.Errorf("%w: %d bytes cannot hold %d equal frames", ErrCorrupt, len(body), count)
		}
		return nil
	}
	total := 0
	for i := 0; i < count-1; i++ {
		n, used, err := frameLength(body)
		if err != nil {
			return err
		}
		body = body[used:]
		if n > maxOpusFrameBytes {
			return fmt.Errorf("%w: opus frame of %d bytes", ErrCorrupt, n)
		}
		total += n
	}
	if total > len(body) || len(body)-total > maxOpusFrameBytes {
		return fmt.Errorf("%w: frame lengths exceed packet", ErrCorrupt)
	}
	return nil
}
