package imaging

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"io"
)

// DecodePNM decodes the netpbm formats poppler's extraction tool emits for
// images without native PNG/JPEG streams: P1-P3 (ASCII) and P4-P6 (raw)
// bitmap, graymap, and pixmap.
func DecodePNM(r io.Reader) (image.Image, error) {
	br := bufio.NewReader(r)

	magic, err := pnmToken(br)
	if err != nil {
		return nil, fmt.Errorf("read pnm magic: %w", err)
	}
	if len(magic) != 2 || magic[0] != 'P' || magic[1] < '1' || magic[1] > '6' {
		return nil, fmt.Errorf("not a pnm file: magic %q", magic)
	}

	width, err := pnmInt(br)
	if err != nil {
		return nil, fmt.Errorf("read pnm width: %w", err)
	}
	height, err := pnmInt(br)
	if err != nil {
		return nil, fmt.Errorf("read pnm height: %w", err)
	}
	if width <= 0 || height <= 0 || width*height > 1<<28 {
		return nil, fmt.Errorf("unreasonable pnm dimensions %dx%d", width, height)
	}

	maxVal := 1
	if magic[1] != '1' && magic[1] != '4' {
		maxVal, err = pnmInt(br)
		if err != nil {
			return nil, fmt.Errorf("read pnm maxval: %w", err)
		}
		if maxVal <= 0 || maxVal > 65535 {
			return nil, fmt.Errorf("invalid pnm maxval %d", maxVal)
		}
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))

	switch magic[1] {
	case '1', '2', '3':
		return decodePNMAscii(br, img, magic[1], maxVal)
	case '4':
		return decodePBMRaw(br, img)
	case '5', '6':
		return decodePNMRaw(br, img, magic[1], maxVal)
	}
	return nil, fmt.Errorf("unsupported pnm variant %q", magic)
}

func decodePNMAscii(br *bufio.Reader, img *image.NRGBA, variant byte, maxVal int) (image.Image, error) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			var rr, gg, bb int
			switch variant {
			case '1':
				v, err := pnmInt(br)
				if err != nil {
					return nil, err
				}
				// PBM: 1 is black
				val := 255
				if v != 0 {
					val = 0
				}
				rr, gg, bb = val, val, val
			case '2':
				v, err := pnmInt(br)
				if err != nil {
					return nil, err
				}
				val := scalePNM(v, maxVal)
				rr, gg, bb = val, val, val
			case '3':
				var vals [3]int
				for i := range vals {
					v, err := pnmInt(br)
					if err != nil {
						return nil, err
					}
					vals[i] = scalePNM(v, maxVal)
				}
				rr, gg, bb = vals[0], vals[1], vals[2]
			}
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(rr), G: uint8(gg), B: uint8(bb), A: 255})
		}
	}
	return img, nil
}

func decodePBMRaw(br *bufio.Reader, img *image.NRGBA) (image.Image, error) {
	b := img.Bounds()
	rowBytes := (b.Dx() + 7) / 8
	row := make([]byte, rowBytes)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		if _, err := io.ReadFull(br, row); err != nil {
			return nil, fmt.Errorf("read pbm row: %w", err)
		}
		for x := 0; x < b.Dx(); x++ {
			bit := row[x/8] >> (7 - uint(x%8)) & 1
			val := uint8(255)
			if bit == 1 {
				val = 0
			}
			img.SetNRGBA(b.Min.X+x, y, color.NRGBA{R: val, G: val, B: val, A: 255})
		}
	}
	return img, nil
}

func decodePNMRaw(br *bufio.Reader, img *image.NRGBA, variant byte, maxVal int) (image.Image, error) {
	b := img.Bounds()
	samples := 1
	if variant == '6' {
		samples = 3
	}
	bytesPerSample := 1
	if maxVal > 255 {
		bytesPerSample = 2
	}

	row := make([]byte, b.Dx()*samples*bytesPerSample)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		if _, err := io.ReadFull(br, row); err != nil {
			return nil, fmt.Errorf("read pnm row: %w", err)
		}
		for x := 0; x < b.Dx(); x++ {
			var vals [3]int
			for s := 0; s < samples; s++ {
				idx := (x*samples + s) * bytesPerSample
				v := int(row[idx])
				if bytesPerSample == 2 {
					v = v<<8 | int(row[idx+1])
				}
				vals[s] = scalePNM(v, maxVal)
			}
			if samples == 1 {
				vals[1], vals[2] = vals[0], vals[0]
			}
			img.SetNRGBA(b.Min.X+x, y, color.NRGBA{
				R: uint8(vals[0]), G: uint8(vals[1]), B: uint8(vals[2]), A: 255,
			})
		}
	}
	return img, nil
}

func scalePNM(v, maxVal int) int {
	if v < 0 {
		return 0
	}
	if v > maxVal {
		v = maxVal
	}
	return v * 255 / maxVal
}

// pnmToken reads the next whitespace-delimited token, skipping comments.
func pnmToken(br *bufio.Reader) (string, error) {
	tok := make([]byte, 0, 8)
	for {
		c, err := br.ReadByte()
		if err != nil {
			if err == io.EOF && len(tok) > 0 {
				return string(tok), nil
			}
			return "", err
		}
		switch {
		case c == '#':
			if _, err := br.ReadString('\n'); err != nil && err != io.EOF {
				return "", err
			}
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			if len(tok) > 0 {
				return string(tok), nil
			}
		default:
			tok = append(tok, c)
		}
	}
}

func pnmInt(br *bufio.Reader) (int, error) {
	tok, err := pnmToken(br)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range tok {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("invalid pnm integer %q", tok)
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}
