package msp

type parseState int

const (
	stateMarker   parseState = iota // waiting for '$'
	statePreamble                   // waiting for 'X'
	stateDir                        // waiting for direction byte
	stateFlag                       // waiting for flag byte
	stateCodeLow                    // waiting for function, low byte
	stateCodeHigh                   // waiting for function, high byte
	stateSizeLow                    // waiting for payload size, low byte
	stateSizeHigh                   // waiting for payload size, high byte
	statePayload                    // waiting for payload bytes
	stateChecksum                   // waiting for crc byte
)

// Parser decodes MSP v2 frames one byte at a time.
type Parser struct {
	state parseState
	frame *Frame
	size  uint16
	crc   byte
}

// Reset drops any partially decoded frame and returns to header scan.
func (p *Parser) Reset() {
	p.state = stateMarker
	p.frame = nil
}

// Receiving indicates a frame is partially decoded.
func (p *Parser) Receiving() bool {
	return p.state > statePreamble
}

// Parse consumes one byte. It returns a Frame when the byte completes
// one, a ChecksumError when a frame fails verification, and (nil, nil)
// otherwise. After an error the parser is back at header scan.
func (p *Parser) Parse(b byte) (*Frame, error) {
	switch p.state {
	case stateMarker:
		if b == '$' {
			p.state = statePreamble
		}
	case statePreamble:
		switch b {
		case 'X':
			p.state = stateDir
		case '$':
			// stay, previous '$' was noise
		default:
			p.state = stateMarker
		}
	case stateDir:
		if !Direction(b).IsValid() {
			p.state = stateMarker
			break
		}
		p.frame = &Frame{Dir: Direction(b)}
		p.crc, p.size = 0, 0
		p.state = stateFlag
	case stateFlag:
		p.frame.Flag = b
		p.crc = crc8(p.crc, b)
		p.state = stateCodeLow
	case stateCodeLow:
		p.frame.Code = uint16(b)
		p.crc = crc8(p.crc, b)
		p.state = stateCodeHigh
	case stateCodeHigh:
		p.frame.Code |= uint16(b) << 8
		p.crc = crc8(p.crc, b)
		p.state = stateSizeLow
	case stateSizeLow:
		p.size = uint16(b)
		p.crc = crc8(p.crc, b)
		p.state = stateSizeHigh
	case stateSizeHigh:
		p.size |= uint16(b) << 8
		p.crc = crc8(p.crc, b)
		if p.size == 0 {
			p.state = stateChecksum
		} else {
			p.frame.Payload = make([]byte, 0, p.size)
			p.state = statePayload
		}
	case statePayload:
		p.frame.Payload = append(p.frame.Payload, b)
		p.crc = crc8(p.crc, b)
		if len(p.frame.Payload) == int(p.size) {
			p.state = stateChecksum
		}
	case stateChecksum:
		frame, want := p.frame, p.crc
		p.Reset()
		if b != want {
			return nil, &ChecksumError{Code: frame.Code, Want: want, Got: b}
		}
		return frame, nil
	}
	return nil, nil
}
