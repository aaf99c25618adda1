// Package msp implements the MSP v2 wire codec.
package msp

// MSP (MultiWii Serial Protocol) v2 is spoken by flight controller
// firmwares (iNav, Betaflight) over a serial port. Each frame is:
//
//	'$' 'X' dir flag function(2, LE) size(2, LE) payload(size) crc(1)
//
// where dir is '<' (request), '>' (response) or '!' (error) and crc is
// CRC8/DVB-S2 over everything after the three header bytes.
//
// The parser consumes one byte at a time and resynchronizes on the
// '$' 'X' preamble after any decode error, so a corrupted byte costs at
// most the frame it lands in.
//
// Producer: flight controller firmware
// Consumer: link engine
