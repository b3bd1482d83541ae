package model

import (
	"encoding/binary"
	"errors"
	"math"
)

var ErrShortPacket = errors.New("packet shorter than its declared length")

// WriteReg writes Value to the register at Address.
type WriteReg struct {
	Address uint32
	Value   uint32
}

// ReadReg reads the register at Address.
type ReadReg struct {
	Address uint32
}

// ReadBuffer reads Points consecutive words starting at Address.
type ReadBuffer struct {
	Address uint32
	Points  uint32
}

// ReadRepeat starts streaming Points reads of Address per period. Points == 0 stops the stream.
type ReadRepeat struct {
	Address uint32
	Points  uint32
}

// FlankServo carries the flank servo loop parameters.
type FlankServo struct {
	StopAfterZC   uint16
	RampMinimum   int16
	Ramps         uint32
	Steps         uint32
	MaxIterations uint32
	Threshold     int16
	Ki            float64
}

// WriteFile stores Content under Name.
type WriteFile struct {
	Name    string
	Content []byte
}

// ReadFile requests the content of Name. MaxLen of 0 means the whole file.
type ReadFile struct {
	Name   string
	MaxLen uint32
}

// ShellCommand runs Command on the monitor.
type ShellCommand struct {
	Command string
}

// RebootMonitor reboots the board.
type RebootMonitor struct{}

func need(p []byte, k Kind, order binary.ByteOrder) error {
	if len(p) < k.HeaderLen() {
		return ErrShortPacket
	}
	if uint64(len(p)) < uint64(k.HeaderLen())+k.TrailingLen(p, order) {
		return ErrShortPacket
	}
	return nil
}

func DecodeWriteReg(p []byte, order binary.ByteOrder) (WriteReg, error) {
	if err := need(p, KindWriteReg, order); err != nil {
		return WriteReg{}, err
	}
	return WriteReg{Address: order.Uint32(p[4:]), Value: order.Uint32(p[8:])}, nil
}

func DecodeReadReg(p []byte, order binary.ByteOrder) (ReadReg, error) {
	if err := need(p, KindReadReg, order); err != nil {
		return ReadReg{}, err
	}
	return ReadReg{Address: order.Uint32(p[4:])}, nil
}

func DecodeReadBuffer(p []byte, order binary.ByteOrder) (ReadBuffer, error) {
	if err := need(p, KindReadBuffer, order); err != nil {
		return ReadBuffer{}, err
	}
	return ReadBuffer{Address: order.Uint32(p[4:]), Points: order.Uint32(p[8:])}, nil
}

func DecodeReadRepeat(p []byte, order binary.ByteOrder) (ReadRepeat, error) {
	if err := need(p, KindReadRepeat, order); err != nil {
		return ReadRepeat{}, err
	}
	return ReadRepeat{Address: order.Uint32(p[4:]), Points: order.Uint32(p[8:])}, nil
}

func DecodeFlankServo(p []byte, order binary.ByteOrder) (FlankServo, error) {
	if err := need(p, KindFlankServo, order); err != nil {
		return FlankServo{}, err
	}
	return FlankServo{
		StopAfterZC:   order.Uint16(p[4:]),
		RampMinimum:   int16(order.Uint16(p[6:])),
		Ramps:         order.Uint32(p[8:]),
		Steps:         order.Uint32(p[12:]),
		MaxIterations: order.Uint32(p[16:]),
		Threshold:     int16(order.Uint16(p[20:])),
		Ki:            math.Float64frombits(order.Uint64(p[22:])),
	}, nil
}

func DecodeWriteFile(p []byte, order binary.ByteOrder) (WriteFile, error) {
	if err := need(p, KindWriteFile, order); err != nil {
		return WriteFile{}, err
	}
	nameLen, size := uint64(order.Uint32(p[4:])), uint64(order.Uint32(p[8:]))
	body := p[12:]
	return WriteFile{
		Name:    string(body[:nameLen]),
		Content: body[nameLen : nameLen+size],
	}, nil
}

func DecodeReadFile(p []byte, order binary.ByteOrder) (ReadFile, error) {
	if err := need(p, KindReadFile, order); err != nil {
		return ReadFile{}, err
	}
	nameLen := order.Uint32(p[4:])
	return ReadFile{Name: string(p[12 : 12+nameLen]), MaxLen: order.Uint32(p[8:])}, nil
}

func DecodeShellCommand(p []byte, order binary.ByteOrder) (ShellCommand, error) {
	if err := need(p, KindShellCommand, order); err != nil {
		return ShellCommand{}, err
	}
	cmdLen := order.Uint32(p[4:])
	return ShellCommand{Command: string(p[12 : 12+cmdLen])}, nil
}

func appendU16(b []byte, order binary.ByteOrder, v uint16) []byte {
	var tmp [2]byte
	order.PutUint16(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendU32(b []byte, order binary.ByteOrder, v uint32) []byte {
	var tmp [4]byte
	order.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendU64(b []byte, order binary.ByteOrder, v uint64) []byte {
	var tmp [8]byte
	order.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}

func AppendWriteReg(b []byte, order binary.ByteOrder, r WriteReg) []byte {
	b = appendU32(b, order, MagicWriteReg)
	b = appendU32(b, order, r.Address)
	return appendU32(b, order, r.Value)
}

func AppendReadReg(b []byte, order binary.ByteOrder, r ReadReg) []byte {
	b = appendU32(b, order, MagicReadReg)
	b = appendU32(b, order, r.Address)
	return appendU32(b, order, 0)
}

func AppendReadBuffer(b []byte, order binary.ByteOrder, r ReadBuffer) []byte {
	b = appendU32(b, order, MagicReadBuffer)
	b = appendU32(b, order, r.Address)
	return appendU32(b, order, r.Points)
}

func AppendReadRepeat(b []byte, order binary.ByteOrder, r ReadRepeat) []byte {
	b = appendU32(b, order, MagicReadRepeat)
	b = appendU32(b, order, r.Address)
	return appendU32(b, order, r.Points)
}

func AppendFlankServo(b []byte, order binary.ByteOrder, r FlankServo) []byte {
	b = appendU32(b, order, MagicFlankServo)
	b = appendU16(b, order, r.StopAfterZC)
	b = appendU16(b, order, uint16(r.RampMinimum))
	b = appendU32(b, order, r.Ramps)
	b = appendU32(b, order, r.Steps)
	b = appendU32(b, order, r.MaxIterations)
	b = appendU16(b, order, uint16(r.Threshold))
	return appendU64(b, order, math.Float64bits(r.Ki))
}

func AppendWriteFile(b []byte, order binary.ByteOrder, r WriteFile) []byte {
	b = appendU32(b, order, MagicWriteFile)
	b = appendU32(b, order, uint32(len(r.Name)))
	b = appendU32(b, order, uint32(len(r.Content)))
	b = append(b, r.Name...)
	return append(b, r.Content...)
}

func AppendReadFile(b []byte, order binary.ByteOrder, r ReadFile) []byte {
	b = appendU32(b, order, MagicReadFile)
	b = appendU32(b, order, uint32(len(r.Name)))
	b = appendU32(b, order, r.MaxLen)
	return append(b, r.Name...)
}

func AppendShellCommand(b []byte, order binary.ByteOrder, r ShellCommand) []byte {
	b = appendU32(b, order, MagicShellCommand)
	b = appendU32(b, order, uint32(len(r.Command)))
	b = appendU32(b, order, 0)
	return append(b, r.Command...)
}

func AppendRebootMonitor(b []byte, order binary.ByteOrder) []byte {
	b = appendU32(b, order, MagicRebootMonitor)
	b = appendU32(b, order, 0)
	return appendU32(b, order, 0)
}
