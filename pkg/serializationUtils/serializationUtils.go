package serializationUtils

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// MaxStringLen is the longest string EncodeStringToBuffer accepts.
const MaxStringLen = math.MaxUint16

func EncodeString(s string) ([]byte, error) {
	b := new(bytes.Buffer)
	if err := EncodeStringToBuffer(s, b); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func DecodeString(buf []byte) (string, error) {
	b := bytes.NewBuffer(buf)
	return DecodeStringFromBuffer(b)
}

func EncodeStringToBuffer(s string, buffer *bytes.Buffer) error {
	sb := []byte(s)
	if len(sb) > MaxStringLen {
		return fmt.Errorf("string too long: %d bytes (max %d)", len(sb), MaxStringLen)
	}
	if err := binary.Write(buffer, binary.BigEndian, uint16(len(sb))); err != nil {
		return err
	}
	n, err := buffer.Write(sb)
	if err != nil {
		return err
	}
	if n != len(sb) {
		return fmt.Errorf("expected to write %d bytes, wrote %d", len(sb), n)
	}
	return nil
}

func DecodeStringFromBuffer(buffer *bytes.Buffer) (string, error) {
	var sLen uint16
	if err := binary.Read(buffer, binary.BigEndian, &sLen); err != nil {
		return "", err
	}
	if buffer.Len() < int(sLen) {
		return "", fmt.Errorf("expected to read %d bytes, %d available", sLen, buffer.Len())
	}
	sb := make([]byte, sLen)
	if _, err := buffer.Read(sb); err != nil && sLen > 0 {
		return "", err
	}
	return string(sb), nil
}

func EncodeNumberToBuffer(n interface{}, buffer *bytes.Buffer) error {
	return binary.Write(buffer, binary.BigEndian, n)
}

func DecodeNumberFromBuffer(nPointer interface{}, buffer *bytes.Buffer) error {
	return binary.Read(buffer, binary.BigEndian, nPointer)
}
