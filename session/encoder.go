package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const (
	sendDetailsFormatVersionCurrent = 2
	sendDetailsFormatVersionV1      = 1
)

const (
	sendDetailsFlagSentOK = 1 << iota
)

// EncodeSendDetails serializes d into the current binary format.
func EncodeSendDetails(d *SendDetails) ([]byte, error) {
	if d == nil {
		return nil, errors.New("nil send details")
	}

	var buf bytes.Buffer
	buf.WriteByte(sendDetailsFormatVersionCurrent)

	var flags byte
	if d.SentOK {
		flags |= sendDetailsFlagSentOK
	}
	buf.WriteByte(flags)

	if len(d.ChannelType) > 255 {
		return nil, errors.New("channel type too long")
	}
	buf.WriteByte(byte(len(d.ChannelType)))
	buf.WriteString(d.ChannelType)

	for _, s := range []string{d.Address, d.SentMessage, d.TimeoutMessage} {
		if len(s) > 65535 {
			return nil, errors.New("send details field too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(s))); err != nil {
			return nil, err
		}
		buf.WriteString(s)
	}

	if err := binary.Write(&buf, binary.BigEndian, d.Timeout); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// DecodeSendDetails parses data written by any supported format version.
// Version 1 records carry no timeout fields.
func DecodeSendDetails(data []byte) (*SendDetails, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sendDetailsFormatVersionCurrent && version != sendDetailsFormatVersionV1 {
		return nil, errors.New("invalid send details version")
	}

	d := &SendDetails{}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	d.SentOK = flags&sendDetailsFlagSentOK != 0

	typeLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	channelType := make([]byte, typeLen)
	if _, err := io.ReadFull(reader, channelType); err != nil {
		return nil, err
	}
	d.ChannelType = string(channelType)

	if d.Address, err = readString16(reader); err != nil {
		return nil, err
	}
	if d.SentMessage, err = readString16(reader); err != nil {
		return nil, err
	}

	if version == sendDetailsFormatVersionCurrent {
		if d.TimeoutMessage, err = readString16(reader); err != nil {
			return nil, err
		}
		if err := binary.Read(reader, binary.BigEndian, &d.Timeout); err != nil {
			return nil, err
		}
	}

	return d, nil
}

func readString16(reader *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return "", err
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}
