/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package codec

import (
	"encoding/binary"
	"fmt"
	"net"

	ber "github.com/go-asn1-ber/asn1-ber"

	liberr "github.com/nabbar/snmpmgr/errors"
	"github.com/nabbar/snmpmgr/oid"
	"github.com/nabbar/snmpmgr/varbind"
)

// PDU tag values, context class + constructed, RFC 1157/1905.
const (
	tagGetRequest     ber.Tag = 0xA0 & 0x1f
	tagGetNextRequest ber.Tag = 0xA1 & 0x1f
	tagGetResponse    ber.Tag = 0xA2 & 0x1f
	tagSetRequest     ber.Tag = 0xA3 & 0x1f
	tagGetBulkRequest ber.Tag = 0xA5 & 0x1f
)

func kindToTag(k Kind) ber.Tag {
	switch k {
	case KindGetRequest:
		return tagGetRequest
	case KindGetNextRequest:
		return tagGetNextRequest
	case KindGetResponse:
		return tagGetResponse
	case KindSetRequest:
		return tagSetRequest
	case KindGetBulkRequest:
		return tagGetBulkRequest
	default:
		return tagGetRequest
	}
}

func tagToKind(t ber.Tag) Kind {
	switch t {
	case tagGetRequest:
		return KindGetRequest
	case tagGetNextRequest:
		return KindGetNextRequest
	case tagGetResponse:
		return KindGetResponse
	case tagSetRequest:
		return KindSetRequest
	case tagGetBulkRequest:
		return KindGetBulkRequest
	default:
		return KindGetResponse
	}
}

// berCodec is the default Codec implementation: SNMPv1/v2c messages
// encoded/decoded as BER via go-asn1-ber/asn1-ber, following the same
// three-stage unmarshal approach (envelope, then PDU, then per-varbind
// value) used by the reference BER-based SNMP session implementation
// this package is grounded on.
type berCodec struct{}

// New returns the default BER Codec.
func New() Codec {
	return berCodec{}
}

func (berCodec) Encode(m Message) ([]byte, error) {
	envelope := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "message")
	envelope.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger, int64(m.Version), "version"))
	envelope.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, m.Community, "community"))

	pdu := ber.Encode(ber.ClassContext, ber.TypeConstructed, kindToTag(m.PDU.Kind), nil, "pdu")
	pdu.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger, int64(m.PDU.RequestID), "request-id"))
	pdu.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger, int64(m.PDU.ErrorStatus), "error-status"))
	pdu.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger, int64(m.PDU.ErrorIndex), "error-index"))

	vbList := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "varbind-list")
	for _, vb := range m.PDU.Varbinds {
		vbPacket, err := encodeVarbind(vb)
		if err != nil {
			return nil, err
		}
		vbList.AppendChild(vbPacket)
	}
	pdu.AppendChild(vbList)
	envelope.AppendChild(pdu)

	return envelope.Bytes(), nil
}

func encodeVarbind(vb varbind.Varbind) (*ber.Packet, error) {
	seq := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "varbind")

	oidContent, err := encodeOIDContent(vb.OID)
	if err != nil {
		return nil, err
	}
	oidPacket := ber.Encode(ber.ClassUniversal, ber.TypePrimitive, ber.TagObjectIdentifier, oidContent, "oid")
	seq.AppendChild(oidPacket)

	valPacket, err := encodeValue(vb.Type, vb.Value)
	if err != nil {
		return nil, err
	}
	seq.AppendChild(valPacket)

	return seq, nil
}

func encodeValue(t varbind.Type, v interface{}) (*ber.Packet, error) {
	switch t {
	case varbind.TypeInteger:
		n, _ := v.(int64)
		return ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger, n, "value"), nil
	case varbind.TypeOctetString:
		s, _ := v.(string)
		return ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, s, "value"), nil
	case varbind.TypeNull:
		return ber.Encode(ber.ClassUniversal, ber.TypePrimitive, ber.TagNull, nil, "value"), nil
	case varbind.TypeObjectIdentifier:
		o, _ := v.(oid.OID)
		content, err := encodeOIDContent(o)
		if err != nil {
			return nil, err
		}
		return ber.Encode(ber.ClassUniversal, ber.TypePrimitive, ber.TagObjectIdentifier, content, "value"), nil
	case varbind.TypeIPAddress:
		ip, _ := v.(net.IP)
		ip4 := ip.To4()
		if ip4 == nil {
			ip4 = net.IPv4zero.To4()
		}
		return ber.Encode(ber.ClassApplication, ber.TypePrimitive, ber.Tag(0), []byte(ip4), "value"), nil
	case varbind.TypeCounter32, varbind.TypeGauge32, varbind.TypeTimeTicks, varbind.TypeUnsigned32:
		n, _ := v.(uint32)
		return ber.Encode(ber.ClassApplication, ber.TypePrimitive, applicationTagFor(t), encodeUint(n), "value"), nil
	case varbind.TypeCounter64:
		n, _ := v.(uint64)
		return ber.Encode(ber.ClassApplication, ber.TypePrimitive, ber.Tag(6), encodeUint64(n), "value"), nil
	case varbind.TypeBoolean:
		b, _ := v.(bool)
		n := int64(0)
		if b {
			n = 1
		}
		return ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagBoolean, n, "value"), nil
	case varbind.TypeOpaque:
		b, _ := v.([]byte)
		return ber.Encode(ber.ClassApplication, ber.TypePrimitive, ber.Tag(4), b, "value"), nil
	case varbind.TypeNoSuchObject:
		return ber.Encode(ber.ClassContext, ber.TypePrimitive, ber.Tag(0), nil, "no-such-object"), nil
	case varbind.TypeNoSuchInstance:
		return ber.Encode(ber.ClassContext, ber.TypePrimitive, ber.Tag(1), nil, "no-such-instance"), nil
	case varbind.TypeEndOfMibView:
		return ber.Encode(ber.ClassContext, ber.TypePrimitive, ber.Tag(2), nil, "end-of-mib-view"), nil
	default:
		return nil, liberr.ErrWrongType.Errorf(t.String() + " is not encodable")
	}
}

// applicationTagFor picks the RFC 1155 application-class tag for the
// three scalar SMI types that share it (counter32=1, gauge32=2,
// timeticks=3); unsigned32 reuses gauge32's tag per RFC 2578 §7.1.8.
func applicationTagFor(t varbind.Type) ber.Tag {
	switch t {
	case varbind.TypeCounter32:
		return ber.Tag(1)
	case varbind.TypeGauge32, varbind.TypeUnsigned32:
		return ber.Tag(2)
	case varbind.TypeTimeTicks:
		return ber.Tag(3)
	default:
		return ber.Tag(0)
	}
}

func encodeUint(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	i := 0
	for i < 3 && b[i] == 0 {
		i++
	}
	return b[i:]
}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	i := 0
	for i < 7 && b[i] == 0 {
		i++
	}
	return b[i:]
}

func (berCodec) Decode(b []byte) (Message, error) {
	packet, err := ber.DecodePacket(b)
	if err != nil {
		return Message{}, liberr.ErrDecodeFailure.Error(err)
	}
	if len(packet.Children) < 3 {
		return Message{}, liberr.ErrDecodeFailure.Errorf(fmt.Sprintf("message envelope has %d children, want 3", len(packet.Children)))
	}

	version := Version(asInt64(packet.Children[0]))
	community, _ := packet.Children[1].Value.(string)

	pduPacket := packet.Children[2]
	pdu, err := decodePDU(pduPacket)
	if err != nil {
		return Message{}, err
	}

	return Message{Version: version, Community: community, PDU: pdu}, nil
}

func decodePDU(p *ber.Packet) (PDU, error) {
	if len(p.Children) < 4 {
		return PDU{}, liberr.ErrDecodeFailure.Errorf(fmt.Sprintf("pdu has %d children, want 4", len(p.Children)))
	}

	pdu := PDU{
		Kind:        tagToKind(p.Tag),
		RequestID:   int32(asInt64(p.Children[0])),
		ErrorStatus: int(asInt64(p.Children[1])),
		ErrorIndex:  int(asInt64(p.Children[2])),
	}

	vbList := p.Children[3]
	pdu.Varbinds = make([]varbind.Varbind, 0, len(vbList.Children))
	for _, vbPacket := range vbList.Children {
		vb, err := decodeVarbind(vbPacket)
		if err != nil {
			return PDU{}, err
		}
		pdu.Varbinds = append(pdu.Varbinds, vb)
	}

	return pdu, nil
}

func decodeVarbind(p *ber.Packet) (varbind.Varbind, error) {
	if len(p.Children) < 2 {
		return varbind.Varbind{}, liberr.ErrDecodeFailure.Errorf(fmt.Sprintf("varbind has %d children, want 2", len(p.Children)))
	}

	o, err := decodeOIDContent(p.Children[0].ByteValue)
	if err != nil {
		return varbind.Varbind{}, err
	}

	t, v, err := decodeValue(p.Children[1])
	if err != nil {
		return varbind.Varbind{}, err
	}

	return varbind.New(o, t, v), nil
}

func decodeValue(p *ber.Packet) (varbind.Type, interface{}, error) {
	switch p.ClassType {
	case ber.ClassUniversal:
		switch p.Tag {
		case ber.TagInteger:
			return varbind.TypeInteger, asInt64(p), nil
		case ber.TagOctetString:
			s, _ := p.Value.(string)
			if s == "" && len(p.ByteValue) > 0 {
				s = string(p.ByteValue)
			}
			return varbind.TypeOctetString, s, nil
		case ber.TagNull:
			return varbind.TypeNull, nil, nil
		case ber.TagObjectIdentifier:
			o, err := decodeOIDContent(p.ByteValue)
			if err != nil {
				return 0, nil, err
			}
			return varbind.TypeObjectIdentifier, o, nil
		case ber.TagBoolean:
			return varbind.TypeBoolean, asInt64(p) != 0, nil
		}
	case ber.ClassApplication:
		switch p.Tag {
		case ber.Tag(0):
			return varbind.TypeIPAddress, net.IP(p.ByteValue), nil
		case ber.Tag(1):
			return varbind.TypeCounter32, decodeUint32(p.ByteValue), nil
		case ber.Tag(2):
			return varbind.TypeGauge32, decodeUint32(p.ByteValue), nil
		case ber.Tag(3):
			return varbind.TypeTimeTicks, decodeUint32(p.ByteValue), nil
		case ber.Tag(4):
			return varbind.TypeOpaque, p.ByteValue, nil
		case ber.Tag(6):
			return varbind.TypeCounter64, decodeUint64(p.ByteValue), nil
		}
	case ber.ClassContext:
		switch p.Tag {
		case ber.Tag(0):
			return varbind.TypeNoSuchObject, nil, nil
		case ber.Tag(1):
			return varbind.TypeNoSuchInstance, nil, nil
		case ber.Tag(2):
			return varbind.TypeEndOfMibView, nil, nil
		}
	}

	return 0, nil, liberr.ErrDecodeFailure.Errorf(fmt.Sprintf("unrecognised value tag class=%d tag=%d", p.ClassType, p.Tag))
}

func decodeUint32(b []byte) uint32 {
	var v uint32
	for _, by := range b {
		v = v<<8 | uint32(by)
	}
	return v
}

func decodeUint64(b []byte) uint64 {
	var v uint64
	for _, by := range b {
		v = v<<8 | uint64(by)
	}
	return v
}

func asInt64(p *ber.Packet) int64 {
	switch n := p.Value.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case uint64:
		return int64(n)
	default:
		return 0
	}
}

func (berCodec) OIDStringToList(s string) (oid.OID, error) {
	return oid.Parse(s)
}

func (berCodec) OIDListToString(o oid.OID) string {
	return o.String()
}

func (berCodec) OIDCompare(a, b oid.OID) int {
	return oid.Compare(a, b)
}

func (berCodec) ValidErrorStatus(code int) bool {
	_, ok := errorAtoms[code]
	return ok
}

func (berCodec) ErrorAtom(code int) string {
	if s, ok := errorAtoms[code]; ok {
		return s
	}
	return "gen_err"
}
