package keyexchange

import (
	"context"
	"encoding/hex"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/proregia/pumpcore/pumperr"
)

// GRPCAddr is the relay's gRPC endpoint.
const GRPCAddr = "connect.ml.pr.sec01.proregia.io:8090"

const (
	nonceRequestMethod = "/Proregia.Bluetooth.Contracts.Proto.NonceRequest/Send"
	encryptKeyMethod   = "/Proregia.Bluetooth.Contracts.Proto.EncryptKey/Send"
)

// GRPCExchanger is the gRPC relay form: hand-encoded varint/length-
// delimited protobuf messages over a TLS connection, with uppercase hex
// for every binary field (unlike the HTTP form's lowercase).
type GRPCExchanger struct {
	Addr string
	conn *grpc.ClientConn
}

// NewGRPCExchanger dials the relay's gRPC endpoint with TLS transport
// credentials.
func NewGRPCExchanger(ctx context.Context, addr string) (*GRPCExchanger, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(credentials.NewTLS(nil)))
	if err != nil {
		return nil, fmt.Errorf("keyexchange: dial relay gRPC endpoint %s: %w", addr, err)
	}
	return &GRPCExchanger{Addr: addr, conn: conn}, nil
}

// Close releases the underlying gRPC connection.
func (e *GRPCExchanger) Close() error {
	return e.conn.Close()
}

// Exchange implements Exchanger over the gRPC relay form: a NonceRequest
// call to obtain a per-attempt server nonce, followed by an EncryptKey
// call carrying the device's challenge/public-key material.
func (e *GRPCExchanger) Exchange(ctx context.Context, req ExchangeRequest) (ExchangeResponse, error) {
	nonceReqMsg := encodeStringField(1, req.DeviceID)
	var nonceRespBuf rawMessage
	if err := e.conn.Invoke(ctx, nonceRequestMethod, rawMessage(nonceReqMsg), &nonceRespBuf, grpc.ForceCodec(rawCodec{})); err != nil {
		return ExchangeResponse{}, fmt.Errorf("%w: NonceRequest.Send: %v", pumperr.ErrRelayFailure, err)
	}
	serverNonceHex, ok := decodeStringField1(nonceRespBuf)
	if !ok {
		return ExchangeResponse{}, fmt.Errorf("%w: NonceRequest.Send: missing field #1", pumperr.ErrRelayFailure)
	}

	encryptMsg := encodeEncryptKeyRequest(req, serverNonceHex)
	var encryptRespBuf rawMessage
	if err := e.conn.Invoke(ctx, encryptKeyMethod, rawMessage(encryptMsg), &encryptRespBuf, grpc.ForceCodec(rawCodec{})); err != nil {
		return ExchangeResponse{}, fmt.Errorf("%w: EncryptKey.Send: %v", pumperr.ErrRelayFailure, err)
	}
	encryptedHex, ok := decodeStringField1(encryptRespBuf)
	if !ok {
		return ExchangeResponse{}, fmt.Errorf("%w: EncryptKey.Send: missing field #1", pumperr.ErrRelayFailure)
	}

	encryptedBytes, err := hex.DecodeString(encryptedHex)
	if err != nil {
		return ExchangeResponse{}, fmt.Errorf("%w: decode uppercase-hex encrypted_bytes: %v", pumperr.ErrRelayFailure, err)
	}
	serverNonce, err := hex.DecodeString(serverNonceHex)
	if err != nil {
		return ExchangeResponse{}, fmt.Errorf("%w: decode uppercase-hex server_nonce: %v", pumperr.ErrRelayFailure, err)
	}

	return ExchangeResponse{EncryptedBytes: encryptedBytes, ServerNonce: serverNonce}, nil
}

// encodeEncryptKeyRequest hand-builds the EncryptKey request message: four
// uppercase-hex string fields in the order the relay expects them
// (challenge, pump_public_key, app_public_key, bt_address), then device_id
// and the server nonce obtained from NonceRequest, both passed as-is.
func encodeEncryptKeyRequest(req ExchangeRequest, serverNonceHex string) []byte {
	var b []byte
	b = appendStringField(b, 1, upperHex(req.Challenge[:]))
	b = appendStringField(b, 2, upperHex(req.PumpPublicKey[:]))
	b = appendStringField(b, 3, upperHex(req.AppPublicKey[:]))
	b = appendStringField(b, 4, upperHex(req.BTAddress[:]))
	b = appendStringField(b, 5, req.DeviceID)
	b = appendStringField(b, 6, serverNonceHex)
	return b
}

func encodeStringField(num protowire.Number, v string) []byte {
	return appendStringField(nil, num, v)
}

func appendStringField(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendString(b, v)
	return b
}

// decodeStringField1 scans a message for field #1 (wire type
// length-delimited) and returns its contents as a string. Only field #1
// is ever decoded from a relay response.
func decodeStringField1(b []byte) (string, bool) {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return "", false
		}
		b = b[n:]
		if typ != protowire.BytesType {
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return "", false
			}
			b = b[m:]
			continue
		}
		v, m := protowire.ConsumeBytes(b)
		if m < 0 {
			return "", false
		}
		if num == 1 {
			return string(v), true
		}
		b = b[m:]
	}
	return "", false
}

func upperHex(b []byte) string {
	return fmt.Sprintf("%X", b)
}

// rawMessage is a pre-encoded protobuf message transmitted as opaque bytes
// since this relay form is called without generated stubs.
type rawMessage []byte

// rawCodec is a grpc/encoding.Codec that passes rawMessage values through
// without interpretation, letting Exchange hand-encode/decode the wire
// bytes itself via protowire.
type rawCodec struct{}

func (rawCodec) Marshal(v interface{}) ([]byte, error) {
	switch m := v.(type) {
	case rawMessage:
		return m, nil
	case *rawMessage:
		return *m, nil
	default:
		return nil, fmt.Errorf("keyexchange: rawCodec.Marshal: unsupported type %T", v)
	}
}

func (rawCodec) Unmarshal(data []byte, v interface{}) error {
	m, ok := v.(*rawMessage)
	if !ok {
		return fmt.Errorf("keyexchange: rawCodec.Unmarshal: unsupported type %T", v)
	}
	*m = append((*m)[:0], data...)
	return nil
}

func (rawCodec) Name() string { return "pumpcore-raw" }

var _ Exchanger = (*GRPCExchanger)(nil)
