package engine

import (
	"encoding/binary"
	"errors"

	"clobex.com/internal/market"
	"clobex.com/internal/matching"
	"github.com/gagliardetto/solana-go"
)

// 定长小端编码，公钥按 32 字节原样写。market 不进记录：一个市场一个 WAL 文件
const (
	cmdWalVersion = 1
	cmdRecordLen  = 137

	offVer       = 0
	offType      = 1
	offSeq       = 2   // uint64
	offReqID     = 10  // uint64
	offTs        = 18  // int64 as uint64
	offSigner    = 26  // [32]byte
	offOwner     = 58  // [32]byte
	offSide      = 90  // uint8
	offOrderType = 91  // uint8
	offPrice     = 92  // uint64
	offQty       = 100 // uint64
	offClientID  = 108 // uint64
	offOrderID   = 116 // uint64
	offLimit     = 124 // uint32
	offStatus    = 128 // uint8
	// 129..136 预留
)

var (
	ErrBadCmdRecordLen = errors.New("wal cmd: bad record length")
	ErrBadCmdVersion   = errors.New("wal cmd: bad version")
	ErrBadCmdType      = errors.New("wal cmd: bad cmd type")
)

type BinaryCmdCodec struct{}

func (BinaryCmdCodec) Encode(dst []byte, seq uint64, cmd Command) ([]byte, error) {
	if !cmd.Type.Mutates() {
		return nil, ErrBadCmdType
	}
	if cap(dst) < cmdRecordLen {
		dst = make([]byte, cmdRecordLen)
	} else {
		dst = dst[:cmdRecordLen]
		clear(dst)
	}

	dst[offVer] = cmdWalVersion
	dst[offType] = byte(cmd.Type)
	binary.LittleEndian.PutUint64(dst[offSeq:], seq)
	binary.LittleEndian.PutUint64(dst[offReqID:], cmd.ReqID)
	binary.LittleEndian.PutUint64(dst[offTs:], uint64(cmd.Ts))
	copy(dst[offSigner:offSigner+32], cmd.Signer[:])
	copy(dst[offOwner:offOwner+32], cmd.Owner[:])
	dst[offSide] = byte(cmd.Side)
	dst[offOrderType] = byte(cmd.OrderType)
	binary.LittleEndian.PutUint64(dst[offPrice:], cmd.Price)
	binary.LittleEndian.PutUint64(dst[offQty:], cmd.MaxBaseQty)
	binary.LittleEndian.PutUint64(dst[offClientID:], cmd.ClientOrderID)
	binary.LittleEndian.PutUint64(dst[offOrderID:], cmd.OrderID)
	binary.LittleEndian.PutUint32(dst[offLimit:], cmd.Limit)
	dst[offStatus] = byte(cmd.Status)
	return dst, nil
}

func (BinaryCmdCodec) Decode(payload []byte) (seq uint64, cmd Command, err error) {
	if len(payload) != cmdRecordLen {
		return 0, Command{}, ErrBadCmdRecordLen
	}
	if payload[offVer] != cmdWalVersion {
		return 0, Command{}, ErrBadCmdVersion
	}
	ct := CmdType(payload[offType])
	if !ct.Mutates() {
		return 0, Command{}, ErrBadCmdType
	}

	seq = binary.LittleEndian.Uint64(payload[offSeq:])
	cmd.Type = ct
	cmd.ReqID = binary.LittleEndian.Uint64(payload[offReqID:])
	cmd.Ts = int64(binary.LittleEndian.Uint64(payload[offTs:]))
	cmd.Signer = solana.PublicKeyFromBytes(payload[offSigner : offSigner+32])
	cmd.Owner = solana.PublicKeyFromBytes(payload[offOwner : offOwner+32])
	cmd.Side = matching.Side(payload[offSide])
	cmd.OrderType = matching.OrderType(payload[offOrderType])
	cmd.Price = binary.LittleEndian.Uint64(payload[offPrice:])
	cmd.MaxBaseQty = binary.LittleEndian.Uint64(payload[offQty:])
	cmd.ClientOrderID = binary.LittleEndian.Uint64(payload[offClientID:])
	cmd.OrderID = binary.LittleEndian.Uint64(payload[offOrderID:])
	cmd.Limit = binary.LittleEndian.Uint32(payload[offLimit:])
	cmd.Status = market.Status(payload[offStatus])
	return seq, cmd, nil
}
