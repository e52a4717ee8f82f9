package engine

import "clobex.com/internal/market"

// CmdCodec WAL 里命令的编码
type CmdCodec interface {
	Encode(dst []byte, seq uint64, cmd Command) ([]byte, error)
	Decode(payload []byte) (seq uint64, cmd Command, err error)
}

// NotificationSink actor 提交完一个 batch 后往这里发通知，不允许阻塞
type NotificationSink interface {
	TryPublish(n market.Notification) bool
}

type walWriter interface {
	Append(payload []byte) error
	Flush() error
	Close() error
	Offset() int64
	// Rewind 丢掉 offset 之后的记录，包括还没写出去的缓冲
	Rewind(offset int64) error
}
