package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
)

// 记录格式：len(4, LE) | crc32(4, LE) | payload
const (
	headerSize      = 8
	defaultFilePerm = 0o644
)

// DefaultMaxPayload 单条记录上限，防止坏数据把内存吃爆
const DefaultMaxPayload = 4 << 20 // 4MB

var (
	ErrCorruptHeader    = errors.New("wal: corrupt header")
	ErrCorruptPayload   = errors.New("wal: corrupt payload")
	ErrChecksumMismatch = errors.New("wal: checksum mismatch")
	ErrPayloadTooLarge  = errors.New("wal: payload too large")
	ErrClosed           = errors.New("wal: writer closed")
)

// Writer 追加写。Append 只进 bufio，Flush 才 fsync，调用方按 batch 组提交
type Writer struct {
	path string
	f    *os.File
	bw   *bufio.Writer
	off  int64 // 逻辑偏移，包含还在 bufio 里的数据
}

func OpenWrite(path string, bufSize int) (*Writer, error) {
	if bufSize <= 0 {
		bufSize = 1 << 20
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, defaultFilePerm)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Writer{path: path, f: f, bw: bufio.NewWriterSize(f, bufSize), off: st.Size()}, nil
}

func (w *Writer) Path() string  { return w.path }
func (w *Writer) Offset() int64 { return w.off }

func (w *Writer) Append(payload []byte) error {
	if w.f == nil {
		return ErrClosed
	}
	if len(payload) > DefaultMaxPayload {
		return ErrPayloadTooLarge
	}
	var hdr [headerSize]byte
	binary.LittleEndian.PutUint32(hdr[:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(hdr[4:], crc32.ChecksumIEEE(payload))
	if _, err := w.bw.Write(hdr[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptHeader, err)
	}
	if _, err := w.bw.Write(payload); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptPayload, err)
	}
	w.off += int64(headerSize + len(payload))
	return nil
}

// Flush 写出 bufio 并 fsync，返回 nil 才算持久化
func (w *Writer) Flush() error {
	if w.f == nil {
		return ErrClosed
	}
	if err := w.bw.Flush(); err != nil {
		return err
	}
	return w.f.Sync()
}

// Rewind 退回到 offset，缓冲和文件里之后的内容都丢掉。
// 用来撤掉 flush 失败的那一批，offset 必须是之前某次 Offset 的返回值
func (w *Writer) Rewind(offset int64) error {
	if w.f == nil {
		return ErrClosed
	}
	if offset < 0 || offset > w.off {
		return fmt.Errorf("wal: rewind offset %d out of range [0, %d]", offset, w.off)
	}
	w.bw.Reset(w.f)
	if err := w.f.Truncate(offset); err != nil {
		return err
	}
	w.off = offset
	return w.f.Sync()
}

func (w *Writer) Close() error {
	if w.f == nil {
		return nil
	}
	err := w.Flush()
	if cerr := w.f.Close(); err == nil {
		err = cerr
	}
	w.f = nil
	return err
}
