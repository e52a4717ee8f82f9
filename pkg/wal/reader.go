package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
)

type ReaderOptions struct {
	MaxPayload         int
	AllowTruncatedTail bool // 尾部半写（崩溃时常见）当作正常结束
	BufferSize         int
}

// Reader 顺序读记录，可以从某个偏移开始（比如 tail/dump 工具）
type Reader struct {
	f   *os.File
	br  *bufio.Reader
	off int64

	maxPayload    int
	allowTail     bool
	truncatedTail bool
}

func OpenReader(path string, offset int64, opts ReaderOptions) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1 << 20
	}
	if opts.MaxPayload <= 0 {
		opts.MaxPayload = DefaultMaxPayload
	}
	return &Reader{
		f:          f,
		br:         bufio.NewReaderSize(f, opts.BufferSize),
		off:        offset,
		maxPayload: opts.MaxPayload,
		allowTail:  opts.AllowTruncatedTail,
	}, nil
}

func (r *Reader) Close() error          { return r.f.Close() }
func (r *Reader) TruncatedTail() bool   { return r.truncatedTail }
func (r *Reader) LastGoodOffset() int64 { return r.off }

// Next 读下一条。读完返回 io.EOF；允许半写尾巴时半写也返回 io.EOF
func (r *Reader) Next() ([]byte, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r.br, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, r.tail(err, ErrCorruptHeader)
	}
	ln := int(binary.LittleEndian.Uint32(hdr[0:4]))
	crc := binary.LittleEndian.Uint32(hdr[4:8])
	if ln > r.maxPayload {
		return nil, ErrPayloadTooLarge
	}
	payload := make([]byte, ln)
	if _, err := io.ReadFull(r.br, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, r.tail(err, ErrCorruptPayload)
	}
	if crc32.ChecksumIEEE(payload) != crc {
		return nil, fmt.Errorf("%w at offset %d", ErrChecksumMismatch, r.off)
	}
	r.off += int64(headerSize + ln)
	return payload, nil
}

func (r *Reader) tail(err, corrupt error) error {
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		return err
	}
	r.truncatedTail = true
	if r.allowTail {
		return io.EOF
	}
	return corrupt
}

type ReplayOptions struct {
	MaxPayload         int
	AllowTruncatedTail bool
}

type ReplayStats struct {
	Records        int
	LastGoodOffset int64
	TruncatedTail  bool
}

// Replay 从头读整个文件；文件不存在说明还没写过，不算错误
func Replay(path string, opts ReplayOptions, onRecord func(payload []byte) error) (ReplayStats, error) {
	var st ReplayStats
	r, err := OpenReader(path, 0, ReaderOptions{MaxPayload: opts.MaxPayload, AllowTruncatedTail: opts.AllowTruncatedTail})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return st, nil
		}
		return st, err
	}
	defer r.Close()
	for {
		payload, err := r.Next()
		st.LastGoodOffset = r.LastGoodOffset()
		st.TruncatedTail = r.TruncatedTail()
		if errors.Is(err, io.EOF) {
			return st, nil
		}
		if err != nil {
			return st, err
		}
		if err := onRecord(payload); err != nil {
			return st, err
		}
		st.Records++
	}
}

// TruncateTo 截掉 offset 之后的内容，用来清理半写尾巴；offset 超过文件大小时什么也不做
func TruncateTo(path string, offset int64) error {
	if offset < 0 {
		return fmt.Errorf("wal: negative truncate offset %d", offset)
	}
	st, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if offset >= st.Size() {
		return nil
	}
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Truncate(offset); err != nil {
		return err
	}
	return f.Sync()
}
