// walcat 把某个市场的命令日志按 JSON 一行一条打出来，排查回放问题用
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"clobex.com/internal/engine"
	"clobex.com/pkg/wal"
)

func main() {
	codec := flag.String("codec", "binary", "日志编码：binary | json")
	from := flag.Int64("offset", 0, "从哪个字节偏移开始读")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: walcat [-codec binary|json] [-offset n] <market>.cmd.wal\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	if err := dump(os.Stdout, flag.Arg(0), *codec, *from); err != nil {
		fmt.Fprintf(os.Stderr, "walcat: %v\n", err)
		os.Exit(1)
	}
}

func dump(out io.Writer, path, codec string, offset int64) error {
	var dec engine.CmdCodec
	switch codec {
	case "binary":
		dec = engine.BinaryCmdCodec{}
	case "json":
		dec = engine.JSONCmdCodec{Version: 1}
	default:
		return fmt.Errorf("unknown codec %q", codec)
	}
	r, err := wal.OpenReader(path, offset, wal.ReaderOptions{AllowTruncatedTail: true})
	if err != nil {
		return err
	}
	defer r.Close()

	w := bufio.NewWriter(out)
	defer w.Flush()
	enc := engine.JSONCmdCodec{Version: 1}
	var line []byte
	for {
		payload, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("offset %d: %w", r.LastGoodOffset(), err)
		}
		seq, cmd, err := dec.Decode(payload)
		if err != nil {
			return fmt.Errorf("offset %d: %w", r.LastGoodOffset(), err)
		}
		if line, err = enc.Encode(line[:0], seq, cmd); err != nil {
			return err
		}
		w.Write(line)
		w.WriteByte('\n')
	}
	if r.TruncatedTail() {
		fmt.Fprintf(os.Stderr, "walcat: torn tail after offset %d\n", r.LastGoodOffset())
	}
	return nil
}
