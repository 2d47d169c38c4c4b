package convert

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Kevin-Rudy/zzping/pkg/core"
	"github.com/Kevin-Rudy/zzping/pkg/framedata"
	"github.com/Kevin-Rudy/zzping/pkg/framedataq"
	"github.com/m-lab/go/warnonerror"
	"github.com/ugorji/go/codec"
)

var jsonHandle = &codec.JsonHandle{}

// DumpOptions 导出设置
type DumpOptions struct {
	Raw  bool // 输入是守护进程的FrameData日志
	JSON bool // 每行一个JSON对象

	KeyframeRelative bool // FrameData的增量帧时间相对于上一个完整帧
}

// rawRecord FrameData帧的JSON形式
type rawRecord struct {
	Time     string   `codec:"time"`
	Full     bool     `codec:"full"`
	Inflight uint16   `codec:"inflight"`
	Lost     uint16   `codec:"lost"`
	RecvUs   []uint32 `codec:"recv_us"`
}

// fdqRecord FrameDataQ帧的JSON形式
type fdqRecord struct {
	Time        string  `codec:"time"`
	Inflight    float64 `codec:"inflight"`
	Lost        float64 `codec:"lost"`
	RecvLen     int     `codec:"recv_len"`
	Percentiles []int64 `codec:"percentiles"`
}

// headerRecord 文件头的JSON形式
type headerRecord struct {
	Schema         string   `codec:"schema"`
	Version        uint64   `codec:"version"`
	FullEncodeSecs uint64   `codec:"full_encode_secs"`
	Precision      *float64 `codec:"recv_llq"`
	DeltaEncoding  bool     `codec:"delta_enc"`
}

func writeJSON(w io.Writer, v interface{}) error {
	var out []byte
	if err := codec.NewEncoderBytes(&out, jsonHandle).Encode(v); err != nil {
		return err
	}
	out = append(out, '\n')
	_, err := w.Write(out)
	return err
}

// Dump 把一个文件的全部帧写成文本或JSON行，返回帧数
// FrameDataQ输入先输出文件头
func Dump(w io.Writer, path string, opts DumpOptions) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer warnonerror.Close(f, "关闭输入文件失败: "+path)

	if opts.Raw {
		return dumpRaw(w, path, frameReader(f, opts.KeyframeRelative), opts.JSON)
	}
	return dumpFDQ(w, path, f, opts.JSON)
}

func dumpRaw(w io.Writer, path string, r *framedata.Reader, asJSON bool) (int, error) {
	n := 0
	for {
		fr, err := r.Next()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, &core.FrameError{Path: path, Index: n, Err: err}
		}
		if asJSON {
			err = writeJSON(w, rawRecord{
				Time:     fr.Time.Format(time.RFC3339Nano),
				Full:     fr.Full,
				Inflight: fr.Inflight,
				Lost:     fr.Lost,
				RecvUs:   fr.RecvUs,
			})
		} else {
			_, err = fmt.Fprintf(w, "%s full:%t i:%d l:%d\t%v\n",
				fr.Time.Format(time.RFC3339Nano), fr.Full, fr.Inflight, fr.Lost, fr.RecvUs)
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

func dumpFDQ(w io.Writer, path string, in io.Reader, asJSON bool) (int, error) {
	d, err := framedataq.NewDecoder(in)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	h := d.Header()
	if asJSON {
		err = writeJSON(w, headerRecord{
			Schema:         h.Schema,
			Version:        h.Version,
			FullEncodeSecs: h.FullEncodeSecs,
			Precision:      h.Precision,
			DeltaEncoding:  h.DeltaEncoding,
		})
	} else {
		_, err = fmt.Fprintln(w, h)
	}
	if err != nil {
		return 0, err
	}

	n := 0
	for {
		fr, err := d.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, &core.FrameError{Path: path, Index: n, Err: err}
		}
		if asJSON {
			err = writeJSON(w, fdqRecord{
				Time:        fr.Time.Format(time.RFC3339Nano),
				Inflight:    fr.Inflight,
				Lost:        fr.Lost,
				RecvLen:     fr.RecvLen,
				Percentiles: fr.Percentiles[:],
			})
		} else {
			_, err = fmt.Fprintln(w, fr)
		}
		if err != nil {
			return n, err
		}
		n++
	}
}
