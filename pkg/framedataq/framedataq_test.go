package framedataq

import (
	"bytes"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/Kevin-Rudy/zzping/pkg/core"
	"github.com/Kevin-Rudy/zzping/pkg/framedata"
	"github.com/Kevin-Rudy/zzping/pkg/quantize"
	"github.com/Kevin-Rudy/zzping/pkg/symbol"
)

var base = time.Date(2021, 6, 1, 10, 0, 0, 500*int(time.Millisecond), time.UTC)

func encodeFrames(t *testing.T, h Header, frames ...Frame) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc, err := NewEncoder(&buf, h)
	if err != nil {
		t.Fatalf("NewEncoder failed: %v", err)
	}
	for i, f := range frames {
		if err := enc.Encode(f); err != nil {
			t.Fatalf("Encode frame %d failed: %v", i, err)
		}
	}
	if err := enc.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	return buf.Bytes()
}

func decodeFrames(t *testing.T, data []byte) (Header, []Frame) {
	t.Helper()
	dec, err := NewDecoder(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("NewDecoder failed: %v", err)
	}
	frames, err := dec.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	return dec.Header(), frames
}

func sameFrame(a, b Frame) bool {
	return a.Time.Equal(b.Time) && a.Inflight == b.Inflight && a.Lost == b.Lost &&
		a.RecvLen == b.RecvLen && a.Percentiles == b.Percentiles
}

func floatPtr(v float64) *float64 { return &v }

// TestComputePercentiles 测试百分位的插值与取整
func TestComputePercentiles(t *testing.T) {
	got := ComputePercentiles([]uint64{3000, 1000, 2000})
	want := Percentiles{1000, 1250, 1500, 2000, 2500, 2750, 3000}
	if got != want {
		t.Errorf("Expected %v, got %v", want, got)
	}

	got = ComputePercentiles([]uint64{1, 2, 3, 4, 5, 6, 7, 8, 9})
	want = Percentiles{1, 2, 3, 5, 7, 8, 9}
	if got != want {
		t.Errorf("Expected %v, got %v", want, got)
	}

	if got := ComputePercentiles(nil); got != (Percentiles{}) {
		t.Errorf("Expected all zero for no samples, got %v", got)
	}
	if got := ComputePercentiles([]uint64{42}); got != (Percentiles{42, 42, 42, 42, 42, 42, 42}) {
		t.Errorf("Expected single sample everywhere, got %v", got)
	}
}

// TestRoundTripUnquantized 测试不量化时的精确往返
func TestRoundTripUnquantized(t *testing.T) {
	in := []Frame{
		{Time: base, Inflight: 2, Lost: 1, RecvLen: 3, Percentiles: Percentiles{1000, 1250, 1500, 2000, 2500, 2750, 3000}},
		{Time: base.Add(100 * time.Millisecond), RecvLen: 0},
		{Time: base.Add(1700 * time.Millisecond), Inflight: 5, RecvLen: 1, Percentiles: Percentiles{7, 7, 7, 7, 7, 7, 7}},
		{Time: base.Add(1600 * time.Millisecond), Lost: 4, RecvLen: 2, Percentiles: Percentiles{10, 9, 8, 7, 6, 5, 4}},
		{Time: base.Add(3 * time.Hour), Inflight: 1, RecvLen: 0},
	}
	h := NewHeader(DefaultFullEncodeSecs, nil, false)
	header, out := decodeFrames(t, encodeFrames(t, h, in...))

	if header.Schema != Schema || header.Version != Version || header.FullEncodeSecs != 60 || header.Precision != nil {
		t.Errorf("Unexpected header %v", header)
	}
	if len(out) != len(in) {
		t.Fatalf("Expected %d frames, got %d", len(in), len(out))
	}
	for i := range in {
		if !sameFrame(in[i], out[i]) {
			t.Errorf("frame %d: Expected %v, got %v", i, in[i], out[i])
		}
	}
}

// TestRoundTripQuantized 测试量化往返的误差上界
func TestRoundTripQuantized(t *testing.T) {
	const p = 0.05
	in := Frame{Time: base, Inflight: 1, RecvLen: 100, Percentiles: Percentiles{900, 1100, 1300, 2000, 4000, 9000, 250000}}
	header, out := decodeFrames(t, encodeFrames(t, NewHeader(60, floatPtr(p), false), in))

	if header.Precision == nil || *header.Precision != p {
		t.Fatalf("Expected precision %v in header, got %v", p, header.Precision)
	}
	for i, want := range in.Percentiles {
		got := out[0].Percentiles[i]
		if rel := math.Abs(float64(got-want)) / float64(want); rel > p+1e-3 {
			t.Errorf("percentile %d: Expected within %v of %d, got %d", i, p, want, got)
		}
	}
}

// TestHeaderRoundTrip 测试文件头字段
func TestHeaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := symbol.NewWriter(&buf)
	h := NewHeader(15, floatPtr(0.25), true)
	if err := h.Encode(w); err != nil {
		t.Fatal(err)
	}
	_ = w.Flush()

	got, layout, err := ReadHeader(symbol.NewReader(&buf))
	if err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}
	if got.FullEncodeSecs != 15 || got.Precision == nil || *got.Precision != 0.25 || !got.DeltaEncoding {
		t.Errorf("Expected %v, got %v", h, got)
	}
	if !got.Unstable() {
		t.Error("Expected delta encoding header to be unstable")
	}
	if layout.Percentiles != 7 || layout.NoCounts != -1 {
		t.Errorf("Unexpected layout %+v", layout)
	}
}

func rawHeader(t *testing.T, h Header, trailing ...symbol.Symbol) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := symbol.NewWriter(&buf)
	if err := h.Encode(w); err != nil {
		t.Fatal(err)
	}
	for _, s := range trailing {
		_ = w.WriteSymbol(s)
	}
	_ = w.Flush()
	return buf.Bytes()
}

// TestSchemaRejection 测试错误的schema在读取帧之前被拒绝
func TestSchemaRejection(t *testing.T) {
	bad := NewHeader(60, nil, false)
	bad.Schema = "FDCodecX"
	data := rawHeader(t, bad, symbol.Uint(1), symbol.Uint(0), symbol.Int(-1), symbol.Uint(0))

	if _, err := NewDecoder(bytes.NewReader(data)); !errors.Is(err, core.ErrFormatMismatch) {
		t.Errorf("Expected ErrFormatMismatch, got %v", err)
	}
	if !errors.Is(core.ErrFormatMismatch, core.ErrSchemaMismatch) {
		t.Error("Expected schema mismatch alias")
	}

	// 原始日志不是映射
	var raw bytes.Buffer
	fw := framedata.NewWriter(&raw, 0)
	_ = fw.Write(framedata.Frame{Time: base, RecvUs: []uint32{1}})
	_ = fw.Flush()
	if _, err := NewDecoder(&raw); !errors.Is(err, core.ErrFormatMismatch) {
		t.Errorf("Expected ErrFormatMismatch for a raw log, got %v", err)
	}
}

// TestVersionGating 测试更新的版本在读取帧之前被拒绝
func TestVersionGating(t *testing.T) {
	h := NewHeader(60, nil, false)
	h.Version = Version + 1
	data := rawHeader(t, h, symbol.String("not a frame"))
	if _, err := NewDecoder(bytes.NewReader(data)); !errors.Is(err, core.ErrUnsupportedVersion) {
		t.Errorf("Expected ErrUnsupportedVersion, got %v", err)
	}

	h.Version = 100
	dec, err := NewDecoder(bytes.NewReader(rawHeader(t, h)))
	if err != nil {
		t.Fatalf("Expected older version to be accepted, got %v", err)
	}
	if dec.Layout().Version != 100 || dec.Layout().Percentiles != 7 {
		t.Errorf("Unexpected layout %+v", dec.Layout())
	}
}

// TestMissingHeaderField 测试缺少字段的文件头
func TestMissingHeaderField(t *testing.T) {
	var buf bytes.Buffer
	w := symbol.NewWriter(&buf)
	_ = w.WriteMapHeader(2)
	_ = w.WriteString("schema")
	_ = w.WriteString(Schema)
	_ = w.WriteString("extra")
	_ = w.WriteArrayHeader(2)
	_ = w.WriteUint(1)
	_ = w.WriteMapHeader(1)
	_ = w.WriteString("k")
	_ = w.WriteNil()
	_ = w.Flush()

	if _, err := NewDecoder(&buf); !errors.Is(err, core.ErrMalformedFrame) {
		t.Errorf("Expected ErrMalformedFrame, got %v", err)
	}
}

// countFullFrames 统计流中完整帧的数量
func countFullFrames(t *testing.T, data []byte) []bool {
	t.Helper()
	r := symbol.NewReader(bytes.NewReader(data))
	_, layout, err := ReadHeader(r)
	if err != nil {
		t.Fatal(err)
	}
	var full []bool
	for {
		wf, err := decodeWire(r, layout)
		if err != nil {
			break
		}
		full = append(full, wf.full)
	}
	return full
}

// TestForcedResync 测试每隔 FullEncodeSecs 强制写完整帧
func TestForcedResync(t *testing.T) {
	var in []Frame
	for i := 0; i < 25; i++ {
		in = append(in, Frame{Time: base.Add(time.Duration(i) * time.Second), RecvLen: 1, Percentiles: Percentiles{1, 1, 1, 1, 1, 1, 1}})
	}
	data := encodeFrames(t, NewHeader(10, nil, false), in...)

	full := countFullFrames(t, data)
	if len(full) != 25 {
		t.Fatalf("Expected 25 frames, got %d", len(full))
	}
	for i, f := range full {
		want := i%10 == 0
		if f != want {
			t.Errorf("frame %d: Expected full=%v, got %v", i, want, f)
		}
	}

	_, out := decodeFrames(t, data)
	for i := range in {
		if !out[i].Time.Equal(in[i].Time) {
			t.Errorf("frame %d: Expected time %v, got %v", i, in[i].Time, out[i].Time)
		}
	}
}

// TestBackwardsTimeIsFull 测试时间倒退时写完整帧
func TestBackwardsTimeIsFull(t *testing.T) {
	data := encodeFrames(t, NewHeader(60, nil, false),
		Frame{Time: base.Add(2 * time.Second)},
		Frame{Time: base.Add(time.Second)},
		Frame{Time: base.Add(1500 * time.Millisecond)},
	)
	full := countFullFrames(t, data)
	if len(full) != 3 || !full[0] || !full[1] || full[2] {
		t.Errorf("Expected [true true false], got %v", full)
	}
}

// TestDeltaEncodingLayout 测试增量编码模式的字节布局保持不变
func TestDeltaEncodingLayout(t *testing.T) {
	const p = 0.1
	q, err := quantize.NewLinearLog(p)
	if err != nil {
		t.Fatal(err)
	}
	h := NewHeader(60, floatPtr(p), true)

	f1 := Frame{Time: base, Inflight: 1, RecvLen: 3, Percentiles: ComputePercentiles([]uint64{1000, 2000, 3000})}
	f2 := Frame{Time: base.Add(time.Second), RecvLen: 1, Percentiles: ComputePercentiles([]uint64{1500})}
	got := encodeFrames(t, h, f1, f2)

	code := func(v int64) int64 {
		c, err := q.Encode(float64(v))
		if err != nil {
			t.Fatal(err)
		}
		return c
	}
	writeCodes := func(w *symbol.Writer, p Percentiles, offset int64) {
		_ = w.WriteArrayHeader(7)
		var prev int64
		for _, v := range p {
			c := code(v) - offset
			if d := c - prev; d < 0 {
				_ = w.WriteInt(d)
			} else {
				_ = w.WriteUint(uint64(d))
			}
			prev = c
		}
	}

	var want bytes.Buffer
	w := symbol.NewWriter(&want)
	_ = h.Encode(w)
	_ = w.WriteUint(uint64(base.Unix()))
	_ = w.WriteUint(500)
	_ = w.WriteUint(1)
	_ = w.WriteUint(0)
	_ = w.WriteUint(3)
	writeCodes(w, f1.Percentiles, 0)
	_ = w.WriteNil()
	_ = w.WriteUint(1000)
	_ = w.WriteInt(-1)
	_ = w.WriteUint(1)
	writeCodes(w, f2.Percentiles, code(f1.Percentiles[0]))
	_ = w.Flush()

	if !bytes.Equal(got, want.Bytes()) {
		t.Fatalf("Expected % x, got % x", want.Bytes(), got)
	}

	// 解码端不加回偏移，第二帧的百分位与原值不同
	_, out := decodeFrames(t, got)
	offsetCode := code(1500) - code(1000)
	wantP0 := int64(math.Round(q.Decode(offsetCode)))
	if out[1].Percentiles[0] != wantP0 {
		t.Errorf("Expected decoded value %d, got %d", wantP0, out[1].Percentiles[0])
	}
	if out[1].Percentiles[0] == 1500 {
		t.Error("Expected delta encoding to alter decoded percentiles")
	}
	if !out[1].Time.Equal(f2.Time) {
		t.Errorf("Expected time %v, got %v", f2.Time, out[1].Time)
	}
}

// TestTruncatedStream 测试截断的流保留之前的帧
func TestTruncatedStream(t *testing.T) {
	var in []Frame
	for i := 0; i < 3; i++ {
		in = append(in, Frame{Time: base.Add(time.Duration(i) * time.Second), RecvLen: 2, Percentiles: Percentiles{1, 2, 3, 4, 5, 6, 7}})
	}
	data := encodeFrames(t, NewHeader(60, nil, false), in...)

	dec, err := NewDecoder(bytes.NewReader(data[:len(data)-1]))
	if err != nil {
		t.Fatal(err)
	}
	frames, err := dec.ReadAll()
	if !errors.Is(err, core.ErrTruncatedStream) {
		t.Errorf("Expected ErrTruncatedStream, got %v", err)
	}
	if len(frames) != 2 {
		t.Errorf("Expected 2 frames before the cut, got %d", len(frames))
	}

	if _, err := NewDecoder(bytes.NewReader(data[:5])); !errors.Is(err, core.ErrTruncatedStream) {
		t.Errorf("Expected truncated header to fail with ErrTruncatedStream, got %v", err)
	}
}

// TestDeltaBeforeFull 测试没有完整帧时的增量帧
func TestDeltaBeforeFull(t *testing.T) {
	data := rawHeader(t, NewHeader(60, nil, false), symbol.Nil(), symbol.Uint(5), symbol.Int(-1), symbol.Uint(0))
	dec, err := NewDecoder(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dec.Next(); !errors.Is(err, core.ErrMalformedFrame) {
		t.Errorf("Expected ErrMalformedFrame, got %v", err)
	}
}

// TestEncodeOutOfRange 测试编码器暴露越界错误
func TestEncodeOutOfRange(t *testing.T) {
	var buf bytes.Buffer
	enc, _ := NewEncoder(&buf, NewHeader(60, floatPtr(0.1), false))
	err := enc.Encode(Frame{Time: base, RecvLen: 1, Percentiles: Percentiles{-5, 0, 0, 0, 0, 0, 0}})
	if !errors.Is(err, core.ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange, got %v", err)
	}
	if err := enc.Encode(Frame{Time: base, Inflight: math.NaN()}); !errors.Is(err, core.ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange for NaN inflight, got %v", err)
	}

	if _, err := NewEncoder(&buf, NewHeader(60, floatPtr(2), false)); err == nil {
		t.Error("Expected invalid precision to be rejected")
	}
}

// TestEncoderReset 测试重置后下一帧为完整帧且文件头只写一次
func TestEncoderReset(t *testing.T) {
	var buf bytes.Buffer
	enc, _ := NewEncoder(&buf, NewHeader(60, nil, false))
	_ = enc.Encode(Frame{Time: base})
	_ = enc.Encode(Frame{Time: base.Add(time.Second)})
	enc.Reset()
	_ = enc.Encode(Frame{Time: base.Add(2 * time.Second)})
	_ = enc.Flush()

	full := countFullFrames(t, buf.Bytes())
	if len(full) != 3 || !full[0] || full[1] || !full[2] {
		t.Errorf("Expected [true false true], got %v", full)
	}
	if enc.Frames() != 3 {
		t.Errorf("Expected 3 frames, got %d", enc.Frames())
	}
}

// TestEmptyStream 测试只有文件头的流
func TestEmptyStream(t *testing.T) {
	header, frames := decodeFrames(t, encodeFrames(t, NewHeader(30, nil, false)))
	if header.FullEncodeSecs != 30 {
		t.Errorf("Expected full_encode_secs 30, got %d", header.FullEncodeSecs)
	}
	if len(frames) != 0 {
		t.Errorf("Expected no frames, got %d", len(frames))
	}
}

// TestMarshalFrame 测试独立帧编码
func TestMarshalFrame(t *testing.T) {
	f := Frame{Time: base, Inflight: 1.6, Lost: 0.4, RecvLen: 12, Percentiles: Percentiles{1, 2, 3, 4, 5, 6, 7}}
	data, err := MarshalFrame(f)
	if err != nil {
		t.Fatal(err)
	}
	got, err := UnmarshalFrame(data)
	if err != nil {
		t.Fatalf("UnmarshalFrame failed: %v", err)
	}
	want := f
	want.Inflight, want.Lost = 2, 0
	if !sameFrame(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}

	var buf bytes.Buffer
	w := symbol.NewWriter(&buf)
	for _, s := range []symbol.Symbol{symbol.Nil(), symbol.Uint(5), symbol.Int(-1), symbol.Uint(0)} {
		_ = w.WriteSymbol(s)
	}
	_ = w.Flush()
	if _, err := UnmarshalFrame(buf.Bytes()); !errors.Is(err, core.ErrMalformedFrame) {
		t.Errorf("Expected ErrMalformedFrame for a delta frame, got %v", err)
	}
}

// TestFromFrameData 测试原始帧转换
func TestFromFrameData(t *testing.T) {
	fd := framedata.Frame{
		Time:     base.Add(1234 * time.Microsecond),
		Inflight: 3,
		Lost:     1,
		RecvUs:   []uint32{3000, 1000, 2000},
	}
	f := FromFrameData(fd)
	if !f.Time.Equal(base.Add(time.Millisecond)) {
		t.Errorf("Expected time truncated to ms, got %v", f.Time)
	}
	if f.Inflight != 3 || f.Lost != 1 || f.RecvLen != 3 {
		t.Errorf("Unexpected counts %v", f)
	}
	if f.Percentiles[3] != 2000 {
		t.Errorf("Expected median 2000, got %d", f.Percentiles[3])
	}
}
